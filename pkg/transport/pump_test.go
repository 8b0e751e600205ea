package transport_test

import (
	"context"
	"io"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/toy-state-sync/pkg/transport"
)

// fakeStream is an in-memory Stream. The test feeds in and drains out.
type fakeStream struct {
	in       chan []byte
	out      chan []byte
	closed   chan struct{}
	once     sync.Once
	writeErr error

	// writeGate, when set, holds every write until closed
	writeGate    chan struct{}
	writeStarted chan struct{}

	mu             sync.Mutex
	closedMidWrite bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		in:           make(chan []byte, 4),
		out:          make(chan []byte, 4),
		closed:       make(chan struct{}),
		writeStarted: make(chan struct{}, 1),
	}
}

func (s *fakeStream) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case data := <-s.in:
		return data, nil
	case <-s.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeStream) WriteMessage(ctx context.Context, data []byte) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	if s.writeGate != nil {
		s.writeStarted <- struct{}{}
		select {
		case <-s.writeGate:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.mu.Lock()
		s.closedMidWrite = s.isClosed()
		s.mu.Unlock()
	}
	select {
	case s.out <- data:
		return nil
	case <-s.closed:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// fakeDriver hands out fakeStreams. A non-nil gate holds dials until closed.
type fakeDriver struct {
	mu        sync.Mutex
	dialErr   error
	gate      chan struct{}
	writeErr  error
	writeGate chan struct{}
	dials     int
	streams   []*fakeStream
}

func (d *fakeDriver) Dial(ctx context.Context, u *url.URL) (transport.Stream, error) {
	d.mu.Lock()
	d.dials++
	gate, dialErr := d.gate, d.dialErr
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if dialErr != nil {
		return nil, dialErr
	}

	s := newFakeStream()
	s.writeErr = d.writeErr
	s.writeGate = d.writeGate
	d.mu.Lock()
	d.streams = append(d.streams, s)
	d.mu.Unlock()
	return s, nil
}

func (d *fakeDriver) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDriver) stream(t *testing.T, i int) *fakeStream {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	require.Greater(t, len(d.streams), i, "stream %d not dialed", i)
	return d.streams[i]
}

// tickUntil ticks the pump until cond holds.
func tickUntil(t *testing.T, p *transport.Pump, set *transport.Set, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached before deadline")
		}
		p.Tick(set)
		time.Sleep(time.Millisecond)
	}
}

func openConn(t *testing.T, set *transport.Set) *transport.Conn {
	t.Helper()
	c, err := set.Open("ws://example.test/world")
	require.NoError(t, err)
	return c
}

func TestPump_OpensAndSends(t *testing.T) {
	driver := &fakeDriver{}
	pump := transport.NewPump(driver)
	defer pump.Close()

	set := transport.NewSet()
	c := openConn(t, set)
	require.True(t, c.Send().TryProduce([]byte("queued before open")))

	tickUntil(t, pump, set, func() bool { return c.State() == transport.StateOpen })

	s := driver.stream(t, 0)
	tickUntil(t, pump, set, func() bool { return len(s.out) == 1 })
	assert.Equal(t, []byte("queued before open"), <-s.out)

	tickUntil(t, pump, set, func() bool { return !c.Send().Readable() })
	assert.True(t, c.Send().TryProduce([]byte("next")), "slot is free after the write completed")

	tickUntil(t, pump, set, func() bool { return len(s.out) == 1 })
	assert.Equal(t, []byte("next"), <-s.out)
}

func TestPump_SendBackpressure(t *testing.T) {
	driver := &fakeDriver{}
	pump := transport.NewPump(driver)
	defer pump.Close()

	set := transport.NewSet()
	c := openConn(t, set)

	require.True(t, c.Send().TryProduce([]byte("one")))
	assert.False(t, c.Send().TryProduce([]byte("two")))

	tickUntil(t, pump, set, func() bool { return c.State() == transport.StateOpen })
	s := driver.stream(t, 0)
	tickUntil(t, pump, set, func() bool { return len(s.out) == 1 })
	assert.Equal(t, []byte("one"), <-s.out)
}

func TestPump_ReceivesInOrder(t *testing.T) {
	driver := &fakeDriver{}
	pump := transport.NewPump(driver)
	defer pump.Close()

	set := transport.NewSet()
	c := openConn(t, set)
	tickUntil(t, pump, set, func() bool { return c.State() == transport.StateOpen })

	s := driver.stream(t, 0)
	s.in <- []byte("a")
	s.in <- []byte("b")

	tickUntil(t, pump, set, c.Receive().Readable)
	for i := 0; i < 5; i++ {
		pump.Tick(set)
	}
	data, ok := c.Receive().TryConsume()
	require.True(t, ok)
	assert.Equal(t, []byte("a"), data, "a full slot is not overwritten")

	tickUntil(t, pump, set, c.Receive().Readable)
	data, ok = c.Receive().TryConsume()
	require.True(t, ok)
	assert.Equal(t, []byte("b"), data)
}

func TestPump_DialFailureClosesWithoutOpening(t *testing.T) {
	driver := &fakeDriver{dialErr: errors.New("connection refused")}
	reg := prometheus.NewRegistry()
	metrics := transport.NewMetrics(reg, "test")
	pump := transport.NewPump(driver, transport.WithMetrics(metrics))
	defer pump.Close()

	set := transport.NewSet()
	c := openConn(t, set)
	require.True(t, c.Send().TryProduce([]byte("never sent")))

	var seen []transport.State
	tickUntil(t, pump, set, func() bool {
		seen = append(seen, c.State())
		return c.Receive().Closed()
	})

	assert.Equal(t, transport.StateClosed, c.State())
	assert.NotContains(t, seen, transport.StateOpen)
	assert.True(t, c.Send().Closed())
	assert.Zero(t, set.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Failures("dial")))
}

func TestPump_ApplicationClose(t *testing.T) {
	driver := &fakeDriver{}
	pump := transport.NewPump(driver)
	defer pump.Close()

	set := transport.NewSet()
	c := openConn(t, set)
	tickUntil(t, pump, set, func() bool { return c.State() == transport.StateOpen })

	c.Close()
	assert.Equal(t, transport.StateClosing, c.State())

	tickUntil(t, pump, set, func() bool { return c.State() == transport.StateClosed })
	assert.True(t, driver.stream(t, 0).isClosed())
	assert.True(t, c.Receive().Closed())
}

func TestPump_CloseBeforeDial(t *testing.T) {
	driver := &fakeDriver{}
	pump := transport.NewPump(driver)
	defer pump.Close()

	set := transport.NewSet()
	c := openConn(t, set)
	c.Close()

	pump.Tick(set)
	assert.Equal(t, transport.StateClosed, c.State())
	assert.Zero(t, driver.dialCount())
}

func TestPump_CloseWhileConnecting(t *testing.T) {
	driver := &fakeDriver{gate: make(chan struct{})}
	pump := transport.NewPump(driver)
	defer pump.Close()

	set := transport.NewSet()
	c := openConn(t, set)
	tickUntil(t, pump, set, func() bool { return driver.dialCount() == 1 })

	c.Close()
	for i := 0; i < 5; i++ {
		pump.Tick(set)
	}
	assert.Equal(t, transport.StateClosing, c.State(), "waits for the dial to land")

	close(driver.gate)
	tickUntil(t, pump, set, func() bool { return c.State() == transport.StateClosed })
	assert.True(t, driver.stream(t, 0).isClosed(), "stream dialed after close is shut down")
}

func TestPump_CloseWaitsForWrite(t *testing.T) {
	driver := &fakeDriver{writeGate: make(chan struct{})}
	pump := transport.NewPump(driver)
	defer pump.Close()

	set := transport.NewSet()
	c := openConn(t, set)
	tickUntil(t, pump, set, func() bool { return c.State() == transport.StateOpen })

	s := driver.stream(t, 0)
	require.True(t, c.Send().TryProduce([]byte("in flight")))
	tickUntil(t, pump, set, func() bool { return len(s.writeStarted) == 1 })

	c.Close()
	for i := 0; i < 10; i++ {
		pump.Tick(set)
		time.Sleep(time.Millisecond)
	}
	assert.False(t, s.isClosed(), "stream stays open while a write is in flight")
	assert.Equal(t, transport.StateClosing, c.State())

	close(driver.writeGate)
	tickUntil(t, pump, set, func() bool { return c.State() == transport.StateClosed })

	assert.Equal(t, []byte("in flight"), <-s.out)
	s.mu.Lock()
	assert.False(t, s.closedMidWrite, "write completed on an open stream")
	s.mu.Unlock()
	assert.True(t, s.isClosed())
}

func TestPump_PeerClose(t *testing.T) {
	driver := &fakeDriver{}
	pump := transport.NewPump(driver)
	defer pump.Close()

	set := transport.NewSet()
	c := openConn(t, set)
	tickUntil(t, pump, set, func() bool { return c.State() == transport.StateOpen })

	driver.stream(t, 0).Close()
	tickUntil(t, pump, set, c.Receive().Closed)
	assert.Equal(t, transport.StateClosed, c.State())
}

func TestPump_WriteFailure(t *testing.T) {
	driver := &fakeDriver{writeErr: errors.New("broken pipe")}
	pump := transport.NewPump(driver)
	defer pump.Close()

	set := transport.NewSet()
	c := openConn(t, set)
	require.True(t, c.Send().TryProduce([]byte("doomed")))

	tickUntil(t, pump, set, c.Receive().Closed)
	assert.Equal(t, transport.StateClosed, c.State())
	assert.False(t, c.Send().Readable())
}

func TestPump_DialTimeout(t *testing.T) {
	driver := &fakeDriver{gate: make(chan struct{})}
	pump := transport.NewPump(driver, transport.WithDialTimeout(20*time.Millisecond))
	defer pump.Close()

	set := transport.NewSet()
	c := openConn(t, set)

	tickUntil(t, pump, set, c.Receive().Closed)
	assert.Equal(t, transport.StateClosed, c.State())
}

func TestPump_CloseFinishesEverything(t *testing.T) {
	driver := &fakeDriver{}
	pump := transport.NewPump(driver)

	set := transport.NewSet()
	open := openConn(t, set)
	tickUntil(t, pump, set, func() bool { return open.State() == transport.StateOpen })

	require.NoError(t, pump.Close())
	assert.Equal(t, transport.StateClosed, open.State())
	assert.True(t, open.Receive().Closed())
	assert.True(t, driver.stream(t, 0).isClosed())
}

func TestPump_IndependentConnections(t *testing.T) {
	driver := &fakeDriver{}
	reg := prometheus.NewRegistry()
	metrics := transport.NewMetrics(reg, "test")
	pump := transport.NewPump(driver, transport.WithMetrics(metrics))
	defer pump.Close()

	set := transport.NewSet()
	a := openConn(t, set)
	b := openConn(t, set)
	tickUntil(t, pump, set, func() bool {
		return a.State() == transport.StateOpen && b.State() == transport.StateOpen
	})

	a.Close()
	tickUntil(t, pump, set, func() bool { return a.State() == transport.StateClosed })
	assert.Equal(t, transport.StateOpen, b.State())
	assert.Equal(t, 1, set.Len())

	require.True(t, b.Send().TryProduce([]byte("still here")))
	tickUntil(t, pump, set, func() bool { return !b.Send().Readable() })
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MessagesSent()))
}
