package transport

import (
	"context"
	"sync"

	"github.com/go-kit/kit/log/level"
)

type stage int

const (
	stageIdle stage = iota
	stageConnecting
	stageEstablished
)

// session is the pump's view of one connection's transport.
type session struct {
	stage  stage
	stream Stream

	// at most one operation of each kind is in flight
	reading bool
	writing bool
	closing bool

	shutdown bool // stream.Close returned
}

type opKind int

const (
	opDial opKind = iota
	opRead
	opWrite
	opClose
)

func (k opKind) String() string {
	switch k {
	case opDial:
		return "dial"
	case opRead:
		return "read"
	case opWrite:
		return "write"
	case opClose:
		return "close"
	default:
		return "unknown"
	}
}

// completion is the result of one finished transport operation.
type completion struct {
	conn   *Conn
	op     opKind
	stream Stream
	data   []byte
	n      int
	err    error
}

// Pump copies messages between the pipes of a Set's connections and the
// streams of a Driver.
//
// Tick is the only place connection state and pipes are changed. Transport
// operations run in the background and their results are applied on the
// next Tick, so the application can call Tick and the pipe methods from a
// single goroutine without locking.
type Pump struct {
	driver Driver
	opts   options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	sessions map[*Conn]*session

	mu   sync.Mutex
	done []completion
}

// NewPump creates a Pump that dials through driver.
func NewPump(driver Driver, opts ...Option) *Pump {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pump{
		driver:   driver,
		opts:     newOptions(opts),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[*Conn]*session),
	}
}

// Tick applies finished operations and starts new ones for every connection
// in set: dials for pending connections, a write when the send pipe holds a
// message, a read when the receive pipe is empty, and a close for
// connections that are closing. It never blocks on I/O.
func (p *Pump) Tick(set *Set) {
	p.mu.Lock()
	done := p.done
	p.done = nil
	p.mu.Unlock()

	for _, ev := range done {
		p.complete(ev)
	}
	set.Each(p.step)
}

// Close aborts dials, shuts every stream down, waits for the background
// operations to return and marks all connections closed.
func (p *Pump) Close() error {
	p.cancel()
	for _, s := range p.sessions {
		if s.stream != nil && !s.closing {
			s.closing = true
			_ = s.stream.Close()
		}
	}
	p.wg.Wait()

	for _, ev := range p.done {
		if ev.op == opDial && ev.stream != nil {
			_ = ev.stream.Close()
		}
	}
	p.done = nil

	for c := range p.sessions {
		p.finish(c)
	}
	return nil
}

func (p *Pump) step(c *Conn) {
	s, ok := p.sessions[c]
	if !ok {
		s = &session{}
		p.sessions[c] = s
	}

	switch c.State() {
	case StatePending:
		if s.stage == stageIdle {
			p.dial(c, s)
		}
	case StateOpen:
		if c.send.Readable() && !s.writing {
			p.write(c, s)
		}
		if !c.receive.Readable() && !s.reading {
			p.read(c, s)
		}
	case StateClosing:
		switch {
		case s.stage == stageConnecting:
			// the dial result decides whether there is a stream to close
		case s.stream == nil:
			p.finish(c)
		case !s.closing && !s.writing:
			// a write in flight completes or fails on its own; reads only
			// end when the stream closes
			p.shutdown(c, s)
		case s.shutdown && !s.reading && !s.writing:
			p.finish(c)
		}
	}
}

func (p *Pump) complete(ev completion) {
	c := ev.conn
	s, ok := p.sessions[c]
	if !ok {
		if ev.stream != nil {
			_ = ev.stream.Close()
		}
		return
	}

	switch ev.op {
	case opDial:
		if ev.err != nil {
			s.stage = stageIdle
			p.fail(c, ev)
			return
		}
		s.stage = stageEstablished
		s.stream = ev.stream
		if c.transition(StateOpen) {
			p.opts.metrics.entered(StateOpen)
			level.Debug(p.opts.logger).Log("event", "connection open", "url", c.url)
		}
	case opWrite:
		s.writing = false
		c.send.clear()
		if ev.err != nil {
			p.fail(c, ev)
			return
		}
		p.opts.metrics.sent(ev.n)
	case opRead:
		s.reading = false
		if ev.err != nil {
			p.fail(c, ev)
			return
		}
		if c.receive.produce(ev.data) {
			p.opts.metrics.received(len(ev.data))
		}
	case opClose:
		s.shutdown = true
		if ev.err != nil {
			level.Debug(p.opts.logger).Log("event", "close failed", "url", c.url, "err", ev.err)
		}
	}
}

// fail moves c towards closed after a transport error. Errors of reads and
// writes cut short by a requested close are expected and only logged at
// debug level.
func (p *Pump) fail(c *Conn, ev completion) {
	if c.State() == StateClosing {
		level.Debug(p.opts.logger).Log("event", "operation ended by close", "op", ev.op, "url", c.url, "err", ev.err)
		return
	}
	p.opts.metrics.failed(ev.op.String())
	level.Warn(p.opts.logger).Log("event", "transport failed", "op", ev.op, "url", c.url, "err", ev.err)
	if c.transition(StateClosing) {
		p.opts.metrics.entered(StateClosing)
	}
}

func (p *Pump) finish(c *Conn) {
	delete(p.sessions, c)
	c.finish()
	p.opts.metrics.entered(StateClosed)
	level.Debug(p.opts.logger).Log("event", "connection closed", "url", c.url)
}

func (p *Pump) dial(c *Conn, s *session) {
	s.stage = stageConnecting
	u := c.URL()
	p.start(c, opDial, func(ctx context.Context) completion {
		if p.opts.dialTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, p.opts.dialTimeout)
			defer cancel()
		}
		stream, err := p.driver.Dial(ctx, u)
		return completion{stream: stream, err: err}
	})
}

func (p *Pump) write(c *Conn, s *session) {
	s.writing = true
	stream, data := s.stream, c.send.peek()
	p.start(c, opWrite, func(ctx context.Context) completion {
		err := stream.WriteMessage(ctx, data)
		return completion{n: len(data), err: err}
	})
}

func (p *Pump) read(c *Conn, s *session) {
	s.reading = true
	stream := s.stream
	p.start(c, opRead, func(ctx context.Context) completion {
		data, err := stream.ReadMessage(ctx)
		return completion{data: data, err: err}
	})
}

func (p *Pump) shutdown(c *Conn, s *session) {
	s.closing = true
	stream := s.stream
	p.start(c, opClose, func(context.Context) completion {
		return completion{err: stream.Close()}
	})
}

// start runs op in the background and queues its completion for the next Tick.
func (p *Pump) start(c *Conn, op opKind, fn func(ctx context.Context) completion) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ev := fn(p.ctx)
		ev.conn, ev.op = c, op

		p.mu.Lock()
		p.done = append(p.done, ev)
		p.mu.Unlock()
	}()
}
