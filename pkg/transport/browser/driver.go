//go:build js && wasm

// Package browser implements transport.Driver on the WebSocket object of the
// host JavaScript environment.
//
// The host delivers events through callbacks. Each callback only hands its
// result over to a channel; the pump picks it up on a later tick, the same
// way it does for native streams.
package browser

import (
	"context"
	"net/url"
	"sync"
	"syscall/js"

	"github.com/pkg/errors"

	"github.com/omochice/toy-state-sync/pkg/transport"
)

// ErrClosed is returned by reads and writes on a closed socket.
var ErrClosed = errors.New("browser: websocket closed")

// WebSocket readyState values.
const (
	stateConnecting = 0
	stateOpen       = 1
)

// Driver dials through the global WebSocket constructor.
type Driver struct {
	global js.Value
}

var _ transport.Driver = (*Driver)(nil)

// New creates a Driver bound to globalThis.
func New() *Driver {
	return &Driver{global: js.Global()}
}

// Dial implements transport.Driver.
func (d *Driver) Dial(ctx context.Context, u *url.URL) (transport.Stream, error) {
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, errors.Wrapf(transport.ErrUnsupportedScheme, "browser driver: %q", u.Scheme)
	}

	ctor := d.global.Get("WebSocket")
	if ctor.IsUndefined() {
		return nil, errors.New("browser: WebSocket is not available in this environment")
	}

	s, err := newStream(ctor, u.String())
	if err != nil {
		return nil, err
	}

	select {
	case <-s.opened:
		return s, nil
	case <-s.done:
		s.release()
		return nil, errors.Wrapf(s.err(), "failed to connect to %s", u.Redacted())
	case <-ctx.Done():
		_ = s.Close()
		return nil, ctx.Err()
	}
}

// stream wraps one host WebSocket.
//
// At most one incoming message is held while no read is waiting; anything
// arriving on top of it is dropped, as the pipe it would land in is full.
type stream struct {
	ws      js.Value
	funcs   []js.Func
	opened  chan struct{}
	done    chan struct{}
	inbound chan []byte

	mu       sync.Mutex
	closeErr error

	openOnce  sync.Once
	doneOnce  sync.Once
	closeOnce sync.Once
}

func newStream(ctor js.Value, rawURL string) (s *stream, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("browser: failed to create WebSocket: %v", r)
		}
	}()

	s = &stream{
		opened:  make(chan struct{}),
		done:    make(chan struct{}),
		inbound: make(chan []byte, 1),
	}
	s.ws = ctor.New(rawURL)
	s.ws.Set("binaryType", "arraybuffer")

	s.on("open", func(js.Value) {
		s.openOnce.Do(func() { close(s.opened) })
	})
	s.on("message", func(ev js.Value) {
		data := ev.Get("data")
		if !data.InstanceOf(js.Global().Get("ArrayBuffer")) {
			return
		}
		buf := make([]byte, data.Get("byteLength").Int())
		js.CopyBytesToGo(buf, js.Global().Get("Uint8Array").New(data))
		select {
		case s.inbound <- buf:
		default:
		}
	})
	s.on("error", func(js.Value) {
		s.finish(errors.New("browser: websocket error"))
	})
	s.on("close", func(ev js.Value) {
		s.finish(errors.Wrapf(ErrClosed, "code %d %s", ev.Get("code").Int(), ev.Get("reason").String()))
	})
	return s, nil
}

func (s *stream) on(event string, fn func(js.Value)) {
	cb := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) > 0 {
			fn(args[0])
		} else {
			fn(js.Undefined())
		}
		return nil
	})
	s.funcs = append(s.funcs, cb)
	s.ws.Set("on"+event, cb)
}

func (s *stream) finish(err error) {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		s.closeErr = err
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *stream) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeErr == nil {
		return ErrClosed
	}
	return s.closeErr
}

// ReadMessage implements transport.Stream.
func (s *stream) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case data := <-s.inbound:
		return data, nil
	case <-s.done:
		select {
		case data := <-s.inbound:
			return data, nil
		default:
			return nil, s.err()
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WriteMessage implements transport.Stream. The host queues the data; the
// call returns once it is handed over.
func (s *stream) WriteMessage(ctx context.Context, data []byte) (err error) {
	if s.ws.Get("readyState").Int() != stateOpen {
		return s.err()
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("browser: send failed: %v", r)
		}
	}()

	arr := js.Global().Get("Uint8Array").New(len(data))
	js.CopyBytesToJS(arr, data)
	s.ws.Call("send", arr.Get("buffer"))
	return nil
}

// Close implements transport.Stream.
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		switch s.ws.Get("readyState").Int() {
		case stateConnecting, stateOpen:
			s.ws.Call("close", 1000)
		}
		s.finish(ErrClosed)
		s.release()
	})
	return nil
}

// release detaches the callbacks and frees them.
func (s *stream) release() {
	for _, event := range []string{"open", "message", "error", "close"} {
		s.ws.Set("on"+event, js.Null())
	}
	for _, cb := range s.funcs {
		cb.Release()
	}
	s.funcs = nil
}
