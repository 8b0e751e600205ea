package transport

// Pipe is a single-slot buffer carrying one message in one direction.
//
// While Readable reports true the slot holds exactly one unconsumed message
// and TryProduce refuses new data; the producer has to retry after the
// consumer drained the slot. There is no queue behind the slot.
//
// A Pipe is not safe for concurrent use. The application and the Pump touch
// it from the same goroutine, one after the other within a tick.
type Pipe struct {
	label    string
	buf      []byte
	readable bool
	closed   bool
}

func newPipe(label string) *Pipe {
	return &Pipe{label: label}
}

// Label names the direction, "send" or "receive".
func (p *Pipe) Label() string {
	return p.label
}

// TryProduce stores a copy of data and marks the pipe readable. It reports
// false without touching the pipe when the slot is still occupied or the pipe
// is closed. A false return is backpressure, not an error.
func (p *Pipe) TryProduce(data []byte) bool {
	if p.readable || p.closed {
		return false
	}
	p.buf = append(make([]byte, 0, len(data)), data...)
	p.readable = true
	return true
}

// TryConsume takes the pending message, if any, and empties the slot.
// The returned slice is owned by the caller.
func (p *Pipe) TryConsume() ([]byte, bool) {
	if !p.readable {
		return nil, false
	}
	data := p.buf
	p.clear()
	return data, true
}

// Readable reports whether a message is waiting in the slot.
func (p *Pipe) Readable() bool {
	return p.readable
}

// Close marks the pipe closed. A pending message stays readable.
func (p *Pipe) Close() {
	p.closed = true
}

// Closed reports whether no further messages will be produced.
func (p *Pipe) Closed() bool {
	return p.closed
}

// peek returns the pending message without consuming it.
func (p *Pipe) peek() []byte {
	return p.buf
}

func (p *Pipe) clear() {
	p.buf = nil
	p.readable = false
}

// produce is TryProduce for the pump side, which may still deliver the last
// message read before the transport went away.
func (p *Pipe) produce(data []byte) bool {
	if p.readable {
		return false
	}
	p.buf = data
	p.readable = true
	return true
}
