package transport

import (
	"net/url"
)

// State is the lifecycle of a Conn.
type State int

const (
	// StatePending is a requested connection without a transport yet.
	StatePending State = iota
	// StateOpen is an established transport.
	StateOpen
	// StateClosing means close was requested by either side.
	StateClosing
	// StateClosed is terminal.
	StateClosed
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Conn is a logical connection: a send pipe, a receive pipe and the URL the
// pump dials. The application reads and writes the pipes; the pump owns the
// transport and the state transitions that follow from it.
//
// Transport failures are not reported separately. They close the connection
// and the application sees Receive().Closed() turn true.
type Conn struct {
	url     *url.URL
	send    *Pipe
	receive *Pipe
	state   State
}

func newConn(u *url.URL) *Conn {
	return &Conn{
		url:     u,
		send:    newPipe("send"),
		receive: newPipe("receive"),
		state:   StatePending,
	}
}

// URL returns a copy of the target URL.
func (c *Conn) URL() *url.URL {
	u := *c.url
	return &u
}

// Send returns the outbound pipe.
func (c *Conn) Send() *Pipe {
	return c.send
}

// Receive returns the inbound pipe.
func (c *Conn) Receive() *Pipe {
	return c.receive
}

// State returns the lifecycle state.
func (c *Conn) State() State {
	return c.state
}

// Close requests the connection to close. The pump finishes in-flight
// operations, shuts the transport down and then moves it to StateClosed.
// Closing a connection that is already closing or closed does nothing.
func (c *Conn) Close() {
	c.transition(StateClosing)
}

// transition moves c to the given state if the lifecycle allows it.
func (c *Conn) transition(to State) bool {
	switch {
	case c.state == StatePending && to == StateOpen,
		c.state == StatePending && to == StateClosing,
		c.state == StateOpen && to == StateClosing,
		c.state == StateClosing && to == StateClosed:
		c.state = to
		return true
	default:
		return false
	}
}

// finish closes both pipes and makes the connection terminal.
func (c *Conn) finish() {
	c.transition(StateClosing)
	c.transition(StateClosed)
	c.send.Close()
	c.receive.Close()
}
