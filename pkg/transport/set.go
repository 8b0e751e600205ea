package transport

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidURL is returned by Set.Open for URLs without scheme or host.
var ErrInvalidURL = errors.New("transport: invalid url")

// Set tracks the connections the application asked for, independent of the
// backend that services them.
type Set struct {
	conns []*Conn
}

// NewSet creates an empty Set.
func NewSet() *Set {
	return &Set{}
}

// Open registers a pending connection to rawURL. The returned Conn's pipes
// are usable right away; messages produced before the transport is up are
// sent once it is.
func (s *Set) Open(rawURL string) (*Conn, error) {
	u, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	c := newConn(u)
	s.conns = append(s.conns, c)
	return c, nil
}

// Len returns the number of connections that are not closed yet.
func (s *Set) Len() int {
	n := 0
	for _, c := range s.conns {
		if c.State() != StateClosed {
			n++
		}
	}
	return n
}

// Each calls fn for every connection that is not closed, and forgets closed
// ones. fn may close connections.
func (s *Set) Each(fn func(*Conn)) {
	live := s.conns[:0]
	for _, c := range s.conns {
		if c.State() == StateClosed {
			continue
		}
		fn(c)
		live = append(live, c)
	}
	for i := len(live); i < len(s.conns); i++ {
		s.conns[i] = nil
	}
	s.conns = live
}

// ParseURL parses a transport URL. Only scheme, host, port and path are
// kept; user info, query and fragment are dropped.
func ParseURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidURL, "%q: %v", rawURL, err)
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return nil, errors.Wrapf(ErrInvalidURL, "%q: scheme and host are required", rawURL)
	}
	return &url.URL{
		Scheme: u.Scheme,
		Host:   u.Host,
		Path:   u.Path,
	}, nil
}
