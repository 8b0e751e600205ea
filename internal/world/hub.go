package world

import (
	"context"
	"io"
	"net"
	"sort"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/omochice/toy-state-sync/pkg/protocol"
)

// ErrFull is returned by Register when the hub already holds as many clients
// as a world update can carry.
var ErrFull = errors.New("world: hub is full")

// ErrTrailingBytes is returned by Update when data continues past the
// encoded state.
var ErrTrailingBytes = errors.New("world: trailing bytes after update")

// Client is one connected user.
type Client struct {
	ID   uint64
	Conn Conn

	// Outgoing holds at most one encoded world update waiting to be written.
	// Broadcast skips the client while the slot is taken.
	Outgoing chan []byte

	// guarded by Hub.mu
	present bool
	pos     protocol.Vec3
	rot     protocol.Quat
}

// NewClient wraps conn in a client that is not registered yet.
func NewClient(conn Conn) *Client {
	return &Client{
		Conn:     conn,
		Outgoing: make(chan []byte, 1),
	}
}

// Hub manages all connected clients and the state they last reported.
// TCP and WebSocket clients share a single Hub instance.
type Hub struct {
	capacity int
	logger   log.Logger
	metrics  *Metrics

	mu      sync.RWMutex
	clients map[*Client]bool
	nextID  uint64

	// bmu serializes Broadcast, which reuses world
	bmu   sync.Mutex
	world *protocol.Message
}

// NewHub creates a Hub for up to capacity clients.
func NewHub(capacity int, opts ...Option) (*Hub, error) {
	world, err := protocol.NewMessage(capacity)
	if err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.NewNopLogger()
	}
	return &Hub{
		capacity: capacity,
		logger:   o.logger,
		metrics:  o.metrics,
		clients:  make(map[*Client]bool),
		world:    world,
	}, nil
}

// Capacity returns the number of clients the hub accepts.
func (h *Hub) Capacity() int {
	return h.capacity
}

// Register adds a client to the hub and assigns its ID.
func (h *Hub) Register(client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) >= h.capacity {
		return errors.Wrapf(ErrFull, "%d clients", len(h.clients))
	}
	h.nextID++
	client.ID = h.nextID
	h.clients[client] = true
	h.metrics.setClients(len(h.clients))
	return nil
}

// Unregister removes a client and its state from the hub.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client)
	h.metrics.setClients(len(h.clients))
}

// ClientCount returns number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Update stores the state a client sent. The message must hold at most one
// user; an empty message withdraws the client from the world.
func (h *Hub) Update(client *Client, data []byte) error {
	msg, err := protocol.NewMessage(1)
	if err != nil {
		return err
	}
	n, err := protocol.DeserializeInto(data, msg)
	if err != nil {
		h.metrics.update("rejected")
		return errors.Wrapf(err, "failed to decode update from client %d", client.ID)
	}
	if n != len(data) {
		h.metrics.update("rejected")
		return errors.Wrapf(ErrTrailingBytes, "client %d sent %d bytes, update ends at %d", client.ID, len(data), n)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[client] {
		return errors.Errorf("client %d is not registered", client.ID)
	}
	client.present = msg.Count() == 1
	if client.present {
		client.pos, client.rot = msg.Position(0), msg.Orientation(0)
	}
	h.metrics.update("accepted")
	return nil
}

// Snapshot fills m with the state of every client that reported one, in
// order of registration.
func (h *Hub) Snapshot(m *protocol.Message) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	present := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if c.present {
			present = append(present, c)
		}
	}
	sort.Slice(present, func(i, j int) bool { return present[i].ID < present[j].ID })

	m.Reset()
	for _, c := range present {
		if err := m.Append(c.pos, c.rot); err != nil {
			return err
		}
	}
	return nil
}

// Broadcast encodes the current world once and offers it to every client.
// A client still holding the previous update is skipped. It returns how
// many clients got the update and how many were skipped.
func (h *Hub) Broadcast() (sent, dropped int, err error) {
	h.bmu.Lock()
	defer h.bmu.Unlock()

	if err := h.Snapshot(h.world); err != nil {
		return 0, 0, errors.Wrap(err, "failed to assemble world")
	}
	data, err := h.world.MarshalBinary()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to encode world")
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.Outgoing <- data:
			sent++
		default:
			dropped++
		}
	}
	h.metrics.broadcast(sent, dropped)
	return sent, dropped, nil
}

// Serve registers conn as a client and relays between it and the hub until
// the peer disconnects or ctx is done. conn is closed on return. A normal
// disconnect returns nil.
func (h *Hub) Serve(ctx context.Context, conn Conn) error {
	client := NewClient(conn)
	if err := h.Register(client); err != nil {
		_ = conn.Close()
		return err
	}
	defer h.Unregister(client)

	logger := log.With(h.logger, "client", client.ID, "remote", conn.RemoteAddr())
	level.Info(logger).Log("event", "client joined")

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() { _ = conn.Close() })
	defer stop()

	g.Go(func() error { return h.readLoop(gctx, logger, client) })
	g.Go(func() error { return h.writeLoop(gctx, client) })

	err := g.Wait()
	_ = conn.Close()
	if isDisconnect(err) || ctx.Err() != nil {
		level.Info(logger).Log("event", "client left")
		return nil
	}
	level.Warn(logger).Log("event", "client dropped", "err", err)
	return err
}

func (h *Hub) readLoop(ctx context.Context, logger log.Logger, client *Client) error {
	for {
		data, err := client.Conn.Read(ctx)
		if err != nil {
			return err
		}
		if err := h.Update(client, data); err != nil {
			level.Warn(logger).Log("event", "update rejected", "size", len(data), "err", err)
		}
	}
}

func (h *Hub) writeLoop(ctx context.Context, client *Client) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-client.Outgoing:
			if err := client.Conn.Write(ctx, data); err != nil {
				return errors.Wrap(err, "failed to write world update")
			}
		}
	}
}

func isDisconnect(err error) bool {
	return err == nil ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, context.Canceled)
}
