// Package bot is a headless client: it walks a circle, reports its position
// to the server every frame and reads back the world.
package bot

import (
	"context"
	"math"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"

	"github.com/omochice/toy-state-sync/internal/config"
	"github.com/omochice/toy-state-sync/pkg/protocol"
	"github.com/omochice/toy-state-sync/pkg/transport"
)

// ErrDisconnected is returned by Run when the connection closed before the
// bot decided to leave.
var ErrDisconnected = errors.New("bot: disconnected from server")

// Stats summarizes one run.
type Stats struct {
	Frames   int
	Sent     int // state updates accepted by the send pipe
	Received int // world updates decoded
	Rejected int // world updates that failed to decode
	MaxUsers int // largest world seen
}

// Bot runs the client frame loop.
type Bot struct {
	cfg    config.Client
	driver transport.Driver
	opts   []transport.Option
	logger log.Logger
}

// New creates a Bot dialing through driver. opts configure its pump; the
// dial timeout of cfg is applied on top.
func New(cfg config.Client, driver transport.Driver, logger log.Logger, opts ...transport.Option) (*Bot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	opts = append(opts, transport.WithLogger(logger))
	if cfg.DialTimeout > 0 {
		opts = append(opts, transport.WithDialTimeout(cfg.DialTimeout))
	}
	return &Bot{cfg: cfg, driver: driver, opts: opts, logger: logger}, nil
}

// Run connects and plays frames until ctx is done, cfg.Duration elapsed or
// the server goes away.
func (b *Bot) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	pump := transport.NewPump(b.driver, b.opts...)
	defer pump.Close()

	set := transport.NewSet()
	conn, err := set.Open(b.cfg.URL)
	if err != nil {
		return stats, err
	}

	own, err := protocol.NewMessage(1)
	if err != nil {
		return stats, err
	}
	world, err := protocol.NewMessage(b.cfg.Capacity)
	if err != nil {
		return stats, err
	}
	buf := make([]byte, protocol.MaxEncodedSize(1))

	ticker := time.NewTicker(b.cfg.TickInterval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if b.cfg.Duration > 0 {
		timer := time.NewTimer(b.cfg.Duration)
		defer timer.Stop()
		deadline = timer.C
	}

	leaving := false
	done := ctx.Done()
	for {
		select {
		case <-done:
			done = nil
			leaving = true
			conn.Close()
		case <-deadline:
			deadline = nil
			leaving = true
			conn.Close()
		case <-ticker.C:
		}

		pump.Tick(set)
		stats.Frames++

		if data, ok := conn.Receive().TryConsume(); ok {
			if _, err := protocol.DeserializeInto(data, world); err != nil {
				stats.Rejected++
				level.Warn(b.logger).Log("event", "world update rejected", "size", len(data), "err", err)
			} else {
				stats.Received++
				if world.Count() > stats.MaxUsers {
					stats.MaxUsers = world.Count()
				}
				level.Debug(b.logger).Log("event", "world update", "users", world.Count())
			}
		}

		if conn.Receive().Closed() {
			level.Info(b.logger).Log("event", "connection closed", "frames", stats.Frames, "received", stats.Received)
			if leaving {
				return stats, nil
			}
			return stats, errors.Wrapf(ErrDisconnected, "after %d frames", stats.Frames)
		}

		if leaving {
			continue
		}
		if err := b.pose(own, stats.Frames); err != nil {
			return stats, err
		}
		n, err := protocol.Serialize(own, buf)
		if err != nil {
			return stats, errors.Wrap(err, "failed to encode own state")
		}
		if conn.Send().TryProduce(buf[:n]) {
			stats.Sent++
		}
	}
}

// pose places the bot on its circle for the given frame, facing along it.
func (b *Bot) pose(m *protocol.Message, frame int) error {
	angle := float64(frame) * b.cfg.TickInterval.Seconds()
	r := float64(b.cfg.Radius)
	pos := protocol.Vec3{
		X: float32(r * math.Cos(angle)),
		Z: float32(r * math.Sin(angle)),
	}
	half := -angle / 2
	rot := protocol.Quat{Y: float32(math.Sin(half)), W: float32(math.Cos(half))}

	m.Reset()
	return m.Append(pos, rot)
}
