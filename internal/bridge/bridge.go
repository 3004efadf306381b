package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vfdlink/modbus2mqtt/internal/logging"
	"github.com/vfdlink/modbus2mqtt/internal/modbus"
	"github.com/vfdlink/modbus2mqtt/internal/register"
)

type Connector interface {
	Connect(ctx context.Context) error
}

type Poller interface {
	PollAll(ctx context.Context, cat *register.Catalog) ([]register.DecodedValue, error)
}

type Announcer interface {
	AnnounceAll(ctx context.Context, cat *register.Catalog, id register.DeviceIdentity) error
}

// Sink receives every successfully decoded value of a cycle.
type Sink interface {
	Name() string
	Publish(ctx context.Context, v register.DecodedValue) error
}

type Options struct {
	Catalog   *register.Catalog
	Identity  register.DeviceIdentity
	Interval  time.Duration
	Broker    Connector
	Poller    Poller
	Announcer Announcer // nil disables discovery
	Sinks     []Sink
	Clock     Clock // nil means RealClock
}

type Bridge struct {
	opts Options
}

// CycleReport summarises one poll cycle.
type CycleReport struct {
	Polled    int
	Published int
	Failed    int
	Skipped   bool // transport could not be opened
}

func New(opts Options) *Bridge {
	if opts.Clock == nil {
		opts.Clock = RealClock
	}
	return &Bridge{opts: opts}
}

// Run connects the broker, announces once and then polls every interval
// until ctx is cancelled. A broker connect failure is returned wrapped in
// ErrStartup without announcing or polling.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.opts.Broker.Connect(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}

	if b.opts.Announcer != nil {
		if err := b.opts.Announcer.AnnounceAll(ctx, b.opts.Catalog, b.opts.Identity); err != nil {
			logging.Warn("discovery incomplete", "error", err)
		}
	}

	logging.Info("starting poll loop", "registers", b.opts.Catalog.Len(), "interval", b.opts.Interval)
	for {
		rep := b.RunCycle(ctx)
		logging.Debug("cycle done", "polled", rep.Polled, "published", rep.Published, "failed", rep.Failed, "skipped", rep.Skipped)

		select {
		case <-ctx.Done():
			logging.Info("poll loop stopped")
			return nil
		case <-b.opts.Clock.After(b.opts.Interval):
		}
	}
}

// RunCycle performs one poll and fans OK values out to every sink.
func (b *Bridge) RunCycle(ctx context.Context) CycleReport {
	var rep CycleReport
	values, err := b.opts.Poller.PollAll(ctx, b.opts.Catalog)
	if err != nil {
		if errors.Is(err, modbus.ErrTransportOpen) {
			rep.Skipped = true
			logging.Warn("modbus connection failed, skipping cycle", "error", err)
			return rep
		}
		if ctx.Err() == nil {
			logging.Warn("poll cycle interrupted", "error", err)
		}
	}

	for _, v := range values {
		rep.Polled++
		if !v.OK() {
			rep.Failed++
			continue
		}
		for _, s := range b.opts.Sinks {
			if err := s.Publish(ctx, v); err != nil {
				logging.Warn("publish failed", "sink", s.Name(), "register", v.Name(), "error", err)
				continue
			}
			rep.Published++
		}
	}
	return rep
}
