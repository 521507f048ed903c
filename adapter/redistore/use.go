package redistore

import (
	"fmt"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"

	"github.com/stashworks/stashbus"
)

// Option configures the stashbus.Bus construction when calling Use.
type Option func(*stashbus.BusBuilder)

// WithLogger injects a custom xlog logger.
func WithLogger(l *xlog.Logger) Option {
	return func(b *stashbus.BusBuilder) { b.WithLogger(l) }
}

// WithClock injects a custom xclock clock.
func WithClock(c xclock.Clock) Option {
	return func(b *stashbus.BusBuilder) { b.WithClock(c) }
}

// WithObserver attaches observers for lifecycle events.
func WithObserver(obs ...stashbus.Observer) Option {
	return func(b *stashbus.BusBuilder) { b.WithObserver(obs...) }
}

// WithSweep enables the age-based safety valve.
func WithSweep(cfg stashbus.SweepConfig) Option {
	return func(b *stashbus.BusBuilder) { b.WithSweep(cfg) }
}

// WithMaxInFlight caps concurrently running listener deliveries.
func WithMaxInFlight(n int64) Option {
	return func(b *stashbus.BusBuilder) { b.WithMaxInFlight(n) }
}

// Use builds a Bus backed by a Redis store and installs it as the
// process-wide default. Mirrors the xlog "Use" behavior: explicit
// construction and global install.
func Use(cfg Config, opts ...Option) *stashbus.Bus {
	bb := stashbus.NewBusBuilder().
		WithStore(NewStore(cfg, nil))

	for _, o := range opts {
		if o != nil {
			o(bb)
		}
	}
	bus, err := bb.Build()
	if err != nil {
		panic(fmt.Errorf("redistore.Use: %w", err))
	}

	stashbus.SetDefault(bus)
	return bus
}
