package stashbus

import (
	"context"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
	"golang.org/x/sync/semaphore"
)

// BusBuilder constructs Bus instances (Builder pattern).
type BusBuilder struct {
	store     Store
	codecInst Codec

	observers   []Observer
	logger      *xlog.Logger
	clock       xclock.Clock
	baseCtx     context.Context
	maxInFlight int64
	sweep       SweepConfig
	poolWorkers int
	poolBuffer  int
}

// NewBusBuilder returns a new builder with sensible defaults: in-memory
// store, JSON codec, unbounded delivery concurrency and no sweeper.
func NewBusBuilder() *BusBuilder {
	return &BusBuilder{
		poolWorkers: 4,
		poolBuffer:  1000,
	}
}

// WithStore accepts a ready Store instance (e.g., from adapter Use()).
func (bb *BusBuilder) WithStore(s Store) *BusBuilder {
	bb.store = s
	return bb
}

// WithCodec accepts a ready Codec instance.
func (bb *BusBuilder) WithCodec(c Codec) *BusBuilder {
	bb.codecInst = c
	return bb
}

func (bb *BusBuilder) WithObserver(obs ...Observer) *BusBuilder {
	for _, o := range obs {
		if o != nil {
			bb.observers = append(bb.observers, o)
		}
	}
	return bb
}

func (bb *BusBuilder) WithLogger(l *xlog.Logger) *BusBuilder {
	bb.logger = l
	return bb
}

func (bb *BusBuilder) WithClock(c xclock.Clock) *BusBuilder {
	bb.clock = c
	return bb
}

// WithBaseContext sets the context delivered goroutines run under.
func (bb *BusBuilder) WithBaseContext(ctx context.Context) *BusBuilder {
	bb.baseCtx = ctx
	return bb
}

// WithMaxInFlight caps concurrently running listener deliveries. Zero or
// negative means unbounded. Notify itself never blocks on the cap.
func (bb *BusBuilder) WithMaxInFlight(n int64) *BusBuilder {
	bb.maxInFlight = n
	return bb
}

// WithSweep enables the age-based safety valve that force-evicts events whose
// listeners never report.
func (bb *BusBuilder) WithSweep(cfg SweepConfig) *BusBuilder {
	bb.sweep = cfg
	return bb
}

// WithObserverPool sizes the async observer dispatch pool.
func (bb *BusBuilder) WithObserverPool(workers, bufferSize int) *BusBuilder {
	bb.poolWorkers = workers
	bb.poolBuffer = bufferSize
	return bb
}

func (bb *BusBuilder) Build() (*Bus, error) {
	st := bb.store
	if st == nil {
		st = NewMemoryStore()
	}

	cd := bb.codecInst
	if cd == nil {
		cd = JSONCodec{}
	}

	clk := bb.clock
	if clk == nil {
		clk = xclock.Default()
	}

	lg := bb.logger
	if lg == nil {
		lg = xlog.Default()
	}

	baseCtx := bb.baseCtx
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	trk := newTracker(st, clk, lg)

	b := &Bus{
		registry:     newTopicRegistry(st, trk),
		subs:         newSubscriptions(),
		store:        st,
		tracker:      trk,
		codec:        cd,
		clock:        clk,
		logger:       lg,
		baseCtx:      baseCtx,
		sweep:        bb.sweep,
		metrics:      &busMetrics{},
		observerPool: NewObserverPool(baseCtx, bb.poolWorkers, bb.poolBuffer),
	}

	if bb.maxInFlight > 0 {
		b.deliverSem = semaphore.NewWeighted(bb.maxInFlight)
	}

	// Attach logging observer first for dependable telemetry unless already
	// supplied externally.
	hasLoggingObserver := false
	for _, o := range bb.observers {
		if _, ok := o.(LoggingObserver); ok {
			hasLoggingObserver = true
			break
		}
	}
	if !hasLoggingObserver && lg != nil {
		b.AddObserver(LoggingObserver{Logger: lg})
	}

	for _, o := range bb.observers {
		b.AddObserver(o)
	}

	if bb.sweep.enabled() {
		b.sweepDone = make(chan struct{})
		b.sweepWG.Add(1)
		go b.runSweeper()
	}

	return b, nil
}

// New constructs a Bus via Builder and returns a close func for convenience.
func New(init func(b *BusBuilder)) (*Bus, func() error, error) {
	bb := NewBusBuilder()
	if init != nil {
		init(bb)
	}
	bus, err := bb.Build()
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() error { return bus.Close(context.Background()) }
	return bus, closeFn, nil
}
