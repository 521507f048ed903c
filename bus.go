package stashbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
	"golang.org/x/sync/semaphore"
)

var _ API = (*Bus)(nil)
var _ HealthChecker = (*Bus)(nil)
var _ Reporter = (*Bus)(nil)

// Bus is the central Facade over the cooperating managers: topic registry,
// subscription manager, event store, observation tracker and notification
// dispatcher. Events published via Notify are retained until every interested
// listener has reported disposition, then collected automatically.
type Bus struct {
	registry *topicRegistry
	subs     *subscriptions
	store    Store
	tracker  *tracker

	codec  Codec
	clock  xclock.Clock
	logger *xlog.Logger

	// deliverSem, when non-nil, bounds concurrently running deliveries.
	// Acquisition happens inside the spawned goroutine; Notify never blocks.
	deliverSem *semaphore.Weighted

	observerPool *ObserverPool
	observersMu  sync.RWMutex
	observers    []Observer

	sweep     SweepConfig
	sweepDone chan struct{}
	sweepWG   sync.WaitGroup

	baseCtx   context.Context
	metrics   *busMetrics
	closed    atomic.Bool
	closeOnce sync.Once
}

// busMetrics uses lock-free atomics for production-grade telemetry.
type busMetrics struct {
	notifyCount    atomic.Uint64
	deliverCount   atomic.Uint64
	completedCount atomic.Uint64
	skippedCount   atomic.Uint64
	evictedCount   atomic.Uint64
	sweptCount     atomic.Uint64
	errorCount     atomic.Uint64
	liveEvents     atomic.Int64
	processingNs   atomic.Int64
}

// Codec returns the configured codec (Strategy).
func (b *Bus) Codec() Codec { return b.codec }

// Metrics defines observable telemetry for the bus.
type Metrics struct {
	Notified        uint64
	Delivered       uint64
	Completed       uint64
	Skipped         uint64
	Evicted         uint64
	Swept           uint64
	Errors          uint64
	LiveEvents      int64
	EventsDropped   uint64
	AvgNotifyTimeMs float64
}

// HealthStatus indicates bus health for Kubernetes probes.
type HealthStatus struct {
	Status    string // "healthy", "degraded", "unhealthy"
	Metrics   Metrics
	Timestamp time.Time
	Message   string
}

// HealthChecker provides health status for production monitoring.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}

// API represents the complete stashbus surface for extensibility.
type API interface {
	RegisterTopic(ctx context.Context, topic string) error
	UnregisterTopic(ctx context.Context, topic string) error
	TopicExists(topic string) bool
	Topics() []string

	Subscribe(key ListenerKey, patterns ...string) error
	Unsubscribe(key ListenerKey)
	Subscribed(key ListenerKey, patterns ...string) bool
	Subscribers() []ListenerKey
	SubscribersFor(topic string) []ListenerKey

	Notify(ctx context.Context, e Event) error
	Report(ctx context.Context, key ListenerKey, topic, id string, d Disposition)
	Fetch(ctx context.Context, topic, id string) (*Event, error)

	Close(ctx context.Context) error
	GetMetrics() Metrics
	Health(ctx context.Context) HealthStatus
	AddObserver(obs Observer)
	RemoveObserver(obs Observer)
}

// GetMetrics returns current bus metrics.
func (b *Bus) GetMetrics() Metrics {
	return Metrics{
		Notified:        b.metrics.notifyCount.Load(),
		Delivered:       b.metrics.deliverCount.Load(),
		Completed:       b.metrics.completedCount.Load(),
		Skipped:         b.metrics.skippedCount.Load(),
		Evicted:         b.metrics.evictedCount.Load(),
		Swept:           b.metrics.sweptCount.Load(),
		Errors:          b.metrics.errorCount.Load(),
		LiveEvents:      b.metrics.liveEvents.Load(),
		EventsDropped:   b.observerPool.Stats().Dropped,
		AvgNotifyTimeMs: float64(b.metrics.processingNs.Load()) / 1e6,
	}
}

// Health checks bus health.
func (b *Bus) Health(ctx context.Context) HealthStatus {
	if b.closed.Load() {
		return HealthStatus{
			Status:    "unhealthy",
			Timestamp: time.Now(),
			Message:   "bus is closed",
		}
	}

	metrics := b.GetMetrics()
	status := "healthy"

	// Degraded if error rate > 5%
	if metrics.Errors > 0 && metrics.Notified > 0 {
		errorRate := float64(metrics.Errors) / float64(metrics.Notified)
		if errorRate > 0.05 {
			status = "degraded"
		}
	}

	return HealthStatus{
		Status:    status,
		Metrics:   metrics,
		Timestamp: time.Now(),
	}
}

// Close gracefully shuts down the bus. Idempotent. In-flight deliveries are
// fire-and-forget and are not awaited; pending events are discarded with the
// store.
func (b *Bus) Close(ctx context.Context) error {
	var closeErr error

	b.closeOnce.Do(func() {
		b.closed.Store(true)

		if b.sweepDone != nil {
			close(b.sweepDone)
			b.sweepWG.Wait()
		}

		if b.observerPool != nil {
			if err := b.observerPool.Close(5 * time.Second); err != nil {
				b.logger.Warn().Err(err).Msg("stashbus: observer pool shutdown timeout")
				closeErr = err
			}
		}
	})

	return closeErr
}

// AddObserver registers an observer (thread-safe).
func (b *Bus) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	b.observersMu.Lock()
	b.observers = append(b.observers, obs)
	b.observersMu.Unlock()
}

// RemoveObserver removes an observer.
func (b *Bus) RemoveObserver(obs Observer) {
	if obs == nil {
		return
	}
	b.observersMu.Lock()
	defer b.observersMu.Unlock()

	for i, o := range b.observers {
		if o == obs {
			b.observers = append(b.observers[:i], b.observers[i+1:]...)
			break
		}
	}
}

// notifyAsync dispatches lifecycle events asynchronously (non-blocking).
func (b *Bus) notifyAsync(e BusEvent) {
	if b.observerPool == nil {
		return
	}

	b.observersMu.RLock()
	observerCount := len(b.observers)
	if observerCount == 0 {
		b.observersMu.RUnlock()
		return
	}

	if observerCount == 1 {
		obs := b.observers[0]
		b.observersMu.RUnlock()
		b.observerPool.Notify(e, []Observer{obs})
		return
	}

	observers := make([]Observer, observerCount)
	copy(observers, b.observers)
	b.observersMu.RUnlock()

	b.observerPool.Notify(e, observers)
}

// recordNotifyTime keeps an exponential moving average of Notify latency.
func (b *Bus) recordNotifyTime(ns int64) {
	const alpha = 0.2
	current := b.metrics.processingNs.Load()
	if current == 0 {
		b.metrics.processingNs.Store(ns)
		return
	}
	newAvg := int64(float64(ns)*alpha + float64(current)*(1-alpha))
	b.metrics.processingNs.Store(newAvg)
}
