package stashbus

import (
	"context"
	"sync"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// initState is the outcome of arming a pending set at notify time.
type initState uint8

const (
	// initArmed: pending set created; dispatch should proceed.
	initArmed initState = iota
	// initDrained: zero interested listeners; the event is garbage the
	// instant it is produced and the caller must delete it from the store.
	initDrained
	// initExisting: a live pending set already exists for this (topic, id).
	// Re-notification is not re-delivery; nothing changes.
	initExisting
	// initNoTopic: the topic's partition is gone (unregistered mid-flight).
	initNoTopic
)

// pendingSet holds the listeners that matched at notify time and have not yet
// reported disposition. It only ever shrinks.
type pendingSet struct {
	waiting   map[ListenerKey]struct{}
	createdAt time.Time
}

// tracker keeps per-(topic, id) pending-listener accounting and is the sole
// authority permitted to delete live events from the store: deletion happens
// exactly when a pending set drains, never on a caller's direct request.
type tracker struct {
	mu    sync.RWMutex
	parts map[string]*trackPartition

	store  Store
	clock  xclock.Clock
	logger *xlog.Logger
}

type trackPartition struct {
	mu      sync.Mutex
	pending map[string]*pendingSet
}

func newTracker(store Store, clock xclock.Clock, logger *xlog.Logger) *tracker {
	return &tracker{
		parts:  make(map[string]*trackPartition),
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

func (t *tracker) ensurePartition(topic string) {
	t.mu.Lock()
	if _, ok := t.parts[topic]; !ok {
		t.parts[topic] = &trackPartition{pending: make(map[string]*pendingSet)}
	}
	t.mu.Unlock()
}

// dropPartition tears down all in-flight observation state for a topic,
// returning how many live entries were discarded. Reports referencing the
// topic afterwards are no-ops.
func (t *tracker) dropPartition(topic string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.parts[topic]
	if !ok {
		return 0
	}
	delete(t.parts, topic)
	p.mu.Lock()
	n := len(p.pending)
	p.mu.Unlock()
	return n
}

func (t *tracker) partition(topic string) (*trackPartition, bool) {
	t.mu.RLock()
	p, ok := t.parts[topic]
	t.mu.RUnlock()
	return p, ok
}

// init arms the pending set for (topic, id) with the subscriber snapshot
// taken by the dispatcher. Create-if-absent: a live entry is never reset by a
// colliding notify.
func (t *tracker) init(topic, id string, keys []ListenerKey) initState {
	p, ok := t.partition(topic)
	if !ok {
		return initNoTopic
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, live := p.pending[id]; live {
		return initExisting
	}
	if len(keys) == 0 {
		return initDrained
	}
	waiting := make(map[ListenerKey]struct{}, len(keys))
	for _, k := range keys {
		waiting[k] = struct{}{}
	}
	p.pending[id] = &pendingSet{waiting: waiting, createdAt: t.clock.Now()}
	return initArmed
}

// report removes key from the pending set for (topic, id) and returns whether
// this call drained the set. The remove-and-test-empty sequence is one
// critical section per partition, so exactly one reporter observes the drain
// and triggers the store delete. Safe when the entry no longer exists and
// when called twice for the same key; both degrade to no-ops.
func (t *tracker) report(ctx context.Context, key ListenerKey, topic, id string) (removed, drained bool) {
	p, ok := t.partition(topic)
	if !ok {
		return false, false
	}

	p.mu.Lock()
	set, live := p.pending[id]
	if !live {
		p.mu.Unlock()
		return false, false
	}
	if _, waiting := set.waiting[key]; !waiting {
		p.mu.Unlock()
		return false, false
	}
	delete(set.waiting, key)
	if len(set.waiting) > 0 {
		p.mu.Unlock()
		return true, false
	}
	// Drained: removing the entry inside the critical section guarantees any
	// later report for this id sees it gone and no second delete can race.
	delete(p.pending, id)
	p.mu.Unlock()

	if err := t.store.Delete(ctx, topic, id); err != nil {
		t.logger.Warn().
			Str("topic", topic).
			Str("id", id).
			Err(err).
			Msg("stashbus: store delete after drain failed")
	}
	return true, true
}

// sweepOnce force-evicts every entry older than maxAge regardless of its
// pending state, returning the evicted (topic, id) pairs. This bounds memory
// growth from listeners that crash or never report, at the cost of losing the
// fetch-until-acknowledged guarantee for those stragglers.
func (t *tracker) sweepOnce(ctx context.Context, maxAge time.Duration) []Shadow {
	t.mu.RLock()
	parts := make(map[string]*trackPartition, len(t.parts))
	for topic, p := range t.parts {
		parts[topic] = p
	}
	t.mu.RUnlock()

	var swept []Shadow
	for topic, p := range parts {
		var expired []string
		p.mu.Lock()
		for id, set := range p.pending {
			if t.clock.Since(set.createdAt) > maxAge {
				expired = append(expired, id)
				delete(p.pending, id)
			}
		}
		p.mu.Unlock()

		for _, id := range expired {
			if err := t.store.Delete(ctx, topic, id); err != nil {
				t.logger.Warn().
					Str("topic", topic).
					Str("id", id).
					Err(err).
					Msg("stashbus: store delete after sweep failed")
			}
			t.logger.Warn().
				Str("topic", topic).
				Str("id", id).
				Dur("max_age", maxAge).
				Msg("stashbus: force-evicted unacknowledged event")
			swept = append(swept, Shadow{Topic: topic, ID: id})
		}
	}
	return swept
}

// SweepConfig enables the optional age-based safety valve. Zero values leave
// it disabled.
type SweepConfig struct {
	// Interval is how often the sweeper scans for stragglers.
	Interval time.Duration
	// MaxAge is the age past which an unacknowledged event is force-evicted.
	MaxAge time.Duration
}

func (c SweepConfig) enabled() bool { return c.Interval > 0 && c.MaxAge > 0 }

// runSweeper drives periodic sweeps until the bus closes.
func (b *Bus) runSweeper() {
	defer b.sweepWG.Done()
	ticker := time.NewTicker(b.sweep.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.sweepDone:
			return
		case <-ticker.C:
			for _, s := range b.tracker.sweepOnce(context.Background(), b.sweep.MaxAge) {
				b.metrics.sweptCount.Add(1)
				b.metrics.liveEvents.Add(-1)
				b.notifyAsync(BusEvent{Type: EventSwept, Topic: s.Topic, EventID: s.ID})
			}
		}
	}
}
