package stashbus

import (
	"context"
	"sync"
)

// topicRegistry tracks which topics exist and owns the per-topic lifecycle of
// the store and tracker partitions.
type topicRegistry struct {
	mu     sync.RWMutex
	topics map[string]struct{}

	store   Store
	tracker *tracker
}

func newTopicRegistry(store Store, tracker *tracker) *topicRegistry {
	return &topicRegistry{
		topics:  make(map[string]struct{}),
		store:   store,
		tracker: tracker,
	}
}

// register is idempotent: re-registering an existing topic is a no-op.
func (r *topicRegistry) register(ctx context.Context, topic string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.topics[topic]; ok {
		return nil
	}
	if err := r.store.EnsurePartition(ctx, topic); err != nil {
		return err
	}
	r.tracker.ensurePartition(topic)
	r.topics[topic] = struct{}{}
	return nil
}

// unregister drops the topic and both of its partitions, discarding any
// events still pending disposition. Disposition reports arriving afterwards
// degrade to no-ops in the tracker. Idempotent.
func (r *topicRegistry) unregister(ctx context.Context, topic string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.topics[topic]; !ok {
		return 0, nil
	}
	delete(r.topics, topic)
	// Tracker first: once its partition is gone, late reports cannot race a
	// store partition that is about to disappear.
	dropped := r.tracker.dropPartition(topic)
	return dropped, r.store.DropPartition(ctx, topic)
}

func (r *topicRegistry) exists(topic string) bool {
	r.mu.RLock()
	_, ok := r.topics[topic]
	r.mu.RUnlock()
	return ok
}

// all returns a point-in-time snapshot; concurrent register/unregister calls
// may or may not be reflected.
func (r *topicRegistry) all() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.topics))
	for t := range r.topics {
		out = append(out, t)
	}
	return out
}

// RegisterTopic creates a topic. Registering an existing topic is a no-op.
func (b *Bus) RegisterTopic(ctx context.Context, topic string) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	if topic == "" {
		return ErrInvalidTopic
	}
	if err := b.registry.register(ctx, topic); err != nil {
		return err
	}
	b.logger.Debug().Str("topic", topic).Msg("stashbus: topic registered")
	return nil
}

// UnregisterTopic removes a topic, force-collecting any events still pending
// disposition. Unregistering an unknown topic is a no-op.
func (b *Bus) UnregisterTopic(ctx context.Context, topic string) error {
	dropped, err := b.registry.unregister(ctx, topic)
	if err != nil {
		return err
	}
	if dropped > 0 {
		b.metrics.evictedCount.Add(uint64(dropped))
		b.metrics.liveEvents.Add(-int64(dropped))
		b.logger.Warn().
			Str("topic", topic).
			Int("discarded", dropped).
			Msg("stashbus: unregister discarded pending events")
	}
	b.logger.Debug().Str("topic", topic).Msg("stashbus: topic unregistered")
	return nil
}

// TopicExists reports point-in-time topic membership.
func (b *Bus) TopicExists(topic string) bool {
	return b.registry.exists(topic)
}

// Topics returns a snapshot of the registered topics.
func (b *Bus) Topics() []string {
	return b.registry.all()
}
