package stashbus

import (
	"context"
	"sync"
)

// Store is the Strategy interface for event payload storage. Partitions are
// scoped per topic so one topic's write/delete volume never contends with
// another's. The observation tracker is the sole component that deletes live
// events; callers only ever read.
type Store interface {
	// EnsurePartition creates the topic's partition if absent. Idempotent.
	EnsurePartition(ctx context.Context, topic string) error
	// DropPartition removes the topic's partition and every event in it.
	// Idempotent.
	DropPartition(ctx context.Context, topic string) error
	// Put upserts an event. Fails with ErrTopicNotRegistered when the
	// partition does not exist.
	Put(ctx context.Context, topic, id string, e *Event) error
	// Get returns the stored event or ErrEventNotFound. Never blocks waiting
	// for a write.
	Get(ctx context.Context, topic, id string) (*Event, error)
	// Delete removes an event. Removing an absent id is a no-op.
	Delete(ctx context.Context, topic, id string) error
}

// memoryStore is the default in-process Store: a partition per topic, each
// with its own lock.
type memoryStore struct {
	mu    sync.RWMutex
	parts map[string]*storePartition
}

type storePartition struct {
	mu     sync.RWMutex
	events map[string]*Event
}

// NewMemoryStore returns the default in-memory Store.
func NewMemoryStore() Store {
	return &memoryStore{parts: make(map[string]*storePartition)}
}

func (s *memoryStore) partition(topic string) (*storePartition, bool) {
	s.mu.RLock()
	p, ok := s.parts[topic]
	s.mu.RUnlock()
	return p, ok
}

func (s *memoryStore) EnsurePartition(_ context.Context, topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.parts[topic]; !ok {
		s.parts[topic] = &storePartition{events: make(map[string]*Event)}
	}
	return nil
}

func (s *memoryStore) DropPartition(_ context.Context, topic string) error {
	s.mu.Lock()
	delete(s.parts, topic)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Put(_ context.Context, topic, id string, e *Event) error {
	p, ok := s.partition(topic)
	if !ok {
		return ErrTopicNotRegistered
	}
	p.mu.Lock()
	p.events[id] = e
	p.mu.Unlock()
	return nil
}

func (s *memoryStore) Get(_ context.Context, topic, id string) (*Event, error) {
	p, ok := s.partition(topic)
	if !ok {
		return nil, ErrEventNotFound
	}
	p.mu.RLock()
	e, ok := p.events[id]
	p.mu.RUnlock()
	if !ok {
		return nil, ErrEventNotFound
	}
	return e, nil
}

func (s *memoryStore) Delete(_ context.Context, topic, id string) error {
	p, ok := s.partition(topic)
	if !ok {
		return nil
	}
	p.mu.Lock()
	delete(p.events, id)
	p.mu.Unlock()
	return nil
}

// Fetch returns the stored event for (topic, id). ErrEventNotFound is the
// expected outcome once every matched listener has reported, or when the
// event never had an interested listener.
func (b *Bus) Fetch(ctx context.Context, topic, id string) (*Event, error) {
	return b.store.Get(ctx, topic, id)
}
