package stashbus

import (
	"context"
	"fmt"
	"sync"
)

var (
	defaultBus   *Bus
	defaultBusMu sync.Mutex
)

// Default returns the process-wide singleton Bus.
func Default() *Bus {
	defaultBusMu.Lock()
	defer defaultBusMu.Unlock()

	if defaultBus != nil {
		return defaultBus
	}

	bus, err := NewBusBuilder().Build()
	if err != nil {
		panic(fmt.Sprintf("stashbus: failed to initialize default bus: %v", err))
	}
	defaultBus = bus
	return defaultBus
}

// SetDefault replaces the process-wide default Bus.
func SetDefault(b *Bus) {
	if b == nil {
		panic("stashbus: SetDefault called with nil Bus")
	}
	defaultBusMu.Lock()
	defaultBus = b
	defaultBusMu.Unlock()
}

// RegisterTopic is the Facade using the default bus.
func RegisterTopic(ctx context.Context, topic string) error {
	return Default().RegisterTopic(ctx, topic)
}

// UnregisterTopic is the Facade using the default bus.
func UnregisterTopic(ctx context.Context, topic string) error {
	return Default().UnregisterTopic(ctx, topic)
}

// Subscribe is the Facade using the default bus.
func Subscribe(key ListenerKey, patterns ...string) error {
	return Default().Subscribe(key, patterns...)
}

// Unsubscribe is the Facade using the default bus.
func Unsubscribe(key ListenerKey) {
	Default().Unsubscribe(key)
}

// Notify is the Facade using the default bus.
func Notify(ctx context.Context, e Event) error {
	return Default().Notify(ctx, e)
}

// Report is the Facade using the default bus.
func Report(ctx context.Context, key ListenerKey, topic, id string, d Disposition) {
	Default().Report(ctx, key, topic, id, d)
}

// Fetch is the Facade using the default bus.
func Fetch(ctx context.Context, topic, id string) (*Event, error) {
	return Default().Fetch(ctx, topic, id)
}
