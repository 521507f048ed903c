package stashbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterTopic_Idempotent(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	require.NoError(t, bus.RegisterTopic(ctx, "orders"))
	require.NoError(t, bus.RegisterTopic(ctx, "orders"))

	assert.True(t, bus.TopicExists("orders"))
	assert.Equal(t, []string{"orders"}, bus.Topics())
}

func TestRegisterTopic_EmptyName(t *testing.T) {
	bus := newTestBus(t)
	require.ErrorIs(t, bus.RegisterTopic(context.Background(), ""), ErrInvalidTopic)
}

func TestUnregisterTopic_Idempotent(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	require.NoError(t, bus.RegisterTopic(ctx, "orders"))
	require.NoError(t, bus.UnregisterTopic(ctx, "orders"))
	require.NoError(t, bus.UnregisterTopic(ctx, "orders"))
	require.NoError(t, bus.UnregisterTopic(ctx, "never-registered"))

	assert.False(t, bus.TopicExists("orders"))
}

func TestUnregisterTopic_DiscardsPendingEvents(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	require.NoError(t, bus.RegisterTopic(ctx, "orders"))

	l := &recordingListener{}
	require.NoError(t, bus.Subscribe(KeyOf(l), "orders"))
	require.NoError(t, bus.Notify(ctx, Event{Topic: "orders", ID: "1", Payload: "p"}))
	require.NoError(t, bus.Notify(ctx, Event{Topic: "orders", ID: "2", Payload: "q"}))

	require.NoError(t, bus.UnregisterTopic(ctx, "orders"))

	for _, id := range []string{"1", "2"} {
		_, err := bus.Fetch(ctx, "orders", id)
		require.ErrorIs(t, err, ErrEventNotFound)
	}
	assert.Equal(t, int64(0), bus.GetMetrics().LiveEvents)

	// Notifying the dropped topic fails cleanly again.
	require.ErrorIs(t, bus.Notify(ctx, Event{Topic: "orders", ID: "3"}), ErrTopicNotRegistered)
}

func TestTopics_Snapshot(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	for _, topic := range []string{"a", "b", "c"} {
		require.NoError(t, bus.RegisterTopic(ctx, topic))
	}
	require.NoError(t, bus.UnregisterTopic(ctx, "b"))

	assert.ElementsMatch(t, []string{"a", "c"}, bus.Topics())
}

func TestTopicIsolation(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	require.NoError(t, bus.RegisterTopic(ctx, "orders"))
	require.NoError(t, bus.RegisterTopic(ctx, "alerts"))

	l := &recordingListener{}
	key := KeyOf(l)
	require.NoError(t, bus.Subscribe(key, "orders", "alerts"))

	require.NoError(t, bus.Notify(ctx, Event{Topic: "orders", ID: "1", Payload: "p"}))
	require.NoError(t, bus.Notify(ctx, Event{Topic: "alerts", ID: "1", Payload: "q"}))

	// Dropping one topic leaves the other's events untouched.
	require.NoError(t, bus.UnregisterTopic(ctx, "orders"))

	got, err := bus.Fetch(ctx, "alerts", "1")
	require.NoError(t, err)
	assert.Equal(t, "q", got.Payload)
}
