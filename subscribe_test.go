package stashbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribe_InvalidPattern(t *testing.T) {
	bus := newTestBus(t)

	key := KeyOf(&recordingListener{})
	err := bus.Subscribe(key, "orders", "[unclosed")
	require.Error(t, err)

	var perr *InvalidPatternError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "[unclosed", perr.Pattern)

	// A failed subscribe must not leave a partial entry behind.
	assert.Empty(t, bus.Subscribers())
}

func TestSubscribe_BadPatternKeepsOldEntry(t *testing.T) {
	bus := newTestBus(t)

	key := KeyOf(&recordingListener{})
	require.NoError(t, bus.Subscribe(key, "orders"))
	require.Error(t, bus.Subscribe(key, "orders", "[broken"))

	assert.True(t, bus.Subscribed(key, "orders"))
}

func TestSubscribe_ReplacesPatternSet(t *testing.T) {
	bus := newTestBus(t)

	key := KeyOf(&recordingListener{})
	require.NoError(t, bus.Subscribe(key, "orders"))
	require.NoError(t, bus.Subscribe(key, "alerts", "metrics"))

	// Replacement, not union.
	assert.False(t, bus.Subscribed(key, "orders"))
	assert.False(t, bus.Subscribed(key, "orders", "alerts", "metrics"))
	assert.True(t, bus.Subscribed(key, "alerts", "metrics"))
	assert.Len(t, bus.Subscribers(), 1)
}

func TestSubscribed_ExactSetEquality(t *testing.T) {
	bus := newTestBus(t)

	key := KeyOf(&recordingListener{})
	require.NoError(t, bus.Subscribe(key, "orders", "alerts"))

	assert.True(t, bus.Subscribed(key, "orders", "alerts"))
	assert.True(t, bus.Subscribed(key, "alerts", "orders"), "set equality ignores order")
	assert.True(t, bus.Subscribed(key, "alerts", "orders", "alerts"), "set equality ignores duplicates")
	assert.False(t, bus.Subscribed(key, "orders"), "subset is not equality")
	assert.False(t, bus.Subscribed(key, "orders", "alerts", "metrics"), "superset is not equality")
	assert.False(t, bus.Subscribed(KeyOf(&recordingListener{}), "orders", "alerts"))
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	bus := newTestBus(t)

	key := KeyOf(&recordingListener{})
	require.NoError(t, bus.Subscribe(key, "orders"))

	bus.Unsubscribe(key)
	bus.Unsubscribe(key)

	assert.False(t, bus.Subscribed(key, "orders"))
	assert.Empty(t, bus.Subscribers())
}

func TestSubscribersFor_PatternMatching(t *testing.T) {
	bus := newTestBus(t)

	exact := KeyOf(&recordingListener{})
	prefix := KeyOf(&recordingListener{})
	all := KeyOf(&recordingListener{})
	require.NoError(t, bus.Subscribe(exact, "orders"))
	require.NoError(t, bus.Subscribe(prefix, `orders\..*`))
	require.NoError(t, bus.Subscribe(all, ".*"))

	assert.ElementsMatch(t, []ListenerKey{exact, all}, bus.SubscribersFor("orders"))
	assert.ElementsMatch(t, []ListenerKey{prefix, all}, bus.SubscribersFor("orders.created"))
	assert.ElementsMatch(t, []ListenerKey{all}, bus.SubscribersFor("metrics"))
}

// Patterns match the whole topic name, not a substring of it.
func TestSubscribersFor_AnchoredMatch(t *testing.T) {
	bus := newTestBus(t)

	key := KeyOf(&recordingListener{})
	require.NoError(t, bus.Subscribe(key, "orders"))

	assert.Empty(t, bus.SubscribersFor("orders2"))
	assert.Empty(t, bus.SubscribersFor("xorders"))
	assert.Len(t, bus.SubscribersFor("orders"), 1)
}

func TestSubscribe_RejectsBadInput(t *testing.T) {
	bus := newTestBus(t)

	require.ErrorIs(t, bus.Subscribe(ListenerKey{}, "orders"), ErrNilListener)
	require.ErrorIs(t, bus.Subscribe(KeyOf(&recordingListener{})), ErrNoPatterns)
	require.ErrorIs(t, bus.Subscribe(KeyOf(ListenerFunc(func(context.Context, Shadow) {})), "x"),
		ErrListenerNotComparable)
}

func TestListenerKey_ConfigEquality(t *testing.T) {
	l := &recordingListener{}

	k1, err := KeyWithConfig(l, map[string]any{"shard": 1, "region": "eu"})
	require.NoError(t, err)
	k2, err := KeyWithConfig(l, map[string]any{"region": "eu", "shard": 1})
	require.NoError(t, err)
	k3, err := KeyWithConfig(l, map[string]any{"shard": 2, "region": "eu"})
	require.NoError(t, err)

	assert.Equal(t, k1, k2, "configuration compares by structural value")
	assert.NotEqual(t, k1, k3)
	assert.NotEqual(t, k1, KeyOf(l), "bare and configured keys differ")

	// Same configuration, different listener.
	k4, err := KeyWithConfig(&recordingListener{}, map[string]any{"shard": 1, "region": "eu"})
	require.NoError(t, err)
	assert.NotEqual(t, k1, k4)
}

func TestListenerKey_ConfiguredKeysAreDistinctSubscribers(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	require.NoError(t, bus.RegisterTopic(ctx, "orders"))

	l := &recordingListener{}
	kA, err := KeyWithConfig(l, "shard-a")
	require.NoError(t, err)
	kB, err := KeyWithConfig(l, "shard-b")
	require.NoError(t, err)

	require.NoError(t, bus.Subscribe(kA, "orders"))
	require.NoError(t, bus.Subscribe(kB, "orders"))

	require.NoError(t, bus.Notify(ctx, Event{Topic: "orders", ID: "1", Payload: "p"}))

	// Both configured identities must report before collection.
	bus.Report(ctx, kA, "orders", "1", Completed)
	_, err = bus.Fetch(ctx, "orders", "1")
	require.NoError(t, err)

	bus.Report(ctx, kB, "orders", "1", Completed)
	_, err = bus.Fetch(ctx, "orders", "1")
	require.ErrorIs(t, err, ErrEventNotFound)
}
