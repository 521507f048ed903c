package stashbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutRequiresPartition(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	err := st.Put(ctx, "orders", "1", &Event{Topic: "orders", ID: "1"})
	require.ErrorIs(t, err, ErrTopicNotRegistered)
}

func TestMemoryStore_PutGetDelete(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, st.EnsurePartition(ctx, "orders"))
	require.NoError(t, st.EnsurePartition(ctx, "orders"))

	e := &Event{Topic: "orders", ID: "1", Payload: "p"}
	require.NoError(t, st.Put(ctx, "orders", "1", e))

	got, err := st.Get(ctx, "orders", "1")
	require.NoError(t, err)
	assert.Equal(t, e, got)

	// Upsert replaces.
	require.NoError(t, st.Put(ctx, "orders", "1", &Event{Topic: "orders", ID: "1", Payload: "v2"}))
	got, err = st.Get(ctx, "orders", "1")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Payload)

	require.NoError(t, st.Delete(ctx, "orders", "1"))
	_, err = st.Get(ctx, "orders", "1")
	require.ErrorIs(t, err, ErrEventNotFound)

	// Idempotent delete, including against unknown partitions.
	require.NoError(t, st.Delete(ctx, "orders", "1"))
	require.NoError(t, st.Delete(ctx, "ghost", "1"))
}

func TestMemoryStore_GetMissing(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	_, err := st.Get(ctx, "orders", "1")
	require.ErrorIs(t, err, ErrEventNotFound)

	require.NoError(t, st.EnsurePartition(ctx, "orders"))
	_, err = st.Get(ctx, "orders", "1")
	require.ErrorIs(t, err, ErrEventNotFound)
}

func TestMemoryStore_DropPartition(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, st.EnsurePartition(ctx, "orders"))
	require.NoError(t, st.Put(ctx, "orders", "1", &Event{Topic: "orders", ID: "1"}))

	require.NoError(t, st.DropPartition(ctx, "orders"))
	require.NoError(t, st.DropPartition(ctx, "orders"))

	_, err := st.Get(ctx, "orders", "1")
	require.ErrorIs(t, err, ErrEventNotFound)
	require.ErrorIs(t, st.Put(ctx, "orders", "2", &Event{}), ErrTopicNotRegistered)
}

func TestDecode(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	// Typed in-memory payload comes back as-is.
	p, err := Decode[payload](JSONCodec{}, &Event{Payload: payload{Name: "a"}})
	require.NoError(t, err)
	assert.Equal(t, "a", p.Name)

	// Byte payloads (e.g. from a Redis-backed store) are unmarshaled.
	p, err = Decode[payload](JSONCodec{}, &Event{Payload: []byte(`{"name":"b"}`)})
	require.NoError(t, err)
	assert.Equal(t, "b", p.Name)

	// Anything else is round-tripped through the codec.
	p, err = Decode[payload](nil, &Event{Payload: map[string]any{"name": "c"}})
	require.NoError(t, err)
	assert.Equal(t, "c", p.Name)
}
