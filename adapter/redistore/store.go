package redistore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stashworks/stashbus"
)

// Store implements stashbus.Store on Redis hashes.
type Store struct {
	cfg    Config
	client *redis.Client
	codec  stashbus.Codec
}

var _ stashbus.Store = (*Store)(nil)

// envelope is the stored representation of an event.
type envelope struct {
	Payload    json.RawMessage   `json:"payload"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	ProducedAt int64             `json:"produced_at"` // unix ns
}

// NewStore creates a Redis-backed Store. A nil codec falls back to JSON.
func NewStore(cfg Config, codec stashbus.Codec) *Store {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Errorf("redistore: %w", err))
	}
	if codec == nil {
		codec = stashbus.JSONCodec{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Store{cfg: cfg, client: client, codec: codec}
}

// NewStoreWithClient wraps an existing client (useful for tests and pooling).
func NewStoreWithClient(cfg Config, client *redis.Client, codec stashbus.Codec) *Store {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Errorf("redistore: %w", err))
	}
	if codec == nil {
		codec = stashbus.JSONCodec{}
	}
	return &Store{cfg: cfg, client: client, codec: codec}
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.OpTimeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.OpTimeout)
}

func (s *Store) EnsurePartition(ctx context.Context, topic string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.client.SAdd(ctx, s.cfg.topicsKey(), topic).Err()
}

func (s *Store) DropPartition(ctx context.Context, topic string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, s.cfg.topicsKey(), topic)
	pipe.Del(ctx, s.cfg.partitionKey(topic))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) Put(ctx context.Context, topic, id string, e *stashbus.Event) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	member, err := s.client.SIsMember(ctx, s.cfg.topicsKey(), topic).Result()
	if err != nil {
		return err
	}
	if !member {
		return stashbus.ErrTopicNotRegistered
	}

	payload, err := s.codec.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("redistore: encode payload: %w", err)
	}
	data, err := json.Marshal(envelope{
		Payload:    payload,
		Metadata:   e.Metadata,
		ProducedAt: e.ProducedAt.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("redistore: encode envelope: %w", err)
	}

	return s.client.HSet(ctx, s.cfg.partitionKey(topic), id, data).Err()
}

func (s *Store) Get(ctx context.Context, topic, id string) (*stashbus.Event, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	data, err := s.client.HGet(ctx, s.cfg.partitionKey(topic), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, stashbus.ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("redistore: decode envelope: %w", err)
	}
	return &stashbus.Event{
		Topic:      topic,
		ID:         id,
		Payload:    env.Payload,
		Metadata:   env.Metadata,
		ProducedAt: time.Unix(0, env.ProducedAt),
	}, nil
}

func (s *Store) Delete(ctx context.Context, topic, id string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.client.HDel(ctx, s.cfg.partitionKey(topic), id).Err()
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
