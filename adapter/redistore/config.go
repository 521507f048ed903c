package redistore

import (
	"fmt"
	"time"
)

// Config for the Redis-backed Store.
type Config struct {
	// Connection
	Addr     string
	Username string
	Password string
	DB       int

	// KeyPrefix namespaces every key this store writes.
	KeyPrefix string

	// OpTimeout bounds individual Redis commands when the caller's context
	// carries no deadline. Zero disables the extra bound.
	OpTimeout time.Duration
}

// Defaults returns a Config with production-safe defaults.
func Defaults() Config {
	return Config{
		Addr:      "127.0.0.1:6379",
		DB:        0,
		KeyPrefix: "stashbus",
		OpTimeout: 5 * time.Second,
	}
}

// Validate checks Config for production readiness.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr required")
	}
	if c.KeyPrefix == "" {
		return fmt.Errorf("config: key_prefix required")
	}
	return nil
}

func (c Config) topicsKey() string { return c.KeyPrefix + ":topics" }

func (c Config) partitionKey(topic string) string { return c.KeyPrefix + ":t:" + topic }
