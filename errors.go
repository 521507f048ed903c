package stashbus

import (
	"errors"
	"fmt"
)

var (
	// ErrTopicNotRegistered is returned by Notify and store access against a
	// topic that was never registered (or was unregistered mid-flight).
	ErrTopicNotRegistered = errors.New("stashbus: topic not registered")

	// ErrEventNotFound is returned by Fetch when the event is absent or has
	// already been collected. Expected for callers that poll.
	ErrEventNotFound = errors.New("stashbus: event not found")

	// ErrNilListener rejects subscriptions without a listener.
	ErrNilListener = errors.New("stashbus: listener must not be nil")

	// ErrNoPatterns rejects subscriptions with an empty pattern set.
	ErrNoPatterns = errors.New("stashbus: at least one pattern is required")

	// ErrListenerNotComparable rejects listener types that cannot form an
	// identity (bare funcs, slices). Wrap them with ListenerOf.
	ErrListenerNotComparable = errors.New("stashbus: listener type is not comparable")

	ErrBusClosed                   = errors.New("stashbus: bus is closed")
	ErrInvalidTopic                = errors.New("stashbus: topic must not be empty")
	ErrInvalidEventID              = errors.New("stashbus: event id must not be empty")
	ErrObserverPoolShutdownTimeout = errors.New("stashbus: observer pool shutdown timed out")
)

// InvalidPatternError reports a subscription pattern that failed to compile.
type InvalidPatternError struct {
	Pattern string
	Err     error
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("stashbus: invalid pattern %q: %v", e.Pattern, e.Err)
}

func (e *InvalidPatternError) Unwrap() error { return e.Err }
