package stashbus

import (
	"context"
	"fmt"
	"time"
)

// Listener is a registered capability interested in events on topics matching
// its patterns. Process is invoked asynchronously by the dispatcher; after
// handling (or explicitly deciding to ignore) the event, the listener must
// call Report with exactly one disposition. Failing to report leaks the event
// until an optional sweep reclaims it.
type Listener interface {
	Process(ctx context.Context, shadow Shadow)
}

// ListenerFunc is an Adapter that lets a plain function satisfy Listener.
// Func values are not comparable, so a ListenerFunc cannot be used inside a
// ListenerKey; wrap it with ListenerOf instead.
type ListenerFunc func(ctx context.Context, shadow Shadow)

func (f ListenerFunc) Process(ctx context.Context, shadow Shadow) { f(ctx, shadow) }

// funcListener gives a function listener a comparable identity.
type funcListener struct {
	fn func(ctx context.Context, shadow Shadow)
}

func (l *funcListener) Process(ctx context.Context, shadow Shadow) { l.fn(ctx, shadow) }

// ListenerOf wraps a function in a Listener with its own identity, suitable
// for use inside a ListenerKey. Every call yields a distinct identity.
func ListenerOf(fn func(ctx context.Context, shadow Shadow)) Listener {
	return &funcListener{fn: fn}
}

// Reporter receives disposition reports. *Bus satisfies it.
type Reporter interface {
	Report(ctx context.Context, key ListenerKey, topic, id string, d Disposition)
}

// ListenerKey is the identity of a subscriber: a listener reference plus an
// optional configuration. Two keys are equal iff the references are equal and
// the configurations compare equal by structural value. The listener's
// dynamic type must be comparable (pointer listeners always are).
type ListenerKey struct {
	listener    Listener
	fingerprint string
}

// KeyOf builds a bare ListenerKey identified by the listener reference alone.
func KeyOf(l Listener) ListenerKey {
	return ListenerKey{listener: l}
}

// KeyWithConfig builds a ListenerKey whose identity includes a configuration.
// The configuration participates in equality by structural value: it is
// reduced to a canonical JSON fingerprint, so two keys built from distinct
// but deeply-equal configurations compare equal.
func KeyWithConfig(l Listener, config any) (ListenerKey, error) {
	data, err := (JSONCodec{}).Marshal(config)
	if err != nil {
		return ListenerKey{}, fmt.Errorf("stashbus: fingerprint config: %w", err)
	}
	return ListenerKey{listener: l, fingerprint: string(data)}, nil
}

// Listener returns the underlying listener reference.
func (k ListenerKey) Listener() Listener { return k.listener }

// Fingerprint returns the canonical configuration fingerprint, empty for bare
// keys.
func (k ListenerKey) Fingerprint() string { return k.fingerprint }

func (k ListenerKey) String() string {
	if k.fingerprint == "" {
		return fmt.Sprintf("%T", k.listener)
	}
	return fmt.Sprintf("%T%s", k.listener, k.fingerprint)
}

// AutoReport adapts an error-returning handler into a Listener that reports
// its own disposition: nil maps to Completed, non-nil to Skipped. The error
// itself stays the listener's concern; the bus never retries on it.
func AutoReport(r Reporter, fn func(ctx context.Context, shadow Shadow) error) Listener {
	return ListenerOf(func(ctx context.Context, shadow Shadow) {
		d := Completed
		if err := fn(ctx, shadow); err != nil {
			d = Skipped
		}
		r.Report(ctx, shadow.Key, shadow.Topic, shadow.ID, d)
	})
}

// ProcessTimeout bounds a listener's processing time. The wrapped Process
// runs in the caller's goroutine with a deadline-carrying context; listeners
// observing ctx.Done() should report Skipped themselves before returning.
func ProcessTimeout(d time.Duration, l Listener) Listener {
	if d <= 0 {
		return l
	}
	return ListenerOf(func(ctx context.Context, shadow Shadow) {
		tctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		l.Process(tctx, shadow)
	})
}
