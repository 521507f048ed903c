package stashbus

import (
	"time"

	"github.com/trickstertwo/xlog"
)

// BusEventType enumerates internal lifecycle events for the Observer pattern.
type BusEventType string

const (
	EventNotifyStart BusEventType = "notify_start"
	EventNotifyDone  BusEventType = "notify_done"
	EventDelivered   BusEventType = "delivered"
	EventReported    BusEventType = "reported"
	EventEvicted     BusEventType = "evicted"
	EventSwept       BusEventType = "swept"
	EventError       BusEventType = "error"
)

// BusEvent carries telemetry for observers.
type BusEvent struct {
	Type        BusEventType
	Topic       string
	EventID     string
	Listener    string
	Disposition string
	Pending     int
	Duration    time.Duration
	Err         error

	// Internal: attached for async dispatch
	observers []Observer
}

// Observer receives bus lifecycle events. Implementations should be
// non-blocking; dispatch happens on the observer pool's workers.
type Observer interface {
	OnEvent(e BusEvent)
}

// ObserverFunc is an Adapter that lets a plain function satisfy Observer.
type ObserverFunc func(e BusEvent)

func (f ObserverFunc) OnEvent(e BusEvent) { f(e) }

// LoggingObserver is an Adapter that emits BusEvents via xlog.
type LoggingObserver struct {
	Logger *xlog.Logger
}

func (o LoggingObserver) OnEvent(e BusEvent) {
	if o.Logger == nil {
		return
	}
	ev := o.Logger.With(
		xlog.Str("type", string(e.Type)),
		xlog.Str("topic", e.Topic),
		xlog.Str("event_id", e.EventID),
		xlog.Str("listener", e.Listener),
	)
	switch e.Type {
	case EventError:
		ev.Warn().Err(e.Err).Msg("stashbus event")
	case EventSwept:
		ev.Warn().Msg("stashbus event")
	default:
		if e.Duration > 0 {
			ev = ev.With(xlog.Dur("duration", e.Duration))
		}
		ev.Debug().Msg("stashbus event")
	}
}
