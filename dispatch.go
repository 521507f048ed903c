package stashbus

import (
	"context"
)

// Notify publishes an event: it validates the topic, snapshots the
// subscribers interested in it, persists the event, arms the observation
// tracker and fans delivery out to each matched listener asynchronously.
// Notify returns as soon as the bookkeeping completes; delivery happens
// out-of-band and one listener's behavior never affects another's.
//
// An event arriving with zero interested listeners is garbage the instant it
// is produced: it is deleted before Notify returns and no dispatch happens.
// A second Notify with a colliding id upserts the payload but neither resets
// the live pending set nor re-delivers.
func (b *Bus) Notify(ctx context.Context, e Event) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	if e.Topic == "" {
		return ErrInvalidTopic
	}
	if !b.registry.exists(e.Topic) {
		return ErrTopicNotRegistered
	}

	if e.ID == "" {
		e.ID = nextEventID()
	}
	if e.ProducedAt.IsZero() {
		e.ProducedAt = b.clock.Now()
	}

	b.metrics.notifyCount.Add(1)

	start := b.clock.Now()
	b.notifyAsync(BusEvent{Type: EventNotifyStart, Topic: e.Topic, EventID: e.ID})

	// Snapshot first: a listener subscribing concurrently with this call may
	// or may not be included, but the snapshot is taken at a single point and
	// is never retroactive.
	snapshot := b.subs.subscribersFor(e.Topic)

	err := b.store.Put(ctx, e.Topic, e.ID, &e)
	if err == nil {
		switch b.tracker.init(e.Topic, e.ID, snapshot) {
		case initNoTopic:
			// Unregistered mid-flight; undo the write and fail cleanly.
			_ = b.store.Delete(ctx, e.Topic, e.ID)
			err = ErrTopicNotRegistered
		case initDrained:
			_ = b.store.Delete(ctx, e.Topic, e.ID)
			b.metrics.evictedCount.Add(1)
			b.notifyAsync(BusEvent{Type: EventEvicted, Topic: e.Topic, EventID: e.ID})
		case initExisting:
			// Payload upserted; the live pending set stays as it was.
		case initArmed:
			b.metrics.liveEvents.Add(1)
			for _, key := range snapshot {
				go b.deliver(key, Shadow{Key: key, Topic: e.Topic, ID: e.ID})
			}
		}
	}

	duration := b.clock.Since(start)
	b.recordNotifyTime(duration.Nanoseconds())

	b.notifyAsync(BusEvent{
		Type:     EventNotifyDone,
		Topic:    e.Topic,
		EventID:  e.ID,
		Pending:  len(snapshot),
		Duration: duration,
		Err:      err,
	})

	if err != nil {
		b.metrics.errorCount.Add(1)
	}

	return err
}

// deliver hands one event shadow to one listener, independently of its
// siblings. A panicking listener is logged and dropped; its pending slot
// stays until the sweep reclaims it, exactly as a listener that never
// reports.
func (b *Bus) deliver(key ListenerKey, shadow Shadow) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.errorCount.Add(1)
			b.logger.Warn().
				Str("topic", shadow.Topic).
				Str("id", shadow.ID).
				Str("listener", key.String()).
				Msg("stashbus: listener panic (recovered)")
			b.notifyAsync(BusEvent{Type: EventError, Topic: shadow.Topic, EventID: shadow.ID, Listener: key.String()})
		}
	}()

	if b.deliverSem != nil {
		if err := b.deliverSem.Acquire(b.baseCtx, 1); err != nil {
			return
		}
		defer b.deliverSem.Release(1)
	}

	ctx := injectLogger(b.baseCtx, b.logger)
	ctx = injectClock(ctx, b.clock)

	b.metrics.deliverCount.Add(1)
	b.notifyAsync(BusEvent{Type: EventDelivered, Topic: shadow.Topic, EventID: shadow.ID, Listener: key.String()})

	key.Listener().Process(ctx, shadow)
}

// Report records a listener's terminal disposition for (topic, id). Both
// dispositions drain the pending set identically; Skipped is observability,
// not a retry signal. Reports are idempotent and reports against unknown,
// drained or unregistered (topic, id) pairs are no-ops, never errors, so
// listeners may retry their acknowledgment freely.
func (b *Bus) Report(ctx context.Context, key ListenerKey, topic, id string, d Disposition) {
	removed, drained := b.tracker.report(ctx, key, topic, id)
	if !removed {
		return
	}

	if d == Skipped {
		b.metrics.skippedCount.Add(1)
	} else {
		b.metrics.completedCount.Add(1)
	}
	b.notifyAsync(BusEvent{
		Type:        EventReported,
		Topic:       topic,
		EventID:     id,
		Listener:    key.String(),
		Disposition: d.String(),
	})

	if drained {
		b.metrics.evictedCount.Add(1)
		b.metrics.liveEvents.Add(-1)
		b.logger.Debug().
			Str("topic", topic).
			Str("id", id).
			Msg("stashbus: event drained and collected")
		b.notifyAsync(BusEvent{Type: EventEvicted, Topic: topic, EventID: id})
	}
}
