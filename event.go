package stashbus

import (
	"time"

	"github.com/google/uuid"
)

// Event is a (topic, id)-keyed payload published via Notify. The id is
// caller-supplied and unique within its topic; when left empty the bus
// assigns a UUID before storing.
type Event struct {
	Topic      string            // Registered topic the event is published under
	ID         string            // Unique within Topic; (Topic, ID) is the primary key
	Payload    any               // Event data; encoded via Codec by byte-oriented stores
	Metadata   map[string]string // Optional correlation metadata
	ProducedAt time.Time         // Production timestamp (from injected clock)
}

// Shadow is the (listener, topic, id) handle delivered to a listener and
// echoed back on disposition reports. It is a handle, not ownership: the
// payload stays in the store until every matched listener has reported.
type Shadow struct {
	Key   ListenerKey
	Topic string
	ID    string
}

// Disposition is a listener's terminal report on an event. Completed and
// Skipped drain the pending set identically; the distinction exists only for
// observability.
type Disposition uint8

const (
	Completed Disposition = iota
	Skipped
)

func (d Disposition) String() string {
	if d == Skipped {
		return "skipped"
	}
	return "completed"
}

func nextEventID() string { return uuid.NewString() }
