package event

import (
	"strings"
	"time"
)

// Type identifies the type of a domain event.
type Type string

// IsValid reports whether the event type is usable.
func (t Type) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}

// Service returns the service prefix of the event type (e.g., "order", "payment").
func (t Type) Service() string {
	for i, c := range t {
		if c == '.' {
			return string(t[:i])
		}
	}
	return string(t)
}

// Event represents an immutable fact in an aggregate's stream.
type Event struct {
	// AggregateID is the aggregate stream this event belongs to.
	AggregateID string
	// Seq is the event sequence number within the stream (starts at 1).
	// Assigned by the event store on append.
	Seq uint64
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Type identifies the kind of event.
	Type Type
	// CorrelationID binds every event of one business transaction (the order id).
	CorrelationID string
	// CausationID is the id of the command that produced this event.
	CausationID string
	// PayloadJSON holds event-specific data as JSON.
	PayloadJSON []byte
}
