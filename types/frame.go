package types

import "github.com/google/uuid"

// Frame is the finalized, one-entity-per-signal snapshot for a single
// timestamp bucket.
//
// A Frame is created once when its bucket is first needed, filled by the
// publication goroutine after the bucket's sorting window closes, handed to
// the Publisher and then discarded. It is never reused or republished.
type Frame struct {
	// Timestamp is the bucket time of the frame.
	Timestamp Ticks

	// Entities holds exactly one entity per signal ID.
	Entities map[uuid.UUID]Entity

	// ReceivedAt is the local time the frame was created.
	ReceivedAt Ticks

	// PublishedAt is the local time the frame was handed to the publisher.
	PublishedAt Ticks
}

// NewFrame creates an empty frame for the given bucket timestamp.
func NewFrame(timestamp Ticks) *Frame {
	return &Frame{
		Timestamp: timestamp,
		Entities:  make(map[uuid.UUID]Entity),
	}
}

// Count returns the number of signals in the frame.
func (f *Frame) Count() int {
	return len(f.Entities)
}

// Entity returns the entity published for the given signal, if any.
func (f *Frame) Entity(id uuid.UUID) (Entity, bool) {
	e, ok := f.Entities[id]
	return e, ok
}
