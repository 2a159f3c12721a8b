package types

import "context"

// Publisher delivers finalized frames onward (to storage, network, display).
//
// PublishFrame is called from the concentrator's single publication goroutine,
// strictly in ascending timestamp order and at most once per frame. A returned
// error (or a panic) is reported through Hooks.OnProcessException; the frame is
// never retried.
type Publisher interface {
	// PublishFrame delivers a frame.
	//
	// Parameters:
	//   - ctx: Concentrator lifetime context, cancelled on Close
	//   - frame: Finalized frame with one entity per signal
	//   - index: Zero-based index of the frame within its second
	//
	// Returns:
	//   - error: Delivery failure, reported but not retried
	PublishFrame(ctx context.Context, frame *Frame, index int) error
}

// FrameFactory is an optional Publisher capability for creating custom frames.
//
// When the publisher does not implement it, NewFrame is used.
type FrameFactory interface {
	CreateFrame(timestamp Ticks) *Frame
}

// EntityAssigner is an optional Publisher capability for placing the winning
// entity of a signal into a frame.
//
// When the publisher does not implement it, the entity is stored in
// Frame.Entities under its ID.
type EntityAssigner interface {
	AssignEntity(frame *Frame, entity Entity)
}

// PublisherFunc adapts a plain function to the Publisher interface.
type PublisherFunc func(ctx context.Context, frame *Frame, index int) error

// PublishFrame calls f(ctx, frame, index).
func (f PublisherFunc) PublishFrame(ctx context.Context, frame *Frame, index int) error {
	return f(ctx, frame, index)
}

// AssignEntity is the default entity-to-frame assignment.
func AssignEntity(frame *Frame, entity Entity) {
	frame.Entities[entity.ID()] = entity
}
