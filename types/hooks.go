package types

import "context"

// Hooks defines callbacks for concentrator notifications.
//
// All hooks are optional. OnEntitiesDiscarded is called synchronously on the
// goroutine that called Sort, once per batch; the remaining hooks are called
// asynchronously in background goroutines so they never stall the
// publication loop. Hooks receive the concentrator's lifetime context which
// is cancelled by Close.
//
// Hook errors are logged but never affect concentrator operation.
//
// Example:
//
//	hooks := &concentrator.Hooks{
//	    OnProcessException: func(ctx context.Context, err error) error {
//	        alerts <- err
//	        return nil
//	    },
//	}
type Hooks struct {
	// OnEntitiesDiscarded receives the entities of one Sort batch that could
	// not be placed into a frame.
	OnEntitiesDiscarded func(ctx context.Context, entities []Entity) error

	// OnProcessException is called when publication fails or panics.
	OnProcessException func(ctx context.Context, err error) error

	// OnUnpublishedSamples periodically reports the number of seconds of data
	// waiting in the queue beyond the first.
	OnUnpublishedSamples func(ctx context.Context, seconds int) error

	// OnStateChanged is called on every lifecycle transition.
	OnStateChanged func(ctx context.Context, from, to State) error

	// OnDisposed is called once when the concentrator is closed.
	OnDisposed func(ctx context.Context) error
}
