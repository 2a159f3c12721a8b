// Package tracking holds the mutable, in-flight side of frame concentration:
// the per-bucket TrackingFrame with its lock-free producer barrier, and the
// ascending Queue of frames waiting for publication.
package tracking

import (
	"runtime"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/GridProtectionAlliance/gsf-sub046/types"
)

// Gate bits of Frame.gate.
const (
	gateBusy    int32 = 1 << 0 // a producer is appending
	gateClosing int32 = 1 << 1 // the consumer has claimed the frame
)

// spinsBeforeYield bounds busy-waiting before handing the processor back.
const spinsBeforeYield = 64

// Frame accumulates the entities sorted into one time bucket until the
// publication goroutine claims it.
//
// Any number of producers may call Add concurrently. A single consumer calls
// GetEntities once; after that every Add fails. Appends are serialized by an
// atomic busy bit rather than a mutex so the common path never parks a
// goroutine.
type Frame struct {
	source    *types.Frame
	createdAt types.Ticks

	gate        atomic.Int32
	signalCount atomic.Int32

	// guarded by gateBusy
	entities map[uuid.UUID][]types.Entity
}

// NewFrame wraps source for accumulation. createdAt is the local time the
// bucket was first requested.
func NewFrame(source *types.Frame, createdAt types.Ticks) *Frame {
	return &Frame{
		source:    source,
		createdAt: createdAt,
		entities:  make(map[uuid.UUID][]types.Entity),
	}
}

// Add appends an entity to the raw sequence of its signal.
//
// Returns false, without blocking, once the consumer has begun closing the
// frame. Contention with another producer is resolved by retrying the CAS.
func (f *Frame) Add(entity types.Entity) bool {
	for spins := 0; ; spins++ {
		state := f.gate.Load()
		if state&gateClosing != 0 {
			return false
		}

		if state&gateBusy == 0 && f.gate.CompareAndSwap(state, state|gateBusy) {
			break
		}

		if spins >= spinsBeforeYield {
			runtime.Gosched()
		}
	}

	id := entity.ID()
	seq, ok := f.entities[id]
	if !ok {
		f.signalCount.Add(1)
	}
	f.entities[id] = append(seq, entity)

	// Closing may have been set while we held the slot; clear only our bit.
	f.gate.And(^gateBusy)

	return true
}

// GetEntities closes the frame to further additions, waits for an in-flight
// producer to finish, and returns the raw per-signal sequences in arrival order.
//
// Must be called by the single consumer, at most once.
func (f *Frame) GetEntities() map[uuid.UUID][]types.Entity {
	f.gate.Or(gateClosing)

	for spins := 0; f.gate.Load()&gateBusy != 0; spins++ {
		if spins >= spinsBeforeYield {
			runtime.Gosched()
		}
	}

	return f.entities
}

// SignalCount returns the number of distinct signals added so far.
func (f *Frame) SignalCount() int {
	return int(f.signalCount.Load())
}

// Closed reports whether GetEntities has been called.
func (f *Frame) Closed() bool {
	return f.gate.Load()&gateClosing != 0
}

// Timestamp returns the bucket timestamp.
func (f *Frame) Timestamp() types.Ticks {
	return f.source.Timestamp
}

// CreatedAt returns the local time the frame was created.
func (f *Frame) CreatedAt() types.Ticks {
	return f.createdAt
}

// Source returns the frame that will be published.
func (f *Frame) Source() *types.Frame {
	return f.source
}
