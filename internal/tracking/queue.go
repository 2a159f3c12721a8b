package tracking

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/GridProtectionAlliance/gsf-sub046/types"
)

// FrameFactory creates the publishable frame behind a new bucket.
type FrameFactory func(timestamp types.Ticks) *types.Frame

// Queue is the ascending-ordered collection of frames waiting for publication.
//
// Producers call GetFrame concurrently; lookups of existing buckets are
// lock-free. Bucket creation is serialized by a mutex and keeps the ordered
// slice sorted. A single consumer calls Head and Pop.
type Queue struct {
	factory FrameFactory
	clock   clock.Clock

	framesPerSecond atomic.Int32
	timeResolution  atomic.Int64

	frames *xsync.Map[types.Ticks, *Frame]

	mu      sync.Mutex
	ordered []*Frame    // ascending by timestamp
	popped  types.Ticks // timestamp of the last popped frame, 0 when none

	last atomic.Pointer[Frame]
}

// NewQueue creates an empty queue.
//
// Parameters:
//   - factory: Creates the publishable frame for a new bucket (types.NewFrame if nil)
//   - clk: Source of frame creation times (real clock if nil)
//   - framesPerSecond: Bucket rate, must be at least one
//   - timeResolution: Bucket truncation in ticks (0 or 1 disables truncation)
func NewQueue(factory FrameFactory, clk clock.Clock, framesPerSecond int, timeResolution types.Ticks) *Queue {
	if factory == nil {
		factory = types.NewFrame
	}
	if clk == nil {
		clk = clock.New()
	}

	q := &Queue{
		factory: factory,
		clock:   clk,
		frames:  xsync.NewMap[types.Ticks, *Frame](),
	}
	q.SetFramesPerSecond(framesPerSecond)
	q.SetTimeResolution(timeResolution)

	return q
}

// SetFramesPerSecond changes the bucket rate for frames created from now on.
func (q *Queue) SetFramesPerSecond(fps int) {
	if fps < 1 {
		fps = 1
	}
	q.framesPerSecond.Store(int32(fps)) //nolint:gosec // frame rates are small
}

// SetTimeResolution changes the bucket truncation for frames created from now on.
func (q *Queue) SetTimeResolution(resolution types.Ticks) {
	q.timeResolution.Store(int64(resolution))
}

// Bucket returns the bucket timestamp an entity timestamp sorts into: the
// nearest frame boundary within its second, truncated to the time resolution.
func (q *Queue) Bucket(timestamp types.Ticks) types.Ticks {
	fps := float64(q.framesPerSecond.Load())
	ticksPerFrame := float64(types.TicksPerSecond) / fps

	base := timestamp.BaselinedTimestamp()
	index := math.Round(float64(timestamp-base) / ticksPerFrame)
	bucket := base + types.Ticks(math.Round(index*ticksPerFrame))

	if resolution := types.Ticks(q.timeResolution.Load()); resolution > 1 {
		bucket -= bucket % resolution
	}

	return bucket
}

// GetFrame returns the frame for the bucket containing timestamp, creating
// it when needed.
//
// Returns nil when the bucket is at or before the last popped frame: such a
// frame could never be published in ascending order.
func (q *Queue) GetFrame(timestamp types.Ticks) *Frame {
	bucket := q.Bucket(timestamp)

	if frame, ok := q.frames.Load(bucket); ok {
		return frame
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	// Re-check under the lock, another producer may have won the race.
	if frame, ok := q.frames.Load(bucket); ok {
		return frame
	}

	if q.popped != 0 && bucket <= q.popped {
		return nil
	}

	source := q.factory(bucket)
	source.ReceivedAt = types.FromTime(q.clock.Now())
	frame := NewFrame(source, source.ReceivedAt)

	pos, _ := slices.BinarySearchFunc(q.ordered, bucket, func(f *Frame, ts types.Ticks) int {
		switch {
		case f.Timestamp() < ts:
			return -1
		case f.Timestamp() > ts:
			return 1
		default:
			return 0
		}
	})
	q.ordered = slices.Insert(q.ordered, pos, frame)
	q.frames.Store(bucket, frame)

	return frame
}

// Head returns the earliest queued frame, or nil when the queue is empty.
func (q *Queue) Head() *Frame {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ordered) == 0 {
		return nil
	}

	return q.ordered[0]
}

// Pop removes and returns the earliest queued frame.
func (q *Queue) Pop() *Frame {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ordered) == 0 {
		return nil
	}

	return q.removeHead()
}

// Dequeue pops frame if it is still the head of the queue. It returns false
// when the queue was cleared or reordered since frame was read from Head.
func (q *Queue) Dequeue(frame *Frame) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ordered) == 0 || q.ordered[0] != frame {
		return false
	}

	q.removeHead()

	return true
}

// removeHead pops the first frame. Callers hold q.mu and ensure the queue is
// not empty.
func (q *Queue) removeHead() *Frame {
	frame := q.ordered[0]
	q.ordered[0] = nil
	q.ordered = q.ordered[1:]
	q.frames.Delete(frame.Timestamp())
	q.popped = frame.Timestamp()
	q.last.Store(frame)

	return frame
}

// Last returns the most recently popped frame.
func (q *Queue) Last() *Frame {
	return q.last.Load()
}

// Count returns the number of queued frames.
func (q *Queue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.ordered)
}

// Clear drops every queued frame and forgets the last popped timestamp.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.ordered = nil
	q.frames.Clear()
	q.popped = 0
}

// ExamineQueueState returns a per-frame summary of how full each queued
// frame is relative to expectedEntities.
func (q *Queue) ExamineQueueState(expectedEntities int) string {
	q.mu.Lock()
	snapshot := slices.Clone(q.ordered)
	q.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Concentrator frame queue contains %d frames:\n", len(snapshot))

	for i, frame := range snapshot {
		count := frame.SignalCount()
		fmt.Fprintf(&sb, "  Frame %04d @ %s: %d", i, frame.Timestamp(), count)
		if expectedEntities > 0 {
			fmt.Fprintf(&sb, " of %d (%.2f%%)", expectedEntities, 100*float64(count)/float64(expectedEntities))
		}
		if frame.Closed() {
			sb.WriteString(" [closed]")
		}
		sb.WriteByte('\n')
	}

	return sb.String()
}
