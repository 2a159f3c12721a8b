package testing

import (
	"context"
	"sync"

	"github.com/GridProtectionAlliance/gsf-sub046/types"
)

// PublishedFrame is one call recorded by RecordingPublisher.
type PublishedFrame struct {
	Frame *types.Frame
	Index int
}

// RecordingPublisher is a types.Publisher that keeps every frame it receives.
//
// Set Err to make every PublishFrame call fail after recording the frame.
type RecordingPublisher struct {
	mu     sync.Mutex
	frames []PublishedFrame
	notify chan struct{}

	// Err is returned from PublishFrame when non-nil.
	Err error
}

var _ types.Publisher = (*RecordingPublisher)(nil)

// NewRecordingPublisher creates an empty recording publisher.
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{notify: make(chan struct{}, 1)}
}

// PublishFrame records the frame.
func (p *RecordingPublisher) PublishFrame(_ context.Context, frame *types.Frame, index int) error {
	p.mu.Lock()
	p.frames = append(p.frames, PublishedFrame{Frame: frame, Index: index})
	err := p.Err
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}

	return err
}

// Frames returns a copy of the recorded frames in publication order.
func (p *RecordingPublisher) Frames() []PublishedFrame {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]PublishedFrame, len(p.frames))
	copy(out, p.frames)

	return out
}

// Count returns the number of recorded frames.
func (p *RecordingPublisher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.frames)
}

// WaitFor blocks until at least n frames were recorded or ctx is done.
//
// Returns:
//   - []PublishedFrame: Recorded frames at the time the wait ended
//   - error: ctx.Err() when fewer than n frames arrived
func (p *RecordingPublisher) WaitFor(ctx context.Context, n int) ([]PublishedFrame, error) {
	for {
		if frames := p.Frames(); len(frames) >= n {
			return frames, nil
		}

		select {
		case <-ctx.Done():
			return p.Frames(), ctx.Err()
		case <-p.notify:
		}
	}
}
