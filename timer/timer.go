package timer

import (
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/puzpuzpuz/xsync/v4"
)

// resyncThreshold is how far the schedule may fall behind the clock before
// deadlines are rebased on the current time instead of catching up.
const resyncThreshold = time.Second

// frameRateTimer ticks on absolute deadlines following FramePeriods, or on a
// fixed processing interval.
type frameRateTimer struct {
	key     Key
	clock   clock.Clock
	periods []int

	subscribers *xsync.Map[uint64, func()]
	nextID      atomic.Uint64
	refs        atomic.Int32

	stopCh chan struct{}
	doneCh chan struct{}
}

func newFrameRateTimer(key Key, clk clock.Clock) *frameRateTimer {
	t := &frameRateTimer{
		key:         key,
		clock:       clk,
		subscribers: xsync.NewMap[uint64, func()](),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	if key.ProcessingInterval < 0 {
		t.periods = FramePeriods(key.FramesPerSecond)
	}

	return t
}

func (t *frameRateTimer) addReference(fn func()) uint64 {
	id := t.nextID.Add(1)
	t.subscribers.Store(id, fn)
	t.refs.Add(1)

	return id
}

// removeReference returns the remaining reference count.
func (t *frameRateTimer) removeReference(id uint64) int {
	if _, ok := t.subscribers.LoadAndDelete(id); !ok {
		return int(t.refs.Load())
	}

	return int(t.refs.Add(-1))
}

func (t *frameRateTimer) period(frameIndex int) time.Duration {
	ms := t.key.ProcessingInterval
	if t.periods != nil {
		ms = t.periods[frameIndex]
	}

	return time.Duration(max(ms, 1)) * time.Millisecond
}

func (t *frameRateTimer) start() {
	go t.run()
}

func (t *frameRateTimer) stop() {
	close(t.stopCh)
	<-t.doneCh
}

func (t *frameRateTimer) run() {
	defer close(t.doneCh)

	frameIndex := 0
	next := t.clock.Now().Add(t.period(frameIndex))
	tm := t.clock.Timer(next.Sub(t.clock.Now()))
	defer tm.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-tm.C:
		}

		t.fire()

		if t.periods != nil {
			frameIndex = (frameIndex + 1) % len(t.periods)
		}
		next = next.Add(t.period(frameIndex))

		now := t.clock.Now()
		if now.Sub(next) > resyncThreshold {
			next = now
		}
		tm.Reset(max(next.Sub(now), 0))
	}
}

func (t *frameRateTimer) fire() {
	t.subscribers.Range(func(_ uint64, fn func()) bool {
		fn()
		return true
	})
}
