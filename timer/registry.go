package timer

import (
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/GridProtectionAlliance/gsf-sub046/internal/logging"
	"github.com/GridProtectionAlliance/gsf-sub046/types"
)

// Key identifies a shared timer.
type Key struct {
	FramesPerSecond    int
	ProcessingInterval int
}

// Registry shares frame-rate timers between subscribers with the same Key.
//
// A single mutex guards timer creation, reference counting and teardown.
// Registry is safe for concurrent use.
type Registry struct {
	clock  clock.Clock
	logger types.Logger

	mu     sync.Mutex
	timers map[Key]*frameRateTimer
	closed bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock sets the clock driving timer deadlines. Defaults to the wall clock.
func WithClock(clk clock.Clock) RegistryOption {
	return func(r *Registry) {
		r.clock = clk
	}
}

// WithLogger sets the logger for timer creation and teardown.
func WithLogger(logger types.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty timer registry.
//
// Parameters:
//   - opts: Optional clock and logger
//
// Returns:
//   - *Registry: Registry with no active timers
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{timers: make(map[Key]*frameRateTimer)}
	for _, opt := range opts {
		opt(r)
	}

	if r.clock == nil {
		r.clock = clock.New()
	}
	if r.logger == nil {
		r.logger = logging.NewNop()
	}

	return r
}

// Subscribe registers fn to be called on every tick of the timer for the
// given rate and interval, creating the timer when it does not exist yet.
//
// fn runs on the timer goroutine and must return quickly; setting a signal
// is the intended use.
//
// Parameters:
//   - framesPerSecond: Frame rate, at least one
//   - processingInterval: -1 to tick at the frame rate, >0 for a fixed period in milliseconds
//   - fn: Tick callback
//
// Returns:
//   - *Subscription: Handle releasing the reference
//   - error: ErrInvalidInterval, ErrInvalidFramesPerSecond or ErrRegistryClosed
func (r *Registry) Subscribe(framesPerSecond, processingInterval int, fn func()) (*Subscription, error) {
	if processingInterval == 0 {
		return nil, types.ErrInvalidInterval
	}
	if framesPerSecond < 1 {
		return nil, fmt.Errorf("%w: got %d", types.ErrInvalidFramesPerSecond, framesPerSecond)
	}
	if processingInterval < -1 {
		processingInterval = -1
	}

	key := Key{FramesPerSecond: framesPerSecond, ProcessingInterval: processingInterval}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, types.ErrRegistryClosed
	}

	t, ok := r.timers[key]
	if !ok {
		t = newFrameRateTimer(key, r.clock)
		r.timers[key] = t
		t.start()
		r.logger.Debug("frame rate timer created", "fps", key.FramesPerSecond, "interval", key.ProcessingInterval)
	}

	id := t.addReference(fn)

	return &Subscription{registry: r, timer: t, id: id}, nil
}

// References returns the number of subscriptions to the timer for a key.
func (r *Registry) References(framesPerSecond, processingInterval int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.timers[Key{FramesPerSecond: framesPerSecond, ProcessingInterval: processingInterval}]
	if !ok {
		return 0
	}

	return int(t.refs.Load())
}

// Len returns the number of running timers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.timers)
}

// Close stops every timer. Subsequent Subscribe calls fail and outstanding
// subscriptions become no-ops.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}

	r.closed = true
	timers := r.timers
	r.timers = make(map[Key]*frameRateTimer)
	r.mu.Unlock()

	for _, t := range timers {
		t.stop()
	}
}

func (r *Registry) release(t *frameRateTimer, id uint64) {
	r.mu.Lock()

	if t.removeReference(id) > 0 || r.timers[t.key] != t {
		r.mu.Unlock()
		return
	}

	delete(r.timers, t.key)
	r.mu.Unlock()

	t.stop()
	r.logger.Debug("frame rate timer released", "fps", t.key.FramesPerSecond, "interval", t.key.ProcessingInterval)
}

// Subscription is one reference to a shared timer.
type Subscription struct {
	registry *Registry
	timer    *frameRateTimer
	id       uint64
	once     sync.Once
}

// Key returns the key of the subscribed timer.
func (s *Subscription) Key() Key {
	return s.timer.key
}

// Unsubscribe releases the reference. The timer stops when no references remain.
// Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.registry.release(s.timer, s.id)
	})
}
