package concentrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/GridProtectionAlliance/gsf-sub046/internal/hooks"
	"github.com/GridProtectionAlliance/gsf-sub046/internal/lifecycle"
	"github.com/GridProtectionAlliance/gsf-sub046/internal/logging"
	"github.com/GridProtectionAlliance/gsf-sub046/internal/metrics"
	"github.com/GridProtectionAlliance/gsf-sub046/internal/tracking"
	"github.com/GridProtectionAlliance/gsf-sub046/timer"
	"github.com/GridProtectionAlliance/gsf-sub046/types"
)

// Concentrator sorts time-stamped entities from many sources into frames of
// identical timestamp and publishes each frame once its sorting window closes.
//
// Concentrator handles:
//   - Sorting entities into frame buckets at the configured frame rate
//   - Tracking a real-time estimate from the newest reasonable timestamps
//   - Publishing frames in ascending order from a single goroutine
//   - Down-sampling multiple entities of one signal with a filter
//   - Statistics and discard/unpublished-data notifications
//
// Thread Safety:
//   - Sort may be called from any number of goroutines
//   - Setters, Start, Stop and Close are safe for concurrent use
//   - Publisher.PublishFrame is only ever called from one goroutine
//
// Lifecycle:
//   - Create with NewConcentrator() (state Stopped)
//   - Call Start() to accept entities and publish frames
//   - Stop() pauses and drops queued frames; Start() again resumes
//   - Close() releases the timer and goroutines; the instance is unusable afterwards
type Concentrator struct {
	publisher Publisher
	assign    func(frame *Frame, entity Entity)

	hooks   Hooks
	metrics MetricsCollector
	logger  Logger
	clock   clock.Clock

	settings atomic.Pointer[settings]
	setMu    sync.Mutex

	queue   *tracking.Queue
	machine *lifecycle.Machine
	lifeMu  sync.Mutex
	enabled atomic.Bool

	registry     *timer.Registry
	ownsRegistry bool
	timerMu      sync.Mutex
	subscription *timer.Subscription
	signal       chan struct{}

	monitorInterval time.Duration

	realTimeTicks atomic.Int64
	lastDiscarded atomic.Pointer[discardRecord]
	latest        *xsync.Map[uuid.UUID, Entity]
	stats         counters

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type discardRecord struct {
	entity  Entity
	latency Ticks
}

// NewConcentrator creates a Concentrator in the Stopped state.
//
// The publication and monitor goroutines start immediately and run until
// Close; they stay idle until Start is called.
//
// Parameters:
//   - cfg: Configuration, defaults are filled in for missing numeric values
//   - publisher: Receives every published frame (required)
//   - opts: Optional hooks, metrics, logger, filter, timer registry, clock
//
// Returns:
//   - *Concentrator: Initialized concentrator
//   - error: ErrInvalidConfig, ErrPublisherRequired or a wrapped validation error
//
// Example:
//
//	cfg := concentrator.DefaultConfig()
//	cfg.FramesPerSecond = 60
//	cfg.ExpectedEntities = len(signals)
//
//	c, err := concentrator.NewConcentrator(&cfg, concentrator.PublisherFunc(
//	    func(ctx context.Context, frame *concentrator.Frame, index int) error {
//	        return store.Write(ctx, frame)
//	    }),
//	    concentrator.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	_ = c.Start()
//	c.Sort(measurements...)
func NewConcentrator(cfg *Config, publisher Publisher, opts ...Option) (*Concentrator, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if publisher == nil {
		return nil, ErrPublisherRequired
	}

	SetDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	options := &concentratorOptions{}
	for _, opt := range opts {
		opt(options)
	}

	metricsCollector := options.metrics
	if metricsCollector == nil {
		metricsCollector = metrics.NewNop()
	}

	loggerInstance := options.logger
	if loggerInstance == nil {
		loggerInstance = logging.NewNop()
	}

	cfg.ValidateWithWarnings(loggerInstance)

	clk := options.clock
	if clk == nil {
		clk = clock.New()
	}

	initial, err := newSettings(cfg, options.filter)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c := &Concentrator{
		publisher: publisher,
		assign:    types.AssignEntity,
		hooks:     hooks.Merge(options.hooks),
		metrics:   metricsCollector,
		logger:    loggerInstance,
		clock:     clk,
		registry:  options.registry,
		signal:    make(chan struct{}, 1),
		latest:    xsync.NewMap[uuid.UUID, Entity](),

		monitorInterval: cfg.MonitorInterval,
	}

	if assigner, ok := publisher.(EntityAssigner); ok {
		c.assign = assigner.AssignEntity
	}

	var factory tracking.FrameFactory
	if f, ok := publisher.(FrameFactory); ok {
		factory = f.CreateFrame
	}
	if options.factory != nil {
		factory = options.factory.CreateFrame
	}

	c.queue = tracking.NewQueue(factory, clk, initial.framesPerSecond, initial.timeResolution)
	c.machine = lifecycle.New(c.onTransition)

	if c.registry == nil {
		c.registry = timer.NewRegistry(timer.WithLogger(loggerInstance))
		c.ownsRegistry = true
	}

	if err := c.syncTimer(initial); err != nil {
		if c.ownsRegistry {
			c.registry.Close()
		}

		return nil, fmt.Errorf("failed to attach frame rate timer: %w", err)
	}
	c.settings.Store(initial)

	monitor := clk.Ticker(cfg.MonitorInterval)

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.wg.Go(c.publicationLoop)
	c.wg.Go(func() { c.monitorLoop(monitor) })

	return c, nil
}

// Start enables sorting and publication.
//
// Statistics are reset and any frames left from a previous run are dropped.
//
// Returns:
//   - error: ErrAlreadyStarted if running, ErrDisposed after Close
func (c *Concentrator) Start() error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if err := c.machine.Fire(context.Background(), lifecycle.EventStart); err != nil {
		return err
	}

	c.stats.reset()
	c.stats.startTime.Store(int64(c.now()))
	c.queue.Clear()
	c.enabled.Store(true)

	c.logger.Info("concentrator started",
		"frames_per_second", c.settings.Load().framesPerSecond,
	)

	return nil
}

// Stop disables sorting and publication and drops every queued frame.
//
// A frame already handed to the publisher finishes publishing.
//
// Returns:
//   - error: ErrNotStarted if stopped, ErrDisposed after Close
func (c *Concentrator) Stop() error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if err := c.machine.Fire(context.Background(), lifecycle.EventStop); err != nil {
		return err
	}

	c.enabled.Store(false)
	c.queue.Clear()
	c.stats.stopTime.Store(int64(c.now()))

	c.logger.Info("concentrator stopped", "run_time", c.RunTime())

	return nil
}

// Close stops the concentrator permanently and releases its timer.
//
// Close blocks until the publication goroutine exits, so it must not be
// called from inside Publisher.PublishFrame. Calling Close more than once is
// a no-op.
//
// Returns:
//   - error: Always nil
func (c *Concentrator) Close() error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if c.machine.Current() == StateDisposed {
		return nil
	}

	wasEnabled := c.enabled.Swap(false)
	if err := c.machine.Fire(context.Background(), lifecycle.EventDispose); err != nil {
		return err
	}

	c.cancel()
	c.wg.Wait()

	c.timerMu.Lock()
	if c.subscription != nil {
		c.subscription.Unsubscribe()
		c.subscription = nil
	}
	c.timerMu.Unlock()

	if c.ownsRegistry {
		c.registry.Close()
	}

	c.queue.Clear()
	if wasEnabled {
		c.stats.stopTime.Store(int64(c.now()))
	}

	c.logger.Info("concentrator disposed")

	go func() {
		if err := c.hooks.OnDisposed(context.Background()); err != nil {
			c.logger.Error("disposed hook error", "error", err)
		}
	}()

	return nil
}

// State returns the current lifecycle state.
func (c *Concentrator) State() State {
	return c.machine.Current()
}

// Enabled reports whether the concentrator is sorting and publishing.
func (c *Concentrator) Enabled() bool {
	return c.enabled.Load()
}

func (c *Concentrator) onTransition(ctx context.Context, from, to State) {
	c.logger.Debug("concentrator state transition",
		"from", from.String(),
		"to", to.String(),
	)

	c.metrics.RecordStateTransition(from, to)

	// Run hook in background to avoid blocking the caller of Start/Stop/Close
	go func() {
		if err := c.hooks.OnStateChanged(ctx, from, to); err != nil {
			c.logger.Error("state change hook error", "from", from, "to", to, "error", err)
		}
	}()
}

// now returns the concentrator clock in ticks.
func (c *Concentrator) now() Ticks {
	return types.FromTime(c.clock.Now())
}

// ============================================================================
// Real-time estimation
// ============================================================================

// RealTime returns the current real-time estimate.
//
// With UseLocalClockAsRealTime this is the local clock. Otherwise it is the
// newest accepted entity timestamp, reset to the local clock when
// reasonability checks are on and the estimate drifted more than LeadTime
// away from it.
func (c *Concentrator) RealTime() Ticks {
	return c.realTime(c.settings.Load())
}

func (c *Concentrator) realTime(s *settings) Ticks {
	if s.useLocalClockAsRealTime {
		return c.now()
	}

	current := c.realTimeTicks.Load()

	if s.performTimestampReasonabilityCheck {
		now := c.now()
		if distance := (now - Ticks(current)).ToSeconds(); distance > s.leadTime || distance < -s.leadTime {
			// A failed swap means a producer advanced the estimate concurrently.
			if c.realTimeTicks.CompareAndSwap(current, int64(now)) {
				return now
			}

			return Ticks(c.realTimeTicks.Load())
		}
	}

	return Ticks(current)
}

// SecondsFromRealTime returns how many seconds timestamp lies behind the
// real-time estimate. Negative values are in the future.
func (c *Concentrator) SecondsFromRealTime(timestamp Ticks) float64 {
	return c.secondsFromRealTime(c.settings.Load(), timestamp)
}

func (c *Concentrator) secondsFromRealTime(s *settings, timestamp Ticks) float64 {
	if !s.useLocalClockAsRealTime && c.realTimeTicks.Load() == 0 {
		seed := timestamp
		if s.performTimestampReasonabilityCheck {
			seed = c.now()
		}
		c.realTimeTicks.CompareAndSwap(0, int64(seed))
	}

	return (c.realTime(s) - timestamp).ToSeconds()
}

// advanceRealTime moves the estimate forward to timestamp after a successful
// sort.
func (c *Concentrator) advanceRealTime(s *settings, timestamp Ticks) {
	if s.useLocalClockAsRealTime {
		return
	}

	for {
		current := c.realTimeTicks.Load()
		if int64(timestamp) <= current {
			return
		}

		next := timestamp
		if s.performTimestampReasonabilityCheck {
			now := c.now()
			if !timestamp.TimeIsValid(now, s.leadTime, s.leadTime) {
				if Ticks(current).TimeIsValid(now, s.leadTime, s.leadTime) {
					return
				}
				next = now
			}
		}

		if c.realTimeTicks.CompareAndSwap(current, int64(next)) {
			return
		}
	}
}

// ============================================================================
// Inspection
// ============================================================================

// LastFrame returns the most recently published frame, nil before the first.
func (c *Concentrator) LastFrame() *Frame {
	last := c.queue.Last()
	if last == nil {
		return nil
	}

	return last.Source()
}

// LastDiscardedEntity returns the most recently discarded entity.
func (c *Concentrator) LastDiscardedEntity() Entity {
	if rec := c.lastDiscarded.Load(); rec != nil {
		return rec.entity
	}

	return nil
}

// LastDiscardedLatency returns how far the last discarded entity lay behind
// real time when it was discarded.
func (c *Concentrator) LastDiscardedLatency() Ticks {
	if rec := c.lastDiscarded.Load(); rec != nil {
		return rec.latency
	}

	return 0
}

// LatestEntities returns the newest sorted entity of every signal.
//
// Empty unless TrackLatestEntities is enabled.
func (c *Concentrator) LatestEntities() map[uuid.UUID]Entity {
	out := make(map[uuid.UUID]Entity, c.latest.Size())
	c.latest.Range(func(id uuid.UUID, e Entity) bool {
		out[id] = e
		return true
	})

	return out
}

// QueueState returns a per-frame summary of the frames waiting for publication.
func (c *Concentrator) QueueState() string {
	return c.queue.ExamineQueueState(c.settings.Load().expectedEntities)
}

// Config returns the effective configuration, including values coupled by
// other settings.
func (c *Concentrator) Config() Config {
	s := c.settings.Load()

	return Config{
		FramesPerSecond:                    s.framesPerSecond,
		LagTime:                            s.lagTime,
		LeadTime:                           s.leadTime,
		TimeResolution:                     s.timeResolution.Duration(),
		ProcessingInterval:                 s.processingInterval,
		ExpectedEntities:                   s.expectedEntities,
		AllowPreemptivePublishing:          s.allowPreemptivePublishing,
		IgnoreBadTimestamps:                s.ignoreBadTimestamps,
		AllowSortsByArrival:                s.allowSortsByArrival,
		UseLocalClockAsRealTime:            s.useLocalClockAsRealTime,
		PerformTimestampReasonabilityCheck: s.performTimestampReasonabilityCheck,
		ProcessByCreationTime:              s.processByCreationTime,
		UsePrecisionTimer:                  s.usePrecisionTimer,
		TrackLatestEntities:                s.trackLatestEntities,
		MaximumPublicationTimeout:          s.maxPublicationTimeout,
		MonitorInterval:                    c.monitorInterval,
	}
}

// ============================================================================
// Runtime configuration
// ============================================================================

// update applies mutate to a copy of the current settings and swaps it in.
// On error the running configuration is left unchanged.
func (c *Concentrator) update(mutate func(s *settings) error) error {
	c.setMu.Lock()
	defer c.setMu.Unlock()

	if c.machine.Current() == StateDisposed {
		return ErrDisposed
	}

	next := c.settings.Load().clone()
	if err := mutate(next); err != nil {
		return err
	}

	if err := c.syncTimer(next); err != nil {
		return fmt.Errorf("failed to attach frame rate timer: %w", err)
	}

	c.queue.SetFramesPerSecond(next.framesPerSecond)
	c.queue.SetTimeResolution(next.timeResolution)
	c.settings.Store(next)

	return nil
}

// syncTimer subscribes to the shared timer matching s, replacing the current
// subscription when the frame rate or interval changed.
func (c *Concentrator) syncTimer(s *settings) error {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()

	if !s.usePrecisionTimer {
		if c.subscription != nil {
			c.subscription.Unsubscribe()
			c.subscription = nil
		}

		return nil
	}

	key := timer.Key{FramesPerSecond: s.framesPerSecond, ProcessingInterval: s.processingInterval}
	if c.subscription != nil && c.subscription.Key() == key {
		return nil
	}

	sub, err := c.registry.Subscribe(key.FramesPerSecond, key.ProcessingInterval, c.notify)
	if err != nil {
		return err
	}

	if c.subscription != nil {
		c.subscription.Unsubscribe()
	}
	c.subscription = sub

	c.logger.Debug("attached frame rate timer",
		"frames_per_second", key.FramesPerSecond,
		"processing_interval", key.ProcessingInterval,
	)

	return nil
}

// notify wakes the publication loop; called on the timer goroutine.
func (c *Concentrator) notify() {
	if !c.enabled.Load() {
		return
	}

	select {
	case c.signal <- struct{}{}:
	default:
	}
}

// SetFramesPerSecond changes the frame rate. Frames already queued keep
// their timestamps.
func (c *Concentrator) SetFramesPerSecond(fps int) error {
	return c.update(func(s *settings) error {
		return s.setFramesPerSecond(fps)
	})
}

// SetLagTime changes the allowed past deviation in seconds.
func (c *Concentrator) SetLagTime(seconds float64) error {
	return c.update(func(s *settings) error {
		return s.setLagTime(seconds)
	})
}

// SetLeadTime changes the allowed future deviation in seconds.
func (c *Concentrator) SetLeadTime(seconds float64) error {
	return c.update(func(s *settings) error {
		return s.setLeadTime(seconds)
	})
}

// SetTimeResolution changes frame timestamp truncation. Values outside
// [0, 1s] are clamped.
func (c *Concentrator) SetTimeResolution(resolution time.Duration) error {
	return c.update(func(s *settings) error {
		s.setTimeResolution(types.FromDuration(resolution))
		return nil
	})
}

// SetProcessingInterval changes the publication cadence in milliseconds.
//
// -1 ticks at the frame rate, 0 publishes as fast as possible (disables the
// precision timer) and a positive value ticks at a fixed period (enables
// it). Any value other than -1 forces processing by creation time.
func (c *Concentrator) SetProcessingInterval(interval int) error {
	return c.update(func(s *settings) error {
		s.setProcessingInterval(interval)
		return nil
	})
}

// SetUsePrecisionTimer toggles the shared frame-rate timer.
//
// Returns:
//   - error: ErrPrecisionTimerRequired when disabling with a positive
//     processing interval, ErrPrecisionTimerUnavailable when enabling with a
//     zero interval
func (c *Concentrator) SetUsePrecisionTimer(enabled bool) error {
	return c.update(func(s *settings) error {
		return s.setUsePrecisionTimer(enabled)
	})
}

// SetProcessByCreationTime toggles measuring frame age from creation time.
// Enabling it forces the local clock as real time and disables sorts by
// arrival.
//
// Returns:
//   - error: ErrCreationTimeRequired when disabling while a processing
//     interval is defined
func (c *Concentrator) SetProcessByCreationTime(enabled bool) error {
	return c.update(func(s *settings) error {
		return s.setProcessByCreationTime(enabled)
	})
}

// SetExpectedEntities changes the number of signals a complete frame holds.
func (c *Concentrator) SetExpectedEntities(count int) error {
	return c.update(func(s *settings) error {
		if count < 0 {
			return fmt.Errorf("%w: expected entities must be >= 0, got %d", ErrInvalidConfig, count)
		}
		s.expectedEntities = count

		return nil
	})
}

// SetAllowPreemptivePublishing toggles publishing complete frames early.
func (c *Concentrator) SetAllowPreemptivePublishing(enabled bool) error {
	return c.update(func(s *settings) error {
		s.allowPreemptivePublishing = enabled
		return nil
	})
}

// SetIgnoreBadTimestamps toggles trusting timestamps flagged bad.
func (c *Concentrator) SetIgnoreBadTimestamps(enabled bool) error {
	return c.update(func(s *settings) error {
		s.ignoreBadTimestamps = enabled
		return nil
	})
}

// SetAllowSortsByArrival toggles sorting bad timestamps by arrival. It stays
// off while processing by creation time.
func (c *Concentrator) SetAllowSortsByArrival(enabled bool) error {
	return c.update(func(s *settings) error {
		s.setAllowSortsByArrival(enabled)
		return nil
	})
}

// SetUseLocalClockAsRealTime toggles the local clock as real time. It stays
// on while processing by creation time.
func (c *Concentrator) SetUseLocalClockAsRealTime(enabled bool) error {
	return c.update(func(s *settings) error {
		s.setUseLocalClockAsRealTime(enabled)
		return nil
	})
}

// SetPerformTimestampReasonabilityCheck toggles LeadTime checks against the
// local clock.
func (c *Concentrator) SetPerformTimestampReasonabilityCheck(enabled bool) error {
	return c.update(func(s *settings) error {
		s.performTimestampReasonabilityCheck = enabled
		return nil
	})
}

// SetTrackLatestEntities toggles tracking of the newest entity per signal.
// Disabling it forgets the tracked entities.
func (c *Concentrator) SetTrackLatestEntities(enabled bool) error {
	err := c.update(func(s *settings) error {
		s.trackLatestEntities = enabled
		return nil
	})
	if err == nil && !enabled {
		c.latest.Clear()
	}

	return err
}

// SetFilter replaces the down-sampling filter.
func (c *Concentrator) SetFilter(filter FilterFunc) error {
	if filter == nil {
		return ErrNilFilter
	}

	return c.update(func(s *settings) error {
		s.setFilter(filter)
		return nil
	})
}
