package concentrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GridProtectionAlliance/gsf-sub046/timer"
)

var testEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type publishedFrame struct {
	frame *Frame
	index int
}

type recordingPublisher struct {
	mu        sync.Mutex
	frames    []publishedFrame
	err       error
	panicWith any
}

func (r *recordingPublisher) PublishFrame(_ context.Context, frame *Frame, index int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.frames = append(r.frames, publishedFrame{frame: frame, index: index})
	if r.panicWith != nil {
		panic(r.panicWith)
	}

	return r.err
}

func (r *recordingPublisher) published() []publishedFrame {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]publishedFrame, len(r.frames))
	copy(out, r.frames)

	return out
}

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.frames)
}

// newTestConcentrator builds a started concentrator on a mock clock set to
// testEpoch. The local clock is real time unless mutate says otherwise.
func newTestConcentrator(t *testing.T, mutate func(cfg *Config), opts ...Option) (*Concentrator, *recordingPublisher, *clock.Mock) {
	t.Helper()

	mock := clock.NewMock()
	mock.Set(testEpoch)

	cfg := TestConfig()
	cfg.UseLocalClockAsRealTime = true
	if mutate != nil {
		mutate(&cfg)
	}

	pub := &recordingPublisher{}
	c, err := NewConcentrator(&cfg, pub, append([]Option{WithClock(mock)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Start())

	return c, pub, mock
}

// waitPublished waits until n frames were published and popped.
func waitPublished(t *testing.T, c *Concentrator, n int64) {
	t.Helper()

	require.Eventually(t, func() bool {
		return c.Statistics().PublishedFrames == n
	}, waitFor, tick)
}

func epochTicks() Ticks {
	return FromTime(testEpoch)
}

func frameOffset(fps, k int) Ticks {
	return Ticks(k) * TicksPerSecond / Ticks(fps)
}

func TestNewConcentrator(t *testing.T) {
	pub := PublisherFunc(func(context.Context, *Frame, int) error { return nil })

	t.Run("nil config", func(t *testing.T) {
		_, err := NewConcentrator(nil, pub)
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("nil publisher", func(t *testing.T) {
		cfg := TestConfig()
		_, err := NewConcentrator(&cfg, nil)
		require.ErrorIs(t, err, ErrPublisherRequired)
	})

	t.Run("invalid frame rate", func(t *testing.T) {
		cfg := TestConfig()
		cfg.FramesPerSecond = -1

		_, err := NewConcentrator(&cfg, pub)
		require.ErrorIs(t, err, ErrInvalidFramesPerSecond)
		require.ErrorContains(t, err, "invalid configuration")
	})

	t.Run("starts stopped", func(t *testing.T) {
		cfg := TestConfig()
		c, err := NewConcentrator(&cfg, pub)
		require.NoError(t, err)
		defer c.Close()

		require.Equal(t, StateStopped, c.State())
		require.False(t, c.Enabled())
		require.Nil(t, c.LastFrame())
		require.Nil(t, c.LastDiscardedEntity())
		require.Zero(t, c.RunTime())
	})
}

func TestConcentratorLifecycle(t *testing.T) {
	var (
		mu          sync.Mutex
		transitions []string
		disposed    atomic.Bool
	)

	hooks := &Hooks{
		OnStateChanged: func(_ context.Context, from, to State) error {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, from.String()+"->"+to.String())

			return nil
		},
		OnDisposed: func(context.Context) error {
			disposed.Store(true)
			return nil
		},
	}

	cfg := TestConfig()
	c, err := NewConcentrator(&cfg, &recordingPublisher{}, WithHooks(hooks))
	require.NoError(t, err)

	require.NoError(t, c.Start())
	require.True(t, c.Enabled())
	require.Equal(t, StateStarted, c.State())
	require.ErrorIs(t, c.Start(), ErrAlreadyStarted)

	require.NoError(t, c.Stop())
	require.False(t, c.Enabled())
	require.ErrorIs(t, c.Stop(), ErrNotStarted)

	require.NoError(t, c.Start())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "Close is idempotent")
	require.Equal(t, StateDisposed, c.State())
	require.False(t, c.Enabled())

	require.ErrorIs(t, c.Start(), ErrDisposed)
	require.ErrorIs(t, c.Stop(), ErrDisposed)
	require.ErrorIs(t, c.SetLagTime(1), ErrDisposed)

	require.Eventually(t, disposed.Load, waitFor, tick)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(transitions) == 4
	}, waitFor, tick)

	mu.Lock()
	defer mu.Unlock()
	require.ElementsMatch(t, []string{
		"Stopped->Started",
		"Started->Stopped",
		"Stopped->Started",
		"Started->Disposed",
	}, transitions)
}

func TestSortIgnoredWhileStopped(t *testing.T) {
	c, _, _ := newTestConcentrator(t, nil)
	require.NoError(t, c.Stop())

	c.Sort(NewMeasurement(uuid.New(), epochTicks(), 1))

	require.Zero(t, c.Statistics().ReceivedEntities)
	require.Contains(t, c.QueueState(), "contains 0 frames")
}

func TestPreemptivePublishing(t *testing.T) {
	c, pub, _ := newTestConcentrator(t, func(cfg *Config) {
		cfg.ExpectedEntities = 2
	})

	now := epochTicks()
	c.Sort(NewMeasurement(uuid.New(), now, 1))
	assert.Never(t, func() bool { return pub.count() > 0 }, 100*time.Millisecond, tick,
		"incomplete frame must wait for its lag time")

	c.Sort(NewMeasurement(uuid.New(), now, 2))
	waitPublished(t, c, 1)

	got := pub.published()[0]
	require.Equal(t, now, got.frame.Timestamp)
	require.Equal(t, 0, got.index)
	require.Equal(t, 2, got.frame.Count())

	stats := c.Statistics()
	require.EqualValues(t, 1, stats.PublishedFrames)
	require.EqualValues(t, 1, stats.FramesAheadOfSchedule)
	require.EqualValues(t, 2, stats.PublishedEntities)
	require.Same(t, got.frame, c.LastFrame())
}

func TestPublishAfterLagTime(t *testing.T) {
	c, pub, mock := newTestConcentrator(t, nil)

	c.Sort(NewMeasurement(uuid.New(), epochTicks(), 1))
	assert.Never(t, func() bool { return pub.count() > 0 }, 100*time.Millisecond, tick)

	mock.Add(250 * time.Millisecond) // lag is 200ms
	waitPublished(t, c, 1)

	stats := c.Statistics()
	require.Zero(t, stats.FramesAheadOfSchedule)
	require.EqualValues(t, 1, stats.ProcessedEntities)
}

func TestFramesPublishInAscendingOrder(t *testing.T) {
	c, pub, mock := newTestConcentrator(t, nil)

	now := epochTicks()
	for _, k := range []int{5, 3, 1, 4, 2} {
		c.Sort(NewMeasurement(uuid.New(), now+frameOffset(30, k), float64(k)))
	}
	require.Contains(t, c.QueueState(), "contains 5 frames")

	mock.Add(time.Second)
	waitPublished(t, c, 5)

	for i, got := range pub.published() {
		require.Equal(t, i+1, got.index)
		require.Equal(t, FromSeconds(float64(i+1)/30)+now, got.frame.Timestamp)
	}
}

func TestDownsampling(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name string
		opts []Option
		want float64
	}{
		{name: "last received by default", want: 2},
		{name: "first received filter", opts: []Option{WithFilter(FirstReceived)}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, pub, mock := newTestConcentrator(t, nil, tt.opts...)

			now := epochTicks()
			c.Sort(NewMeasurement(id, now, 1))
			c.Sort(NewMeasurement(id, now+1, 2))

			mock.Add(time.Second)
			waitPublished(t, c, 1)

			entity, ok := pub.published()[0].frame.Entity(id)
			require.True(t, ok)
			require.Equal(t, tt.want, entity.(*Measurement).Value)
			require.EqualValues(t, 1, c.Statistics().DownsampledEntities)
		})
	}
}

func TestFilterAppliesToEverySignal(t *testing.T) {
	single, multi := uuid.New(), uuid.New()

	var calls atomic.Int32
	restamp := func(frameTimestamp Ticks, entities []Entity) Entity {
		calls.Add(1)
		last := entities[len(entities)-1].(*Measurement)
		return NewMeasurement(last.ID(), frameTimestamp, last.Value*10)
	}

	c, pub, mock := newTestConcentrator(t, nil, WithFilter(restamp))

	now := epochTicks()
	c.Sort(NewMeasurement(single, now+1, 1))
	c.Sort(NewMeasurement(multi, now+1, 2), NewMeasurement(multi, now+2, 3))

	mock.Add(time.Second)
	waitPublished(t, c, 1)

	frame := pub.published()[0].frame
	require.EqualValues(t, 2, calls.Load())

	entity, ok := frame.Entity(single)
	require.True(t, ok)
	require.Equal(t, 10.0, entity.(*Measurement).Value)
	require.Equal(t, frame.Timestamp, entity.Timestamp())

	entity, ok = frame.Entity(multi)
	require.True(t, ok)
	require.Equal(t, 30.0, entity.(*Measurement).Value)
	require.EqualValues(t, 1, c.Statistics().DownsampledEntities)
}

func TestFilterDropsSignal(t *testing.T) {
	kept, dropped := uuid.New(), uuid.New()

	filter := func(_ Ticks, entities []Entity) Entity {
		if entities[0].ID() == dropped {
			return nil
		}
		return entities[0]
	}

	c, pub, mock := newTestConcentrator(t, nil, WithFilter(filter))

	now := epochTicks()
	c.Sort(NewMeasurement(kept, now, 1), NewMeasurement(dropped, now, 2))

	mock.Add(time.Second)
	waitPublished(t, c, 1)

	frame := pub.published()[0].frame
	_, ok := frame.Entity(dropped)
	require.False(t, ok)
	_, ok = frame.Entity(kept)
	require.True(t, ok)

	stats := c.Statistics()
	require.EqualValues(t, 1, stats.PublishedEntities)
	require.EqualValues(t, 1, stats.DownsampledEntities)
}

func TestSortDiscards(t *testing.T) {
	now := epochTicks()

	tests := []struct {
		name          string
		mutate        func(cfg *Config)
		entity        func(id uuid.UUID) *Measurement
		wantDiscarded bool
		wantByArrival int64
	}{
		{
			name:          "too old",
			entity:        func(id uuid.UUID) *Measurement { return NewMeasurement(id, now-TicksPerSecond, 1) },
			wantDiscarded: true,
		},
		{
			name:          "too new",
			entity:        func(id uuid.UUID) *Measurement { return NewMeasurement(id, now+TicksPerSecond, 1) },
			wantDiscarded: true,
		},
		{
			name:   "future accepted without reasonability check",
			mutate: func(cfg *Config) { cfg.PerformTimestampReasonabilityCheck = false },
			entity: func(id uuid.UUID) *Measurement { return NewMeasurement(id, now+TicksPerSecond, 1) },
		},
		{
			name:   "bad timestamp discarded",
			mutate: func(cfg *Config) { cfg.AllowSortsByArrival = false },
			entity: func(id uuid.UUID) *Measurement {
				m := NewMeasurement(id, now, 1)
				m.Flags = BadTime
				return m
			},
			wantDiscarded: true,
		},
		{
			name: "bad timestamp sorted by arrival",
			entity: func(id uuid.UUID) *Measurement {
				m := NewMeasurement(id, now-10*TicksPerSecond, 1)
				m.Flags = BadTime
				return m
			},
			wantByArrival: 1,
		},
		{
			name:   "bad timestamp ignored",
			mutate: func(cfg *Config) { cfg.IgnoreBadTimestamps = true },
			entity: func(id uuid.UUID) *Measurement {
				m := NewMeasurement(id, now, 1)
				m.Flags = BadTime
				return m
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var discarded []Entity
			hooks := &Hooks{
				OnEntitiesDiscarded: func(_ context.Context, entities []Entity) error {
					discarded = append(discarded, entities...)
					return nil
				},
			}

			c, _, _ := newTestConcentrator(t, tt.mutate, WithHooks(hooks))

			entity := tt.entity(uuid.New())
			c.Sort(entity)

			stats := c.Statistics()
			require.EqualValues(t, 1, stats.ReceivedEntities)
			require.Equal(t, tt.wantByArrival, stats.SortsByArrival)

			if tt.wantDiscarded {
				// the hook runs synchronously inside Sort
				require.Len(t, discarded, 1)
				require.Same(t, entity, discarded[0])
				require.EqualValues(t, 1, stats.DiscardedEntities)
				require.Zero(t, stats.ProcessedEntities)
				require.Same(t, entity, c.LastDiscardedEntity())
				require.Equal(t, now-entity.Time, c.LastDiscardedLatency())

				return
			}

			require.Empty(t, discarded)
			require.EqualValues(t, 1, stats.ProcessedEntities)
			require.Contains(t, c.QueueState(), "contains 1 frames")
		})
	}
}

func TestLateEntityAfterPublication(t *testing.T) {
	var discarded atomic.Int32
	hooks := &Hooks{
		OnEntitiesDiscarded: func(_ context.Context, entities []Entity) error {
			discarded.Add(int32(len(entities)))
			return nil
		},
	}

	c, pub, _ := newTestConcentrator(t, func(cfg *Config) {
		cfg.ExpectedEntities = 1
	}, WithHooks(hooks))

	now := epochTicks()
	c.Sort(NewMeasurement(uuid.New(), now, 1))
	waitPublished(t, c, 1)

	c.Sort(NewMeasurement(uuid.New(), now, 2))

	stats := c.Statistics()
	require.EqualValues(t, 1, stats.PublishedFrames)
	require.EqualValues(t, 0, stats.MissedSortsByTimeout, "frame already left the queue")
	require.EqualValues(t, 1, stats.DiscardedEntities)
	require.EqualValues(t, 1, discarded.Load())
	require.Contains(t, c.QueueState(), "contains 0 frames")
}

func TestRealTimeEstimation(t *testing.T) {
	now := epochTicks()

	t.Run("local clock", func(t *testing.T) {
		c, _, mock := newTestConcentrator(t, nil)

		require.Equal(t, now, c.RealTime())
		mock.Add(3 * time.Second)
		require.Equal(t, now+3*TicksPerSecond, c.RealTime())
		require.InDelta(t, 2.0, c.SecondsFromRealTime(now+TicksPerSecond), 1e-9)
	})

	t.Run("newest reasonable timestamp", func(t *testing.T) {
		c, _, mock := newTestConcentrator(t, func(cfg *Config) {
			cfg.UseLocalClockAsRealTime = false
			cfg.LagTime = 10
			cfg.LeadTime = 5
		})

		c.Sort(NewMeasurement(uuid.New(), now+2*TicksPerSecond, 1))
		require.Equal(t, now+2*TicksPerSecond, c.RealTime())

		// beyond the lead time of the estimate
		c.Sort(NewMeasurement(uuid.New(), now+10*TicksPerSecond, 1))
		require.EqualValues(t, 1, c.Statistics().DiscardedEntities)
		require.Equal(t, now+2*TicksPerSecond, c.RealTime())

		// older timestamps never move the estimate back
		c.Sort(NewMeasurement(uuid.New(), now+TicksPerSecond, 1))
		require.Equal(t, now+2*TicksPerSecond, c.RealTime())

		// a stale estimate resets to the local clock
		mock.Add(10 * time.Second)
		require.Equal(t, now+10*TicksPerSecond, c.RealTime())
	})

	t.Run("unchecked timestamps", func(t *testing.T) {
		c, _, _ := newTestConcentrator(t, func(cfg *Config) {
			cfg.UseLocalClockAsRealTime = false
			cfg.PerformTimestampReasonabilityCheck = false
			cfg.LagTime = 10
			cfg.LeadTime = 5
		})

		future := now + 100*TicksPerSecond
		c.Sort(NewMeasurement(uuid.New(), future, 1))
		require.Equal(t, future, c.RealTime())

		c.Sort(NewMeasurement(uuid.New(), future-50*TicksPerSecond, 1))
		require.EqualValues(t, 1, c.Statistics().DiscardedEntities, "older than lag behind the estimate")
		require.Equal(t, future, c.RealTime())
	})
}

func TestProcessByCreationTime(t *testing.T) {
	c, pub, mock := newTestConcentrator(t, func(cfg *Config) {
		cfg.UseLocalClockAsRealTime = false
		cfg.ProcessingInterval = 0
	})

	cfg := c.Config()
	require.True(t, cfg.ProcessByCreationTime)
	require.True(t, cfg.UseLocalClockAsRealTime)
	require.False(t, cfg.AllowSortsByArrival)
	require.False(t, cfg.UsePrecisionTimer)

	// Far outside the window, but age is measured from frame creation.
	old := epochTicks() - Ticks(time.Hour/100)
	c.Sort(NewMeasurement(uuid.New(), old, 1))
	require.EqualValues(t, 1, c.Statistics().ProcessedEntities)
	assert.Never(t, func() bool { return pub.count() > 0 }, 50*time.Millisecond, tick)

	mock.Add(250 * time.Millisecond)
	waitPublished(t, c, 1)
	require.Equal(t, old, pub.published()[0].frame.Timestamp)
}

func TestPublisherFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(pub *recordingPublisher)
		wantErr error
	}{
		{name: "error", setup: func(pub *recordingPublisher) { pub.err = errors.New("boom") }},
		{name: "panic", setup: func(pub *recordingPublisher) { pub.panicWith = "boom" }, wantErr: ErrPublishPanic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reported := make(chan error, 4)
			hooks := &Hooks{
				OnProcessException: func(_ context.Context, err error) error {
					reported <- err
					return nil
				},
			}

			c, pub, mock := newTestConcentrator(t, nil, WithHooks(hooks))
			tt.setup(pub)

			now := epochTicks()
			c.Sort(NewMeasurement(uuid.New(), now, 1))
			c.Sort(NewMeasurement(uuid.New(), now+frameOffset(30, 1), 1))
			mock.Add(time.Second)

			// both frames are attempted and popped despite the failure
			waitPublished(t, c, 2)

			select {
			case err := <-reported:
				require.ErrorContains(t, err, "boom")
				if tt.wantErr != nil {
					require.ErrorIs(t, err, tt.wantErr)
				}
			case <-time.After(waitFor):
				t.Fatal("process exception not reported")
			}

			require.EqualValues(t, 2, c.Statistics().PublishErrors)
			require.Contains(t, c.QueueState(), "contains 0 frames")
		})
	}
}

func TestRuntimeSetters(t *testing.T) {
	c, _, _ := newTestConcentrator(t, nil)

	require.ErrorIs(t, c.SetFramesPerSecond(0), ErrInvalidFramesPerSecond)
	require.ErrorIs(t, c.SetLagTime(-1), ErrInvalidLagTime)
	require.ErrorIs(t, c.SetLeadTime(0), ErrInvalidLeadTime)
	require.ErrorIs(t, c.SetExpectedEntities(-1), ErrInvalidConfig)
	require.ErrorIs(t, c.SetFilter(nil), ErrNilFilter)

	// failed setters leave the configuration untouched
	cfg := c.Config()
	require.Equal(t, 30, cfg.FramesPerSecond)
	require.Equal(t, 0.2, cfg.LagTime)
	require.Equal(t, 0.5, cfg.LeadTime)

	require.NoError(t, c.SetFramesPerSecond(60))
	require.NoError(t, c.SetLagTime(1.5))
	require.NoError(t, c.SetTimeResolution(2*time.Second))
	require.NoError(t, c.SetExpectedEntities(4))
	cfg = c.Config()
	require.Equal(t, 60, cfg.FramesPerSecond)
	require.Equal(t, 1.5, cfg.LagTime)
	require.Equal(t, time.Second, cfg.TimeResolution, "clamped")
	require.Equal(t, 4, cfg.ExpectedEntities)

	t.Run("processing interval coupling", func(t *testing.T) {
		require.NoError(t, c.SetProcessingInterval(0))
		cfg := c.Config()
		require.False(t, cfg.UsePrecisionTimer)
		require.True(t, cfg.ProcessByCreationTime)
		require.True(t, cfg.UseLocalClockAsRealTime)
		require.False(t, cfg.AllowSortsByArrival)
		require.ErrorIs(t, c.SetUsePrecisionTimer(true), ErrPrecisionTimerUnavailable)

		require.NoError(t, c.SetProcessingInterval(100))
		require.True(t, c.Config().UsePrecisionTimer)
		require.ErrorIs(t, c.SetUsePrecisionTimer(false), ErrPrecisionTimerRequired)
		require.ErrorIs(t, c.SetProcessByCreationTime(false), ErrCreationTimeRequired)

		require.NoError(t, c.SetProcessingInterval(-1))
		require.NoError(t, c.SetProcessByCreationTime(false))
		require.NoError(t, c.SetUsePrecisionTimer(false))
		require.False(t, c.Config().ProcessByCreationTime)
		require.False(t, c.Config().UsePrecisionTimer)
	})

	t.Run("creation time forces local clock", func(t *testing.T) {
		require.NoError(t, c.SetUseLocalClockAsRealTime(false))
		require.NoError(t, c.SetAllowSortsByArrival(true))
		require.NoError(t, c.SetProcessByCreationTime(true))

		cfg := c.Config()
		require.True(t, cfg.UseLocalClockAsRealTime)
		require.False(t, cfg.AllowSortsByArrival)

		require.NoError(t, c.SetAllowSortsByArrival(true))
		require.False(t, c.Config().AllowSortsByArrival)
	})
}

func TestSharedTimerRegistry(t *testing.T) {
	reg := timer.NewRegistry()
	defer reg.Close()

	cfg := TestConfig()
	pub := &recordingPublisher{}

	a, err := NewConcentrator(&cfg, pub, WithTimerRegistry(reg))
	require.NoError(t, err)
	defer a.Close()

	cfgB := TestConfig()
	b, err := NewConcentrator(&cfgB, pub, WithTimerRegistry(reg))
	require.NoError(t, err)

	require.Equal(t, 1, reg.Len())
	require.Equal(t, 2, reg.References(30, -1))

	require.NoError(t, a.SetFramesPerSecond(60))
	require.Equal(t, 1, reg.References(30, -1))
	require.Equal(t, 1, reg.References(60, -1))

	require.NoError(t, a.SetUsePrecisionTimer(false))
	require.Zero(t, reg.References(60, -1))

	require.NoError(t, b.Close())
	require.Zero(t, reg.Len())

	require.NoError(t, a.SetUsePrecisionTimer(true))
	require.Equal(t, 1, reg.References(60, -1))
}

func TestTrackLatestEntities(t *testing.T) {
	c, _, _ := newTestConcentrator(t, func(cfg *Config) {
		cfg.TrackLatestEntities = true
	})

	id := uuid.New()
	now := epochTicks()
	c.Sort(NewMeasurement(id, now, 1), NewMeasurement(id, now+frameOffset(30, 1), 2))

	latest := c.LatestEntities()
	require.Len(t, latest, 1)
	require.Equal(t, 2.0, latest[id].(*Measurement).Value)

	require.NoError(t, c.SetTrackLatestEntities(false))
	require.Empty(t, c.LatestEntities())
}

func TestMonitorReportsUnpublishedSeconds(t *testing.T) {
	var reported atomic.Int64
	reported.Store(-1)

	hooks := &Hooks{
		OnUnpublishedSamples: func(_ context.Context, seconds int) error {
			reported.Store(int64(seconds))
			return nil
		},
	}

	c, _, mock := newTestConcentrator(t, func(cfg *Config) {
		cfg.LagTime = 10
		cfg.LeadTime = 5
	}, WithHooks(hooks))

	now := epochTicks()
	batch := make([]Entity, 0, 60)
	for k := range 60 {
		batch = append(batch, NewMeasurement(uuid.New(), now+frameOffset(30, k), 1))
	}
	c.Sort(batch...)
	require.Contains(t, c.QueueState(), "contains 60 frames")

	mock.Add(100 * time.Millisecond)
	require.Eventually(t, func() bool { return reported.Load() == 1 }, waitFor, tick)
}

func TestConcurrentSort(t *testing.T) {
	const producers = 16

	c, pub, _ := newTestConcentrator(t, func(cfg *Config) {
		cfg.ExpectedEntities = producers
	})

	now := epochTicks()
	var wg sync.WaitGroup
	for range producers {
		wg.Go(func() {
			c.Sort(NewMeasurement(uuid.New(), now, 1))
		})
	}
	wg.Wait()

	waitPublished(t, c, 1)
	require.Equal(t, producers, pub.published()[0].frame.Count())
	require.EqualValues(t, producers, c.Statistics().ProcessedEntities)
}

func TestStatistics(t *testing.T) {
	c, _, mock := newTestConcentrator(t, func(cfg *Config) {
		cfg.ExpectedEntities = 3
	})

	c.Sort(NewMeasurement(uuid.New(), epochTicks(), 1))

	mock.Add(5 * time.Second)
	require.Equal(t, 5*time.Second, c.RunTime())

	stats := c.Statistics()
	require.Equal(t, testEpoch, stats.StartTime.UTC())
	require.True(t, stats.StopTime.IsZero())

	require.NoError(t, c.Stop())
	mock.Add(5 * time.Second)
	require.Equal(t, 5*time.Second, c.RunTime())

	require.NoError(t, c.Start())
	require.Zero(t, c.Statistics().ReceivedEntities, "Start resets counters")
}

func TestStatusAndQueueState(t *testing.T) {
	c, _, _ := newTestConcentrator(t, func(cfg *Config) {
		cfg.ExpectedEntities = 4
	})

	c.Sort(NewMeasurement(uuid.New(), epochTicks(), 1))

	state := c.QueueState()
	require.Contains(t, state, "contains 1 frames")
	require.Contains(t, state, "1 of 4 (25.00%)")

	status := c.Status()
	for _, label := range []string{"Frames per second", "Received entities", "Published frames", "Real-time estimate"} {
		require.Contains(t, status, label)
	}
	require.Contains(t, status, fmt.Sprintf("%32s: %v", "Data concentration state", StateStarted))
}

type customFramePublisher struct {
	recordingPublisher
	created  atomic.Int32
	assigned atomic.Int32
}

func (p *customFramePublisher) CreateFrame(timestamp Ticks) *Frame {
	p.created.Add(1)
	return NewFrame(timestamp)
}

func (p *customFramePublisher) AssignEntity(frame *Frame, entity Entity) {
	p.assigned.Add(1)
	frame.Entities[entity.ID()] = entity
}

func TestPublisherCapabilities(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(testEpoch)

	cfg := TestConfig()
	cfg.UseLocalClockAsRealTime = true
	cfg.ExpectedEntities = 2

	pub := &customFramePublisher{}
	c, err := NewConcentrator(&cfg, pub, WithClock(mock))
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Start())

	c.Sort(NewMeasurement(uuid.New(), epochTicks(), 1), NewMeasurement(uuid.New(), epochTicks(), 2))
	waitPublished(t, c, 1)

	require.EqualValues(t, 1, pub.created.Load())
	require.EqualValues(t, 2, pub.assigned.Load())
	require.Equal(t, epochTicks(), pub.published()[0].frame.ReceivedAt)
}
