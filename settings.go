package concentrator

import (
	"fmt"
	"math"
	"time"

	"github.com/GridProtectionAlliance/gsf-sub046/types"
)

// settings is an immutable snapshot of the runtime configuration.
//
// Sort and the publication loop load the current snapshot once per batch or
// frame; setters clone, modify, validate and swap it atomically.
type settings struct {
	framesPerSecond int
	ticksPerFrame   float64

	lagTime  float64
	lagTicks types.Ticks
	leadTime float64

	timeResolution types.Ticks
	timeOffset     float64

	processingInterval    int
	usePrecisionTimer     bool
	publicationTimeout    time.Duration
	maxPublicationTimeout time.Duration // configured override, 0 when derived

	expectedEntities                   int
	allowPreemptivePublishing          bool
	ignoreBadTimestamps                bool
	allowSortsByArrival                bool
	useLocalClockAsRealTime            bool
	performTimestampReasonabilityCheck bool
	processByCreationTime              bool
	trackLatestEntities                bool

	filter types.FilterFunc
}

// newSettings builds a snapshot from a validated config, applying the same
// coupling rules as the runtime setters.
func newSettings(cfg *Config, filter types.FilterFunc) (*settings, error) {
	s := &settings{
		usePrecisionTimer:                  cfg.UsePrecisionTimer,
		processingInterval:                 -1,
		maxPublicationTimeout:              cfg.MaximumPublicationTimeout,
		expectedEntities:                   cfg.ExpectedEntities,
		allowPreemptivePublishing:          cfg.AllowPreemptivePublishing,
		ignoreBadTimestamps:                cfg.IgnoreBadTimestamps,
		performTimestampReasonabilityCheck: cfg.PerformTimestampReasonabilityCheck,
		trackLatestEntities:                cfg.TrackLatestEntities,
	}
	s.setFilter(filter)

	if err := s.setFramesPerSecond(cfg.FramesPerSecond); err != nil {
		return nil, err
	}
	if err := s.setLagTime(cfg.LagTime); err != nil {
		return nil, err
	}
	if err := s.setLeadTime(cfg.LeadTime); err != nil {
		return nil, err
	}
	s.setTimeResolution(types.FromDuration(cfg.TimeResolution))

	s.setAllowSortsByArrival(cfg.AllowSortsByArrival)
	s.setUseLocalClockAsRealTime(cfg.UseLocalClockAsRealTime)
	s.setProcessingInterval(cfg.ProcessingInterval)
	if cfg.ProcessByCreationTime {
		_ = s.setProcessByCreationTime(true)
	}

	return s, nil
}

func (s *settings) clone() *settings {
	c := *s
	return &c
}

func (s *settings) setFramesPerSecond(fps int) error {
	if fps < 1 {
		return fmt.Errorf("%w: got %d", types.ErrInvalidFramesPerSecond, fps)
	}

	s.framesPerSecond = fps
	s.ticksPerFrame = float64(types.TicksPerSecond) / float64(fps)
	s.updatePublicationTimeout()

	return nil
}

func (s *settings) updatePublicationTimeout() {
	if s.maxPublicationTimeout > 0 {
		s.publicationTimeout = s.maxPublicationTimeout
		return
	}

	period := s.ticksPerFrame
	if s.processingInterval > 0 {
		period = float64(s.processingInterval) * float64(types.TicksPerMillisecond)
	}

	ms := math.Round(1.2 * period / float64(types.TicksPerMillisecond))
	s.publicationTimeout = time.Duration(max(ms, 1)) * time.Millisecond
}

func (s *settings) setLagTime(seconds float64) error {
	if seconds <= 0 {
		return fmt.Errorf("%w: got %v", types.ErrInvalidLagTime, seconds)
	}

	s.lagTime = seconds
	s.lagTicks = types.FromSeconds(seconds)

	return nil
}

func (s *settings) setLeadTime(seconds float64) error {
	if seconds <= 0 {
		return fmt.Errorf("%w: got %v", types.ErrInvalidLeadTime, seconds)
	}

	s.leadTime = seconds

	return nil
}

func (s *settings) setTimeResolution(resolution types.Ticks) {
	s.timeResolution = min(max(resolution, 0), types.TicksPerSecond)

	// Half a resolution step keeps the frame index calculation from
	// truncating a bucket into the previous frame.
	if s.timeResolution > 1 {
		s.timeOffset = float64(s.timeResolution / 2)
	} else {
		s.timeOffset = 1
	}
}

func (s *settings) setProcessingInterval(interval int) {
	interval = max(interval, -1)
	if interval == s.processingInterval {
		return
	}

	s.processingInterval = interval

	// Cannot fail: enabling creation-time processing is always allowed and
	// disabling it is only refused while an interval is defined.
	_ = s.setProcessByCreationTime(s.processingInterval > -1)

	switch {
	case s.processingInterval == 0:
		s.usePrecisionTimer = false
	case s.processingInterval > 0:
		s.usePrecisionTimer = true
	}

	if s.ticksPerFrame > 0 {
		s.updatePublicationTimeout()
	}
}

func (s *settings) setUsePrecisionTimer(enabled bool) error {
	if !enabled && s.processingInterval > 0 {
		return types.ErrPrecisionTimerRequired
	}
	if enabled && s.processingInterval == 0 {
		return types.ErrPrecisionTimerUnavailable
	}

	s.usePrecisionTimer = enabled

	return nil
}

func (s *settings) setProcessByCreationTime(enabled bool) error {
	if !enabled && s.processingInterval > -1 {
		return types.ErrCreationTimeRequired
	}

	s.processByCreationTime = enabled
	if enabled {
		s.useLocalClockAsRealTime = true
		s.allowSortsByArrival = false
	}

	return nil
}

func (s *settings) setAllowSortsByArrival(enabled bool) {
	s.allowSortsByArrival = enabled && !s.processByCreationTime
}

func (s *settings) setUseLocalClockAsRealTime(enabled bool) {
	s.useLocalClockAsRealTime = enabled || s.processByCreationTime
}

func (s *settings) setFilter(filter types.FilterFunc) {
	if filter == nil {
		filter = types.LastReceived
	}
	s.filter = filter
}

// frameIndex returns the zero-based index of a frame timestamp within its second.
func (s *settings) frameIndex(timestamp types.Ticks) int {
	return int((float64(timestamp.DistanceBeyondSecond()) + s.timeOffset) / s.ticksPerFrame)
}
