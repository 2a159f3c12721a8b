package concentrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/GridProtectionAlliance/gsf-sub046/types"
)

func mustSettings(t *testing.T, mutate func(cfg *Config)) *settings {
	t.Helper()

	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	s, err := newSettings(&cfg, nil)
	require.NoError(t, err)

	return s
}

func TestSettingsPublicationTimeout(t *testing.T) {
	t.Run("derived from frame period", func(t *testing.T) {
		s := mustSettings(t, nil)
		require.Equal(t, 40*time.Millisecond, s.publicationTimeout) // 1.2 * 33.3ms

		require.NoError(t, s.setFramesPerSecond(10))
		require.Equal(t, 120*time.Millisecond, s.publicationTimeout)
	})

	t.Run("at least one millisecond", func(t *testing.T) {
		s := mustSettings(t, func(cfg *Config) { cfg.FramesPerSecond = 5000 })
		require.Equal(t, time.Millisecond, s.publicationTimeout)
	})

	t.Run("derived from explicit interval", func(t *testing.T) {
		s := mustSettings(t, func(cfg *Config) { cfg.ProcessingInterval = 100 })
		require.Equal(t, 120*time.Millisecond, s.publicationTimeout)
	})

	t.Run("configured override wins", func(t *testing.T) {
		s := mustSettings(t, func(cfg *Config) { cfg.MaximumPublicationTimeout = 250 * time.Millisecond })
		require.Equal(t, 250*time.Millisecond, s.publicationTimeout)

		require.NoError(t, s.setFramesPerSecond(120))
		require.Equal(t, 250*time.Millisecond, s.publicationTimeout)
	})
}

func TestSettingsProcessingIntervalCoupling(t *testing.T) {
	t.Run("zero disables precision timer and forces creation time", func(t *testing.T) {
		s := mustSettings(t, nil)
		s.setProcessingInterval(0)

		require.False(t, s.usePrecisionTimer)
		require.True(t, s.processByCreationTime)
		require.True(t, s.useLocalClockAsRealTime)
		require.False(t, s.allowSortsByArrival)
		require.ErrorIs(t, s.setUsePrecisionTimer(true), types.ErrPrecisionTimerUnavailable)
	})

	t.Run("positive forces precision timer", func(t *testing.T) {
		s := mustSettings(t, func(cfg *Config) { cfg.UsePrecisionTimer = false })
		s.setProcessingInterval(50)

		require.True(t, s.usePrecisionTimer)
		require.True(t, s.processByCreationTime)
		require.ErrorIs(t, s.setUsePrecisionTimer(false), types.ErrPrecisionTimerRequired)
		require.ErrorIs(t, s.setProcessByCreationTime(false), types.ErrCreationTimeRequired)
	})

	t.Run("below minus one is normalized", func(t *testing.T) {
		s := mustSettings(t, nil)
		s.setProcessingInterval(-20)

		require.Equal(t, -1, s.processingInterval)
		require.False(t, s.processByCreationTime)
	})

	t.Run("unchanged interval keeps explicit creation time", func(t *testing.T) {
		s := mustSettings(t, nil)
		require.NoError(t, s.setProcessByCreationTime(true))

		s.setProcessingInterval(-1)
		require.True(t, s.processByCreationTime)

		s.setProcessingInterval(-5)
		require.True(t, s.processByCreationTime)
	})

	t.Run("leaving an interval clears creation time", func(t *testing.T) {
		s := mustSettings(t, nil)
		s.setProcessingInterval(50)
		require.True(t, s.processByCreationTime)

		s.setProcessingInterval(-1)
		require.False(t, s.processByCreationTime)
	})

	t.Run("configured creation time survives derived interval", func(t *testing.T) {
		s := mustSettings(t, func(cfg *Config) { cfg.ProcessByCreationTime = true })

		require.Equal(t, -1, s.processingInterval)
		require.True(t, s.processByCreationTime)
		require.NoError(t, s.setProcessByCreationTime(false))
		require.False(t, s.processByCreationTime)
	})
}

func TestSettingsCreationTimeCoupling(t *testing.T) {
	s := mustSettings(t, nil)
	require.True(t, s.allowSortsByArrival)
	require.False(t, s.useLocalClockAsRealTime)

	require.NoError(t, s.setProcessByCreationTime(true))
	require.True(t, s.useLocalClockAsRealTime)
	require.False(t, s.allowSortsByArrival)

	// Dependent flags cannot be flipped back while creation time is on.
	s.setAllowSortsByArrival(true)
	s.setUseLocalClockAsRealTime(false)
	require.False(t, s.allowSortsByArrival)
	require.True(t, s.useLocalClockAsRealTime)

	require.NoError(t, s.setProcessByCreationTime(false))
	s.setAllowSortsByArrival(true)
	s.setUseLocalClockAsRealTime(false)
	require.True(t, s.allowSortsByArrival)
	require.False(t, s.useLocalClockAsRealTime)
}

func TestSettingsTimeResolution(t *testing.T) {
	s := mustSettings(t, nil)

	s.setTimeResolution(-5)
	require.Zero(t, s.timeResolution)
	require.Equal(t, 1.0, s.timeOffset)

	s.setTimeResolution(2 * types.TicksPerSecond)
	require.Equal(t, types.TicksPerSecond, s.timeResolution)

	s.setTimeResolution(types.TicksPerMillisecond)
	require.Equal(t, float64(types.TicksPerMillisecond/2), s.timeOffset)
}

func TestSettingsFrameIndex(t *testing.T) {
	base := types.FromTime(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	s := mustSettings(t, nil) // 30 fps
	for i := range 30 {
		ts := base + types.Ticks(float64(i)*s.ticksPerFrame+0.5)
		require.Equal(t, i, s.frameIndex(ts), "frame %d", i)
	}

	require.NoError(t, s.setFramesPerSecond(10))
	s.setTimeResolution(types.TicksPerMillisecond)
	for i := range 10 {
		require.Equal(t, i, s.frameIndex(base+types.Ticks(i)*100*types.TicksPerMillisecond), "frame %d", i)
	}
}

func TestSettingsCloneIsIndependent(t *testing.T) {
	s := mustSettings(t, nil)
	c := s.clone()

	require.NoError(t, c.setLagTime(1))
	c.setFilter(types.FirstReceived)

	require.Equal(t, 10.0, s.lagTime)
	require.Equal(t, 1.0, c.lagTime)
	require.Equal(t, types.FromSeconds(1), c.lagTicks)
}
