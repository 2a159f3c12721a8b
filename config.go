package concentrator

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/GridProtectionAlliance/gsf-sub046/types"
)

// ============================================================================
// Sorting Window Model
// ============================================================================
//
// Every entity is sorted into the frame whose timestamp is nearest to its own,
// provided the entity falls inside the window around the real-time estimate:
//
//	            leadTime                 lagTime
//	   too new  |<-------|-------------------------->| too old
//	            now+lead  now (real time)             now-lag
//
// A frame is published once it is lagTime old (measured against its own
// timestamp, or against its creation time when ProcessByCreationTime is set),
// or earlier when AllowPreemptivePublishing is on and it already holds
// ExpectedEntities distinct signals.
//
// ProcessingInterval selects the publication cadence:
//   - -1: tick at FramesPerSecond with millisecond periods spread evenly
//   - 0: publish as fast as possible (no precision timer, creation-time mode)
//   - >0: tick every ProcessingInterval milliseconds (creation-time mode)
//
// ============================================================================

// Config is the configuration for a Concentrator.
//
// Boolean options default to true in several places, so start from
// DefaultConfig() rather than a zero Config. A zero ProcessingInterval means
// "as fast as possible", not "derive from the frame rate".
type Config struct {
	// FramesPerSecond is the number of frames produced per second of wall time.
	FramesPerSecond int `yaml:"framesPerSecond"`

	// LagTime is how far in the past (seconds) a timestamp may be before it is
	// too late to sort. Fractional values are allowed.
	LagTime float64 `yaml:"lagTime"`

	// LeadTime is how far in the future (seconds) a timestamp may be before it
	// is considered clock-skewed. Fractional values are allowed.
	LeadTime float64 `yaml:"leadTime"`

	// TimeResolution truncates frame timestamps (0 keeps full tick resolution).
	// Values outside [0, 1s] are clamped.
	TimeResolution time.Duration `yaml:"timeResolution"`

	// ProcessingInterval in milliseconds: -1 derive from the frame rate,
	// 0 as fast as possible, >0 fixed period.
	ProcessingInterval int `yaml:"processingInterval"`

	// ExpectedEntities is the number of distinct signals a complete frame holds.
	// Zero disables preemptive publishing.
	ExpectedEntities int `yaml:"expectedEntities"`

	// AllowPreemptivePublishing publishes a frame as soon as it holds
	// ExpectedEntities signals instead of waiting for LagTime.
	AllowPreemptivePublishing bool `yaml:"allowPreemptivePublishing"`

	// IgnoreBadTimestamps sorts entities by their own timestamp even when its
	// quality is flagged bad.
	IgnoreBadTimestamps bool `yaml:"ignoreBadTimestamps"`

	// AllowSortsByArrival sorts entities with bad timestamp quality by the
	// real-time estimate instead of discarding them.
	AllowSortsByArrival bool `yaml:"allowSortsByArrival"`

	// UseLocalClockAsRealTime uses the local clock as real time instead of the
	// newest validated entity timestamp.
	UseLocalClockAsRealTime bool `yaml:"useLocalClockAsRealTime"`

	// PerformTimestampReasonabilityCheck rejects timestamps more than LeadTime
	// away from the local clock when estimating real time and sorting.
	PerformTimestampReasonabilityCheck bool `yaml:"performTimestampReasonabilityCheck"`

	// ProcessByCreationTime measures frame age from frame creation instead of
	// the frame timestamp. Forces UseLocalClockAsRealTime and disables
	// AllowSortsByArrival.
	ProcessByCreationTime bool `yaml:"processByCreationTime"`

	// UsePrecisionTimer drives publication from the shared frame-rate timer.
	// Without it the publication loop polls every millisecond.
	UsePrecisionTimer bool `yaml:"usePrecisionTimer"`

	// TrackLatestEntities keeps the newest entity per signal for LatestEntities.
	TrackLatestEntities bool `yaml:"trackLatestEntities"`

	// MaximumPublicationTimeout bounds each wait for a timer signal.
	// Default: 0 (auto-calculated as 1.2x the frame period)
	MaximumPublicationTimeout time.Duration `yaml:"maximumPublicationTimeout"`

	// MonitorInterval is how often unpublished samples are reported.
	// Default: 5 seconds
	MonitorInterval time.Duration `yaml:"monitorInterval"`
}

// DefaultConfig returns a Config with the classic concentrator defaults.
//
// Returns:
//   - Config: 30 frames per second, 10s lag, 5s lead, precision timer on
func DefaultConfig() Config {
	return Config{
		FramesPerSecond:                    30,
		LagTime:                            10,
		LeadTime:                           5,
		ProcessingInterval:                 -1,
		AllowPreemptivePublishing:          true,
		AllowSortsByArrival:                true,
		PerformTimestampReasonabilityCheck: true,
		UsePrecisionTimer:                  true,
		MonitorInterval:                    5 * time.Second,
	}
}

// SetDefaults fills in missing numeric configuration values with defaults.
//
// Boolean options and ProcessingInterval cannot be told apart from their
// zero values and are left untouched.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.FramesPerSecond == 0 {
		cfg.FramesPerSecond = defaults.FramesPerSecond
	}
	if cfg.LagTime == 0 {
		cfg.LagTime = defaults.LagTime
	}
	if cfg.LeadTime == 0 {
		cfg.LeadTime = defaults.LeadTime
	}
	if cfg.MonitorInterval == 0 {
		cfg.MonitorInterval = defaults.MonitorInterval
	}
	// Note: MaximumPublicationTimeout of 0 means "derive from the frame rate"
}

// Validate checks configuration constraints and returns an error for invalid values.
//
// Hard Validation Rules:
//   - FramesPerSecond >= 1
//   - LagTime > 0 and LeadTime > 0 (fractions allowed)
//   - MaximumPublicationTimeout >= 0
//   - MonitorInterval > 0
//
// Out-of-range TimeResolution and conflicting timer options are corrected
// rather than rejected; ValidateWithWarnings reports them.
//
// Returns:
//   - error: Validation error wrapping the matching sentinel, nil if valid
func (cfg *Config) Validate() error {
	if cfg.FramesPerSecond < 1 {
		return fmt.Errorf("%w: got %d", types.ErrInvalidFramesPerSecond, cfg.FramesPerSecond)
	}

	if cfg.LagTime <= 0 {
		return fmt.Errorf("%w: got %v", types.ErrInvalidLagTime, cfg.LagTime)
	}

	if cfg.LeadTime <= 0 {
		return fmt.Errorf("%w: got %v", types.ErrInvalidLeadTime, cfg.LeadTime)
	}

	if cfg.MaximumPublicationTimeout < 0 {
		return fmt.Errorf("MaximumPublicationTimeout must be >= 0, got %v", cfg.MaximumPublicationTimeout)
	}

	if cfg.MonitorInterval <= 0 {
		return fmt.Errorf("MonitorInterval must be > 0, got %v", cfg.MonitorInterval)
	}

	return nil
}

// ValidateWithWarnings logs warnings for values that are accepted but
// corrected or unlikely to behave as intended.
//
// This is called after Validate() in NewConcentrator() to provide operator guidance.
//
// Parameters:
//   - logger: Logger instance for warning output
func (cfg *Config) ValidateWithWarnings(logger Logger) {
	if cfg.TimeResolution < 0 || cfg.TimeResolution > time.Second {
		logger.Warn(
			"TimeResolution out of range, clamping",
			"timeResolution", cfg.TimeResolution,
			"range", "0s..1s",
		)
	}

	if cfg.ProcessingInterval > 0 && !cfg.UsePrecisionTimer {
		logger.Warn(
			"positive ProcessingInterval requires the precision timer, enabling it",
			"processingInterval", cfg.ProcessingInterval,
		)
	}

	if cfg.ProcessingInterval == 0 && cfg.UsePrecisionTimer {
		logger.Warn("ProcessingInterval of zero publishes as fast as possible, precision timer disabled")
	}

	if cfg.ProcessingInterval > -1 && !cfg.ProcessByCreationTime {
		logger.Warn(
			"ProcessingInterval forces processing by creation time",
			"processingInterval", cfg.ProcessingInterval,
		)
	}

	if cfg.AllowPreemptivePublishing && cfg.ExpectedEntities == 0 {
		logger.Debug("preemptive publishing has no effect without ExpectedEntities")
	}

	if cfg.LagTime < 1/float64(max(cfg.FramesPerSecond, 1)) {
		logger.Warn(
			"LagTime is shorter than one frame period, frames may publish before they fill",
			"lagTime", cfg.LagTime,
			"framesPerSecond", cfg.FramesPerSecond,
		)
	}
}

// TestConfig returns a configuration optimized for fast test execution.
//
// Short lag and lead windows let frames publish within a fraction of a second.
// Use DefaultConfig() for production deployments.
//
// Returns:
//   - Config: Configuration with fast timings for tests
//
// Example:
//
//	cfg := concentrator.TestConfig()
//	cfg.ExpectedEntities = 2
//	c, err := concentrator.NewConcentrator(&cfg, publisher)
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.FramesPerSecond = 30
	cfg.LagTime = 0.2
	cfg.LeadTime = 0.5
	cfg.MonitorInterval = 100 * time.Millisecond

	return cfg
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig().
//
// Fields missing from the file keep their default values.
//
// Parameters:
//   - path: Path to the YAML file
//
// Returns:
//   - Config: Loaded configuration (not yet validated)
//   - error: Read or parse error
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}
