package concentrator

import (
	"github.com/benbjohnson/clock"

	"github.com/GridProtectionAlliance/gsf-sub046/timer"
)

// Option configures a Concentrator with optional dependencies.
type Option func(*concentratorOptions)

// concentratorOptions holds optional Concentrator configuration.
type concentratorOptions struct {
	hooks    *Hooks
	metrics  MetricsCollector
	logger   Logger
	filter   FilterFunc
	registry *timer.Registry
	clock    clock.Clock
	factory  FrameFactory
}

// WithHooks sets notification hooks.
//
// Parameters:
//   - hooks: Hooks structure with callback functions (nil callbacks are skipped)
//
// Returns:
//   - Option: Functional option for NewConcentrator
//
// Example:
//
//	hooks := &concentrator.Hooks{
//	    OnEntitiesDiscarded: func(ctx context.Context, discarded []concentrator.Entity) error {
//	        lateCounter.Add(float64(len(discarded)))
//	        return nil
//	    },
//	}
//	c, _ := concentrator.NewConcentrator(&cfg, pub, concentrator.WithHooks(hooks))
func WithHooks(hooks *Hooks) Option {
	return func(o *concentratorOptions) {
		o.hooks = hooks
	}
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for NewConcentrator
//
// Example:
//
//	m := concentrator.NewPrometheusMetrics(prometheus.DefaultRegisterer, "pmu")
//	c, _ := concentrator.NewConcentrator(&cfg, pub, concentrator.WithMetrics(m))
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *concentratorOptions) {
		o.metrics = metrics
	}
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (compatible with zap.SugaredLogger)
//
// Returns:
//   - Option: Functional option for NewConcentrator
//
// Example:
//
//	logger := zap.NewExample().Sugar()
//	c, _ := concentrator.NewConcentrator(&cfg, pub, concentrator.WithLogger(logger))
func WithLogger(logger Logger) Option {
	return func(o *concentratorOptions) {
		o.logger = logger
	}
}

// WithFilter sets the down-sampling filter. Defaults to LastReceived.
func WithFilter(filter FilterFunc) Option {
	return func(o *concentratorOptions) {
		o.filter = filter
	}
}

// WithTimerRegistry shares a frame-rate timer registry between concentrators.
//
// Concentrators with the same frame rate and processing interval then share a
// single timer goroutine. The registry is owned by the caller and is not
// closed by Concentrator.Close. Without this option every concentrator owns a
// private registry.
//
// Example:
//
//	reg := timer.NewRegistry()
//	defer reg.Close()
//
//	a, _ := concentrator.NewConcentrator(&cfgA, pubA, concentrator.WithTimerRegistry(reg))
//	b, _ := concentrator.NewConcentrator(&cfgB, pubB, concentrator.WithTimerRegistry(reg))
func WithTimerRegistry(registry *timer.Registry) Option {
	return func(o *concentratorOptions) {
		o.registry = registry
	}
}

// WithClock sets the time source for real-time estimation, frame creation
// times and statistics. Defaults to the wall clock.
//
// Publication waits always use wall time; a mock clock only changes what the
// concentrator believes "now" is.
func WithClock(clk clock.Clock) Option {
	return func(o *concentratorOptions) {
		o.clock = clk
	}
}

// WithFrameFactory overrides frame creation. A Publisher that implements
// FrameFactory is used automatically; this option takes precedence.
func WithFrameFactory(factory FrameFactory) Option {
	return func(o *concentratorOptions) {
		o.factory = factory
	}
}
