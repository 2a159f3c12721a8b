package concentrator

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/GridProtectionAlliance/gsf-sub046/internal/logging"
	"github.com/GridProtectionAlliance/gsf-sub046/internal/metrics"
	"github.com/GridProtectionAlliance/gsf-sub046/types"
)

// Re-export types from the types package.
//
// This file provides the public API for the library's core types using type
// aliases, so internal packages depend on `types` without importing the root
// package, while users still write `concentrator.Entity`, `concentrator.Frame`.
type (
	Ticks       = types.Ticks
	Entity      = types.Entity
	Measurement = types.Measurement
	StateFlags  = types.StateFlags
	Frame       = types.Frame
	FilterFunc  = types.FilterFunc
	State       = types.State
)

// Re-export interfaces from the types package for convenience.
type (
	Publisher        = types.Publisher
	PublisherFunc    = types.PublisherFunc
	FrameFactory     = types.FrameFactory
	EntityAssigner   = types.EntityAssigner
	MetricsCollector = types.MetricsCollector
	Logger           = types.Logger
	Hooks            = types.Hooks
)

// Re-export constants from the types package.
const (
	TicksPerSecond      = types.TicksPerSecond
	TicksPerMillisecond = types.TicksPerMillisecond

	Normal          = types.Normal
	BadData         = types.BadData
	SuspectData     = types.SuspectData
	BadTime         = types.BadTime
	SuspectTime     = types.SuspectTime
	LateTimeAlarm   = types.LateTimeAlarm
	FutureTimeAlarm = types.FutureTimeAlarm
	DiscardedValue  = types.DiscardedValue

	StateStopped  = types.StateStopped
	StateStarted  = types.StateStarted
	StateDisposed = types.StateDisposed
)

// Re-export down-sampling filters.
var (
	LastReceived       FilterFunc = types.LastReceived
	FirstReceived      FilterFunc = types.FirstReceived
	ClosestToTimestamp FilterFunc = types.ClosestToTimestamp
	BestQuality        FilterFunc = types.BestQuality
)

// NewMeasurement creates a measurement with normal quality flags.
func NewMeasurement(id uuid.UUID, timestamp Ticks, value float64) *Measurement {
	return types.NewMeasurement(id, timestamp, value)
}

// NewFrame creates an empty frame for a bucket timestamp.
func NewFrame(timestamp Ticks) *Frame {
	return types.NewFrame(timestamp)
}

// FromTime converts a time.Time into Ticks.
func FromTime(t time.Time) Ticks {
	return types.FromTime(t)
}

// FromSeconds converts fractional seconds into Ticks.
func FromSeconds(seconds float64) Ticks {
	return types.FromSeconds(seconds)
}

// Now returns the current wall-clock time in ticks.
func Now() Ticks {
	return types.FromTime(time.Now())
}

// NewSlogLogger adapts a slog.Logger (slog.Default() if nil) to Logger.
func NewSlogLogger(logger *slog.Logger) Logger {
	return logging.NewSlog(logger)
}

// NewZapLogger adapts a zap.Logger (no-op if nil) to Logger.
func NewZapLogger(logger *zap.Logger) Logger {
	return logging.NewZap(logger)
}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() Logger {
	return logging.NewNop()
}

// NewPrometheusMetrics creates a Prometheus-backed MetricsCollector.
//
// Parameters:
//   - reg: Registerer for the collectors (prometheus.DefaultRegisterer if nil)
//   - namespace: Metric namespace ("concentrator" if empty)
func NewPrometheusMetrics(reg prometheus.Registerer, namespace string) MetricsCollector {
	return metrics.NewPrometheus(reg, namespace)
}
