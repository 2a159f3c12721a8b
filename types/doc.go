// Package types provides core type definitions and interfaces for the concentrator.
//
// This package contains shared types used across the root package and its
// internal implementations. Keeping them here avoids import cycles between
// the concentrator package and internal/tracking, timer and natsbus.
//
// Key types:
//   - Ticks: 100ns timestamps since the Unix epoch
//   - Entity, Measurement: timestamped, identified data points
//   - Frame: finalized one-entity-per-signal snapshot
//   - FilterFunc: down-sampling policy
//   - Publisher: frame output capability
//   - Logger, MetricsCollector, Hooks: observability
package types
