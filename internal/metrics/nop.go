// Package metrics provides types.MetricsCollector implementations.
package metrics

import "github.com/GridProtectionAlliance/gsf-sub046/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when the Stats snapshot
// is polled instead.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Example:
//
//	c, _ := concentrator.NewConcentrator(&cfg, pub, concentrator.WithMetrics(metrics.NewNop()))
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// LifecycleMetrics implementation

// RecordStateTransition discards the state transition metric.
func (n *NopMetrics) RecordStateTransition(_ /* from */, _ /* to */ types.State) {}

// SortMetrics implementation

// RecordEntitiesReceived discards the received count.
func (n *NopMetrics) RecordEntitiesReceived(_ /* count */ int) {}

// RecordEntitiesProcessed discards the processed count.
func (n *NopMetrics) RecordEntitiesProcessed(_ /* count */ int) {}

// RecordEntitiesDiscarded discards the discard count.
func (n *NopMetrics) RecordEntitiesDiscarded(_ /* count */ int, _ /* reason */ string) {}

// RecordSortsByArrival discards the sorts-by-arrival count.
func (n *NopMetrics) RecordSortsByArrival(_ /* count */ int) {}

// PublicationMetrics implementation

// RecordFramePublished discards the publication metric.
func (n *NopMetrics) RecordFramePublished(_ /* entities */, _ /* downsampled */ int, _ /* duration */ float64, _ /* aheadOfSchedule */ bool) {
}

// RecordPublishError discards the publish error.
func (n *NopMetrics) RecordPublishError() {}

// RecordWaitHandleExpiration discards the wait expiration.
func (n *NopMetrics) RecordWaitHandleExpiration() {}

// RecordQueueDepth discards the queue depth.
func (n *NopMetrics) RecordQueueDepth(_ /* frames */ int) {}

// RecordUnpublishedSeconds discards the unpublished seconds.
func (n *NopMetrics) RecordUnpublishedSeconds(_ /* seconds */ int) {}

// TransportMetrics implementation

// RecordMessageIngested discards the ingestion metric.
func (n *NopMetrics) RecordMessageIngested(_ /* entities */ int) {}

// RecordMessageRejected discards the rejection metric.
func (n *NopMetrics) RecordMessageRejected() {}

// RecordFrameDelivered discards the delivery outcome.
func (n *NopMetrics) RecordFrameDelivered(_ /* result */ string) {}
