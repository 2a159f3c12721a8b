package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// Methods are called from producer goroutines inside Sort and from the
// publication goroutine, so they must be thread-safe.
//
// This interface composes smaller, domain-focused interfaces for better modularity.
type MetricsCollector interface {
	LifecycleMetrics
	SortMetrics
	PublicationMetrics
	TransportMetrics
}

// LifecycleMetrics defines metrics for concentrator lifecycle transitions.
type LifecycleMetrics interface {
	// RecordStateTransition records a lifecycle transition.
	RecordStateTransition(from, to State)
}

// SortMetrics defines metrics for entity sorting.
type SortMetrics interface {
	// RecordEntitiesReceived adds to the count of entities passed to Sort.
	RecordEntitiesReceived(count int)

	// RecordEntitiesProcessed adds to the count of entities placed into frames.
	RecordEntitiesProcessed(count int)

	// RecordEntitiesDiscarded adds to the count of discarded entities.
	//
	// Parameters:
	//   - count: Number of entities discarded
	//   - reason: "bad_timestamp", "out_of_window", "published" or "timeout"
	RecordEntitiesDiscarded(count int, reason string)

	// RecordSortsByArrival adds to the count of entities sorted by arrival time.
	RecordSortsByArrival(count int)
}

// PublicationMetrics defines metrics for the publication loop.
type PublicationMetrics interface {
	// RecordFramePublished records one published frame.
	//
	// Parameters:
	//   - entities: Number of signals in the frame
	//   - downsampled: Number of entities collapsed by the filter
	//   - duration: Time spent in the publisher in seconds
	//   - aheadOfSchedule: true when the frame was published preemptively
	RecordFramePublished(entities, downsampled int, duration float64, aheadOfSchedule bool)

	// RecordPublishError records a failed or panicking publish.
	RecordPublishError()

	// RecordWaitHandleExpiration records a publication wait that timed out.
	RecordWaitHandleExpiration()

	// RecordQueueDepth sets the current number of queued frames (gauge metric).
	RecordQueueDepth(frames int)

	// RecordUnpublishedSeconds sets the seconds of data waiting beyond the first (gauge metric).
	RecordUnpublishedSeconds(seconds int)
}

// TransportMetrics defines metrics for NATS ingestion and output.
type TransportMetrics interface {
	// RecordMessageIngested records one decoded ingestion message.
	RecordMessageIngested(entities int)

	// RecordMessageRejected records one undecodable ingestion message.
	RecordMessageRejected()

	// RecordFrameDelivered records a frame delivery outcome ("success" or "failure").
	RecordFrameDelivered(result string)
}
