package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/GridProtectionAlliance/gsf-sub046/types"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Collectors are created and registered lazily on first use, so constructing
// a collector that is never exercised leaves the registry untouched.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	stateTransitions *prometheus.CounterVec

	entitiesReceived  prometheus.Counter
	entitiesProcessed prometheus.Counter
	entitiesDiscarded *prometheus.CounterVec
	sortsByArrival    prometheus.Counter

	framesPublished       *prometheus.CounterVec
	entitiesPublished     prometheus.Counter
	entitiesDownsampled   prometheus.Counter
	publishLatency        prometheus.Histogram
	publishErrors         prometheus.Counter
	waitHandleExpirations prometheus.Counter
	queueDepth            prometheus.Gauge
	unpublishedSeconds    prometheus.Gauge

	messagesIngested prometheus.Counter
	entitiesIngested prometheus.Counter
	messagesRejected prometheus.Counter
	framesDelivered  *prometheus.CounterVec
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "concentrator" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "concentrator"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) counter(subsystem, name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: p.namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
	p.reg.MustRegister(c)

	return c
}

func (p *PrometheusCollector) counterVec(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: p.namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
	p.reg.MustRegister(c)

	return c
}

func (p *PrometheusCollector) gauge(subsystem, name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: p.namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
	p.reg.MustRegister(g)

	return g
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.stateTransitions = p.counterVec("lifecycle", "state_transitions_total",
			"Total lifecycle transitions by source and destination state.", "from", "to")

		p.entitiesReceived = p.counter("sort", "entities_received_total",
			"Total entities passed to Sort.")
		p.entitiesProcessed = p.counter("sort", "entities_processed_total",
			"Total entities placed into a frame.")
		p.entitiesDiscarded = p.counterVec("sort", "entities_discarded_total",
			"Total entities discarded by reason (bad_timestamp, out_of_window, timeout).", "reason")
		p.sortsByArrival = p.counter("sort", "sorts_by_arrival_total",
			"Total entities sorted by arrival time because of bad timestamp quality.")

		p.framesPublished = p.counterVec("publication", "frames_published_total",
			"Total published frames by schedule (on_time, ahead).", "schedule")
		p.entitiesPublished = p.counter("publication", "entities_published_total",
			"Total entities contained in published frames.")
		p.entitiesDownsampled = p.counter("publication", "entities_downsampled_total",
			"Total entities collapsed by the down-sampling filter.")
		p.publishLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "publication",
			Name:      "publish_duration_seconds",
			Help:      "Time spent inside the frame publisher in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14), // 100µs .. ~1.6s
		})
		p.reg.MustRegister(p.publishLatency)
		p.publishErrors = p.counter("publication", "publish_errors_total",
			"Total frames whose publisher returned an error or panicked.")
		p.waitHandleExpirations = p.counter("publication", "wait_expirations_total",
			"Total publication waits that expired before a timer signal.")
		p.queueDepth = p.gauge("publication", "queue_frames",
			"Current number of frames waiting for publication.")
		p.unpublishedSeconds = p.gauge("publication", "unpublished_seconds",
			"Seconds of data waiting in the queue beyond the first.")

		p.messagesIngested = p.counter("transport", "messages_ingested_total",
			"Total ingestion messages decoded.")
		p.entitiesIngested = p.counter("transport", "entities_ingested_total",
			"Total entities decoded from ingestion messages.")
		p.messagesRejected = p.counter("transport", "messages_rejected_total",
			"Total ingestion messages that could not be decoded.")
		p.framesDelivered = p.counterVec("transport", "frames_delivered_total",
			"Total frame deliveries by result (success, failure).", "result")
	})
}

// RecordStateTransition counts a lifecycle transition.
func (p *PrometheusCollector) RecordStateTransition(from, to types.State) {
	p.ensureRegistered()
	p.stateTransitions.WithLabelValues(from.String(), to.String()).Inc()
}

// RecordEntitiesReceived adds to the received counter.
func (p *PrometheusCollector) RecordEntitiesReceived(count int) {
	p.ensureRegistered()
	p.entitiesReceived.Add(float64(count))
}

// RecordEntitiesProcessed adds to the processed counter.
func (p *PrometheusCollector) RecordEntitiesProcessed(count int) {
	p.ensureRegistered()
	p.entitiesProcessed.Add(float64(count))
}

// RecordEntitiesDiscarded adds to the discarded counter for a reason.
func (p *PrometheusCollector) RecordEntitiesDiscarded(count int, reason string) {
	p.ensureRegistered()
	p.entitiesDiscarded.WithLabelValues(reason).Add(float64(count))
}

// RecordSortsByArrival adds to the sorts-by-arrival counter.
func (p *PrometheusCollector) RecordSortsByArrival(count int) {
	p.ensureRegistered()
	p.sortsByArrival.Add(float64(count))
}

// RecordFramePublished records one published frame.
func (p *PrometheusCollector) RecordFramePublished(entities, downsampled int, duration float64, aheadOfSchedule bool) {
	p.ensureRegistered()

	schedule := "on_time"
	if aheadOfSchedule {
		schedule = "ahead"
	}
	p.framesPublished.WithLabelValues(schedule).Inc()
	p.entitiesPublished.Add(float64(entities))
	p.entitiesDownsampled.Add(float64(downsampled))
	p.publishLatency.Observe(duration)
}

// RecordPublishError counts a failed publish.
func (p *PrometheusCollector) RecordPublishError() {
	p.ensureRegistered()
	p.publishErrors.Inc()
}

// RecordWaitHandleExpiration counts an expired publication wait.
func (p *PrometheusCollector) RecordWaitHandleExpiration() {
	p.ensureRegistered()
	p.waitHandleExpirations.Inc()
}

// RecordQueueDepth sets the queue depth gauge.
func (p *PrometheusCollector) RecordQueueDepth(frames int) {
	p.ensureRegistered()
	p.queueDepth.Set(float64(frames))
}

// RecordUnpublishedSeconds sets the unpublished seconds gauge.
func (p *PrometheusCollector) RecordUnpublishedSeconds(seconds int) {
	p.ensureRegistered()
	p.unpublishedSeconds.Set(float64(seconds))
}

// RecordMessageIngested counts a decoded ingestion message.
func (p *PrometheusCollector) RecordMessageIngested(entities int) {
	p.ensureRegistered()
	p.messagesIngested.Inc()
	p.entitiesIngested.Add(float64(entities))
}

// RecordMessageRejected counts an undecodable ingestion message.
func (p *PrometheusCollector) RecordMessageRejected() {
	p.ensureRegistered()
	p.messagesRejected.Inc()
}

// RecordFrameDelivered counts a frame delivery outcome.
func (p *PrometheusCollector) RecordFrameDelivered(result string) {
	p.ensureRegistered()
	p.framesDelivered.WithLabelValues(result).Inc()
}
