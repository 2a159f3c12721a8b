package natsbus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/GridProtectionAlliance/gsf-sub046/internal/logging"
	"github.com/GridProtectionAlliance/gsf-sub046/internal/metrics"
	"github.com/GridProtectionAlliance/gsf-sub046/types"
)

// Sorter receives decoded entities. *concentrator.Concentrator satisfies it.
type Sorter interface {
	Sort(entities ...types.Entity)
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithQueueGroup subscribes as a member of a queue group so several
// ingestors split the subject's messages.
func WithQueueGroup(group string) IngestorOption {
	return func(i *Ingestor) { i.queue = group }
}

// WithIngestLogger sets the ingestor logger.
func WithIngestLogger(logger types.Logger) IngestorOption {
	return func(i *Ingestor) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithIngestMetrics sets the collector receiving ingest counters.
func WithIngestMetrics(collector types.TransportMetrics) IngestorOption {
	return func(i *Ingestor) {
		if collector != nil {
			i.metrics = collector
		}
	}
}

// WithSubscribeRetry sets how many times Start retries a failed subscribe
// and the pause between attempts.
func WithSubscribeRetry(maxRetries int, backoff time.Duration) IngestorOption {
	return func(i *Ingestor) {
		i.maxRetries = max(maxRetries, 0)
		i.retryBackoff = backoff
	}
}

// Ingestor feeds measurement batches from a NATS subject into a Sorter.
type Ingestor struct {
	conn    *nats.Conn
	subject string
	queue   string
	sorter  Sorter
	logger  types.Logger
	metrics types.TransportMetrics

	maxRetries   int
	retryBackoff time.Duration

	mu  sync.Mutex
	sub *nats.Subscription

	received atomic.Int64
	rejected atomic.Int64
}

// NewIngestor creates an ingestor. It does not subscribe until Start.
//
// Parameters:
//   - conn: NATS connection
//   - subject: Subject (wildcards allowed) carrying measurement batches
//   - sorter: Destination of decoded entities
//   - opts: Optional configuration
//
// Returns:
//   - *Ingestor: Stopped ingestor
//
// Example:
//
//	ing := natsbus.NewIngestor(nc, "measurements.>", conc, natsbus.WithQueueGroup("concentrators"))
//	if err := ing.Start(ctx); err != nil {
//	    return err
//	}
//	defer ing.Stop()
func NewIngestor(conn *nats.Conn, subject string, sorter Sorter, opts ...IngestorOption) *Ingestor {
	i := &Ingestor{
		conn:         conn,
		subject:      subject,
		sorter:       sorter,
		logger:       logging.NewNop(),
		metrics:      metrics.NewNop(),
		maxRetries:   3,
		retryBackoff: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(i)
	}

	return i
}

// Start subscribes to the subject.
//
// Returns:
//   - error: types.ErrIngestorStarted if already running, ctx.Err() when
//     cancelled, or the last subscribe error
func (i *Ingestor) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.sub != nil {
		return types.ErrIngestorStarted
	}

	var (
		sub *nats.Subscription
		err error
	)
	for attempt := 0; attempt <= i.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if i.queue != "" {
			sub, err = i.conn.QueueSubscribe(i.subject, i.queue, i.handle)
		} else {
			sub, err = i.conn.Subscribe(i.subject, i.handle)
		}
		if err == nil {
			break
		}

		i.logger.Warn("subscribe failed", "subject", i.subject, "attempt", attempt+1, "error", err)
		if attempt < i.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(i.retryBackoff):
			}
		}
	}
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", i.subject, err)
	}

	i.sub = sub
	i.logger.Info("ingestor started", "subject", i.subject, "queue", i.queue)

	return nil
}

// Stop drains the subscription so in-flight messages are still sorted.
func (i *Ingestor) Stop() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.sub == nil {
		return types.ErrIngestorNotStarted
	}

	err := i.sub.Drain()
	i.sub = nil
	if err != nil {
		return fmt.Errorf("failed to drain subscription %s: %w", i.subject, err)
	}

	i.logger.Info("ingestor stopped", "subject", i.subject,
		"received", i.received.Load(), "rejected", i.rejected.Load())

	return nil
}

// Received returns the number of entities passed to the sorter.
func (i *Ingestor) Received() int64 {
	return i.received.Load()
}

// Rejected returns the number of undecodable messages.
func (i *Ingestor) Rejected() int64 {
	return i.rejected.Load()
}

func (i *Ingestor) handle(msg *nats.Msg) {
	entities, err := DecodeEntities(msg.Data)
	if err != nil {
		i.rejected.Add(1)
		i.metrics.RecordMessageRejected()
		i.logger.Warn("rejected message", "subject", msg.Subject, "bytes", len(msg.Data), "error", err)

		return
	}

	i.sorter.Sort(entities...)
	i.received.Add(int64(len(entities)))
	i.metrics.RecordMessageIngested(len(entities))
}
