package natsbus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/zeebo/xxh3"

	"github.com/GridProtectionAlliance/gsf-sub046/internal/kvutil"
	"github.com/GridProtectionAlliance/gsf-sub046/internal/logging"
	"github.com/GridProtectionAlliance/gsf-sub046/internal/metrics"
	"github.com/GridProtectionAlliance/gsf-sub046/internal/natsutil"
	"github.com/GridProtectionAlliance/gsf-sub046/types"
)

const (
	deliverySuccess = "success"
	deliveryFailure = "failure"

	defaultDuplicateWindow = 2 * time.Minute
)

// PublisherOption configures a FramePublisher.
type PublisherOption func(*FramePublisher)

// WithStreamName sets the stream EnsureStream creates for the frame subject.
func WithStreamName(name string) PublisherOption {
	return func(p *FramePublisher) { p.streamName = name }
}

// WithDuplicateWindow sets how long JetStream remembers frame message IDs.
func WithDuplicateWindow(window time.Duration) PublisherOption {
	return func(p *FramePublisher) {
		if window > 0 {
			p.duplicates = window
		}
	}
}

// WithLatestValueBucket mirrors every published entity into a KV bucket
// keyed by signal ID. The bucket is created by EnsureStream.
func WithLatestValueBucket(bucket string) PublisherOption {
	return func(p *FramePublisher) { p.bucketName = bucket }
}

// WithPublisherLogger sets the publisher logger.
func WithPublisherLogger(logger types.Logger) PublisherOption {
	return func(p *FramePublisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithPublisherMetrics sets the collector receiving delivery outcomes.
func WithPublisherMetrics(collector types.TransportMetrics) PublisherOption {
	return func(p *FramePublisher) {
		if collector != nil {
			p.metrics = collector
		}
	}
}

// FramePublisher is a concentrator Publisher that sends frames to JetStream.
//
// Each frame is published with a message ID derived from the subject and
// frame timestamp, so a frame sent twice inside the stream's duplicate window
// is stored once.
type FramePublisher struct {
	js         jetstream.JetStream
	subject    string
	streamName string
	bucketName string
	duplicates time.Duration
	logger     types.Logger
	metrics    types.TransportMetrics

	mu     sync.RWMutex
	latest jetstream.KeyValue
}

var _ types.Publisher = (*FramePublisher)(nil)

// NewFramePublisher creates a frame publisher.
//
// Parameters:
//   - js: JetStream context
//   - subject: Subject frames are published on
//   - opts: Optional configuration
//
// Returns:
//   - *FramePublisher: Publisher ready for EnsureStream
//
// Example:
//
//	pub := natsbus.NewFramePublisher(js, "frames.pmu",
//	    natsbus.WithStreamName("FRAMES"),
//	    natsbus.WithLatestValueBucket("latest"),
//	)
//	if err := pub.EnsureStream(ctx); err != nil {
//	    return err
//	}
func NewFramePublisher(js jetstream.JetStream, subject string, opts ...PublisherOption) *FramePublisher {
	p := &FramePublisher{
		js:         js,
		subject:    subject,
		streamName: "FRAMES",
		duplicates: defaultDuplicateWindow,
		logger:     logging.NewNop(),
		metrics:    metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// EnsureStream creates or updates the frame stream and, when configured,
// creates or opens the latest-value bucket.
func (p *FramePublisher) EnsureStream(ctx context.Context) error {
	_, err := kvutil.EnsureStreamWithRetry(ctx, p.js, jetstream.StreamConfig{
		Name:        p.streamName,
		Description: "Concentrated frames",
		Subjects:    []string{p.subject},
		Duplicates:  p.duplicates,
	}, 3)
	if err != nil {
		return err
	}

	if p.bucketName == "" {
		return nil
	}

	kv, err := kvutil.EnsureKVBucketWithRetry(ctx, p.js, jetstream.KeyValueConfig{
		Bucket:      p.bucketName,
		Description: "Latest published value per signal",
		History:     1,
	}, 3)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.latest = kv
	p.mu.Unlock()

	p.logger.Info("frame stream ready", "stream", p.streamName, "subject", p.subject, "bucket", p.bucketName)

	return nil
}

// PublishFrame encodes and publishes a frame, then updates the latest-value
// bucket. Connectivity failures are wrapped with types.ErrConnectivity.
func (p *FramePublisher) PublishFrame(ctx context.Context, frame *types.Frame, index int) error {
	data, err := EncodeFrame(frame, index)
	if err != nil {
		p.metrics.RecordFrameDelivered(deliveryFailure)
		return err
	}

	if _, err := p.js.Publish(ctx, p.subject, data, jetstream.WithMsgID(p.messageID(frame.Timestamp))); err != nil {
		p.metrics.RecordFrameDelivered(deliveryFailure)
		if natsutil.IsConnectivityError(err) {
			return fmt.Errorf("%w: publish frame %s: %w", types.ErrConnectivity, frame.Timestamp, err)
		}

		return fmt.Errorf("failed to publish frame %s: %w", frame.Timestamp, err)
	}

	if err := p.updateLatest(ctx, frame); err != nil {
		p.metrics.RecordFrameDelivered(deliveryFailure)
		return err
	}

	p.metrics.RecordFrameDelivered(deliverySuccess)

	return nil
}

func (p *FramePublisher) updateLatest(ctx context.Context, frame *types.Frame) error {
	p.mu.RLock()
	kv := p.latest
	p.mu.RUnlock()

	if kv == nil {
		return nil
	}

	var errs []error
	for id, e := range frame.Entities {
		value, err := json.Marshal(entityMessage(e))
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if _, err := kv.Put(ctx, id.String(), value); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to update latest values for frame %s: %w", frame.Timestamp, err)
	}

	return nil
}

// messageID derives the JetStream dedupe ID of a frame.
func (p *FramePublisher) messageID(timestamp types.Ticks) string {
	key := p.subject + "|" + strconv.FormatInt(int64(timestamp), 10)
	return fmt.Sprintf("%016x", xxh3.HashString(key))
}
