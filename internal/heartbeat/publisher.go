package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/GridProtectionAlliance/gsf-sub046/internal/logging"
	"github.com/GridProtectionAlliance/gsf-sub046/types"
)

// Common errors for heartbeat operations.
var (
	ErrNotStarted     = errors.New("heartbeat not started")
	ErrAlreadyStarted = errors.New("heartbeat already started")
	ErrNoInstance     = errors.New("instance name not set")
)

// Snapshot returns the value published with each heartbeat. It must be
// JSON-encodable and safe to call from the heartbeat goroutine.
type Snapshot func() any

// Message is the JSON document stored under an instance key.
type Message struct {
	Instance  string    `json:"instance"`
	Timestamp time.Time `json:"timestamp"`
	Status    any       `json:"status,omitempty"`
}

// Publisher writes a status snapshot to KV at a fixed interval.
type Publisher struct {
	kv       jetstream.KeyValue
	prefix   string
	instance string
	interval time.Duration
	snapshot Snapshot
	clock    clock.Clock
	logger   types.Logger

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a heartbeat publisher.
//
// Parameters:
//   - kv: KV bucket for status entries
//   - prefix: Key prefix (e.g., "status")
//   - instance: Instance name, must be a valid KV key token
//   - interval: Publish interval
//   - snapshot: Status source, nil publishes liveness only
//
// Returns:
//   - *Publisher: Stopped publisher
func New(kv jetstream.KeyValue, prefix, instance string, interval time.Duration, snapshot Snapshot) *Publisher {
	return &Publisher{
		kv:       kv,
		prefix:   prefix,
		instance: instance,
		interval: interval,
		snapshot: snapshot,
		clock:    clock.New(),
		logger:   logging.NewNop(),
	}
}

// SetClock replaces the clock used for the ticker and timestamps.
// Must be called before Start().
func (p *Publisher) SetClock(clk clock.Clock) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.clock = clk
}

// SetLogger sets the logger for publish failures.
func (p *Publisher) SetLogger(logger types.Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.logger = logger
}

// Start publishes the first heartbeat immediately, then one per interval
// until Stop is called.
//
// Returns:
//   - error: ErrAlreadyStarted, ErrNoInstance, or the first publish error
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}
	if p.instance == "" {
		return ErrNoInstance
	}

	if err := p.publish(ctx); err != nil {
		return fmt.Errorf("failed to publish initial heartbeat: %w", err)
	}

	p.started = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	ticker := p.clock.Ticker(p.interval)

	go p.publishLoop(ticker, p.stopCh, p.doneCh)

	return nil
}

// Stop stops publishing and deletes the instance key.
//
// Returns:
//   - error: ErrNotStarted if not running, or the delete error
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrNotStarted
	}
	p.started = false
	close(p.stopCh)
	done := p.doneCh
	p.mu.Unlock()

	<-done

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := p.kv.Delete(ctx, p.key()); err != nil {
		return fmt.Errorf("stopped but failed to delete heartbeat: %w", err)
	}

	return nil
}

// IsStarted reports whether the publisher is running.
func (p *Publisher) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.started
}

func (p *Publisher) publishLoop(ticker *clock.Ticker, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := p.publish(ctx)
			cancel()

			if err != nil {
				p.mu.Lock()
				logger := p.logger
				p.mu.Unlock()
				logger.Warn("heartbeat publish failed", "instance", p.instance, "error", err)
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context) error {
	msg := Message{Instance: p.instance, Timestamp: p.clock.Now().UTC()}
	if p.snapshot != nil {
		msg.Status = p.snapshot()
	}

	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode heartbeat for %s: %w", p.instance, err)
	}

	if _, err := p.kv.Put(ctx, p.key(), value); err != nil {
		return fmt.Errorf("failed to publish heartbeat for %s: %w", p.instance, err)
	}

	return nil
}

func (p *Publisher) key() string {
	return p.prefix + "." + p.instance
}
