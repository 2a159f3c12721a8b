package natsbus

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/GridProtectionAlliance/gsf-sub046/internal/logging"
	"github.com/GridProtectionAlliance/gsf-sub046/types"
)

// SimulatorConfig configures a Simulator.
type SimulatorConfig struct {
	// Subject the measurement batches are published on.
	Subject string
	// Signals is the number of synthetic signals, one measurement each per frame.
	Signals int
	// FramesPerSecond is the measurement rate of every signal.
	FramesPerSecond int
	// Shuffle publishes each frame's measurements in random order across
	// single-entity messages instead of one batch.
	Shuffle bool
}

// Simulator publishes synthetic measurements, standing in for a fleet of
// phasor measurement units during demos and tests.
type Simulator struct {
	conn    *nats.Conn
	cfg     SimulatorConfig
	signals []uuid.UUID
	clock   clock.Clock
	logger  types.Logger

	started atomic.Bool
	sent    atomic.Int64
}

// NewSimulator creates a simulator with fresh signal IDs.
//
// Returns:
//   - *Simulator: Idle simulator
//   - error: types.ErrInvalidConfig for a non-positive signal count or rate
func NewSimulator(conn *nats.Conn, cfg SimulatorConfig, clk clock.Clock, logger types.Logger) (*Simulator, error) {
	if cfg.Signals < 1 || cfg.FramesPerSecond < 1 || cfg.Subject == "" {
		return nil, fmt.Errorf("%w: simulator needs a subject, signals and frames per second", types.ErrInvalidConfig)
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	signals := make([]uuid.UUID, cfg.Signals)
	for i := range signals {
		signals[i] = uuid.New()
	}

	return &Simulator{conn: conn, cfg: cfg, signals: signals, clock: clk, logger: logger}, nil
}

// Signals returns the simulated signal IDs.
func (s *Simulator) Signals() []uuid.UUID {
	return s.signals
}

// Sent returns the number of measurements published.
func (s *Simulator) Sent() int64 {
	return s.sent.Load()
}

// Run publishes one measurement per signal every frame period until ctx is
// done. A second concurrent Run returns immediately.
func (s *Simulator) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}
	defer s.started.Store(false)

	ticker := s.clock.Ticker(time.Second / time.Duration(s.cfg.FramesPerSecond))
	defer ticker.Stop()

	s.logger.Info("simulator started", "subject", s.cfg.Subject, "signals", len(s.signals), "fps", s.cfg.FramesPerSecond)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("simulator stopped", "sent", s.sent.Load())
			return nil
		case <-ticker.C:
			if err := s.PublishFrame(s.frameTimestamp(types.FromTime(s.clock.Now()))); err != nil {
				s.logger.Warn("simulator publish failed", "error", err)
			}
		}
	}
}

// PublishFrame publishes one measurement per signal at timestamp.
func (s *Simulator) PublishFrame(timestamp types.Ticks) error {
	entities := make([]types.Entity, len(s.signals))
	phase := 2 * math.Pi * timestamp.ToSeconds()
	for i, id := range s.signals {
		entities[i] = types.NewMeasurement(id, timestamp, 60+0.05*math.Sin(phase+float64(i)))
	}

	if !s.cfg.Shuffle {
		return s.publish(entities...)
	}

	rand.Shuffle(len(entities), func(i, j int) { entities[i], entities[j] = entities[j], entities[i] })
	for _, e := range entities {
		if err := s.publish(e); err != nil {
			return err
		}
	}

	return nil
}

func (s *Simulator) publish(entities ...types.Entity) error {
	data, err := EncodeEntities(entities...)
	if err != nil {
		return err
	}

	if err := s.conn.Publish(s.cfg.Subject, data); err != nil {
		return fmt.Errorf("failed to publish measurements: %w", err)
	}
	s.sent.Add(int64(len(entities)))

	return nil
}

// frameTimestamp rounds now down to the start of its frame.
func (s *Simulator) frameTimestamp(now types.Ticks) types.Ticks {
	base := now.BaselinedTimestamp()
	fps := types.Ticks(s.cfg.FramesPerSecond)
	index := (now - base) * fps / types.TicksPerSecond

	return base + index*types.TicksPerSecond/fps
}
