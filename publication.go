package concentrator

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/GridProtectionAlliance/gsf-sub046/internal/tracking"
)

// pollInterval is the publication loop cadence without the precision timer.
const pollInterval = time.Millisecond

// publicationLoop is the single consumer of the frame queue. It runs from
// NewConcentrator until Close.
func (c *Concentrator) publicationLoop() {
	wait := time.NewTimer(pollInterval)
	defer wait.Stop()

	for {
		s := c.settings.Load()

		timeout := pollInterval
		if s.usePrecisionTimer {
			timeout = s.publicationTimeout
		}
		wait.Reset(timeout)

		select {
		case <-c.ctx.Done():
			return
		case <-c.signal:
		case <-wait.C:
			if s.usePrecisionTimer && c.enabled.Load() {
				c.stats.waitHandleExpirations.Add(1)
				c.metrics.RecordWaitHandleExpiration()
			}
		}

		c.publishReadyFrames()
	}
}

// publishReadyFrames drains every frame that is ready so a loop that fell
// behind catches up in one pass.
func (c *Concentrator) publishReadyFrames() {
	for c.enabled.Load() && c.ctx.Err() == nil {
		s := c.settings.Load()

		frame := c.queue.Head()
		if frame == nil {
			return
		}

		ready, ahead := c.isReady(s, frame)
		if !ready {
			return
		}

		c.publishFrame(s, frame, ahead)
	}
}

// isReady applies the publication test to the head frame. ahead reports a
// frame published early because it already holds every expected signal.
func (c *Concentrator) isReady(s *settings, frame *tracking.Frame) (ready, ahead bool) {
	reference := frame.Timestamp()
	if s.processByCreationTime {
		reference = frame.CreatedAt()
	}

	if s.lagTicks-(c.realTime(s)-reference) <= 0 {
		return true, false
	}

	if s.allowPreemptivePublishing && s.expectedEntities > 0 && frame.SignalCount() >= s.expectedEntities {
		return true, true
	}

	return false, false
}

// publishFrame closes the tracking frame, down-samples it into its source
// frame and hands it to the publisher. The frame leaves the queue whatever
// the publisher returns.
func (c *Concentrator) publishFrame(s *settings, tracked *tracking.Frame, ahead bool) {
	raw := tracked.GetEntities()
	frame := tracked.Source()

	downsampled, dropped := 0, 0
	for _, list := range raw {
		if len(list) == 0 {
			continue
		}

		winner := s.filter(frame.Timestamp, list)
		if winner == nil {
			downsampled += len(list)
			dropped++
			continue
		}

		downsampled += len(list) - 1
		c.assign(frame, winner)
	}

	if dropped > 0 {
		c.logger.Debug("filter dropped signals", "frame", frame.Timestamp, "signals", dropped)
	}

	index := s.frameIndex(frame.Timestamp)
	frame.PublishedAt = c.now()

	started := time.Now()
	err := c.invokePublisher(frame, index)
	elapsed := time.Since(started)

	c.queue.Dequeue(tracked)

	if err != nil {
		c.stats.publishErrors.Add(1)
		c.metrics.RecordPublishError()
		c.reportException(err)
	}

	entities := frame.Count()
	c.stats.publishedFrames.Add(1)
	c.stats.publishedEntities.Add(int64(entities))
	c.stats.downsampled.Add(int64(downsampled))
	c.stats.publishNanos.Add(int64(elapsed))
	if ahead {
		c.stats.framesAhead.Add(1)
	}
	c.metrics.RecordFramePublished(entities, downsampled, elapsed.Seconds(), ahead)
}

// invokePublisher calls the publisher, converting a panic into ErrPublishPanic.
func (c *Concentrator) invokePublisher(frame *Frame, index int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: frame %s: %v", ErrPublishPanic, frame.Timestamp, r)
		}
	}()

	if err := c.publisher.PublishFrame(c.ctx, frame, index); err != nil {
		return fmt.Errorf("failed to publish frame %s: %w", frame.Timestamp, err)
	}

	return nil
}

func (c *Concentrator) reportException(err error) {
	c.logger.Error("frame publication failed", "error", err)

	go func() {
		if hookErr := c.hooks.OnProcessException(c.ctx, err); hookErr != nil {
			c.logger.Error("process exception hook error", "error", hookErr)
		}
	}()
}

// monitorLoop reports how many seconds of data wait in the queue beyond the
// first.
func (c *Concentrator) monitorLoop(ticker *clock.Ticker) {
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if !c.enabled.Load() {
				continue
			}
			c.reportUnpublished()
		}
	}
}

func (c *Concentrator) reportUnpublished() {
	s := c.settings.Load()
	depth := c.queue.Count()
	seconds := max(depth/s.framesPerSecond-1, 0)

	c.metrics.RecordQueueDepth(depth)
	c.metrics.RecordUnpublishedSeconds(seconds)

	go func(ctx context.Context) {
		if err := c.hooks.OnUnpublishedSamples(ctx, seconds); err != nil {
			c.logger.Error("unpublished samples hook error", "seconds", seconds, "error", err)
		}
	}(c.ctx)
}
