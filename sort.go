package concentrator

import (
	"github.com/GridProtectionAlliance/gsf-sub046/internal/tracking"
)

// Discard reasons reported to MetricsCollector.RecordEntitiesDiscarded.
const (
	discardBadTimestamp = "bad_timestamp"
	discardOutOfWindow  = "out_of_window"
	discardPublished    = "published"
	discardTimeout      = "timeout"
)

// Sort places entities into their frames.
//
// Sort is a no-op while the concentrator is not started. Entities that cannot
// be placed (bad timestamp quality, outside the lag/lead window, or arriving
// after their frame was published) are discarded and reported once per call
// through Hooks.OnEntitiesDiscarded, which runs synchronously on the caller's
// goroutine.
//
// Sort is safe for concurrent use. Consecutive entities that share a frame
// are placed with a single queue lookup, so producers should pass whole
// batches rather than one entity at a time.
func (c *Concentrator) Sort(entities ...Entity) {
	if !c.enabled.Load() || len(entities) == 0 {
		return
	}

	s := c.settings.Load()

	var (
		frame      *tracking.Frame
		bucket     Ticks
		discarded  []Entity
		processed  int
		byArrival  int
		badTime    int
		outOfRange int
		published  int
		timeouts   int
	)

	for _, entity := range entities {
		timestamp := entity.Timestamp()
		discard := false

		if !s.ignoreBadTimestamps && !entity.TimestampQualityIsGood() {
			if s.allowSortsByArrival {
				timestamp = c.realTime(s)
				byArrival++
			} else {
				discard = true
				badTime++
			}
		}

		if !discard && !s.processByCreationTime {
			distance := c.secondsFromRealTime(s, timestamp)
			if distance > s.lagTime || (s.performTimestampReasonabilityCheck && distance < -s.leadTime) {
				discard = true
				outOfRange++
			}
		}

		if !discard {
			if next := c.queue.Bucket(timestamp); frame == nil || next != bucket {
				frame = c.queue.GetFrame(timestamp)
				bucket = next
			}

			switch {
			case frame == nil:
				discard = true
				published++
			case frame.Add(entity):
				processed++

				if s.trackLatestEntities {
					c.latest.Store(entity.ID(), entity)
				}

				c.advanceRealTime(s, timestamp)
			default:
				discard = true
				timeouts++
			}
		}

		if discard {
			discarded = append(discarded, entity)
			c.lastDiscarded.Store(&discardRecord{
				entity:  entity,
				latency: c.realTime(s) - entity.Timestamp(),
			})
		}
	}

	c.recordSort(len(entities), processed, byArrival, badTime, outOfRange, published, timeouts)

	if len(discarded) > 0 {
		if err := c.hooks.OnEntitiesDiscarded(c.ctx, discarded); err != nil {
			c.logger.Error("entities discarded hook error", "count", len(discarded), "error", err)
		}
	}
}

func (c *Concentrator) recordSort(received, processed, byArrival, badTime, outOfRange, published, timeouts int) {
	discarded := badTime + outOfRange + published + timeouts

	c.stats.received.Add(int64(received))
	c.stats.processed.Add(int64(processed))
	c.stats.discarded.Add(int64(discarded))
	c.stats.sortsByArrival.Add(int64(byArrival))
	c.stats.missedSortsByTimeout.Add(int64(timeouts))

	c.metrics.RecordEntitiesReceived(received)
	c.metrics.RecordEntitiesProcessed(processed)
	if byArrival > 0 {
		c.metrics.RecordSortsByArrival(byArrival)
	}
	if badTime > 0 {
		c.metrics.RecordEntitiesDiscarded(badTime, discardBadTimestamp)
	}
	if outOfRange > 0 {
		c.metrics.RecordEntitiesDiscarded(outOfRange, discardOutOfWindow)
	}
	if published > 0 {
		c.metrics.RecordEntitiesDiscarded(published, discardPublished)
	}
	if timeouts > 0 {
		c.metrics.RecordEntitiesDiscarded(timeouts, discardTimeout)
	}
}
