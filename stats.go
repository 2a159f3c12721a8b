package concentrator

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of concentrator counters.
//
// Counters reset on every Start.
type Stats struct {
	ReceivedEntities      int64
	ProcessedEntities     int64
	DiscardedEntities     int64
	SortsByArrival        int64
	MissedSortsByTimeout  int64
	PublishedEntities     int64
	PublishedFrames       int64
	DownsampledEntities   int64
	WaitHandleExpirations int64
	FramesAheadOfSchedule int64
	PublishErrors         int64

	TotalPublishTime   time.Duration
	AveragePublishTime time.Duration

	StartTime time.Time
	StopTime  time.Time
	RunTime   time.Duration
}

// counters are the live statistics, updated from Sort and the publication loop.
type counters struct {
	received              atomic.Int64
	processed             atomic.Int64
	discarded             atomic.Int64
	sortsByArrival        atomic.Int64
	missedSortsByTimeout  atomic.Int64
	publishedEntities     atomic.Int64
	publishedFrames       atomic.Int64
	downsampled           atomic.Int64
	waitHandleExpirations atomic.Int64
	framesAhead           atomic.Int64
	publishErrors         atomic.Int64
	publishNanos          atomic.Int64

	startTime atomic.Int64 // Ticks, 0 before the first Start
	stopTime  atomic.Int64 // Ticks, 0 while running
}

func (c *counters) reset() {
	c.received.Store(0)
	c.processed.Store(0)
	c.discarded.Store(0)
	c.sortsByArrival.Store(0)
	c.missedSortsByTimeout.Store(0)
	c.publishedEntities.Store(0)
	c.publishedFrames.Store(0)
	c.downsampled.Store(0)
	c.waitHandleExpirations.Store(0)
	c.framesAhead.Store(0)
	c.publishErrors.Store(0)
	c.publishNanos.Store(0)
	c.stopTime.Store(0)
}

// Statistics returns a snapshot of the concentrator counters.
func (c *Concentrator) Statistics() Stats {
	st := Stats{
		ReceivedEntities:      c.stats.received.Load(),
		ProcessedEntities:     c.stats.processed.Load(),
		DiscardedEntities:     c.stats.discarded.Load(),
		SortsByArrival:        c.stats.sortsByArrival.Load(),
		MissedSortsByTimeout:  c.stats.missedSortsByTimeout.Load(),
		PublishedEntities:     c.stats.publishedEntities.Load(),
		PublishedFrames:       c.stats.publishedFrames.Load(),
		DownsampledEntities:   c.stats.downsampled.Load(),
		WaitHandleExpirations: c.stats.waitHandleExpirations.Load(),
		FramesAheadOfSchedule: c.stats.framesAhead.Load(),
		PublishErrors:         c.stats.publishErrors.Load(),
		TotalPublishTime:      time.Duration(c.stats.publishNanos.Load()),
		RunTime:               c.RunTime(),
	}

	if st.PublishedFrames > 0 {
		st.AveragePublishTime = st.TotalPublishTime / time.Duration(st.PublishedFrames)
	}
	if start := c.stats.startTime.Load(); start > 0 {
		st.StartTime = Ticks(start).Time()
	}
	if stop := c.stats.stopTime.Load(); stop > 0 {
		st.StopTime = Ticks(stop).Time()
	}

	return st
}

// RunTime returns how long the concentrator has been running, or how long it
// ran before the last Stop. Zero before the first Start.
func (c *Concentrator) RunTime() time.Duration {
	start := Ticks(c.stats.startTime.Load())
	if start == 0 {
		return 0
	}

	end := Ticks(c.stats.stopTime.Load())
	if end == 0 {
		end = c.now()
	}

	return max(end-start, 0).Duration()
}

// Status returns a multi-line human readable summary of the configuration
// and statistics.
func (c *Concentrator) Status() string {
	s := c.settings.Load()
	st := c.Statistics()

	var sb strings.Builder

	line := func(label string, value any) {
		fmt.Fprintf(&sb, "%32s: %v\n", label, value)
	}

	line("Data concentration state", c.State())
	line("Frames per second", s.framesPerSecond)
	line("Lag time", fmt.Sprintf("%g seconds", s.lagTime))
	line("Lead time", fmt.Sprintf("%g seconds", s.leadTime))
	line("Time resolution", s.timeResolution.Duration())
	line("Processing interval", processingIntervalText(s.processingInterval))
	line("Publication timeout", s.publicationTimeout)
	line("Using precision timer", s.usePrecisionTimer)
	line("Processing by creation time", s.processByCreationTime)
	line("Local clock is real time", s.useLocalClockAsRealTime)
	line("Reasonability checks", s.performTimestampReasonabilityCheck)
	line("Allow sorts by arrival", s.allowSortsByArrival)
	line("Ignore bad timestamps", s.ignoreBadTimestamps)
	line("Preemptive publishing", s.allowPreemptivePublishing)
	line("Expected entities", s.expectedEntities)
	line("Tracking latest entities", s.trackLatestEntities)

	line("Real-time estimate", c.RealTime())
	line("Total process run time", st.RunTime.Round(time.Millisecond))
	line("Received entities", st.ReceivedEntities)
	line("Processed entities", st.ProcessedEntities)
	line("Discarded entities", st.DiscardedEntities)
	line("Sorts by arrival", st.SortsByArrival)
	line("Missed sorts by timeout", st.MissedSortsByTimeout)
	line("Published entities", st.PublishedEntities)
	line("Published frames", st.PublishedFrames)
	line("Down-sampled entities", st.DownsampledEntities)
	line("Frames ahead of schedule", st.FramesAheadOfSchedule)
	line("Wait handle expirations", st.WaitHandleExpirations)
	line("Publish errors", st.PublishErrors)
	line("Average publish time", st.AveragePublishTime)

	if discarded := c.LastDiscardedEntity(); discarded != nil {
		line("Last discarded entity", fmt.Sprintf("%s @ %s", discarded.ID(), discarded.Timestamp()))
		line("Last discarded latency", c.LastDiscardedLatency().Duration())
	}

	if last := c.LastFrame(); last != nil {
		line("Last published frame", last.Timestamp)
	}

	sb.WriteString(c.QueueState())

	return sb.String()
}

func processingIntervalText(interval int) string {
	switch {
	case interval < 0:
		return "frame rate"
	case interval == 0:
		return "as fast as possible"
	default:
		return fmt.Sprintf("%d ms", interval)
	}
}
