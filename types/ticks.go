package types

import (
	"math"
	"time"
)

// Ticks is a timestamp expressed as the number of 100-nanosecond intervals
// elapsed since the Unix epoch (UTC).
//
// One tick is the finest time resolution the concentrator works with; frame
// buckets, lag and lead windows and real-time estimates are all computed in
// ticks.
type Ticks int64

const (
	// TicksPerSecond is the number of ticks in one second.
	TicksPerSecond Ticks = 10_000_000

	// TicksPerMillisecond is the number of ticks in one millisecond.
	TicksPerMillisecond Ticks = 10_000

	// TicksPerMicrosecond is the number of ticks in one microsecond.
	TicksPerMicrosecond Ticks = 10
)

// FromTime converts a time.Time into Ticks.
func FromTime(t time.Time) Ticks {
	return Ticks(t.UnixNano() / 100)
}

// FromSeconds converts a (possibly fractional) number of seconds into Ticks.
func FromSeconds(seconds float64) Ticks {
	return Ticks(math.Round(seconds * float64(TicksPerSecond)))
}

// FromDuration converts a time.Duration into Ticks.
func FromDuration(d time.Duration) Ticks {
	return Ticks(d / 100)
}

// Time returns the UTC time represented by t.
func (t Ticks) Time() time.Time {
	return time.Unix(0, int64(t)*100).UTC()
}

// Duration returns t as a time.Duration.
func (t Ticks) Duration() time.Duration {
	return time.Duration(t) * 100
}

// ToSeconds returns t as a number of seconds.
func (t Ticks) ToSeconds() float64 {
	return float64(t) / float64(TicksPerSecond)
}

// BaselinedTimestamp returns t rounded down to the top of its second.
func (t Ticks) BaselinedTimestamp() Ticks {
	return t - t.DistanceBeyondSecond()
}

// DistanceBeyondSecond returns the number of ticks elapsed since the top of
// the second containing t.
func (t Ticks) DistanceBeyondSecond() Ticks {
	rem := t % TicksPerSecond
	if rem < 0 {
		rem += TicksPerSecond
	}

	return rem
}

// TimeIsValid reports whether t lies within the window
// [now - lagTime, now + leadTime], both expressed in seconds.
func (t Ticks) TimeIsValid(now Ticks, lagTime, leadTime float64) bool {
	distance := (now - t).ToSeconds()
	return distance >= -leadTime && distance <= lagTime
}

// String formats t as a UTC timestamp with millisecond precision.
func (t Ticks) String() string {
	return t.Time().Format("2006-01-02 15:04:05.000")
}
