package types

import (
	"fmt"

	"github.com/google/uuid"
)

// Entity is one timestamped, identified datum flowing through the concentrator.
//
// Implementations must be immutable once created: the same Entity value may
// be read concurrently by the sorting goroutines, the down-sampling filter and
// the publisher.
type Entity interface {
	// ID returns the identifier of the signal this entity belongs to.
	ID() uuid.UUID

	// Timestamp returns the time the entity was measured.
	Timestamp() Ticks

	// TimestampQualityIsGood reports whether Timestamp can be trusted for sorting.
	TimestampQualityIsGood() bool
}

// StateFlags is a bitmask describing the quality of a measurement.
type StateFlags uint32

// Normal indicates no quality issues.
const Normal StateFlags = 0

const (
	// BadData indicates the value is known to be bad.
	BadData StateFlags = 1 << iota

	// SuspectData indicates the value may be bad.
	SuspectData

	// BadTime indicates the timestamp is known to be bad.
	BadTime

	// SuspectTime indicates the timestamp may be bad.
	SuspectTime

	// LateTimeAlarm indicates the timestamp arrived later than allowed.
	LateTimeAlarm

	// FutureTimeAlarm indicates the timestamp is ahead of the local clock.
	FutureTimeAlarm

	// DiscardedValue marks a value that was discarded by the concentrator.
	DiscardedValue
)

// timeQualityMask groups every flag that makes a timestamp untrustworthy.
const timeQualityMask = BadTime | SuspectTime | LateTimeAlarm | FutureTimeAlarm

// Has reports whether all bits of flag are set.
func (f StateFlags) Has(flag StateFlags) bool {
	return f&flag == flag
}

// Measurement is the stock Entity implementation: a single scalar value for a signal.
type Measurement struct {
	SignalID uuid.UUID  `json:"id"`
	Time     Ticks      `json:"ts"`
	Value    float64    `json:"value"`
	Flags    StateFlags `json:"flags,omitempty"`
}

// Compile-time assertion that Measurement implements Entity.
var _ Entity = (*Measurement)(nil)

// NewMeasurement creates a measurement with normal quality.
func NewMeasurement(id uuid.UUID, timestamp Ticks, value float64) *Measurement {
	return &Measurement{SignalID: id, Time: timestamp, Value: value}
}

// ID returns the signal identifier.
func (m *Measurement) ID() uuid.UUID { return m.SignalID }

// Timestamp returns the measurement time.
func (m *Measurement) Timestamp() Ticks { return m.Time }

// TimestampQualityIsGood reports whether no time quality flag is set.
func (m *Measurement) TimestampQualityIsGood() bool {
	return m.Flags&timeQualityMask == 0
}

// ValueQualityIsGood reports whether no data quality flag is set.
func (m *Measurement) ValueQualityIsGood() bool {
	return m.Flags&(BadData|SuspectData) == 0
}

func (m *Measurement) String() string {
	return fmt.Sprintf("%s@%s=%g", m.SignalID, m.Time, m.Value)
}
