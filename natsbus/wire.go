package natsbus

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/GridProtectionAlliance/gsf-sub046/types"
)

// EntityMessage is the wire form of one measurement.
type EntityMessage struct {
	ID        uuid.UUID        `json:"id"`
	Timestamp types.Ticks      `json:"ts"`
	Value     float64          `json:"value"`
	Flags     types.StateFlags `json:"flags,omitempty"`
}

// FrameMessage is the wire form of a published frame.
type FrameMessage struct {
	Timestamp   types.Ticks     `json:"ts"`
	Index       int             `json:"index"`
	PublishedAt types.Ticks     `json:"publishedAt,omitempty"`
	Entities    []EntityMessage `json:"entities"`
}

// Measurement converts the message to a concentrator entity.
func (m EntityMessage) Measurement() *types.Measurement {
	return &types.Measurement{SignalID: m.ID, Time: m.Timestamp, Value: m.Value, Flags: m.Flags}
}

// entityMessage converts any entity to its wire form. Entities other than
// *types.Measurement carry only their identity and timestamp.
func entityMessage(e types.Entity) EntityMessage {
	if m, ok := e.(*types.Measurement); ok {
		return EntityMessage{ID: m.SignalID, Timestamp: m.Time, Value: m.Value, Flags: m.Flags}
	}

	msg := EntityMessage{ID: e.ID(), Timestamp: e.Timestamp()}
	if !e.TimestampQualityIsGood() {
		msg.Flags = types.BadTime
	}

	return msg
}

// EncodeEntities encodes a measurement batch as a JSON array.
func EncodeEntities(entities ...types.Entity) ([]byte, error) {
	msgs := make([]EntityMessage, 0, len(entities))
	for _, e := range entities {
		msgs = append(msgs, entityMessage(e))
	}

	data, err := json.Marshal(msgs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entities: %w", err)
	}

	return data, nil
}

// DecodeEntities decodes a measurement batch, accepting a JSON array or a
// single object.
//
// Returns:
//   - []types.Entity: Decoded measurements
//   - error: types.ErrDecode wrapped with the cause
func DecodeEntities(data []byte) ([]types.Entity, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty payload", types.ErrDecode)
	}

	var msgs []EntityMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrDecode, err)
		}
	} else {
		var msg EntityMessage
		if err := json.Unmarshal(trimmed, &msg); err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrDecode, err)
		}
		msgs = append(msgs, msg)
	}

	entities := make([]types.Entity, 0, len(msgs))
	for i, msg := range msgs {
		if msg.ID == uuid.Nil {
			return nil, fmt.Errorf("%w: entity %d has no id", types.ErrDecode, i)
		}
		entities = append(entities, msg.Measurement())
	}

	return entities, nil
}

// EncodeFrame encodes a frame. Entities are ordered by signal ID so equal
// frames encode to equal bytes.
func EncodeFrame(frame *types.Frame, index int) ([]byte, error) {
	msg := FrameMessage{
		Timestamp:   frame.Timestamp,
		Index:       index,
		PublishedAt: frame.PublishedAt,
		Entities:    make([]EntityMessage, 0, len(frame.Entities)),
	}
	for _, e := range frame.Entities {
		msg.Entities = append(msg.Entities, entityMessage(e))
	}
	slices.SortFunc(msg.Entities, func(a, b EntityMessage) int {
		return bytes.Compare(a.ID[:], b.ID[:])
	})

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame %s: %w", frame.Timestamp, err)
	}

	return data, nil
}

// DecodeFrame decodes a frame message.
func DecodeFrame(data []byte) (*FrameMessage, error) {
	var msg FrameMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrDecode, err)
	}

	return &msg, nil
}
