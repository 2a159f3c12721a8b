package natsbus

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	concentratortest "github.com/GridProtectionAlliance/gsf-sub046/testing"
	"github.com/GridProtectionAlliance/gsf-sub046/types"
)

func newTestFrame(timestamp types.Ticks, ids ...uuid.UUID) *types.Frame {
	frame := types.NewFrame(timestamp)
	for i, id := range ids {
		types.AssignEntity(frame, types.NewMeasurement(id, timestamp, float64(i)+0.5))
	}

	return frame
}

func TestFramePublisher(t *testing.T) {
	_, nc := concentratortest.StartEmbeddedNATS(t)
	js, err := jetstream.New(nc)
	require.NoError(t, err)

	pub := NewFramePublisher(js, "frames.test",
		WithStreamName("TEST_FRAMES"),
		WithLatestValueBucket("latest"),
		WithDuplicateWindow(time.Minute),
		WithPublisherLogger(concentratortest.NewTestLogger(t)),
	)
	require.NoError(t, pub.EnsureStream(t.Context()))
	require.NoError(t, pub.EnsureStream(t.Context()), "EnsureStream is idempotent")

	ids := []uuid.UUID{uuid.New(), uuid.New()}
	frame := newTestFrame(types.FromSeconds(1_700_000_000), ids...)

	require.NoError(t, pub.PublishFrame(t.Context(), frame, 3))

	stream, err := js.Stream(t.Context(), "TEST_FRAMES")
	require.NoError(t, err)

	msg, err := stream.GetLastMsgForSubject(t.Context(), "frames.test")
	require.NoError(t, err)

	decoded, err := DecodeFrame(msg.Data)
	require.NoError(t, err)
	require.Equal(t, frame.Timestamp, decoded.Timestamp)
	require.Equal(t, 3, decoded.Index)
	require.Len(t, decoded.Entities, 2)

	t.Run("duplicate frame is stored once", func(t *testing.T) {
		require.NoError(t, pub.PublishFrame(t.Context(), frame, 3))

		info, err := stream.Info(t.Context())
		require.NoError(t, err)
		require.Equal(t, uint64(1), info.State.Msgs)
	})

	t.Run("latest values", func(t *testing.T) {
		kv, err := js.KeyValue(t.Context(), "latest")
		require.NoError(t, err)

		next := newTestFrame(frame.Timestamp+types.TicksPerSecond/30, ids[0])
		require.NoError(t, pub.PublishFrame(t.Context(), next, 4))

		entry, err := kv.Get(t.Context(), ids[0].String())
		require.NoError(t, err)
		entities, err := DecodeEntities(entry.Value())
		require.NoError(t, err)
		require.Equal(t, next.Timestamp, entities[0].Timestamp())

		entry, err = kv.Get(t.Context(), ids[1].String())
		require.NoError(t, err)
		entities, err = DecodeEntities(entry.Value())
		require.NoError(t, err)
		require.Equal(t, frame.Timestamp, entities[0].Timestamp())
	})
}

func TestFramePublisherMessageID(t *testing.T) {
	a := NewFramePublisher(nil, "frames.a")
	b := NewFramePublisher(nil, "frames.b")

	require.Equal(t, a.messageID(100), a.messageID(100))
	require.NotEqual(t, a.messageID(100), a.messageID(101))
	require.NotEqual(t, a.messageID(100), b.messageID(100))
	require.Len(t, a.messageID(100), 16)
}

func TestFramePublisherConnectivityError(t *testing.T) {
	ns, nc := concentratortest.StartEmbeddedNATS(t)
	js, err := jetstream.New(nc)
	require.NoError(t, err)

	pub := NewFramePublisher(js, "frames.down", WithStreamName("DOWN"))
	require.NoError(t, pub.EnsureStream(t.Context()))

	nc.Close()
	ns.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err = pub.PublishFrame(ctx, newTestFrame(types.FromSeconds(1), uuid.New()), 0)
	require.ErrorIs(t, err, types.ErrConnectivity)
}
