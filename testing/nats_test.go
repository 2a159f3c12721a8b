package testing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/GridProtectionAlliance/gsf-sub046/types"
)

func TestStartEmbeddedNATS(t *testing.T) {
	ns, nc := StartEmbeddedNATS(t)

	require.NotNil(t, ns)
	require.True(t, nc.IsConnected())
	require.True(t, ns.ReadyForConnections(time.Second))
	require.True(t, ns.JetStreamEnabled())
}

// TestStartEmbeddedNATS_ParallelTests verifies parallel servers do not collide on ports.
func TestStartEmbeddedNATS_ParallelTests(t *testing.T) {
	t.Parallel()

	for range 5 {
		t.Run("parallel", func(t *testing.T) {
			t.Parallel()

			_, nc := StartEmbeddedNATS(t)
			require.True(t, nc.IsConnected())
		})
	}
}

func TestCreateJetStreamKV(t *testing.T) {
	_, nc := StartEmbeddedNATS(t)
	kv := CreateJetStreamKV(t, nc, "latest")

	_, err := kv.Put(t.Context(), "key", []byte("value"))
	require.NoError(t, err)

	entry, err := kv.Get(t.Context(), "key")
	require.NoError(t, err)
	require.Equal(t, "value", string(entry.Value()))
}

func TestCreateFrameStream(t *testing.T) {
	_, nc := StartEmbeddedNATS(t)
	stream := CreateFrameStream(t, nc, "FRAMES", "frames.>")

	require.NoError(t, nc.Publish("frames.test", []byte("{}")))
	require.NoError(t, nc.Flush())

	require.Eventually(t, func() bool {
		info, err := stream.Info(t.Context())
		return err == nil && info.State.Msgs == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRecordingPublisher(t *testing.T) {
	pub := NewRecordingPublisher()
	frame := types.NewFrame(types.FromSeconds(1))
	types.AssignEntity(frame, types.NewMeasurement(uuid.New(), frame.Timestamp, 1))

	go func() {
		_ = pub.PublishFrame(context.Background(), frame, 0)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	frames, err := pub.WaitFor(ctx, 1)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Same(t, frame, frames[0].Frame)

	pub.Err = errors.New("downstream unavailable")
	require.ErrorContains(t, pub.PublishFrame(context.Background(), frame, 1), "downstream")
	require.Equal(t, 2, pub.Count())

	short, stop := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer stop()
	_, err = pub.WaitFor(short, 5)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
