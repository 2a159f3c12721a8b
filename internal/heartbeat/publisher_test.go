package heartbeat

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	concentratortest "github.com/GridProtectionAlliance/gsf-sub046/testing"
)

type snapshot struct {
	PublishedFrames int64 `json:"publishedFrames"`
}

func readMessage(t *testing.T, kv jetstream.KeyValue, key string) (Message, snapshot) {
	t.Helper()

	entry, err := kv.Get(t.Context(), key)
	require.NoError(t, err)

	var raw struct {
		Message
		Status snapshot `json:"status"`
	}
	require.NoError(t, json.Unmarshal(entry.Value(), &raw))

	return raw.Message, raw.Status
}

func TestPublisher_Start(t *testing.T) {
	t.Run("publishes immediately", func(t *testing.T) {
		_, nc := concentratortest.StartEmbeddedNATS(t)
		kv := concentratortest.CreateJetStreamKV(t, nc, "status-start")

		hb := New(kv, "status", "east", time.Second, func() any { return snapshot{PublishedFrames: 7} })
		require.NoError(t, hb.Start(t.Context()))
		require.True(t, hb.IsStarted())
		t.Cleanup(func() { _ = hb.Stop() })

		msg, status := readMessage(t, kv, "status.east")
		require.Equal(t, "east", msg.Instance)
		require.False(t, msg.Timestamp.IsZero())
		require.Equal(t, int64(7), status.PublishedFrames)
	})

	t.Run("requires instance", func(t *testing.T) {
		_, nc := concentratortest.StartEmbeddedNATS(t)
		kv := concentratortest.CreateJetStreamKV(t, nc, "status-noinstance")

		hb := New(kv, "status", "", time.Second, nil)
		require.ErrorIs(t, hb.Start(t.Context()), ErrNoInstance)
		require.False(t, hb.IsStarted())
	})

	t.Run("rejects double start", func(t *testing.T) {
		_, nc := concentratortest.StartEmbeddedNATS(t)
		kv := concentratortest.CreateJetStreamKV(t, nc, "status-double")

		hb := New(kv, "status", "east", time.Second, nil)
		require.NoError(t, hb.Start(t.Context()))
		require.ErrorIs(t, hb.Start(t.Context()), ErrAlreadyStarted)
		require.NoError(t, hb.Stop())
	})
}

func TestPublisher_Interval(t *testing.T) {
	_, nc := concentratortest.StartEmbeddedNATS(t)
	kv := concentratortest.CreateJetStreamKV(t, nc, "status-interval")

	var frames atomic.Int64
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	hb := New(kv, "status", "east", 5*time.Second, func() any {
		return snapshot{PublishedFrames: frames.Load()}
	})
	hb.SetClock(mock)
	hb.SetLogger(concentratortest.NewTestLogger(t))
	require.NoError(t, hb.Start(t.Context()))
	t.Cleanup(func() { _ = hb.Stop() })

	frames.Store(150)
	mock.Add(5 * time.Second)

	require.Eventually(t, func() bool {
		_, status := readMessage(t, kv, "status.east")
		return status.PublishedFrames == 150
	}, 2*time.Second, 10*time.Millisecond)

	msg, _ := readMessage(t, kv, "status.east")
	require.Equal(t, mock.Now().UTC(), msg.Timestamp)
}

func TestPublisher_Stop(t *testing.T) {
	_, nc := concentratortest.StartEmbeddedNATS(t)
	kv := concentratortest.CreateJetStreamKV(t, nc, "status-stop")

	hb := New(kv, "status", "east", time.Second, nil)
	require.ErrorIs(t, hb.Stop(), ErrNotStarted)

	require.NoError(t, hb.Start(t.Context()))
	require.NoError(t, hb.Stop())
	require.False(t, hb.IsStarted())

	_, err := kv.Get(context.Background(), "status.east")
	require.ErrorIs(t, err, jetstream.ErrKeyNotFound)

	require.NoError(t, hb.Start(t.Context()), "restart after stop")
	require.NoError(t, hb.Stop())
}
