package kvutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	concentratortest "github.com/GridProtectionAlliance/gsf-sub046/testing"
)

func newJetStream(t *testing.T) jetstream.JetStream {
	t.Helper()

	_, nc := concentratortest.StartEmbeddedNATS(t)
	js, err := jetstream.New(nc)
	require.NoError(t, err)

	return js
}

func TestEnsureKVBucketWithRetry(t *testing.T) {
	js := newJetStream(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	t.Run("creates then reopens", func(t *testing.T) {
		cfg := jetstream.KeyValueConfig{Bucket: "latest-values", History: 1}

		kv, err := EnsureKVBucketWithRetry(ctx, js, cfg, 3)
		require.NoError(t, err)
		_, err = kv.Put(ctx, "signal", []byte("60.01"))
		require.NoError(t, err)

		reopened, err := EnsureKVBucketWithRetry(ctx, js, cfg, 3)
		require.NoError(t, err)

		entry, err := reopened.Get(ctx, "signal")
		require.NoError(t, err)
		require.Equal(t, "60.01", string(entry.Value()))
	})

	t.Run("concurrent creates", func(t *testing.T) {
		cfg := jetstream.KeyValueConfig{Bucket: "latest-concurrent", History: 1}

		const workers = 5
		var wg sync.WaitGroup
		errs := make([]error, workers)
		for i := range workers {
			wg.Go(func() {
				_, errs[i] = EnsureKVBucketWithRetry(ctx, js, cfg, 5)
			})
		}
		wg.Wait()

		for i, err := range errs {
			require.NoError(t, err, "worker %d", i)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		cancelled, stop := context.WithCancel(context.Background())
		stop()

		_, err := EnsureKVBucketWithRetry(cancelled, js, jetstream.KeyValueConfig{Bucket: "never"}, 3)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestEnsureStreamWithRetry(t *testing.T) {
	js := newJetStream(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := jetstream.StreamConfig{
		Name:     "FRAMES",
		Subjects: []string{"frames.>"},
		Storage:  jetstream.MemoryStorage,
	}

	stream, err := EnsureStreamWithRetry(ctx, js, cfg, 3)
	require.NoError(t, err)
	require.Equal(t, "FRAMES", stream.CachedInfo().Config.Name)

	cfg.MaxMsgs = 100
	updated, err := EnsureStreamWithRetry(ctx, js, cfg, 3)
	require.NoError(t, err)
	require.Equal(t, int64(100), updated.CachedInfo().Config.MaxMsgs)

	_, err = EnsureStreamWithRetry(ctx, js, jetstream.StreamConfig{Name: "bad.name"}, 2)
	require.Error(t, err)
}

func TestWithRetryBacksOff(t *testing.T) {
	attempts := 0
	result, err := withRetry(context.Background(), 3, func() (int, error) {
		attempts++
		if attempts < 3 {
			return 0, context.DeadlineExceeded
		}

		return 42, nil
	})

	require.NoError(t, err)
	require.Equal(t, 42, result)
	require.Equal(t, 3, attempts)

	attempts = 0
	_, err = withRetry(context.Background(), 0, func() (int, error) {
		attempts++
		return 0, context.DeadlineExceeded
	})
	require.ErrorContains(t, err, "gave up after 3 attempts")
	require.Equal(t, defaultRetries, attempts)
}
