// Package kvutil creates or opens the JetStream resources the transport
// layer depends on: the frame stream and the latest-value KV bucket.
//
// Several concentrator processes may start at once against the same server,
// so every helper tolerates "already exists" races and retries transient
// failures with exponential backoff.
package kvutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	defaultRetries = 3
	baseBackoff    = 10 * time.Millisecond
)

// EnsureKVBucketWithRetry creates or opens a KV bucket.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream context
//   - config: KV bucket configuration
//   - maxRetries: Maximum number of attempts (3 when <= 0)
//
// Returns:
//   - jetstream.KeyValue: The KV bucket instance
//   - error: Last error after all attempts
//
// Example:
//
//	kv, err := kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
//	    Bucket:  "concentrator-latest",
//	    History: 1,
//	}, 3)
func EnsureKVBucketWithRetry(
	ctx context.Context,
	js jetstream.JetStream,
	config jetstream.KeyValueConfig,
	maxRetries int,
) (jetstream.KeyValue, error) {
	kv, err := withRetry(ctx, maxRetries, func() (jetstream.KeyValue, error) {
		kv, err := js.CreateKeyValue(ctx, config)
		if err == nil {
			return kv, nil
		}

		if errors.Is(err, jetstream.ErrBucketExists) {
			kv, err = js.KeyValue(ctx, config.Bucket)
			if err != nil {
				return nil, fmt.Errorf("bucket exists but failed to open: %w", err)
			}

			return kv, nil
		}

		return nil, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/open KV bucket %s: %w", config.Bucket, err)
	}

	return kv, nil
}

// withRetry runs op until it succeeds, ctx is done or maxRetries attempts
// failed. Backoff doubles from baseBackoff between attempts.
func withRetry[T any](ctx context.Context, maxRetries int, op func() (T, error)) (T, error) {
	if maxRetries <= 0 {
		maxRetries = defaultRetries
	}

	var (
		zero    T
		lastErr error
	)

	for attempt := range maxRetries {
		result, err := op()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, fmt.Errorf("context cancelled after %d attempts: %w", attempt+1, ctx.Err())
		}

		if attempt < maxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * baseBackoff //nolint:gosec // attempt is bounded by maxRetries
			select {
			case <-ctx.Done():
				return zero, fmt.Errorf("context cancelled after %d attempts: %w", attempt+1, ctx.Err())
			case <-time.After(backoff):
			}
		}
	}

	return zero, fmt.Errorf("gave up after %d attempts: %w", maxRetries, lastErr)
}
