package kvutil

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// EnsureStreamWithRetry creates a stream or updates it to match config.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream context
//   - config: Stream configuration, Name and Subjects are required
//   - maxRetries: Maximum number of attempts (3 when <= 0)
//
// Returns:
//   - jetstream.Stream: The stream handle
//   - error: Last error after all attempts
func EnsureStreamWithRetry(
	ctx context.Context,
	js jetstream.JetStream,
	config jetstream.StreamConfig,
	maxRetries int,
) (jetstream.Stream, error) {
	stream, err := withRetry(ctx, maxRetries, func() (jetstream.Stream, error) {
		return js.CreateOrUpdateStream(ctx, config)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream %s: %w", config.Name, err)
	}

	return stream, nil
}
