package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSentinelErrors(t *testing.T) {
	t.Run("wrapped errors keep identity", func(t *testing.T) {
		wrapped := fmt.Errorf("%w: got %v", ErrInvalidLagTime, -1.0)
		require.ErrorIs(t, wrapped, ErrInvalidLagTime)
		require.NotErrorIs(t, wrapped, ErrInvalidLeadTime)
	})

	t.Run("all errors are distinct", func(t *testing.T) {
		allErrors := []error{
			ErrInvalidConfig,
			ErrPublisherRequired,
			ErrAlreadyStarted,
			ErrNotStarted,
			ErrDisposed,
			ErrPublishPanic,
			ErrInvalidFramesPerSecond,
			ErrInvalidLagTime,
			ErrInvalidLeadTime,
			ErrPrecisionTimerRequired,
			ErrPrecisionTimerUnavailable,
			ErrCreationTimeRequired,
			ErrNilFilter,
			ErrInvalidInterval,
			ErrRegistryClosed,
			ErrConnectivity,
			ErrDecode,
			ErrIngestorStarted,
			ErrIngestorNotStarted,
		}

		for i, a := range allErrors {
			for j, b := range allErrors {
				if i != j {
					require.False(t, errors.Is(a, b), "%v should not match %v", a, b)
				}
			}
		}
	})
}
