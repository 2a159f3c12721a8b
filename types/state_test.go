package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateStopped, "Stopped"},
		{StateStarted, "Started"},
		{StateDisposed, "Disposed"},
		{State(999), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			require.Equal(t, tt.want, tt.state.String())
		})
	}
}

func TestParseState(t *testing.T) {
	for _, s := range []State{StateStopped, StateStarted, StateDisposed} {
		got, ok := ParseState(s.String())
		require.True(t, ok)
		require.Equal(t, s, got)
	}

	_, ok := ParseState("Rebalancing")
	require.False(t, ok)
}
