package testing

import (
	"testing"

	"github.com/GridProtectionAlliance/gsf-sub046/internal/logging"
	"github.com/GridProtectionAlliance/gsf-sub046/types"
)

// NewTestLogger creates a logger that writes to the testing.T logger, so log
// output appears next to the test that produced it.
func NewTestLogger(t testing.TB) types.Logger {
	return logging.NewTest(t)
}
