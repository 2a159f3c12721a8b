package concentrator

import "github.com/GridProtectionAlliance/gsf-sub046/types"

// Sentinel errors returned by the Concentrator, re-exported from types so
// callers can match them with errors.Is without importing the subpackage.
var (
	ErrInvalidConfig     = types.ErrInvalidConfig
	ErrPublisherRequired = types.ErrPublisherRequired
	ErrAlreadyStarted    = types.ErrAlreadyStarted
	ErrNotStarted        = types.ErrNotStarted
	ErrDisposed          = types.ErrDisposed
	ErrPublishPanic      = types.ErrPublishPanic
)

// Configuration errors returned by Config.Validate and the runtime setters.
var (
	ErrInvalidFramesPerSecond    = types.ErrInvalidFramesPerSecond
	ErrInvalidLagTime            = types.ErrInvalidLagTime
	ErrInvalidLeadTime           = types.ErrInvalidLeadTime
	ErrPrecisionTimerRequired    = types.ErrPrecisionTimerRequired
	ErrPrecisionTimerUnavailable = types.ErrPrecisionTimerUnavailable
	ErrCreationTimeRequired      = types.ErrCreationTimeRequired
	ErrNilFilter                 = types.ErrNilFilter
)
