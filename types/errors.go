package types

import "errors"

// Sentinel errors for the concentrator.
//
// These errors provide type-safe error checking using errors.Is().
// Components wrap them with context using fmt.Errorf("%w: ...", err) so the
// sentinel identity survives.

// Concentrator errors - public API errors returned by the Concentrator.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrPublisherRequired is returned when no frame publisher is supplied.
	ErrPublisherRequired = errors.New("frame publisher is required")

	// ErrAlreadyStarted is returned when Start is called on a started concentrator.
	ErrAlreadyStarted = errors.New("concentrator already started")

	// ErrNotStarted is returned when Stop is called on a stopped concentrator.
	ErrNotStarted = errors.New("concentrator not started")

	// ErrDisposed is returned for operations on a closed concentrator.
	ErrDisposed = errors.New("concentrator disposed")

	// ErrPublishPanic wraps a panic raised by a Publisher.
	ErrPublishPanic = errors.New("frame publisher panicked")
)

// Configuration errors - returned by Config.Validate and runtime setters.
var (
	// ErrInvalidFramesPerSecond is returned for a frame rate below one.
	ErrInvalidFramesPerSecond = errors.New("frames per second must be at least one")

	// ErrInvalidLagTime is returned for a non-positive lag time.
	ErrInvalidLagTime = errors.New("lag time must be greater than zero, but it can be less than one")

	// ErrInvalidLeadTime is returned for a non-positive lead time.
	ErrInvalidLeadTime = errors.New("lead time must be greater than zero, but it can be less than one")

	// ErrPrecisionTimerRequired is returned when the precision timer is disabled
	// while a positive processing interval is defined.
	ErrPrecisionTimerRequired = errors.New("precision timer is required for a positive processing interval")

	// ErrPrecisionTimerUnavailable is returned when the precision timer is enabled
	// while the processing interval is zero.
	ErrPrecisionTimerUnavailable = errors.New("precision timer cannot be used with a zero processing interval")

	// ErrCreationTimeRequired is returned when creation-time processing is disabled
	// while a processing interval is defined.
	ErrCreationTimeRequired = errors.New("processing by creation time cannot be disabled when a processing interval is defined")

	// ErrNilFilter is returned when a nil filter is assigned at runtime.
	ErrNilFilter = errors.New("filter function is required")
)

// Timer errors - returned by the frame rate timer registry.
var (
	// ErrInvalidInterval is returned when a timer is requested for a zero processing interval.
	ErrInvalidInterval = errors.New("a frame rate timer cannot be created with a zero processing interval")

	// ErrRegistryClosed is returned when subscribing to a closed registry.
	ErrRegistryClosed = errors.New("timer registry closed")
)

// Transport errors - shared by NATS ingestion and publication.
var (
	// ErrConnectivity indicates a NATS connectivity issue.
	ErrConnectivity = errors.New("connectivity issue")

	// ErrDecode is returned for undecodable wire messages.
	ErrDecode = errors.New("failed to decode message")

	// ErrIngestorStarted is returned when Start is called on a running ingestor.
	ErrIngestorStarted = errors.New("ingestor already started")

	// ErrIngestorNotStarted is returned when Stop is called before Start.
	ErrIngestorNotStarted = errors.New("ingestor not started")
)
