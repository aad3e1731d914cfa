package controlloop

import "errors"

// Sentinel errors returned by the control plane.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNATSConnectionRequired is returned when NATS connection is nil.
	ErrNATSConnectionRequired = errors.New("NATS connection is required")

	// ErrLeaseStoreRequired is returned when the lease store is nil.
	ErrLeaseStoreRequired = errors.New("lease store is required")

	// ErrStreamRequired is returned when an engine is registered without an object stream.
	ErrStreamRequired = errors.New("object stream is required")

	// ErrHandlerRequired is returned when an engine is registered without a handler.
	ErrHandlerRequired = errors.New("handler is required")

	// ErrKindRegistered is returned when two engines are registered for the same kind.
	ErrKindRegistered = errors.New("resource kind already registered")

	// ErrJobRegistered is returned when two periodic jobs share a name.
	ErrJobRegistered = errors.New("periodic job already registered")

	// ErrInvalidJob is returned when a periodic job definition fails validation.
	ErrInvalidJob = errors.New("invalid periodic job")

	// ErrAlreadyStarted is returned when Start is called on a running control plane.
	ErrAlreadyStarted = errors.New("control plane already started")

	// ErrNotStarted is returned when Stop is called before Start.
	ErrNotStarted = errors.New("control plane not started")
)
