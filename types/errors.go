package types

import "errors"

// Sentinel errors shared across the control-loop engine.
//
// Components use these for known conditions checked with errors.Is and wrap
// external errors with context using fmt.Errorf("...: %w", err).

// Lease store errors - expected concurrency signals, not failures.
var (
	// ErrLeaseNotFound is returned when the lease record does not exist.
	ErrLeaseNotFound = errors.New("lease record not found")

	// ErrLeaseExists is returned by Create when the record already exists.
	ErrLeaseExists = errors.New("lease record already exists")

	// ErrLeaseConflict is returned by Update when the conditioned revision
	// is no longer current; it signals a concurrent write by another process.
	ErrLeaseConflict = errors.New("lease revision conflict")
)

// Stream errors.
var (
	// ErrStreamGone indicates the watch stream lost history and the consumer
	// must re-list before resubscribing.
	ErrStreamGone = errors.New("watch stream history gone")

	// ErrWatcherStopped is returned when operations race with watcher shutdown.
	ErrWatcherStopped = errors.New("watcher stopped")
)

// Connectivity errors.
var (
	// ErrConnectivity indicates a transient store/stream I/O problem. Such
	// errors are retried on the next tick or dispatch cycle, never fatal.
	ErrConnectivity = errors.New("connectivity issue")
)

// Handler errors.
var (
	// ErrTerminal marks a handler failure that retrying cannot fix, such as
	// an unparsable field in the object's spec. The engine logs and counts it
	// but schedules no retry; the object is revisited only when its spec
	// changes. Handlers should surface the problem through the object's
	// status field for operator visibility.
	ErrTerminal = errors.New("terminal reconcile error")
)
