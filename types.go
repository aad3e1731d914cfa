package controlloop

import (
	"time"

	"github.com/jefflill/neonKUBE-sub003/types"
)

// Re-export types from the internal types package.
//
// This file provides a stable, backward-compatible public API for the library's
// core types and interfaces. It uses type aliases to re-export definitions
// from the `types` subpackage, which contains the actual implementations.
//
// This pattern solves the "import cycle" problem by allowing internal packages
// to depend on `types` without depending on the root `controlloop` package,
// while still providing a convenient `controlloop.Object`, `controlloop.Handler`,
// etc. for users.
type (
	Object         = types.Object
	Event          = types.Event
	EventType      = types.EventType
	Classification = types.Classification
	LeaseRecord    = types.LeaseRecord
	ElectionState  = types.ElectionState
	Directive      = types.Directive
	Callbacks      = types.Callbacks
)

// Re-export interfaces from the internal types package for convenience.
type (
	Handler          = types.Handler
	HandlerFuncs     = types.HandlerFuncs
	LeaseStore       = types.LeaseStore
	ObjectStream     = types.ObjectStream
	Watcher          = types.Watcher
	MetricsCollector = types.MetricsCollector
	Logger           = types.Logger
)

// ErrTerminal marks a handler failure that retrying cannot fix; the engine
// schedules no retry and waits for the object's next spec change.
var ErrTerminal = types.ErrTerminal

// Done is the "no further action" directive.
func Done() Directive { return types.Done() }

// RequeueAfter returns a directive requesting re-invocation after d.
func RequeueAfter(d time.Duration) Directive { return types.RequeueAfter(d) }

// Re-export event type constants from the internal types package.
const (
	EventAdded    = types.EventAdded
	EventModified = types.EventModified
	EventDeleted  = types.EventDeleted
	EventBookmark = types.EventBookmark
	EventError    = types.EventError
)

// Re-export election state constants from the internal types package.
const (
	StateStandby = types.StateStandby
	StateLeading = types.StateLeading
)
