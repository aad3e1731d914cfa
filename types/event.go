package types

// EventType identifies the kind of change a watch event reports.
type EventType int

const (
	// EventAdded reports a newly observed object.
	EventAdded EventType = iota

	// EventModified reports a change to a known object.
	EventModified

	// EventDeleted reports removal of an object.
	EventDeleted

	// EventBookmark marks the end of the initial replay; it carries no object.
	EventBookmark

	// EventError reports a broken or stale stream ("history too old").
	// The consumer must perform a full re-list before resubscribing.
	EventError
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventAdded:
		return "added"
	case EventModified:
		return "modified"
	case EventDeleted:
		return "deleted"
	case EventBookmark:
		return "bookmark"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a single change notification from an object stream.
type Event struct {
	// Type classifies the notification.
	Type EventType

	// Object is the payload snapshot. For EventDeleted it carries at least
	// Kind, Name and the deletion revision. Unset for EventBookmark.
	Object Object

	// Err carries the stream failure for EventError events.
	Err error
}

// Classification is the dispatcher's verdict on an incoming event, computed
// by explicit version/generation comparison against the cache. It replaces
// exception-based "no real change" signaling with an enumerated result so the
// hot path stays branch-only.
type Classification int

const (
	// ClassStale marks duplicate or out-of-order events; they are silently
	// dropped without handler invocation.
	ClassStale Classification = iota

	// ClassAdded marks the first observation of an object.
	ClassAdded

	// ClassSpecChange marks a newer revision whose spec differs from cache.
	ClassSpecChange

	// ClassStatusChange marks a newer revision whose spec is unchanged but
	// whose status differs; dispatched separately so handlers can avoid
	// reconcile loops fed by their own status writes.
	ClassStatusChange

	// ClassDeleted marks removal of a cached object.
	ClassDeleted
)

// String returns the string representation of the classification.
func (c Classification) String() string {
	switch c {
	case ClassStale:
		return "stale"
	case ClassAdded:
		return "added"
	case ClassSpecChange:
		return "spec-change"
	case ClassStatusChange:
		return "status-change"
	case ClassDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}
