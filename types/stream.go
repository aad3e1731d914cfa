package types

import "context"

// ObjectStream provides the change-notification stream for one resource kind.
//
// Implementations must deliver events for a single object in non-decreasing
// revision order. After an EventError the consumer is expected to call List
// to rebuild its view and then Watch again; implementations must tolerate
// that cycle repeatedly.
type ObjectStream interface {
	// Kind returns the resource kind this stream serves.
	Kind() string

	// List returns a snapshot of all current objects of the kind.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//
	// Returns:
	//   - []Object: Current object snapshots (order unspecified)
	//   - error: Store error (nil on success)
	List(ctx context.Context) ([]Object, error)

	// Watch subscribes to change notifications for the kind.
	//
	// The returned watcher replays current state as EventAdded events,
	// emits a single EventBookmark once the replay is complete, and then
	// streams live changes until stopped or the stream fails.
	//
	// Parameters:
	//   - ctx: Context bounding the subscription lifetime
	//
	// Returns:
	//   - Watcher: Active subscription
	//   - error: Subscription error (nil on success)
	Watch(ctx context.Context) (Watcher, error)
}

// Watcher is an active change-notification subscription.
type Watcher interface {
	// Events returns the channel delivering watch events. The channel is
	// closed when the watcher is stopped or its context is cancelled.
	Events() <-chan Event

	// Stop terminates the subscription and releases its resources.
	Stop() error
}
