package controlloop

import (
	"bytes"

	"github.com/jefflill/neonKUBE-sub003/types"
)

// dispatcher classifies incoming watch events against the engine's cache.
//
// Classification is a pure version/generation comparison producing an
// enumerated result; the engine's dispatch switch consumes it directly, so
// "no real change" never travels as an error through the hot path.
type dispatcher struct {
	cache *resourceCache
}

// classify returns the verdict for one event.
//
// Rules, in order:
//   - Events whose revision is not greater than the cached revision are
//     stale (duplicates and out-of-order deliveries); watcher replays after
//     a resubscribe redeliver tombstones, so this applies to Deleted too
//   - Deleted events for unknown objects are stale
//   - A newer revision with a changed spec is a spec change
//   - A newer revision with an unchanged spec but changed status is a
//     status-only change
//   - A newer revision changing neither payload is stale (bare resync)
//
// Spec comparison uses producer generations when both snapshots carry one,
// and spec-hash equality otherwise.
func (d *dispatcher) classify(evt types.Event) types.Classification {
	switch evt.Type {
	case types.EventDeleted:
		entry := d.cache.get(evt.Object.Name)
		if entry == nil || evt.Object.Revision <= entry.object.Revision {
			return types.ClassStale
		}

		return types.ClassDeleted

	case types.EventAdded, types.EventModified:
		entry := d.cache.get(evt.Object.Name)
		if entry == nil || entry.deleted {
			return types.ClassAdded
		}
		if evt.Object.Revision <= entry.object.Revision {
			return types.ClassStale
		}
		if d.specChanged(entry, &evt.Object) {
			return types.ClassSpecChange
		}
		if !bytes.Equal(entry.object.Status, evt.Object.Status) {
			return types.ClassStatusChange
		}

		return types.ClassStale

	default:
		// Bookmarks and stream errors are handled before classification.
		return types.ClassStale
	}
}

func (d *dispatcher) specChanged(entry *cacheEntry, incoming *types.Object) bool {
	if entry.object.Generation != 0 && incoming.Generation != 0 {
		return incoming.Generation != entry.object.Generation
	}

	return incoming.SpecHash() != entry.specHash
}
