package controlloop

import (
	"sort"
	"sync"
	"time"

	"github.com/jefflill/neonKUBE-sub003/types"
)

// cacheEntry tracks one object's latest accepted snapshot together with its
// retry bookkeeping. Entries marked deleted are awaiting a successful Delete
// handler invocation and are excluded from snapshots.
type cacheEntry struct {
	object     types.Object
	specHash   uint64
	errCount   int
	backoff    backoffState
	deleted    bool
	retryClass types.Classification
}

// resourceCache is the engine's complete in-memory view of one resource
// kind. The engine goroutine is the only writer; the mutex exists so
// read-only accessors (Snapshot) can be called from other goroutines.
type resourceCache struct {
	entries map[string]*cacheEntry

	minRequeue time.Duration
	maxRequeue time.Duration

	mu sync.RWMutex
}

func newResourceCache(minRequeue, maxRequeue time.Duration) *resourceCache {
	return &resourceCache{
		entries:    make(map[string]*cacheEntry),
		minRequeue: minRequeue,
		maxRequeue: maxRequeue,
	}
}

// get returns the entry for name, nil if unknown.
func (c *resourceCache) get(name string) *cacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.entries[name]
}

// upsert commits a newer snapshot, creating the entry on first observation.
// A recreated object (entry pending deletion) starts fresh bookkeeping.
func (c *resourceCache) upsert(obj types.Object) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[obj.Name]
	if !ok || entry.deleted {
		entry = &cacheEntry{backoff: newBackoff(c.minRequeue, c.maxRequeue)}
		c.entries[obj.Name] = entry
	}

	entry.object = obj
	entry.specHash = obj.SpecHash()
	entry.deleted = false

	return entry
}

// markDeleted flags the entry as pending deletion so it disappears from
// snapshots while its Delete invocation can still be retried.
func (c *resourceCache) markDeleted(name string, revision uint64) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[name]
	if !ok {
		return nil
	}

	entry.deleted = true
	entry.object.Revision = revision
	entry.object.Spec = nil
	entry.object.Status = nil

	return entry
}

// remove discards the entry and its retry bookkeeping entirely.
func (c *resourceCache) remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, name)
}

// names returns all entry names, including pending deletions.
func (c *resourceCache) names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.entries))
	for name := range c.entries {
		out = append(out, name)
	}

	return out
}

// snapshot returns deep copies of every committed (non-deleted) object,
// sorted by name for deterministic handler input.
func (c *resourceCache) snapshot() []types.Object {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]types.Object, 0, len(c.entries))
	for _, entry := range c.entries {
		if entry.deleted {
			continue
		}
		out = append(out, entry.object.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}
