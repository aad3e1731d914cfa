package types

import (
	"encoding/json"

	"github.com/zeebo/xxh3"
)

// Object is the engine's view of a single managed resource.
//
// Objects are immutable snapshots: the engine hands deep copies to handlers,
// never references into its cache. Revision is the monotonically increasing
// version assigned by the object store (the KV entry revision); events whose
// revision is not greater than the cached revision are discarded.
//
// Generation, when non-zero, is a producer-supplied counter that increments
// only on spec changes. When both the cached and incoming objects carry a
// generation, status-only changes are detected by comparing generations;
// otherwise the spec payloads are hashed and compared.
type Object struct {
	// Kind is the resource kind this object belongs to (e.g., "container-registry").
	Kind string `json:"kind"`

	// Name uniquely identifies the object within its kind.
	Name string `json:"name"`

	// Revision is the store-assigned monotonic version of this snapshot.
	Revision uint64 `json:"revision"`

	// Generation increments on spec changes only. Zero means "not supplied".
	Generation uint64 `json:"generation,omitempty"`

	// Spec is the desired-state payload, opaque to the engine.
	Spec json.RawMessage `json:"spec,omitempty"`

	// Status is the observed-state payload, opaque to the engine.
	Status json.RawMessage `json:"status,omitempty"`
}

// SpecHash returns a 64-bit hash of the spec payload.
//
// Used by the dispatcher to detect status-only modifications when the
// producer does not maintain a generation counter.
func (o *Object) SpecHash() uint64 {
	return xxh3.Hash(o.Spec)
}

// DeepCopy returns an independent copy of the object.
//
// The raw spec and status payloads are copied byte-for-byte so that handler
// code can never mutate engine-owned cache state.
func (o *Object) DeepCopy() Object {
	cp := Object{
		Kind:       o.Kind,
		Name:       o.Name,
		Revision:   o.Revision,
		Generation: o.Generation,
	}
	if o.Spec != nil {
		cp.Spec = make(json.RawMessage, len(o.Spec))
		copy(cp.Spec, o.Spec)
	}
	if o.Status != nil {
		cp.Status = make(json.RawMessage, len(o.Status))
		copy(cp.Status, o.Status)
	}

	return cp
}
