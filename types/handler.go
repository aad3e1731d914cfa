package types

import (
	"context"
	"time"
)

// Directive is a handler's instruction to the engine about follow-up work.
//
// The zero value means "no further action". A non-zero RequeueAfter asks the
// engine to re-invoke the handler for the same object after the delay even
// without a new external event.
type Directive struct {
	RequeueAfter time.Duration
}

// Done is the "no further action" directive.
func Done() Directive { return Directive{} }

// RequeueAfter returns a directive requesting re-invocation after d.
func RequeueAfter(d time.Duration) Directive { return Directive{RequeueAfter: d} }

// Handler is the per-resource-kind convergence contract supplied by a
// collaborator and consumed by the reconciliation engine.
//
// Reconcile and Delete receive the entire current snapshot set for the kind
// (not only the delta) because convergence logic for this domain routinely
// regenerates one merged artifact from all known objects of a kind. All
// snapshots are deep copies; mutating them has no effect on engine state.
//
// Handler errors never terminate the engine: they are logged with the object
// identity, counted, and converted into a backoff-scheduled retry.
type Handler interface {
	// Reconcile converges a single object against desired state. The full
	// committed snapshot set for the kind accompanies the changed object.
	Reconcile(ctx context.Context, obj Object, all []Object) (Directive, error)

	// Delete reacts to object removal. remaining holds the snapshot set
	// after the removal.
	Delete(ctx context.Context, obj Object, remaining []Object) (Directive, error)

	// StatusModified reacts to a status-only change (spec unchanged). It is
	// dispatched separately from Reconcile so handlers can avoid infinite
	// loops caused by re-observing their own status writes.
	StatusModified(ctx context.Context, obj Object) (Directive, error)

	// Idle is invoked at the configured idle interval regardless of watch
	// traffic, as a hook for maintenance unrelated to any single object.
	Idle(ctx context.Context)
}

// HandlerFuncs adapts plain functions to the Handler interface. Nil fields
// behave as no-ops returning Done().
type HandlerFuncs struct {
	ReconcileFunc      func(ctx context.Context, obj Object, all []Object) (Directive, error)
	DeleteFunc         func(ctx context.Context, obj Object, remaining []Object) (Directive, error)
	StatusModifiedFunc func(ctx context.Context, obj Object) (Directive, error)
	IdleFunc           func(ctx context.Context)
}

// Compile-time assertion that HandlerFuncs implements Handler.
var _ Handler = (*HandlerFuncs)(nil)

// Reconcile calls ReconcileFunc if set.
func (h *HandlerFuncs) Reconcile(ctx context.Context, obj Object, all []Object) (Directive, error) {
	if h.ReconcileFunc == nil {
		return Done(), nil
	}

	return h.ReconcileFunc(ctx, obj, all)
}

// Delete calls DeleteFunc if set.
func (h *HandlerFuncs) Delete(ctx context.Context, obj Object, remaining []Object) (Directive, error) {
	if h.DeleteFunc == nil {
		return Done(), nil
	}

	return h.DeleteFunc(ctx, obj, remaining)
}

// StatusModified calls StatusModifiedFunc if set.
func (h *HandlerFuncs) StatusModified(ctx context.Context, obj Object) (Directive, error) {
	if h.StatusModifiedFunc == nil {
		return Done(), nil
	}

	return h.StatusModifiedFunc(ctx, obj)
}

// Idle calls IdleFunc if set.
func (h *HandlerFuncs) Idle(ctx context.Context) {
	if h.IdleFunc != nil {
		h.IdleFunc(ctx)
	}
}
