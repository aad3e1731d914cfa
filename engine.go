package controlloop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jefflill/neonKUBE-sub003/types"
)

// Engine reconciles one resource kind: it consumes the kind's change stream,
// maintains the authoritative in-memory cache, and drives the registered
// Handler with ordered, deduplicated, retried invocations.
//
// Exactly one goroutine (the Run loop) mutates the cache and calls the
// handler, so handler invocations for a kind are strictly serial and follow
// revision order. Handlers receive deep copies; nothing they do can corrupt
// the cache.
//
// Lifecycle:
//   - Create with NewEngine()
//   - Run() blocks until the context is cancelled; the scheduler gate calls
//     it on promotion and cancels it on demotion
type Engine struct {
	kind    string
	cfg     EngineConfig
	stream  types.ObjectStream
	handler types.Handler
	logger  types.Logger
	metrics types.MetricsCollector

	cache *resourceCache
	disp  dispatcher

	// requeue holds per-object retry deadlines; the Run loop owns it.
	requeue map[string]time.Time
	timer   *time.Timer

	// listBackoff paces re-list attempts after stream failures.
	listBackoff backoffState
}

// NewEngine creates a reconciliation engine for one resource kind.
//
// Parameters:
//   - cfg: Retry/requeue timings (zero fields take defaults)
//   - stream: List/Watch source for the kind
//   - handler: Convergence logic invoked on accepted changes
//   - opts: Optional logger and metrics
//
// Returns:
//   - *Engine: Initialized engine
//   - error: Validation error if configuration or dependencies are invalid
func NewEngine(cfg EngineConfig, stream types.ObjectStream, handler types.Handler, opts ...Option) (*Engine, error) {
	if stream == nil {
		return nil, ErrStreamRequired
	}
	if handler == nil {
		return nil, ErrHandlerRequired
	}

	defaults := DefaultConfig().Engine
	setEngineDefaults(&cfg, &defaults)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine configuration: %w", err)
	}

	options := applyOptions(opts)

	cache := newResourceCache(cfg.MinRequeueInterval, cfg.MaxRequeueInterval)

	return &Engine{
		kind:        stream.Kind(),
		cfg:         cfg,
		stream:      stream,
		handler:     handler,
		logger:      options.logger,
		metrics:     options.metrics,
		cache:       cache,
		disp:        dispatcher{cache: cache},
		requeue:     make(map[string]time.Time),
		listBackoff: newBackoff(cfg.MinRequeueInterval, cfg.MaxRequeueInterval),
	}, nil
}

// Kind returns the resource kind this engine reconciles.
func (e *Engine) Kind() string {
	return e.kind
}

// Snapshot returns deep copies of all committed objects, sorted by name.
// Safe for concurrent use.
func (e *Engine) Snapshot() []types.Object {
	return e.cache.snapshot()
}

// Run drives the reconciliation loop until ctx is cancelled.
//
// The loop lists to seed the cache, subscribes to the change stream, and then
// selects over incoming events, due retries, and the idle ticker. A broken
// stream triggers a full re-list and re-subscribe under backoff. Handler
// panics and errors are contained here; Run only returns on cancellation.
//
// Parameters:
//   - ctx: Context bounding the reconciliation loop
//
// Returns:
//   - error: Always nil; cancellation is the normal way to stop
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", "kind", e.kind)
	defer e.logger.Info("engine stopped", "kind", e.kind)

	e.timer = time.NewTimer(time.Hour)
	e.timer.Stop()
	defer e.timer.Stop()

	idle := time.NewTicker(e.cfg.IdleInterval)
	defer idle.Stop()

	for {
		watcher := e.resync(ctx)
		if watcher == nil {
			// Only cancellation stops the resync retry loop.
			return nil
		}

		if !e.consume(ctx, watcher, idle) {
			_ = watcher.Stop()

			return nil
		}

		// Stream went bad; loop back into resync.
		_ = watcher.Stop()
	}
}

// resync lists the kind into the cache and opens a fresh watcher, retrying
// under backoff until it succeeds or ctx is cancelled. Returns nil on
// cancellation.
func (e *Engine) resync(ctx context.Context) types.Watcher {
	for {
		if err := e.list(ctx); err == nil {
			watcher, werr := e.stream.Watch(ctx)
			if werr == nil {
				e.listBackoff.Reset()

				return watcher
			}
			e.logger.Error("failed to watch stream", "kind", e.kind, "error", werr)
		}

		delay := e.listBackoff.Next()
		e.logger.Warn("resync failed, backing off", "kind", e.kind, "delay", delay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// list seeds or refreshes the cache from a full enumeration. Listed objects
// flow through the usual classification, so unchanged ones are dropped as
// stale; cached objects absent from the listing are dispatched as deletions.
func (e *Engine) list(ctx context.Context) error {
	objects, err := e.stream.List(ctx)
	if err != nil {
		e.logger.Error("failed to list objects", "kind", e.kind, "error", err)

		return err
	}

	e.metrics.RecordRelist(e.kind)

	listed := make(map[string]struct{}, len(objects))
	for i := range objects {
		listed[objects[i].Name] = struct{}{}
		e.dispatch(ctx, types.Event{Type: types.EventAdded, Object: objects[i]})
	}

	// Deletions that happened while the stream was down leave cache entries
	// behind; reconcile them against the listing.
	for _, name := range e.cache.names() {
		if _, ok := listed[name]; ok {
			continue
		}
		entry := e.cache.get(name)
		if entry == nil || entry.deleted {
			continue
		}
		e.dispatch(ctx, types.Event{Type: types.EventDeleted, Object: types.Object{
			Kind:     e.kind,
			Name:     name,
			Revision: entry.object.Revision + 1,
		}})
	}

	return nil
}

// consume processes events until cancellation (returns false) or a stream
// failure that requires a resync (returns true).
func (e *Engine) consume(ctx context.Context, watcher types.Watcher, idle *time.Ticker) bool {
	for {
		select {
		case <-ctx.Done():
			return false

		case evt, ok := <-watcher.Events():
			if !ok {
				e.logger.Warn("event stream closed", "kind", e.kind)

				return true
			}
			switch evt.Type {
			case types.EventBookmark:
				// End of replay marker; nothing to do.
			case types.EventError:
				e.logger.Warn("event stream failed", "kind", e.kind, "error", evt.Err)

				return true
			default:
				e.dispatch(ctx, evt)
			}

		case <-idle.C:
			e.invokeIdle(ctx)

		case now := <-e.timer.C:
			e.fireDue(ctx, now)
		}
	}
}

// dispatch classifies one event and, when it represents a real change,
// commits it to the cache and invokes the handler.
func (e *Engine) dispatch(ctx context.Context, evt types.Event) {
	e.metrics.RecordEventReceived(e.kind, evt.Type.String())

	class := e.disp.classify(evt)
	if class == types.ClassStale {
		// Duplicates and out-of-order deliveries are expected; not an error.
		e.logger.Debug("dropping stale event",
			"kind", e.kind,
			"name", evt.Object.Name,
			"revision", evt.Object.Revision,
		)

		return
	}

	e.metrics.RecordEventAccepted(e.kind, class.String())

	var entry *cacheEntry
	switch class {
	case types.ClassAdded, types.ClassSpecChange:
		entry = e.cache.upsert(evt.Object)
		entry.retryClass = types.ClassSpecChange
	case types.ClassStatusChange:
		entry = e.cache.upsert(evt.Object)
		entry.retryClass = types.ClassStatusChange
	case types.ClassDeleted:
		entry = e.cache.markDeleted(evt.Object.Name, evt.Object.Revision)
		if entry == nil {
			return
		}
		entry.retryClass = types.ClassDeleted
	default:
		return
	}

	e.converge(ctx, evt.Object.Name, entry)
}

// converge runs the handler method selected by the entry's retry class and
// applies the outcome to the retry schedule.
func (e *Engine) converge(ctx context.Context, name string, entry *cacheEntry) {
	obj := entry.object.DeepCopy()
	all := e.cache.snapshot()

	var (
		directive types.Directive
		err       error
	)

	switch entry.retryClass {
	case types.ClassDeleted:
		directive, err = e.invoke(ctx, "Delete", name, func(ctx context.Context) (types.Directive, error) {
			return e.handler.Delete(ctx, obj, all)
		})
	case types.ClassStatusChange:
		directive, err = e.invoke(ctx, "StatusModified", name, func(ctx context.Context) (types.Directive, error) {
			return e.handler.StatusModified(ctx, obj)
		})
	default:
		directive, err = e.invoke(ctx, "Reconcile", name, func(ctx context.Context) (types.Directive, error) {
			return e.handler.Reconcile(ctx, obj, all)
		})
	}

	if err != nil {
		entry.errCount++
		e.metrics.RecordHandlerError(e.kind, entry.retryClass.String())

		// Terminal failures (e.g., an unparsable spec field) cannot be fixed
		// by retrying; the object is revisited only on its next spec change.
		if errors.Is(err, types.ErrTerminal) {
			e.logger.Error("handler failed terminally, waiting for spec change",
				"kind", e.kind,
				"name", name,
				"error", err,
			)
			e.unschedule(name)

			return
		}

		delay := entry.backoff.Next()
		e.logger.Warn("handler failed, will retry",
			"kind", e.kind,
			"name", name,
			"attempt", entry.errCount,
			"delay", delay,
			"error", err,
		)
		e.schedule(name, delay, "backoff")

		return
	}

	entry.errCount = 0
	entry.backoff.Reset()

	if entry.retryClass == types.ClassDeleted {
		// Deletion fully processed; forget the object and any pending retry.
		e.cache.remove(name)
		e.unschedule(name)

		return
	}

	// Successful convergence arms the next revisit: an explicit directive
	// wins, otherwise the periodic re-convergence interval applies.
	entry.retryClass = types.ClassSpecChange
	switch {
	case directive.RequeueAfter > 0:
		delay := directive.RequeueAfter
		if delay < e.cfg.MinRequeueInterval {
			delay = e.cfg.MinRequeueInterval
		}
		e.schedule(name, delay, "directive")
	case e.cfg.ModifiedRequeueInterval > 0:
		e.schedule(name, e.cfg.ModifiedRequeueInterval, "modified")
	default:
		e.unschedule(name)
	}
}

// invoke runs one handler method with panic containment. A panic is reported
// as an error so it feeds the same retry path as a returned error.
func (e *Engine) invoke(ctx context.Context, method, name string, fn func(context.Context) (types.Directive, error)) (directive types.Directive, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("handler panicked",
				"kind", e.kind,
				"method", method,
				"name", name,
				"panic", r,
			)
			err = fmt.Errorf("handler %s panicked: %v", method, r)
		}
	}()

	return fn(ctx)
}

// invokeIdle fires the handler's Idle hook with panic containment.
func (e *Engine) invokeIdle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("idle handler panicked", "kind", e.kind, "panic", r)
		}
	}()

	e.handler.Idle(ctx)
}

// schedule records a retry deadline for name and re-arms the timer if this
// deadline is now the earliest.
func (e *Engine) schedule(name string, delay time.Duration, reason string) {
	e.metrics.RecordRequeue(e.kind, reason)
	e.requeue[name] = time.Now().Add(delay)
	e.rearm()
}

// unschedule drops any pending retry for name.
func (e *Engine) unschedule(name string) {
	if _, ok := e.requeue[name]; !ok {
		return
	}
	delete(e.requeue, name)
	e.rearm()
}

// rearm points the timer at the earliest pending deadline.
func (e *Engine) rearm() {
	e.timer.Stop()

	var earliest time.Time
	for _, at := range e.requeue {
		if earliest.IsZero() || at.Before(earliest) {
			earliest = at
		}
	}
	if earliest.IsZero() {
		return
	}

	delay := time.Until(earliest)
	if delay < 0 {
		delay = 0
	}
	e.timer.Reset(delay)
}

// fireDue re-converges every object whose deadline has passed.
func (e *Engine) fireDue(ctx context.Context, now time.Time) {
	var due []string
	for name, at := range e.requeue {
		if !at.After(now) {
			due = append(due, name)
		}
	}

	for _, name := range due {
		delete(e.requeue, name)

		entry := e.cache.get(name)
		if entry == nil {
			continue
		}
		e.converge(ctx, name, entry)
	}

	e.rearm()
}
