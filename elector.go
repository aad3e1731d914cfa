package controlloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jefflill/neonKUBE-sub003/internal/natsutil"
	"github.com/jefflill/neonKUBE-sub003/types"
)

// Elector runs the lease-based leader-election protocol against a LeaseStore.
//
// At most one process holds leadership of a given lease name at any instant;
// the guarantee comes from the store's compare-and-swap writes, not from any
// coordination between electors. A leader renews on every tick; a standby
// probes for an absent or expired record and attempts a conditioned takeover.
//
// Thread Safety:
//   - IsLeader and Leader are safe for concurrent use while Run ticks
//   - Callbacks run synchronously on the tick goroutine, one at a time
//
// Lifecycle:
//   - Create with NewElector()
//   - Run() blocks until the context is cancelled
//   - Cancellation releases the lease (best-effort) and fires
//     OnStoppedLeading before Run returns if this process was leading
type Elector struct {
	cfg       Config
	store     types.LeaseStore
	callbacks types.Callbacks
	logger    types.Logger
	metrics   types.MetricsCollector

	// runCtx is the context Run was started with; OnStartedLeading receives
	// it so leader-scoped work outlives the per-tick operation timeout.
	runCtx context.Context

	mu             sync.RWMutex
	state          types.ElectionState
	observedHolder string
	lastRenew      time.Time
}

// NewElector creates a new elector for the configured lease.
//
// Parameters:
//   - cfg: Configuration (identity, lease name, lease duration, renew fraction)
//   - store: Compare-and-swap lease store
//   - callbacks: Lifecycle notifications (any field may be nil)
//   - opts: Optional logger and metrics
//
// Returns:
//   - *Elector: Initialized elector
//   - error: Validation error if configuration or dependencies are invalid
func NewElector(cfg *Config, store types.LeaseStore, callbacks types.Callbacks, opts ...Option) (*Elector, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if store == nil {
		return nil, ErrLeaseStoreRequired
	}

	SetDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	options := applyOptions(opts)

	return &Elector{
		cfg:       *cfg,
		store:     store,
		callbacks: callbacks,
		logger:    options.logger,
		metrics:   options.metrics,
		state:     types.StateStandby,
	}, nil
}

// Run drives the election protocol until ctx is cancelled.
//
// The loop ticks at a fixed fraction of the lease duration (one-third by
// default). On cancellation the elector releases the lease if it is the
// holder and guarantees OnStoppedLeading has fired before returning.
//
// Parameters:
//   - ctx: Context bounding the election loop
//
// Returns:
//   - error: Always nil; cancellation is the normal way to stop
func (e *Elector) Run(ctx context.Context) error {
	e.runCtx = ctx
	interval := e.renewInterval()
	e.logger.Info("elector starting",
		"lease", e.cfg.LeaseName,
		"identity", e.cfg.Identity,
		"interval", interval,
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// First attempt immediately rather than waiting a full interval.
	e.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			e.release()

			return nil
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// IsLeader returns true if this process currently holds the lease.
func (e *Elector) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.state == types.StateLeading
}

// Leader returns the last-observed holder identity, which may differ from
// this process's identity while on standby. Empty if no holder was observed.
func (e *Elector) Leader() string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.observedHolder
}

// renewInterval returns the tick period: a configured fraction of the lease
// duration, one-third by default.
func (e *Elector) renewInterval() time.Duration {
	return time.Duration(float64(e.cfg.LeaseDuration) * e.cfg.RenewFraction)
}

// tick executes one round of the election algorithm.
func (e *Elector) tick(ctx context.Context) {
	opCtx, cancel := context.WithTimeout(ctx, e.cfg.OperationTimeout)
	defer cancel()

	now := time.Now()

	record, revision, err := e.store.Get(opCtx, e.cfg.LeaseName)
	switch {
	case errors.Is(err, types.ErrLeaseNotFound):
		e.tryCreate(opCtx, now)
	case err != nil:
		e.handleTransient("failed to read lease record", err, now)
	case record.HolderIdentity == e.cfg.Identity:
		e.tryRenew(opCtx, record, revision, now)
	case record.Expired(now):
		e.tryTakeover(opCtx, record, revision, now)
	default:
		// Someone else holds a live lease.
		if e.IsLeader() {
			// Our renewal raced with a takeover we have not seen fail yet.
			e.demote("lease held by another identity", record.HolderIdentity)
		}
		e.observeHolder(record.HolderIdentity)
	}
}

// tryCreate attempts first-time acquisition of an absent lease record.
func (e *Elector) tryCreate(ctx context.Context, now time.Time) {
	record := &types.LeaseRecord{
		HolderIdentity:       e.cfg.Identity,
		LeaseDurationSeconds: int(e.cfg.LeaseDuration.Seconds()),
		RenewTime:            now,
		AcquireTime:          now,
	}

	_, err := e.store.Create(ctx, e.cfg.LeaseName, record)
	switch {
	case err == nil:
		e.promote(ctx, now)
	case errors.Is(err, types.ErrLeaseExists):
		// Lost the race; the next tick will observe the winner.
		if e.IsLeader() {
			e.demote("lease recreated by another identity", "")
		}
	default:
		e.handleTransient("failed to create lease record", err, now)
	}
}

// tryRenew refreshes a lease this identity already holds.
func (e *Elector) tryRenew(ctx context.Context, record *types.LeaseRecord, revision uint64, now time.Time) {
	renewed := *record
	renewed.LeaseDurationSeconds = int(e.cfg.LeaseDuration.Seconds())
	renewed.RenewTime = now

	_, err := e.store.Update(ctx, e.cfg.LeaseName, &renewed, revision)
	switch {
	case err == nil:
		e.mu.Lock()
		e.lastRenew = now
		e.mu.Unlock()
		// Holding the record without Leading state happens when a prior
		// process instance left its record behind; treat it as promotion.
		if !e.IsLeader() {
			e.promote(ctx, now)
		}
	case errors.Is(err, types.ErrLeaseConflict):
		e.demote("renewal rejected by concurrent write", "")
	default:
		e.handleTransient("failed to renew lease record", err, now)
	}
}

// tryTakeover attempts a conditioned overwrite of an expired lease.
func (e *Elector) tryTakeover(ctx context.Context, record *types.LeaseRecord, revision uint64, now time.Time) {
	claimed := types.LeaseRecord{
		HolderIdentity:       e.cfg.Identity,
		LeaseDurationSeconds: int(e.cfg.LeaseDuration.Seconds()),
		RenewTime:            now,
		AcquireTime:          now,
		LeaseTransitions:     record.LeaseTransitions + 1,
	}

	_, err := e.store.Update(ctx, e.cfg.LeaseName, &claimed, revision)
	switch {
	case err == nil:
		e.promote(ctx, now)
	case errors.Is(err, types.ErrLeaseConflict):
		// A competitor claimed the expired lease first.
		if e.IsLeader() {
			e.demote("takeover lost to concurrent write", "")
		}
	default:
		e.handleTransient("failed to take over expired lease", err, now)
	}
}

// handleTransient logs a store I/O failure without changing election state,
// then applies the fail-safe: a leader that has not managed a successful
// renewal for a full lease duration must assume the fleet no longer sees it
// as leader and demote unilaterally.
func (e *Elector) handleTransient(msg string, err error, now time.Time) {
	if natsutil.IsConnectivityError(err) {
		e.logger.Warn(msg, "lease", e.cfg.LeaseName, "error", err)
	} else {
		e.logger.Error(msg, "lease", e.cfg.LeaseName, "error", err)
	}

	e.mu.RLock()
	leading := e.state == types.StateLeading
	lastRenew := e.lastRenew
	e.mu.RUnlock()

	if leading && now.Sub(lastRenew) >= e.cfg.LeaseDuration {
		e.demote("renewal deadline exceeded", "")
	}
}

// promote transitions to Leading and fires OnStartedLeading exactly once per
// acquisition. The callback receives the run context, not the per-tick
// operation context, so work it starts lives until shutdown or demotion.
func (e *Elector) promote(_ context.Context, now time.Time) {
	e.mu.Lock()
	e.state = types.StateLeading
	e.lastRenew = now
	e.mu.Unlock()

	e.logger.Info("acquired leadership", "lease", e.cfg.LeaseName, "identity", e.cfg.Identity)
	e.metrics.RecordPromotion(e.cfg.LeaseName)

	if e.callbacks.OnStartedLeading != nil {
		runCtx := e.runCtx
		if runCtx == nil {
			runCtx = context.Background()
		}
		e.invoke("OnStartedLeading", func() { e.callbacks.OnStartedLeading(runCtx) })
	}

	e.observeHolder(e.cfg.Identity)
}

// demote transitions to Standby and fires OnStoppedLeading if this process
// was Leading. newHolder, when known, updates the observed identity.
func (e *Elector) demote(reason, newHolder string) {
	e.mu.Lock()
	wasLeading := e.state == types.StateLeading
	e.state = types.StateStandby
	e.mu.Unlock()

	if !wasLeading {
		return
	}

	e.logger.Info("lost leadership", "lease", e.cfg.LeaseName, "reason", reason)
	e.metrics.RecordDemotion(e.cfg.LeaseName)

	if e.callbacks.OnStoppedLeading != nil {
		e.invoke("OnStoppedLeading", e.callbacks.OnStoppedLeading)
	}

	if newHolder != "" {
		e.observeHolder(newHolder)
	}
}

// observeHolder records the holder identity and fires OnNewLeader when it
// changed since the last observation.
func (e *Elector) observeHolder(identity string) {
	e.mu.Lock()
	changed := e.observedHolder != identity
	e.observedHolder = identity
	e.mu.Unlock()

	if !changed || identity == "" {
		return
	}

	e.logger.Info("observed new leader", "lease", e.cfg.LeaseName, "leader", identity)
	e.metrics.RecordLeaderChange(e.cfg.LeaseName, identity)

	if e.callbacks.OnNewLeader != nil {
		e.invoke("OnNewLeader", func() { e.callbacks.OnNewLeader(identity) })
	}
}

// release performs shutdown-time cleanup: best-effort removal of the lease
// record if this identity holds it, and a final demotion so OnStoppedLeading
// fires before Run returns.
func (e *Elector) release() {
	if e.IsLeader() {
		// The run context is already cancelled; use a short independent
		// timeout for the final store write.
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.OperationTimeout)
		defer cancel()

		record, revision, err := e.store.Get(ctx, e.cfg.LeaseName)
		if err == nil && record.HolderIdentity == e.cfg.Identity {
			cleared := *record
			cleared.HolderIdentity = ""
			cleared.RenewTime = time.Time{}
			if _, err := e.store.Update(ctx, e.cfg.LeaseName, &cleared, revision); err != nil {
				e.logger.Warn("failed to clear lease on shutdown", "lease", e.cfg.LeaseName, "error", err)
			}
		} else if err != nil && !errors.Is(err, types.ErrLeaseNotFound) {
			e.logger.Warn("failed to read lease on shutdown", "lease", e.cfg.LeaseName, "error", err)
		}
	}

	e.demote("shutdown", "")
	e.logger.Info("elector stopped", "lease", e.cfg.LeaseName, "identity", e.cfg.Identity)
}

// invoke runs a callback on the tick goroutine, recovering panics so
// collaborator code can never abort the election loop.
func (e *Elector) invoke(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("election callback panicked", "callback", name, "panic", r)
		}
	}()

	fn()
}
