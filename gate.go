package controlloop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/jefflill/neonKUBE-sub003/types"
)

// SchedulerGate binds reconciliation engines and periodic jobs to the
// election outcome: promotion starts everything exactly once, demotion stops
// everything and drains in-flight work within a bounded grace period.
//
// Promotion and demotion signals are idempotent. The elector may redeliver
// either (renewal races, reconnects); repeated signals in the same state are
// no-ops.
type SchedulerGate struct {
	cfg     Config
	logger  types.Logger
	metrics types.MetricsCollector

	engines *xsync.Map[string, *Engine]
	jobs    *xsync.Map[string, *PeriodicJob]

	// mu serializes promotion/demotion; cancel and wg are non-nil while
	// promoted. wg belongs to one promotion: a drain that times out may leave
	// stragglers behind, and they must not collide with the next generation's
	// Add/Wait on a shared WaitGroup.
	mu     sync.Mutex
	cancel context.CancelFunc
	wg     *sync.WaitGroup
}

// NewSchedulerGate creates a gate with no registered engines or jobs.
//
// Parameters:
//   - cfg: Control-plane configuration (shutdown grace, default job jitter)
//   - opts: Optional logger and metrics
//
// Returns:
//   - *SchedulerGate: Initialized gate
func NewSchedulerGate(cfg *Config, opts ...Option) *SchedulerGate {
	SetDefaults(cfg)
	options := applyOptions(opts)

	return &SchedulerGate{
		cfg:     *cfg,
		logger:  options.logger,
		metrics: options.metrics,
		engines: xsync.NewMap[string, *Engine](),
		jobs:    xsync.NewMap[string, *PeriodicJob](),
	}
}

// RegisterEngine adds a reconciliation engine to the gate.
//
// Registration is rejected for a kind that already has an engine. Engines
// registered while promoted start on the next promotion, not immediately.
//
// Parameters:
//   - engine: Engine to start on promotion
//
// Returns:
//   - error: ErrKindRegistered if the kind is already registered
func (g *SchedulerGate) RegisterEngine(engine *Engine) error {
	if _, loaded := g.engines.LoadOrStore(engine.Kind(), engine); loaded {
		return ErrKindRegistered
	}

	return nil
}

// RegisterJob adds a periodic job to the gate.
//
// Parameters:
//   - job: Job definition, validated before acceptance
//
// Returns:
//   - error: ErrInvalidJob for bad definitions, ErrJobRegistered for duplicate names
func (g *SchedulerGate) RegisterJob(job *PeriodicJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if job.Jitter == 0 {
		job.Jitter = g.cfg.JobJitterFraction
	}

	if _, loaded := g.jobs.LoadOrStore(job.Name, job); loaded {
		return ErrJobRegistered
	}

	return nil
}

// Promoted reports whether the gate is currently running its engines.
func (g *SchedulerGate) Promoted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.cancel != nil
}

// Engine returns the registered engine for kind, nil if none.
func (g *SchedulerGate) Engine(kind string) *Engine {
	engine, _ := g.engines.Load(kind)

	return engine
}

// OnPromoted starts every registered engine and periodic job. Signature
// matches Callbacks.OnStartedLeading so the elector can invoke it directly.
//
// Calling while already promoted is a no-op.
//
// Parameters:
//   - ctx: Leadership-scoped context; cancellation stops everything started here
func (g *SchedulerGate) OnPromoted(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cancel != nil {
		g.logger.Debug("promotion signal while already promoted, ignoring")

		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	wg := &sync.WaitGroup{}
	g.cancel = cancel
	g.wg = wg

	engines := 0
	g.engines.Range(func(_ string, engine *Engine) bool {
		engines++
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = engine.Run(runCtx)
		}()

		return true
	})

	jobs := 0
	g.jobs.Range(func(_ string, job *PeriodicJob) bool {
		jobs++
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.runJob(runCtx, job)
		}()

		return true
	})

	g.logger.Info("scheduler gate opened", "engines", engines, "jobs", jobs)
	g.metrics.RecordGateStart(engines, jobs)
}

// OnDemoted stops every running engine and job, waiting up to the configured
// grace period for in-flight handler invocations to finish.
//
// Calling while already demoted is a no-op.
func (g *SchedulerGate) OnDemoted() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cancel == nil {
		g.logger.Debug("demotion signal while already demoted, ignoring")

		return
	}

	g.cancel()
	g.cancel = nil
	wg := g.wg
	g.wg = nil

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		g.logger.Info("scheduler gate closed")
	case <-time.After(g.cfg.ShutdownGrace):
		g.logger.Warn("scheduler gate close timed out, abandoning in-flight work",
			"grace", g.cfg.ShutdownGrace,
		)
	}

	g.metrics.RecordGateStop()
}

// runJob fires one periodic job on its jittered schedule until ctx is
// cancelled. Errors and panics are logged and counted; the schedule always
// continues.
func (g *SchedulerGate) runJob(ctx context.Context, job *PeriodicJob) {
	g.logger.Info("periodic job starting", "job", job.Name, "interval", job.Interval)
	defer g.logger.Info("periodic job stopped", "job", job.Name)

	for {
		delay := jittered(job.Interval, job.Jitter)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		err := g.invokeJob(ctx, job)
		g.metrics.RecordJobRun(job.Name, err == nil)
		if err != nil {
			g.logger.Warn("periodic job failed", "job", job.Name, "error", err)
		}
	}
}

// invokeJob runs one job iteration with panic containment.
func (g *SchedulerGate) invokeJob(ctx context.Context, job *PeriodicJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("periodic job panicked", "job", job.Name, "panic", r)
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
	}()

	return job.Run(ctx)
}
