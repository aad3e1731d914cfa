package controlloop

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/jefflill/neonKUBE-sub003/internal/kvutil"
	"github.com/jefflill/neonKUBE-sub003/store"
	"github.com/jefflill/neonKUBE-sub003/types"
)

// ControlPlane is the composition root: it owns the lease store, the leader
// elector, the scheduler gate, and the per-kind reconciliation engines, and
// wires election outcomes to engine lifecycle.
//
// Exactly one replica of a control plane fleet runs its engines at any
// instant; the rest hold their handlers idle on standby until promoted.
//
// Thread Safety:
//   - All public methods are safe for concurrent use
//
// Lifecycle:
//   - Create with NewControlPlane()
//   - Register handlers and jobs before Start()
//   - Call Start() to join the election
//   - Call Stop() for graceful shutdown with lease handoff
type ControlPlane struct {
	cfg  Config
	conn *nats.Conn

	// Optional dependencies
	leaseStore types.LeaseStore
	callbacks  types.Callbacks
	metrics    types.MetricsCollector
	logger     types.Logger

	// Internal components
	gate    *SchedulerGate
	elector *Elector

	// handlers holds registrations made before Start builds the engines.
	handlers map[string]types.Handler
	streams  map[string]*store.KVObjectStream

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewControlPlane creates a control plane bound to a NATS connection.
//
// Returns a concrete *ControlPlane struct following the "accept interfaces,
// return structs" principle.
//
// Parameters:
//   - cfg: Runtime configuration with parsed durations
//   - conn: NATS connection for coordination and object streams
//   - opts: Optional configuration (logger, metrics, lease store, callbacks)
//
// Returns:
//   - *ControlPlane: Initialized control plane instance
//   - error: Validation error if configuration is invalid
//
// Example:
//
//	cfg := controlloop.DefaultConfig()
//	cfg.Identity = hostname
//	cp, err := controlloop.NewControlPlane(&cfg, natsConn)
//	cp.RegisterHandler("node", nodeHandler)
//	err = cp.Start(ctx)
func NewControlPlane(cfg *Config, conn *nats.Conn, opts ...Option) (*ControlPlane, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if conn == nil {
		return nil, ErrNATSConnectionRequired
	}

	SetDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	options := applyOptions(opts)

	cp := &ControlPlane{
		cfg:        *cfg,
		conn:       conn,
		leaseStore: options.leaseStore,
		callbacks:  options.callbacks,
		metrics:    options.metrics,
		logger:     options.logger,
		handlers:   make(map[string]types.Handler),
		streams:    make(map[string]*store.KVObjectStream),
	}
	cp.gate = NewSchedulerGate(cfg, WithLogger(options.logger), WithMetrics(options.metrics))

	return cp, nil
}

// RegisterHandler binds a handler to a resource kind. The control plane
// builds the kind's object stream and reconciliation engine at Start.
//
// Must be called before Start.
//
// Parameters:
//   - kind: Resource kind the handler reconciles
//   - handler: Convergence logic
//
// Returns:
//   - error: ErrHandlerRequired or ErrKindRegistered
func (cp *ControlPlane) RegisterHandler(kind string, handler types.Handler) error {
	if handler == nil {
		return ErrHandlerRequired
	}

	cp.mu.Lock()
	defer cp.mu.Unlock()

	if _, ok := cp.handlers[kind]; ok {
		return ErrKindRegistered
	}
	cp.handlers[kind] = handler

	return nil
}

// RegisterEngine adds a pre-built engine, for kinds backed by a custom
// object stream instead of the control plane's KV bucket.
//
// Parameters:
//   - engine: Engine to run while leading
//
// Returns:
//   - error: ErrKindRegistered if the kind is already registered
func (cp *ControlPlane) RegisterEngine(engine *Engine) error {
	return cp.gate.RegisterEngine(engine)
}

// RegisterJob adds a leader-scoped periodic job.
//
// Parameters:
//   - job: Job definition, validated before acceptance
//
// Returns:
//   - error: ErrInvalidJob or ErrJobRegistered
func (cp *ControlPlane) RegisterJob(job *PeriodicJob) error {
	return cp.gate.RegisterJob(job)
}

// Start ensures KV buckets, builds the engines, and joins the election.
//
// Start returns once the election loop is running; leadership is acquired
// asynchronously and reported through callbacks and IsLeader.
//
// Parameters:
//   - ctx: Context for startup KV operations
//
// Returns:
//   - error: Startup error, ErrAlreadyStarted if already running
func (cp *ControlPlane) Start(ctx context.Context) error {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if cp.ctx != nil {
		return ErrAlreadyStarted
	}

	js, err := jetstream.New(cp.conn)
	if err != nil {
		return fmt.Errorf("failed to create jetstream context: %w", err)
	}

	if cp.leaseStore == nil {
		leaseKV, err := kvutil.EnsureBucket(ctx, js, jetstream.KeyValueConfig{
			Bucket: cp.cfg.KVBuckets.LeaseBucket,
		}, 3)
		if err != nil {
			return fmt.Errorf("failed to ensure lease bucket: %w", err)
		}
		cp.leaseStore = store.NewKVLeaseStore(leaseKV)
	}

	if len(cp.handlers) > 0 {
		objectKV, err := kvutil.EnsureBucket(ctx, js, jetstream.KeyValueConfig{
			Bucket:  cp.cfg.KVBuckets.ObjectBucket,
			History: 1,
		}, 3)
		if err != nil {
			return fmt.Errorf("failed to ensure object bucket: %w", err)
		}

		for kind, handler := range cp.handlers {
			stream := store.NewObjectStream(objectKV, kind, cp.logger)
			engine, err := NewEngine(cp.cfg.Engine, stream, handler,
				WithLogger(cp.logger), WithMetrics(cp.metrics))
			if err != nil {
				return fmt.Errorf("failed to build engine for kind %q: %w", kind, err)
			}
			if err := cp.gate.RegisterEngine(engine); err != nil {
				return fmt.Errorf("failed to register engine for kind %q: %w", kind, err)
			}
			cp.streams[kind] = stream
		}
	}

	elector, err := NewElector(&cp.cfg, cp.leaseStore, cp.electionCallbacks(),
		WithLogger(cp.logger), WithMetrics(cp.metrics))
	if err != nil {
		return fmt.Errorf("failed to build elector: %w", err)
	}
	cp.elector = elector

	cp.ctx, cp.cancel = context.WithCancel(context.Background())

	// The goroutine must not read cp.ctx: a Stop racing startup nils the
	// field before the goroutine is scheduled.
	runCtx := cp.ctx

	cp.wg.Add(1)
	go func() {
		defer cp.wg.Done()
		_ = cp.elector.Run(runCtx)
	}()

	cp.logger.Info("control plane started",
		"identity", cp.cfg.Identity,
		"lease", cp.cfg.LeaseName,
		"kinds", len(cp.handlers),
	)

	return nil
}

// Stop gracefully shuts down the control plane: demotes if leading, releases
// the lease, and waits for the election loop to drain.
//
// Parameters:
//   - ctx: Context bounding the shutdown wait
//
// Returns:
//   - error: ErrNotStarted if never started, ctx.Err() on timeout
func (cp *ControlPlane) Stop(ctx context.Context) error {
	cp.mu.Lock()
	if cp.ctx == nil {
		cp.mu.Unlock()

		return ErrNotStarted
	}
	cancel := cp.cancel
	cp.ctx = nil
	cp.cancel = nil
	cp.mu.Unlock()

	// Cancelling the elector run context triggers lease release and the
	// demotion callback, which closes the gate and drains the engines.
	cancel()

	done := make(chan struct{})
	go func() {
		cp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		cp.logger.Info("control plane stopped", "identity", cp.cfg.Identity)

		return nil
	case <-ctx.Done():
		cp.logger.Warn("control plane stop timed out", "identity", cp.cfg.Identity)

		return ctx.Err()
	}
}

// IsLeader returns true if this replica currently holds the lease.
func (cp *ControlPlane) IsLeader() bool {
	cp.mu.Lock()
	elector := cp.elector
	cp.mu.Unlock()

	return elector != nil && elector.IsLeader()
}

// Leader returns the last-observed leader identity, empty if unknown.
func (cp *ControlPlane) Leader() string {
	cp.mu.Lock()
	elector := cp.elector
	cp.mu.Unlock()

	if elector == nil {
		return ""
	}

	return elector.Leader()
}

// Objects returns the object stream for a kind registered via
// RegisterHandler, nil before Start or for unknown kinds. Producers use it
// to publish spec changes and read back status.
func (cp *ControlPlane) Objects(kind string) *store.KVObjectStream {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	return cp.streams[kind]
}

// Engine returns the running engine for kind, nil if none. Exposed for
// snapshot inspection.
func (cp *ControlPlane) Engine(kind string) *Engine {
	return cp.gate.Engine(kind)
}

// electionCallbacks wires the scheduler gate into the election lifecycle,
// then chains any user-supplied callbacks after it.
func (cp *ControlPlane) electionCallbacks() types.Callbacks {
	user := cp.callbacks

	return types.Callbacks{
		OnStartedLeading: func(ctx context.Context) {
			cp.gate.OnPromoted(ctx)
			if user.OnStartedLeading != nil {
				user.OnStartedLeading(ctx)
			}
		},
		OnStoppedLeading: func() {
			cp.gate.OnDemoted()
			if user.OnStoppedLeading != nil {
				user.OnStoppedLeading()
			}
		},
		OnNewLeader: func(identity string) {
			if user.OnNewLeader != nil {
				user.OnNewLeader(identity)
			}
		},
	}
}
