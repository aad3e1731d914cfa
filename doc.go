// Package controlloop provides lease-based leader election and a generic
// reconciliation engine for building active/passive control planes on NATS.
//
// A fleet of identical replicas contends for a lease held in a JetStream KV
// bucket; exactly one wins and runs the reconciliation engines while the
// rest stand by. Each engine consumes one resource kind's change stream,
// keeps an in-memory cache of the desired state, and drives a Handler with
// ordered, deduplicated, retried convergence calls.
//
// # Quick Start
//
// Basic usage with default settings:
//
//	import controlloop "github.com/jefflill/neonKUBE-sub003"
//
//	cfg := controlloop.DefaultConfig()
//	cfg.Identity = hostname
//
//	cp, err := controlloop.NewControlPlane(&cfg, natsConn)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	cp.RegisterHandler("node", &controlloop.HandlerFuncs{
//	    ReconcileFunc: func(ctx context.Context, obj controlloop.Object, all []controlloop.Object) (controlloop.Directive, error) {
//	        // Converge the node toward obj.Spec
//	        return controlloop.Done(), nil
//	    },
//	})
//
//	if err := cp.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer cp.Stop(context.Background())
//
// # Key Features
//
//   - Single Active Replica: compare-and-swap lease writes guarantee at most
//     one leader per lease name, with automatic takeover on expiry
//   - Graceful Handoff: a stopping leader clears its lease so a standby is
//     promoted within one renewal interval
//   - Ordered Reconciliation: per-kind serial handler execution in revision
//     order; stale and duplicate events are dropped before handlers run
//   - Bounded Retries: per-object exponential backoff, clamped and reset on
//     success; broken streams trigger re-list and re-subscribe
//   - Periodic Jobs: leader-scoped background work on jittered schedules
//
// # Architecture
//
// The elector ticks at a fraction of the lease duration and renews or
// acquires the lease with revision-conditioned KV writes. Promotion opens
// the scheduler gate, which starts one goroutine per registered engine and
// job; demotion closes the gate and drains in-flight handler calls within a
// bounded grace period.
//
// # Advanced Usage
//
// Custom lease store and lifecycle callbacks:
//
//	cp, err := controlloop.NewControlPlane(&cfg, natsConn,
//	    controlloop.WithLogger(logger),
//	    controlloop.WithMetrics(collector),
//	    controlloop.WithCallbacks(controlloop.Callbacks{
//	        OnNewLeader: func(identity string) {
//	            log.Printf("leader is now %s", identity)
//	        },
//	    }),
//	)
package controlloop
