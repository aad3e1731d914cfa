package controlloop

import (
	"github.com/jefflill/neonKUBE-sub003/internal/logging"
	"github.com/jefflill/neonKUBE-sub003/internal/metrics"
	"github.com/jefflill/neonKUBE-sub003/types"
)

// Option configures optional dependencies.
type Option func(*options)

// applyOptions resolves the option list against nop defaults.
func applyOptions(opts []Option) options {
	resolved := options{
		logger:  logging.NewNop(),
		metrics: metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(&resolved)
	}

	return resolved
}

// options holds optional configuration shared by the elector, the engines,
// and the control plane.
type options struct {
	logger     types.Logger
	metrics    types.MetricsCollector
	leaseStore types.LeaseStore
	callbacks  types.Callbacks
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (compatible with zap.SugaredLogger)
//
// Returns:
//   - Option: Functional option
//
// Example:
//
//	logger := zap.NewExample().Sugar()
//	cp, err := controlloop.NewControlPlane(&cfg, conn, controlloop.WithLogger(logger))
func WithLogger(logger types.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option
func WithMetrics(metrics types.MetricsCollector) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// WithLeaseStore sets a custom lease store, replacing the JetStream KV store
// the control plane builds by default.
//
// Parameters:
//   - store: LeaseStore implementation with compare-and-swap semantics
//
// Returns:
//   - Option: Functional option
func WithLeaseStore(store types.LeaseStore) Option {
	return func(o *options) {
		o.leaseStore = store
	}
}

// WithCallbacks sets additional election lifecycle callbacks. The control
// plane wires its own promotion/demotion handling first; these callbacks run
// after it on the same tick goroutine.
//
// Parameters:
//   - callbacks: Callbacks structure (any field may be nil)
//
// Returns:
//   - Option: Functional option
func WithCallbacks(callbacks types.Callbacks) Option {
	return func(o *options) {
		o.callbacks = callbacks
	}
}
