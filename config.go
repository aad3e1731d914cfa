package controlloop

import (
	"fmt"
	"time"
)

// EngineConfig controls the retry and re-convergence behavior of one
// reconciliation engine.
type EngineConfig struct {
	// IdleInterval is the period between Idle handler invocations when no
	// change events arrive. Idle ticks give handlers a hook for periodic
	// maintenance that is not driven by object changes.
	// Recommended: 60 seconds.
	IdleInterval time.Duration `yaml:"idleInterval"`

	// MinRequeueInterval is the smallest delay between consecutive handler
	// invocations for the same object. It is both the floor for directive
	// requeues and the starting delay of the error backoff.
	// Recommended: 1 second.
	MinRequeueInterval time.Duration `yaml:"minRequeueInterval"`

	// MaxRequeueInterval caps the error backoff. Consecutive failures for
	// one object double the retry delay until it reaches this ceiling.
	// Recommended: 5 minutes.
	MaxRequeueInterval time.Duration `yaml:"maxRequeueInterval"`

	// ModifiedRequeueInterval is the periodic re-convergence interval: after
	// a successful reconciliation the object is revisited no later than this,
	// guarding against missed events.
	// Recommended: 60 seconds. Set below zero to disable.
	ModifiedRequeueInterval time.Duration `yaml:"modifiedRequeueInterval"`
}

// KVBucketConfig configures NATS JetStream KV bucket names.
type KVBucketConfig struct {
	// LeaseBucket is the bucket name for election lease records.
	LeaseBucket string `yaml:"leaseBucket"`

	// ObjectBucket is the bucket name for watched resource objects.
	ObjectBucket string `yaml:"objectBucket"`
}

// Config is the configuration for the control plane.
//
// All duration fields accept standard Go duration strings like "30s", "5m", "1h".
type Config struct {
	// Identity is this process's unique identity in the election. Typically
	// hostname plus a suffix; two replicas must never share an identity.
	Identity string `yaml:"identity"`

	// LeaseName is the election domain. All replicas contending for the same
	// role use the same lease name; at most one of them leads at a time.
	LeaseName string `yaml:"leaseName"`

	// LeaseDuration is how long a lease record remains valid after its last
	// renewal. A leader that cannot renew within this window is treated as
	// failed and its lease may be taken over.
	// Recommended: 15 seconds.
	LeaseDuration time.Duration `yaml:"leaseDuration"`

	// RenewFraction is the fraction of LeaseDuration between renewal
	// attempts. One-third gives a leader two retries before expiry.
	// Recommended: 0.33.
	RenewFraction float64 `yaml:"renewFraction"`

	// OperationTimeout is the timeout for individual KV operations
	// (get, create, update, delete).
	// Recommended: 10 seconds.
	OperationTimeout time.Duration `yaml:"operationTimeout"`

	// ShutdownGrace is the maximum time a demotion waits for in-flight
	// handler invocations to finish before abandoning them.
	// Recommended: 10 seconds.
	ShutdownGrace time.Duration `yaml:"shutdownGrace"`

	// JobJitterFraction bounds the random offset added to periodic job
	// intervals, as a fraction of the interval. Jitter prevents jobs from
	// synchronizing across restarts.
	// Recommended: 0.1.
	JobJitterFraction float64 `yaml:"jobJitterFraction"`

	// Engine holds the default retry/requeue timings applied to engines
	// registered without explicit overrides.
	Engine EngineConfig `yaml:"engine"`

	// KVBuckets controls NATS JetStream KV bucket configuration.
	KVBuckets KVBucketConfig `yaml:"kvBuckets"`
}

// DefaultConfig returns a Config with sensible defaults.
//
// Returns:
//   - Config: Configuration with default values
func DefaultConfig() Config {
	return Config{
		LeaseName:         "controlloop-leader",
		LeaseDuration:     15 * time.Second,
		RenewFraction:     1.0 / 3.0,
		OperationTimeout:  10 * time.Second,
		ShutdownGrace:     10 * time.Second,
		JobJitterFraction: 0.1,
		Engine: EngineConfig{
			IdleInterval:            60 * time.Second,
			MinRequeueInterval:      time.Second,
			MaxRequeueInterval:      5 * time.Minute,
			ModifiedRequeueInterval: 60 * time.Second,
		},
		KVBuckets: KVBucketConfig{
			LeaseBucket:  "controlloop-lease",
			ObjectBucket: "controlloop-objects",
		},
	}
}

// SetDefaults fills in missing configuration values with production defaults.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.LeaseName == "" {
		cfg.LeaseName = defaults.LeaseName
	}
	if cfg.LeaseDuration == 0 {
		cfg.LeaseDuration = defaults.LeaseDuration
	}
	if cfg.RenewFraction == 0 {
		cfg.RenewFraction = defaults.RenewFraction
	}
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = defaults.OperationTimeout
	}
	if cfg.ShutdownGrace == 0 {
		cfg.ShutdownGrace = defaults.ShutdownGrace
	}
	if cfg.JobJitterFraction == 0 {
		cfg.JobJitterFraction = defaults.JobJitterFraction
	}
	if cfg.KVBuckets.LeaseBucket == "" {
		cfg.KVBuckets.LeaseBucket = defaults.KVBuckets.LeaseBucket
	}
	if cfg.KVBuckets.ObjectBucket == "" {
		cfg.KVBuckets.ObjectBucket = defaults.KVBuckets.ObjectBucket
	}
	setEngineDefaults(&cfg.Engine, &defaults.Engine)
}

func setEngineDefaults(cfg, defaults *EngineConfig) {
	if cfg.IdleInterval == 0 {
		cfg.IdleInterval = defaults.IdleInterval
	}
	if cfg.MinRequeueInterval == 0 {
		cfg.MinRequeueInterval = defaults.MinRequeueInterval
	}
	if cfg.MaxRequeueInterval == 0 {
		cfg.MaxRequeueInterval = defaults.MaxRequeueInterval
	}
	if cfg.ModifiedRequeueInterval == 0 {
		cfg.ModifiedRequeueInterval = defaults.ModifiedRequeueInterval
	}
	// A negative ModifiedRequeueInterval disables periodic re-convergence,
	// so zero gets the default but negative values are left alone.
}

// Validate checks configuration constraints and returns error for invalid values.
//
// Hard Validation Rules:
//   - Identity must be non-empty (two replicas sharing an identity break the
//     single-leader invariant)
//   - 0 < RenewFraction < 1 (a leader must renew before its own lease expires)
//   - LeaseDuration*RenewFraction >= 2*OperationTimeout is not enforced but a
//     tick must plausibly complete within the renewal interval
//   - MinRequeueInterval > 0 and MaxRequeueInterval >= MinRequeueInterval
//   - IdleInterval > 0
//   - 0 <= JobJitterFraction <= 1
//
// Returns:
//   - error: Validation error with clear explanation, nil if valid
func (cfg *Config) Validate() error {
	if cfg.Identity == "" {
		return fmt.Errorf("%w: Identity must be set", ErrInvalidConfig)
	}

	if cfg.RenewFraction <= 0 || cfg.RenewFraction >= 1 {
		return fmt.Errorf(
			"%w: RenewFraction (%v) must be in (0, 1) so renewal happens before expiry",
			ErrInvalidConfig, cfg.RenewFraction,
		)
	}

	if cfg.LeaseDuration < time.Second {
		return fmt.Errorf(
			"%w: LeaseDuration (%v) must be >= 1s for the lease record's second-granularity duration",
			ErrInvalidConfig, cfg.LeaseDuration,
		)
	}

	if cfg.JobJitterFraction < 0 || cfg.JobJitterFraction > 1 {
		return fmt.Errorf(
			"%w: JobJitterFraction (%v) must be in [0, 1]",
			ErrInvalidConfig, cfg.JobJitterFraction,
		)
	}

	return cfg.Engine.Validate()
}

// Validate checks engine timing constraints.
//
// Returns:
//   - error: Validation error with clear explanation, nil if valid
func (cfg *EngineConfig) Validate() error {
	if cfg.MinRequeueInterval <= 0 {
		return fmt.Errorf(
			"%w: MinRequeueInterval must be > 0, got %v",
			ErrInvalidConfig, cfg.MinRequeueInterval,
		)
	}

	if cfg.MaxRequeueInterval < cfg.MinRequeueInterval {
		return fmt.Errorf(
			"%w: MaxRequeueInterval (%v) must be >= MinRequeueInterval (%v)",
			ErrInvalidConfig, cfg.MaxRequeueInterval, cfg.MinRequeueInterval,
		)
	}

	if cfg.IdleInterval <= 0 {
		return fmt.Errorf(
			"%w: IdleInterval must be > 0, got %v",
			ErrInvalidConfig, cfg.IdleInterval,
		)
	}

	return nil
}

// TestConfig returns a configuration optimized for fast test execution.
//
// Test timings are 10-100x faster than production defaults to enable rapid
// iteration without sacrificing coverage. Use DefaultConfig() for production
// deployments.
//
// Returns:
//   - Config: Configuration with fast timings for tests
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.LeaseDuration = 1 * time.Second         // 15x faster
	cfg.OperationTimeout = 2 * time.Second      // 5x faster
	cfg.ShutdownGrace = 2 * time.Second         // 5x faster
	cfg.Engine.IdleInterval = 200 * time.Millisecond
	cfg.Engine.MinRequeueInterval = 20 * time.Millisecond
	cfg.Engine.MaxRequeueInterval = 500 * time.Millisecond
	cfg.Engine.ModifiedRequeueInterval = 300 * time.Millisecond

	return cfg
}
