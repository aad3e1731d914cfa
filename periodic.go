package controlloop

import (
	"context"
	"fmt"
	"time"
)

// PeriodicJob is leader-scoped background work executed on a jittered
// interval while this process leads.
//
// Jobs run only between promotion and demotion; a demoted process never
// fires them. Each run is offset by a bounded random jitter so replicas do
// not synchronize their maintenance work across restarts.
type PeriodicJob struct {
	// Name identifies the job in logs and metrics. Must be unique within a
	// scheduler gate.
	Name string

	// Interval is the base period between runs.
	Interval time.Duration

	// Jitter is the maximum random offset added to each interval, as a
	// fraction of Interval in [0, 1]. Zero takes the gate's configured
	// default.
	Jitter float64

	// Run executes one iteration. A returned error is logged and counted;
	// the schedule continues regardless.
	Run func(ctx context.Context) error
}

// Validate checks the job definition.
//
// Returns:
//   - error: ErrInvalidJob-wrapped explanation, nil if valid
func (j *PeriodicJob) Validate() error {
	if j.Name == "" {
		return fmt.Errorf("%w: Name must be set", ErrInvalidJob)
	}
	if j.Interval <= 0 {
		return fmt.Errorf("%w: job %q Interval must be > 0, got %v", ErrInvalidJob, j.Name, j.Interval)
	}
	if j.Jitter < 0 || j.Jitter > 1 {
		return fmt.Errorf("%w: job %q Jitter (%v) must be in [0, 1]", ErrInvalidJob, j.Name, j.Jitter)
	}
	if j.Run == nil {
		return fmt.Errorf("%w: job %q Run must be set", ErrInvalidJob, j.Name)
	}

	return nil
}
