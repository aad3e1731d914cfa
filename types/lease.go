package types

import (
	"context"
	"time"
)

// LeaseRecord is the versioned record backing distributed mutual exclusion.
//
// One record exists per election domain (lease name). Every write is
// conditioned on the revision last observed so concurrent acquisitions
// resolve to exactly one winner.
type LeaseRecord struct {
	// HolderIdentity is the identity of the current holder, empty if the
	// lease has been released.
	HolderIdentity string `json:"holderIdentity"`

	// LeaseDurationSeconds is how long the lease is valid after RenewTime.
	LeaseDurationSeconds int `json:"leaseDurationSeconds"`

	// RenewTime is when the holder last renewed the lease.
	RenewTime time.Time `json:"renewTime"`

	// AcquireTime is when the current holder first acquired the lease.
	AcquireTime time.Time `json:"acquireTime"`

	// LeaseTransitions counts holder changes over the record's lifetime.
	LeaseTransitions int `json:"leaseTransitions"`
}

// Expired reports whether the lease is past its validity window at the given
// instant.
func (r *LeaseRecord) Expired(now time.Time) bool {
	return r.RenewTime.Add(time.Duration(r.LeaseDurationSeconds) * time.Second).Before(now)
}

// LeaseStore is a strongly-consistent, compare-and-swap record store
// addressed by lease name.
//
// Implementations must guarantee that Create fails with ErrLeaseExists when
// the record is already present and that Update fails with ErrLeaseConflict
// when the supplied revision is not the record's current revision. Those two
// properties are what make the election protocol safe.
type LeaseStore interface {
	// Get reads the current record and its revision.
	//
	// Returns:
	//   - *LeaseRecord: Current record
	//   - uint64: Revision to condition subsequent writes on
	//   - error: ErrLeaseNotFound if absent, store error otherwise
	Get(ctx context.Context, name string) (*LeaseRecord, uint64, error)

	// Create atomically creates the record if absent.
	//
	// Returns:
	//   - uint64: Revision of the created record
	//   - error: ErrLeaseExists if present, store error otherwise
	Create(ctx context.Context, name string, record *LeaseRecord) (uint64, error)

	// Update overwrites the record conditioned on the given revision.
	//
	// Returns:
	//   - uint64: New revision after the write
	//   - error: ErrLeaseConflict on revision mismatch, store error otherwise
	Update(ctx context.Context, name string, record *LeaseRecord, revision uint64) (uint64, error)

	// Delete removes the record. Deleting an absent record is not an error.
	Delete(ctx context.Context, name string) error
}

// ElectionState is the elector's view of its own role.
type ElectionState int

const (
	// StateStandby means another identity (or nobody) holds the lease.
	StateStandby ElectionState = iota

	// StateLeading means this process currently holds the lease.
	StateLeading
)

// String returns the string representation of the election state.
func (s ElectionState) String() string {
	switch s {
	case StateStandby:
		return "Standby"
	case StateLeading:
		return "Leading"
	default:
		return "Unknown"
	}
}

// Callbacks carries the elector's lifecycle notifications.
//
// Callbacks run synchronously on the elector's tick goroutine, one at a time.
// A panicking callback is recovered and logged; it never aborts the tick
// loop. Long-running work belongs in the components the callbacks start, not
// in the callbacks themselves.
type Callbacks struct {
	// OnStartedLeading fires exactly once per promotion, after the lease
	// write that made this process the holder succeeded.
	OnStartedLeading func(ctx context.Context)

	// OnStoppedLeading fires exactly once per demotion, including the
	// demotion forced by graceful shutdown.
	OnStoppedLeading func()

	// OnNewLeader fires whenever the observed holder identity changes,
	// including to this process's own identity.
	OnNewLeader func(identity string)
}
