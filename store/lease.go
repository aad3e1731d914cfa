package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/jefflill/neonKUBE-sub003/types"
)

// KVLeaseStore implements types.LeaseStore on a NATS JetStream KV bucket.
//
// Lease records are stored as JSON, one key per lease name. Atomicity comes
// from the KV primitives:
//   - Create: acquire only if the record does not exist
//   - Update (with revision): write only if nobody else wrote since our read
//   - Delete: release
//
// Conflicting writes surface as types.ErrLeaseExists / types.ErrLeaseConflict
// so the elector can treat them as concurrency signals rather than errors.
type KVLeaseStore struct {
	kv jetstream.KeyValue
}

// Compile-time assertion that KVLeaseStore implements LeaseStore.
var _ types.LeaseStore = (*KVLeaseStore)(nil)

// NewKVLeaseStore creates a lease store backed by the given KV bucket.
//
// The bucket needs no TTL: lease expiry is decided by the elector from the
// record's RenewTime, so a crashed leader is detected even on buckets that
// never expire keys.
//
// Parameters:
//   - kv: JetStream KV bucket holding lease records
//
// Returns:
//   - *KVLeaseStore: New lease store instance
func NewKVLeaseStore(kv jetstream.KeyValue) *KVLeaseStore {
	return &KVLeaseStore{kv: kv}
}

// Get reads the lease record and its revision.
func (s *KVLeaseStore) Get(ctx context.Context, name string) (*types.LeaseRecord, uint64, error) {
	entry, err := s.kv.Get(ctx, name)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, 0, types.ErrLeaseNotFound
		}

		return nil, 0, fmt.Errorf("failed to get lease %s: %w", name, err)
	}

	var record types.LeaseRecord
	if err := json.Unmarshal(entry.Value(), &record); err != nil {
		return nil, 0, fmt.Errorf("failed to decode lease %s: %w", name, err)
	}

	return &record, entry.Revision(), nil
}

// Create atomically creates the lease record if absent.
func (s *KVLeaseStore) Create(ctx context.Context, name string, record *types.LeaseRecord) (uint64, error) {
	value, err := json.Marshal(record)
	if err != nil {
		return 0, fmt.Errorf("failed to encode lease %s: %w", name, err)
	}

	revision, err := s.kv.Create(ctx, name, value)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return 0, types.ErrLeaseExists
		}

		return 0, fmt.Errorf("failed to create lease %s: %w", name, err)
	}

	return revision, nil
}

// Update overwrites the lease record conditioned on the given revision.
func (s *KVLeaseStore) Update(ctx context.Context, name string, record *types.LeaseRecord, revision uint64) (uint64, error) {
	value, err := json.Marshal(record)
	if err != nil {
		return 0, fmt.Errorf("failed to encode lease %s: %w", name, err)
	}

	newRevision, err := s.kv.Update(ctx, name, value, revision)
	if err != nil {
		if isRevisionConflict(err) {
			return 0, types.ErrLeaseConflict
		}

		return 0, fmt.Errorf("failed to update lease %s: %w", name, err)
	}

	return newRevision, nil
}

// Delete removes the lease record. Deleting an absent record is not an error.
func (s *KVLeaseStore) Delete(ctx context.Context, name string) error {
	if err := s.kv.Delete(ctx, name); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete lease %s: %w", name, err)
	}

	return nil
}

// isRevisionConflict reports whether a KV write failed because the
// conditioned revision is no longer current.
func isRevisionConflict(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}

	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}

	return false
}
