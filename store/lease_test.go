package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cltest "github.com/jefflill/neonKUBE-sub003/testing"
	"github.com/jefflill/neonKUBE-sub003/types"
)

func newTestLeaseStore(t *testing.T) *KVLeaseStore {
	t.Helper()

	_, nc := cltest.StartEmbeddedNATS(t)
	kv := cltest.CreateJetStreamKV(t, nc, "lease-test")

	return NewKVLeaseStore(kv)
}

func testRecord(holder string) *types.LeaseRecord {
	now := time.Now()

	return &types.LeaseRecord{
		HolderIdentity:       holder,
		LeaseDurationSeconds: 15,
		RenewTime:            now,
		AcquireTime:          now,
	}
}

func TestKVLeaseStore_CreateGet(t *testing.T) {
	store := newTestLeaseStore(t)
	ctx := t.Context()

	rev, err := store.Create(ctx, "leader", testRecord("node-1"))
	require.NoError(t, err)
	require.NotZero(t, rev)

	record, gotRev, err := store.Get(ctx, "leader")
	require.NoError(t, err)
	require.Equal(t, rev, gotRev)
	require.Equal(t, "node-1", record.HolderIdentity)
	require.Equal(t, 15, record.LeaseDurationSeconds)
	require.WithinDuration(t, time.Now(), record.RenewTime, 5*time.Second)
}

func TestKVLeaseStore_GetMissing(t *testing.T) {
	store := newTestLeaseStore(t)

	_, _, err := store.Get(t.Context(), "absent")
	require.ErrorIs(t, err, types.ErrLeaseNotFound)
}

func TestKVLeaseStore_CreateExisting(t *testing.T) {
	store := newTestLeaseStore(t)
	ctx := t.Context()

	_, err := store.Create(ctx, "leader", testRecord("node-1"))
	require.NoError(t, err)

	_, err = store.Create(ctx, "leader", testRecord("node-2"))
	require.ErrorIs(t, err, types.ErrLeaseExists)

	// The original record is untouched.
	record, _, err := store.Get(ctx, "leader")
	require.NoError(t, err)
	require.Equal(t, "node-1", record.HolderIdentity)
}

func TestKVLeaseStore_ConditionedUpdate(t *testing.T) {
	store := newTestLeaseStore(t)
	ctx := t.Context()

	rev, err := store.Create(ctx, "leader", testRecord("node-1"))
	require.NoError(t, err)

	t.Run("matching revision succeeds", func(t *testing.T) {
		renewed := testRecord("node-1")
		newRev, err := store.Update(ctx, "leader", renewed, rev)
		require.NoError(t, err)
		require.Greater(t, newRev, rev)
		rev = newRev
	})

	t.Run("stale revision conflicts", func(t *testing.T) {
		_, err := store.Update(ctx, "leader", testRecord("node-2"), rev-1)
		require.ErrorIs(t, err, types.ErrLeaseConflict)

		record, _, err := store.Get(ctx, "leader")
		require.NoError(t, err)
		require.Equal(t, "node-1", record.HolderIdentity)
	})

	t.Run("lost race conflicts", func(t *testing.T) {
		// Two contenders read the same revision; only the first write wins.
		record, current, err := store.Get(ctx, "leader")
		require.NoError(t, err)

		_, err = store.Update(ctx, "leader", record, current)
		require.NoError(t, err)

		_, err = store.Update(ctx, "leader", testRecord("node-2"), current)
		require.ErrorIs(t, err, types.ErrLeaseConflict)
	})
}

func TestKVLeaseStore_Delete(t *testing.T) {
	store := newTestLeaseStore(t)
	ctx := t.Context()

	_, err := store.Create(ctx, "leader", testRecord("node-1"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "leader"))

	_, _, err = store.Get(ctx, "leader")
	require.ErrorIs(t, err, types.ErrLeaseNotFound)

	// Deleting an absent lease is not an error.
	require.NoError(t, store.Delete(ctx, "leader"))
}
