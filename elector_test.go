package controlloop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jefflill/neonKUBE-sub003/types"
)

// fakeLeaseStore is an in-memory LeaseStore with real compare-and-swap
// semantics and switchable fault injection.
type fakeLeaseStore struct {
	mu        sync.Mutex
	records   map[string]types.LeaseRecord
	revisions map[string]uint64
	nextRev   uint64

	failing atomic.Bool
}

var errInjected = errors.New("injected store failure")

func newFakeLeaseStore() *fakeLeaseStore {
	return &fakeLeaseStore{
		records:   make(map[string]types.LeaseRecord),
		revisions: make(map[string]uint64),
	}
}

func (s *fakeLeaseStore) Get(_ context.Context, name string) (*types.LeaseRecord, uint64, error) {
	if s.failing.Load() {
		return nil, 0, errInjected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[name]
	if !ok {
		return nil, 0, types.ErrLeaseNotFound
	}
	copied := record

	return &copied, s.revisions[name], nil
}

func (s *fakeLeaseStore) Create(_ context.Context, name string, record *types.LeaseRecord) (uint64, error) {
	if s.failing.Load() {
		return 0, errInjected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[name]; ok {
		return 0, types.ErrLeaseExists
	}
	s.nextRev++
	s.records[name] = *record
	s.revisions[name] = s.nextRev

	return s.nextRev, nil
}

func (s *fakeLeaseStore) Update(_ context.Context, name string, record *types.LeaseRecord, revision uint64) (uint64, error) {
	if s.failing.Load() {
		return 0, errInjected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.revisions[name] != revision {
		return 0, types.ErrLeaseConflict
	}
	s.nextRev++
	s.records[name] = *record
	s.revisions[name] = s.nextRev

	return s.nextRev, nil
}

func (s *fakeLeaseStore) Delete(_ context.Context, name string) error {
	if s.failing.Load() {
		return errInjected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, name)
	delete(s.revisions, name)

	return nil
}

// overwrite forces a record in place, bumping the revision, as if another
// process had won a racing write.
func (s *fakeLeaseStore) overwrite(name string, record types.LeaseRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextRev++
	s.records[name] = record
	s.revisions[name] = s.nextRev
}

func (s *fakeLeaseStore) holder(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.records[name].HolderIdentity
}

// electionRecorder counts lifecycle callbacks.
type electionRecorder struct {
	started atomic.Int32
	stopped atomic.Int32

	mu      sync.Mutex
	leaders []string
}

func (r *electionRecorder) callbacks() types.Callbacks {
	return types.Callbacks{
		OnStartedLeading: func(context.Context) { r.started.Add(1) },
		OnStoppedLeading: func() { r.stopped.Add(1) },
		OnNewLeader: func(identity string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.leaders = append(r.leaders, identity)
		},
	}
}

func (r *electionRecorder) observedLeaders() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.leaders...)
}

func electorConfig(identity string) Config {
	cfg := TestConfig()
	cfg.Identity = identity
	cfg.LeaseName = "test-lease"

	return cfg
}

func startElector(t *testing.T, cfg Config, store types.LeaseStore, callbacks types.Callbacks) (*Elector, context.CancelFunc) {
	t.Helper()

	elector, err := NewElector(&cfg, store, callbacks)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = elector.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return elector, cancel
}

func TestNewElector_Validation(t *testing.T) {
	store := newFakeLeaseStore()

	t.Run("nil config", func(t *testing.T) {
		_, err := NewElector(nil, store, types.Callbacks{})
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("nil store", func(t *testing.T) {
		cfg := electorConfig("node-1")
		_, err := NewElector(&cfg, nil, types.Callbacks{})
		require.ErrorIs(t, err, ErrLeaseStoreRequired)
	})

	t.Run("missing identity", func(t *testing.T) {
		cfg := electorConfig("")
		_, err := NewElector(&cfg, store, types.Callbacks{})
		require.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestElector_AcquiresLeadership(t *testing.T) {
	store := newFakeLeaseStore()
	rec := &electionRecorder{}

	elector, cancel := startElector(t, electorConfig("node-1"), store, rec.callbacks())

	require.Eventually(t, elector.IsLeader, 3*time.Second, 20*time.Millisecond)
	require.Equal(t, "node-1", elector.Leader())
	require.Equal(t, int32(1), rec.started.Load())
	require.Contains(t, rec.observedLeaders(), "node-1")
	require.Equal(t, "node-1", store.holder("test-lease"))

	// Shutdown clears the record and fires OnStoppedLeading before Run returns.
	cancel()
	require.Eventually(t, func() bool {
		return rec.stopped.Load() == 1
	}, 3*time.Second, 20*time.Millisecond)
	require.Empty(t, store.holder("test-lease"))
}

func TestElector_SingleLeaderUnderContention(t *testing.T) {
	store := newFakeLeaseStore()

	e1, _ := startElector(t, electorConfig("node-1"), store, types.Callbacks{})
	e2, _ := startElector(t, electorConfig("node-2"), store, types.Callbacks{})

	require.Eventually(t, func() bool {
		return e1.IsLeader() || e2.IsLeader()
	}, 3*time.Second, 20*time.Millisecond)

	// Both replicas keep contending across several renewal intervals; the
	// invariant must hold at every observation.
	for range 20 {
		require.False(t, e1.IsLeader() && e2.IsLeader(), "both electors claim leadership")
		time.Sleep(50 * time.Millisecond)
	}
}

func TestElector_GracefulHandoff(t *testing.T) {
	store := newFakeLeaseStore()
	cfg := electorConfig("node-1")

	e1, cancel1 := startElector(t, cfg, store, types.Callbacks{})
	require.Eventually(t, e1.IsLeader, 3*time.Second, 20*time.Millisecond)

	rec := &electionRecorder{}
	e2, _ := startElector(t, electorConfig("node-2"), store, rec.callbacks())

	// The stopping leader clears its record, so the standby must take over
	// within roughly one renewal interval rather than a full lease duration.
	cancel1()
	require.Eventually(t, e2.IsLeader, cfg.LeaseDuration, 20*time.Millisecond)
	require.Contains(t, rec.observedLeaders(), "node-2")
}

func TestElector_TakesOverExpiredLease(t *testing.T) {
	store := newFakeLeaseStore()

	// A crashed leader's stale record: renewed long ago, never cleared.
	store.overwrite("test-lease", types.LeaseRecord{
		HolderIdentity:       "dead-node",
		LeaseDurationSeconds: 1,
		RenewTime:            time.Now().Add(-time.Minute),
		AcquireTime:          time.Now().Add(-time.Hour),
		LeaseTransitions:     4,
	})

	elector, _ := startElector(t, electorConfig("node-1"), store, types.Callbacks{})

	require.Eventually(t, elector.IsLeader, 3*time.Second, 20*time.Millisecond)

	record, _, err := store.Get(t.Context(), "test-lease")
	require.NoError(t, err)
	require.Equal(t, "node-1", record.HolderIdentity)
	require.Equal(t, 5, record.LeaseTransitions)
}

func TestElector_FailSafeDemotion(t *testing.T) {
	store := newFakeLeaseStore()
	rec := &electionRecorder{}
	cfg := electorConfig("node-1")

	elector, _ := startElector(t, cfg, store, rec.callbacks())
	require.Eventually(t, elector.IsLeader, 3*time.Second, 20*time.Millisecond)

	// All store traffic fails from here: no renewal can succeed, so the
	// leader must demote itself within one lease duration.
	store.failing.Store(true)

	require.Eventually(t, func() bool {
		return !elector.IsLeader()
	}, cfg.LeaseDuration+time.Second, 20*time.Millisecond)
	require.Equal(t, int32(1), rec.stopped.Load())

	// Recovery: store comes back, the stale record expires, leadership returns.
	store.failing.Store(false)
	require.Eventually(t, elector.IsLeader, 2*cfg.LeaseDuration+time.Second, 20*time.Millisecond)
}

func TestElector_DemotesOnConflict(t *testing.T) {
	store := newFakeLeaseStore()
	rec := &electionRecorder{}

	elector, _ := startElector(t, electorConfig("node-1"), store, rec.callbacks())
	require.Eventually(t, elector.IsLeader, 3*time.Second, 20*time.Millisecond)

	// Another process steals the record out from under us; the next renewal
	// hits a revision conflict and must demote.
	store.overwrite("test-lease", types.LeaseRecord{
		HolderIdentity:       "node-2",
		LeaseDurationSeconds: 60,
		RenewTime:            time.Now(),
		AcquireTime:          time.Now(),
	})

	require.Eventually(t, func() bool {
		return !elector.IsLeader()
	}, 3*time.Second, 20*time.Millisecond)
	require.Equal(t, int32(1), rec.stopped.Load())

	// The usurper is observed and reported.
	require.Eventually(t, func() bool {
		return elector.Leader() == "node-2"
	}, 3*time.Second, 20*time.Millisecond)
	require.Contains(t, rec.observedLeaders(), "node-2")
}

func TestElector_CallbackPanicContained(t *testing.T) {
	store := newFakeLeaseStore()

	callbacks := types.Callbacks{
		OnStartedLeading: func(context.Context) { panic("collaborator bug") },
	}

	elector, _ := startElector(t, electorConfig("node-1"), store, callbacks)

	// The panic is recovered; the elector keeps leading and renewing.
	require.Eventually(t, elector.IsLeader, 3*time.Second, 20*time.Millisecond)
	time.Sleep(500 * time.Millisecond)
	require.True(t, elector.IsLeader())
}
