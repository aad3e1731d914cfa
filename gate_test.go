package controlloop

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testGateConfig() Config {
	cfg := TestConfig()
	cfg.Identity = "node-1"

	return cfg
}

func TestSchedulerGate_Registration(t *testing.T) {
	cfg := testGateConfig()
	gate := NewSchedulerGate(&cfg)

	engine, err := NewEngine(testEngineConfig(), newFakeStream("widget"), &recordingHandler{})
	require.NoError(t, err)

	t.Run("engine registered once", func(t *testing.T) {
		require.NoError(t, gate.RegisterEngine(engine))
		require.ErrorIs(t, gate.RegisterEngine(engine), ErrKindRegistered)
		require.Same(t, engine, gate.Engine("widget"))
	})

	t.Run("job validation", func(t *testing.T) {
		err := gate.RegisterJob(&PeriodicJob{Name: "", Interval: time.Second, Run: func(context.Context) error { return nil }})
		require.ErrorIs(t, err, ErrInvalidJob)

		err = gate.RegisterJob(&PeriodicJob{Name: "sweep", Interval: 0, Run: func(context.Context) error { return nil }})
		require.ErrorIs(t, err, ErrInvalidJob)

		err = gate.RegisterJob(&PeriodicJob{Name: "sweep", Interval: time.Second, Jitter: 2, Run: func(context.Context) error { return nil }})
		require.ErrorIs(t, err, ErrInvalidJob)

		err = gate.RegisterJob(&PeriodicJob{Name: "sweep", Interval: time.Second})
		require.ErrorIs(t, err, ErrInvalidJob)
	})

	t.Run("duplicate job name", func(t *testing.T) {
		job := &PeriodicJob{Name: "sweep", Interval: time.Second, Run: func(context.Context) error { return nil }}
		require.NoError(t, gate.RegisterJob(job))
		require.ErrorIs(t, gate.RegisterJob(job), ErrJobRegistered)
	})
}

func TestSchedulerGate_IdempotentSignals(t *testing.T) {
	cfg := testGateConfig()
	gate := NewSchedulerGate(&cfg)

	stream := newFakeStream("widget")
	handler := &recordingHandler{}
	engine, err := NewEngine(testEngineConfig(), stream, handler)
	require.NoError(t, err)
	require.NoError(t, gate.RegisterEngine(engine))

	// Repeated promotions start the engine exactly once.
	gate.OnPromoted(t.Context())
	gate.OnPromoted(t.Context())
	gate.OnPromoted(t.Context())
	require.True(t, gate.Promoted())

	require.Eventually(t, func() bool {
		_, watches := stream.counts()

		return watches > 0
	}, 3*time.Second, 5*time.Millisecond)

	_, watches := stream.counts()
	require.Equal(t, 1, watches)

	// Repeated demotions are equally harmless.
	gate.OnDemoted()
	gate.OnDemoted()
	require.False(t, gate.Promoted())
}

func TestSchedulerGate_PromoteDemoteCycle(t *testing.T) {
	cfg := testGateConfig()
	gate := NewSchedulerGate(&cfg)

	stream := newFakeStream("widget")
	stream.setObjects(testObject("alpha", 1, `{"v":1}`))
	handler := &recordingHandler{}
	engine, err := NewEngine(testEngineConfig(), stream, handler)
	require.NoError(t, err)
	require.NoError(t, gate.RegisterEngine(engine))

	gate.OnPromoted(t.Context())
	require.Eventually(t, func() bool {
		return handler.reconcileCount() >= 1
	}, 3*time.Second, 5*time.Millisecond)

	gate.OnDemoted()
	count := handler.reconcileCount()

	// While demoted nothing reconciles, even with pending stream state.
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, count, handler.reconcileCount())

	// A fresh promotion re-lists and picks up the change that happened while
	// demoted.
	stream.setObjects(testObject("alpha", 2, `{"v":2}`))
	gate.OnPromoted(t.Context())
	require.Eventually(t, func() bool {
		return handler.reconcileCount() > count
	}, 3*time.Second, 5*time.Millisecond)
	gate.OnDemoted()
}

func TestSchedulerGate_PeriodicJobs(t *testing.T) {
	cfg := testGateConfig()
	gate := NewSchedulerGate(&cfg)

	var runs atomic.Int32
	require.NoError(t, gate.RegisterJob(&PeriodicJob{
		Name:     "sweep",
		Interval: 30 * time.Millisecond,
		Run: func(context.Context) error {
			runs.Add(1)
			if runs.Load() == 1 {
				return errors.New("transient failure")
			}

			return nil
		},
	}))

	gate.OnPromoted(t.Context())

	// The schedule survives job errors.
	require.Eventually(t, func() bool {
		return runs.Load() >= 3
	}, 3*time.Second, 5*time.Millisecond)

	gate.OnDemoted()
	stopped := runs.Load()
	time.Sleep(150 * time.Millisecond)
	require.Equal(t, stopped, runs.Load())
}

func TestSchedulerGate_RepromotionAfterSlowDrain(t *testing.T) {
	cfg := testGateConfig()
	cfg.ShutdownGrace = 50 * time.Millisecond
	gate := NewSchedulerGate(&cfg)

	release := make(chan struct{})
	var runs atomic.Int32
	require.NoError(t, gate.RegisterJob(&PeriodicJob{
		Name:     "slow",
		Interval: 10 * time.Millisecond,
		Run: func(context.Context) error {
			runs.Add(1)
			<-release

			return nil
		},
	}))

	gate.OnPromoted(t.Context())
	require.Eventually(t, func() bool {
		return runs.Load() >= 1
	}, 3*time.Second, 5*time.Millisecond)

	// The stuck job outlives the grace period; demotion gives up on it.
	start := time.Now()
	gate.OnDemoted()
	require.Less(t, time.Since(start), time.Second)
	require.False(t, gate.Promoted())

	// A fresh promotion runs its own generation while the straggler is still
	// draining, and its demotion does not wait on the previous one.
	gate.OnPromoted(t.Context())
	require.Eventually(t, func() bool {
		return runs.Load() >= 2
	}, 3*time.Second, 5*time.Millisecond)

	close(release)
	gate.OnDemoted()
	require.False(t, gate.Promoted())
}

func TestSchedulerGate_JobPanicContained(t *testing.T) {
	cfg := testGateConfig()
	gate := NewSchedulerGate(&cfg)

	var runs atomic.Int32
	require.NoError(t, gate.RegisterJob(&PeriodicJob{
		Name:     "flaky",
		Interval: 30 * time.Millisecond,
		Run: func(context.Context) error {
			if runs.Add(1) == 1 {
				panic("job bug")
			}

			return nil
		},
	}))

	gate.OnPromoted(t.Context())
	defer gate.OnDemoted()

	require.Eventually(t, func() bool {
		return runs.Load() >= 3
	}, 3*time.Second, 5*time.Millisecond)
}
