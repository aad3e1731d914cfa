package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := NewPrometheus(reg, "test")

	t.Run("elector counters", func(t *testing.T) {
		collector.RecordPromotion("leader")
		collector.RecordPromotion("leader")
		collector.RecordDemotion("leader")
		collector.RecordLeaderChange("leader", "node-2")

		require.InDelta(t, 2, testutil.ToFloat64(collector.promotions.WithLabelValues("leader")), 0.001)
		require.InDelta(t, 1, testutil.ToFloat64(collector.demotions.WithLabelValues("leader")), 0.001)
		require.InDelta(t, 1, testutil.ToFloat64(collector.leaderChanges.WithLabelValues("leader")), 0.001)
	})

	t.Run("engine counters", func(t *testing.T) {
		collector.RecordEventReceived("widget", "Modified")
		collector.RecordEventAccepted("widget", "SpecChange")
		collector.RecordHandlerError("widget", "SpecChange")
		collector.RecordRequeue("widget", "backoff")
		collector.RecordRelist("widget")

		require.InDelta(t, 1, testutil.ToFloat64(collector.eventsReceived.WithLabelValues("widget", "Modified")), 0.001)
		require.InDelta(t, 1, testutil.ToFloat64(collector.eventsAccepted.WithLabelValues("widget", "SpecChange")), 0.001)
		require.InDelta(t, 1, testutil.ToFloat64(collector.handlerErrors.WithLabelValues("widget", "SpecChange")), 0.001)
		require.InDelta(t, 1, testutil.ToFloat64(collector.requeues.WithLabelValues("widget", "backoff")), 0.001)
		require.InDelta(t, 1, testutil.ToFloat64(collector.relists.WithLabelValues("widget")), 0.001)
	})

	t.Run("gate counters", func(t *testing.T) {
		collector.RecordGateStart(3, 2)
		require.InDelta(t, 3, testutil.ToFloat64(collector.enginesRunning), 0.001)

		collector.RecordGateStop()
		require.InDelta(t, 0, testutil.ToFloat64(collector.enginesRunning), 0.001)

		collector.RecordJobRun("sweep", true)
		collector.RecordJobRun("sweep", false)
		require.InDelta(t, 1, testutil.ToFloat64(collector.jobRuns.WithLabelValues("sweep", "success")), 0.001)
		require.InDelta(t, 1, testutil.ToFloat64(collector.jobRuns.WithLabelValues("sweep", "failure")), 0.001)
	})
}

func TestPrometheusCollector_Defaults(t *testing.T) {
	reg := prometheus.NewRegistry()

	// Empty namespace falls back to the library default.
	collector := NewPrometheus(reg, "")
	require.Equal(t, "controlloop", collector.namespace)
}
