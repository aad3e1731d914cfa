package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// All methods are called from internal goroutines and must be thread-safe.
//
// This interface composes smaller, domain-focused interfaces so consumers
// can implement only the surface they care about and embed a nop for the rest.
type MetricsCollector interface {
	ElectorMetrics
	EngineMetrics
	GateMetrics
}

// ElectorMetrics defines metrics for leader-election lifecycle events.
type ElectorMetrics interface {
	// RecordPromotion records this process acquiring leadership of a lease.
	RecordPromotion(leaseName string)

	// RecordDemotion records this process losing or releasing leadership.
	RecordDemotion(leaseName string)

	// RecordLeaderChange records an observed holder identity change.
	RecordLeaderChange(leaseName, newLeader string)
}

// EngineMetrics defines per-event-kind, per-resource-kind counters for the
// reconciliation engine.
type EngineMetrics interface {
	// RecordEventReceived counts every event pulled from the watch stream.
	RecordEventReceived(resourceKind, eventType string)

	// RecordEventAccepted counts events classified as a real change and
	// dispatched to a handler.
	RecordEventAccepted(resourceKind, eventType string)

	// RecordHandlerError counts handler failures (errors and panics).
	RecordHandlerError(resourceKind, eventType string)

	// RecordRequeue counts scheduled re-invocations (retries and periodic
	// requeues) by reason ("backoff", "directive", "modified").
	RecordRequeue(resourceKind, reason string)

	// RecordRelist counts full re-list cycles forced by stream failures.
	RecordRelist(resourceKind string)
}

// GateMetrics defines metrics for the scheduler gate and its periodic jobs.
type GateMetrics interface {
	// RecordGateStart records engines/jobs being started on promotion.
	RecordGateStart(engines, jobs int)

	// RecordGateStop records a gate shutdown on demotion.
	RecordGateStop()

	// RecordJobRun records one periodic job execution outcome.
	RecordJobRun(jobName string, success bool)
}
