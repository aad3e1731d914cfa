// Package metrics provides MetricsCollector implementations: a nop default
// and a Prometheus-backed collector.
package metrics

import "github.com/jefflill/neonKUBE-sub003/types"

// NopMetrics is a types.MetricsCollector that discards all measurements.
//
// Injected by default so components can record unconditionally without nil
// checks.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop returns a collector that discards everything.
func NewNop() *NopMetrics { return &NopMetrics{} }

// RecordPromotion discards the measurement.
func (*NopMetrics) RecordPromotion(string) {}

// RecordDemotion discards the measurement.
func (*NopMetrics) RecordDemotion(string) {}

// RecordLeaderChange discards the measurement.
func (*NopMetrics) RecordLeaderChange(string, string) {}

// RecordEventReceived discards the measurement.
func (*NopMetrics) RecordEventReceived(string, string) {}

// RecordEventAccepted discards the measurement.
func (*NopMetrics) RecordEventAccepted(string, string) {}

// RecordHandlerError discards the measurement.
func (*NopMetrics) RecordHandlerError(string, string) {}

// RecordRequeue discards the measurement.
func (*NopMetrics) RecordRequeue(string, string) {}

// RecordRelist discards the measurement.
func (*NopMetrics) RecordRelist(string) {}

// RecordGateStart discards the measurement.
func (*NopMetrics) RecordGateStart(int, int) {}

// RecordGateStop discards the measurement.
func (*NopMetrics) RecordGateStop() {}

// RecordJobRun discards the measurement.
func (*NopMetrics) RecordJobRun(string, bool) {}
