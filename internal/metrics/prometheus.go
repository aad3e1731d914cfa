package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jefflill/neonKUBE-sub003/types"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Registration is deferred until the first measurement so constructing the
// collector never panics on duplicate registration in tests.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	promotions    *prometheus.CounterVec
	demotions     *prometheus.CounterVec
	leaderChanges *prometheus.CounterVec

	eventsReceived *prometheus.CounterVec
	eventsAccepted *prometheus.CounterVec
	handlerErrors  *prometheus.CounterVec
	requeues       *prometheus.CounterVec
	relists        *prometheus.CounterVec

	gateStarts     prometheus.Counter
	gateStops      prometheus.Counter
	enginesRunning prometheus.Gauge
	jobRuns        *prometheus.CounterVec
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Metrics namespace (defaults to "controlloop" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "controlloop"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.promotions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "elector",
			Name:      "promotions_total",
			Help:      "Total leadership acquisitions by lease name.",
		}, []string{"lease"})

		p.demotions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "elector",
			Name:      "demotions_total",
			Help:      "Total leadership losses and releases by lease name.",
		}, []string{"lease"})

		p.leaderChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "elector",
			Name:      "leader_changes_total",
			Help:      "Total observed holder identity changes by lease name.",
		}, []string{"lease"})

		p.eventsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "engine",
			Name:      "events_received_total",
			Help:      "Total watch events received by resource kind and event type.",
		}, []string{"kind", "event"})

		p.eventsAccepted = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "engine",
			Name:      "events_accepted_total",
			Help:      "Total events accepted as a real change by resource kind and event type.",
		}, []string{"kind", "event"})

		p.handlerErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "engine",
			Name:      "handler_errors_total",
			Help:      "Total handler failures by resource kind and event type.",
		}, []string{"kind", "event"})

		p.requeues = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "engine",
			Name:      "requeues_total",
			Help:      "Total scheduled re-invocations by resource kind and reason.",
		}, []string{"kind", "reason"})

		p.relists = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "engine",
			Name:      "relists_total",
			Help:      "Total full re-list cycles forced by stream failures.",
		}, []string{"kind"})

		p.gateStarts = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "gate",
			Name:      "starts_total",
			Help:      "Total gate activations on promotion.",
		})

		p.gateStops = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "gate",
			Name:      "stops_total",
			Help:      "Total gate shutdowns on demotion.",
		})

		p.enginesRunning = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "gate",
			Name:      "engines_running",
			Help:      "Number of reconciliation engines currently running.",
		})

		p.jobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "gate",
			Name:      "job_runs_total",
			Help:      "Total periodic job executions by job name and result.",
		}, []string{"job", "result"})

		p.reg.MustRegister(p.promotions)
		p.reg.MustRegister(p.demotions)
		p.reg.MustRegister(p.leaderChanges)
		p.reg.MustRegister(p.eventsReceived)
		p.reg.MustRegister(p.eventsAccepted)
		p.reg.MustRegister(p.handlerErrors)
		p.reg.MustRegister(p.requeues)
		p.reg.MustRegister(p.relists)
		p.reg.MustRegister(p.gateStarts)
		p.reg.MustRegister(p.gateStops)
		p.reg.MustRegister(p.enginesRunning)
		p.reg.MustRegister(p.jobRuns)
	})
}

// RecordPromotion increments the promotion counter for the lease.
func (p *PrometheusCollector) RecordPromotion(leaseName string) {
	p.ensureRegistered()
	p.promotions.WithLabelValues(leaseName).Inc()
}

// RecordDemotion increments the demotion counter for the lease.
func (p *PrometheusCollector) RecordDemotion(leaseName string) {
	p.ensureRegistered()
	p.demotions.WithLabelValues(leaseName).Inc()
}

// RecordLeaderChange increments the leader-change counter for the lease.
func (p *PrometheusCollector) RecordLeaderChange(leaseName, _ string) {
	p.ensureRegistered()
	p.leaderChanges.WithLabelValues(leaseName).Inc()
}

// RecordEventReceived increments the received counter for the kind/event pair.
func (p *PrometheusCollector) RecordEventReceived(resourceKind, eventType string) {
	p.ensureRegistered()
	p.eventsReceived.WithLabelValues(resourceKind, eventType).Inc()
}

// RecordEventAccepted increments the accepted counter for the kind/event pair.
func (p *PrometheusCollector) RecordEventAccepted(resourceKind, eventType string) {
	p.ensureRegistered()
	p.eventsAccepted.WithLabelValues(resourceKind, eventType).Inc()
}

// RecordHandlerError increments the handler error counter for the kind/event pair.
func (p *PrometheusCollector) RecordHandlerError(resourceKind, eventType string) {
	p.ensureRegistered()
	p.handlerErrors.WithLabelValues(resourceKind, eventType).Inc()
}

// RecordRequeue increments the requeue counter for the kind/reason pair.
func (p *PrometheusCollector) RecordRequeue(resourceKind, reason string) {
	p.ensureRegistered()
	p.requeues.WithLabelValues(resourceKind, reason).Inc()
}

// RecordRelist increments the re-list counter for the kind.
func (p *PrometheusCollector) RecordRelist(resourceKind string) {
	p.ensureRegistered()
	p.relists.WithLabelValues(resourceKind).Inc()
}

// RecordGateStart increments the gate start counter and engine gauge.
func (p *PrometheusCollector) RecordGateStart(engines, _ int) {
	p.ensureRegistered()
	p.gateStarts.Inc()
	p.enginesRunning.Set(float64(engines))
}

// RecordGateStop increments the gate stop counter and clears the engine gauge.
func (p *PrometheusCollector) RecordGateStop() {
	p.ensureRegistered()
	p.gateStops.Inc()
	p.enginesRunning.Set(0)
}

// RecordJobRun increments the job execution counter by result.
func (p *PrometheusCollector) RecordJobRun(jobName string, success bool) {
	p.ensureRegistered()
	result := "success"
	if !success {
		result = "failure"
	}
	p.jobRuns.WithLabelValues(jobName, result).Inc()
}
