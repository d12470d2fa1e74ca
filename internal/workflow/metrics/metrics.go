// Package metrics exposes Prometheus instrumentation for the workflow
// procedures.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultCommitted = "committed"
	ResultRejected  = "rejected"
	ResultConflict  = "conflict"
	ResultError     = "error"
)

type Metrics struct {
	procedures      *prometheus.CounterVec
	commitDuration  prometheus.Histogram
	pendingTriggers prometheus.Gauge
	firedTriggers   *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		procedures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conveyance",
			Subsystem: "workflow",
			Name:      "procedures_total",
			Help:      "Workflow procedure outcomes by command and result.",
		}, []string{"command", "result"}),
		commitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "conveyance",
			Subsystem: "workflow",
			Name:      "commit_duration_seconds",
			Help:      "Time to validate and commit a bundle.",
			Buckets:   prometheus.DefBuckets,
		}),
		pendingTriggers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "conveyance",
			Subsystem: "scheduler",
			Name:      "pending_triggers",
			Help:      "Transfer triggers scheduled but not yet fired.",
		}),
		firedTriggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conveyance",
			Subsystem: "scheduler",
			Name:      "fired_triggers_total",
			Help:      "Transfer triggers fired by outcome.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.procedures, m.commitDuration, m.pendingTriggers, m.firedTriggers)
	return m
}

// NewNop returns metrics bound to a throwaway registry, for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

func (m *Metrics) Procedure(command, result string) {
	m.procedures.WithLabelValues(command, result).Inc()
}

func (m *Metrics) ObserveCommit(d time.Duration) {
	m.commitDuration.Observe(d.Seconds())
}

func (m *Metrics) TriggerScheduled() { m.pendingTriggers.Inc() }

func (m *Metrics) TriggerFired(result string) {
	m.pendingTriggers.Dec()
	m.firedTriggers.WithLabelValues(result).Inc()
}

// TriggerRetried records a failed firing that stays pending.
func (m *Metrics) TriggerRetried() {
	m.firedTriggers.WithLabelValues(ResultError).Inc()
}
