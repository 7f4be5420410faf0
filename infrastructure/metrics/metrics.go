// Package metrics provides Prometheus metrics for engine command
// execution, agenda depth, and working memory size, grounded on the
// teacher stack's metrics collector.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector the engine exposes.
type Metrics struct {
	CommandsTotal    *prometheus.CounterVec
	CommandDuration  *prometheus.HistogramVec
	ActivationsFired *prometheus.CounterVec
	ActionErrors     *prometheus.CounterVec
	AgendaDepth      *prometheus.GaugeVec
	WorkingMemorySize *prometheus.GaugeVec
	TenantsActive    prometheus.Gauge
}

// New creates a Metrics instance and registers its collectors against
// registerer. Pass prometheus.DefaultRegisterer for process-wide metrics,
// or a fresh prometheus.NewRegistry() in tests to avoid collisions.
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reteforge_commands_total",
				Help: "Total number of engine commands processed.",
			},
			[]string{"tenant", "command", "status"},
		),
		CommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reteforge_command_duration_seconds",
				Help:    "Engine command execution duration in seconds.",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"tenant", "command"},
		),
		ActivationsFired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reteforge_activations_fired_total",
				Help: "Total number of activations fired.",
			},
			[]string{"tenant", "production"},
		),
		ActionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reteforge_action_errors_total",
				Help: "Total number of action execution errors by code.",
			},
			[]string{"tenant", "code"},
		),
		AgendaDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "reteforge_agenda_depth",
				Help: "Current number of activations pending on the agenda.",
			},
			[]string{"tenant"},
		),
		WorkingMemorySize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "reteforge_working_memory_facts",
				Help: "Current number of facts held in working memory.",
			},
			[]string{"tenant"},
		),
		TenantsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "reteforge_tenants_active",
				Help: "Current number of running tenant engines.",
			},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.CommandsTotal,
			m.CommandDuration,
			m.ActivationsFired,
			m.ActionErrors,
			m.AgendaDepth,
			m.WorkingMemorySize,
			m.TenantsActive,
		)
	}

	return m
}

// RecordCommand records one command execution.
func (m *Metrics) RecordCommand(tenant, command, status string, d time.Duration) {
	m.CommandsTotal.WithLabelValues(tenant, command, status).Inc()
	m.CommandDuration.WithLabelValues(tenant, command).Observe(d.Seconds())
}

// RecordFire records one activation firing.
func (m *Metrics) RecordFire(tenant, productionID string) {
	m.ActivationsFired.WithLabelValues(tenant, productionID).Inc()
}

// RecordActionError records one action execution failure by taxonomy code.
func (m *Metrics) RecordActionError(tenant, code string) {
	m.ActionErrors.WithLabelValues(tenant, code).Inc()
}

// SetAgendaDepth reports the current agenda size for tenant.
func (m *Metrics) SetAgendaDepth(tenant string, depth int) {
	m.AgendaDepth.WithLabelValues(tenant).Set(float64(depth))
}

// SetWorkingMemorySize reports the current working memory fact count for
// tenant.
func (m *Metrics) SetWorkingMemorySize(tenant string, size int) {
	m.WorkingMemorySize.WithLabelValues(tenant).Set(float64(size))
}

var (
	global   *Metrics
	globalMu sync.Mutex
)

// Init initializes the process-wide Metrics instance, idempotently.
func Init() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = New(prometheus.DefaultRegisterer)
	}
	return global
}

// Global returns the process-wide Metrics instance, initializing it
// against a private registry if Init was never called.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = New(prometheus.NewRegistry())
	}
	return global
}
