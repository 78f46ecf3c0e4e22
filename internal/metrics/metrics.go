// Package metrics exposes Prometheus collectors for dispatch, audit and
// patching. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the process exports.
type Metrics struct {
	Registry *prometheus.Registry

	Dispatches    *prometheus.CounterVec
	HandlerFaults *prometheus.CounterVec
	AuditLines    prometheus.Counter
	AuditFailures prometheus.Counter
	PatchesOK     prometheus.Counter
	PatchesFailed *prometheus.CounterVec
	HostCalls     *prometheus.CounterVec
}

// New creates a Metrics instance registered on its own registry, so several
// instances can coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		Dispatches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hostpatch_dispatches_total",
			Help: "Events dispatched, by kind",
		}, []string{"kind"}),
		HandlerFaults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hostpatch_handler_faults_total",
			Help: "Handler errors and recovered panics, by kind and owner",
		}, []string{"kind", "owner"}),
		AuditLines: f.NewCounter(prometheus.CounterOpts{
			Name: "hostpatch_audit_lines_total",
			Help: "Audit lines written",
		}),
		AuditFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "hostpatch_audit_failures_total",
			Help: "Audit lines the durable sink failed to store",
		}),
		PatchesOK: f.NewCounter(prometheus.CounterOpts{
			Name: "hostpatch_patches_applied_total",
			Help: "Patch descriptors applied",
		}),
		PatchesFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hostpatch_patches_failed_total",
			Help: "Patch descriptors that failed, by descriptor",
		}, []string{"descriptor"}),
		HostCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hostpatch_host_calls_total",
			Help: "Top-level host method calls, by method",
		}, []string{"method"}),
	}
}

// Dispatch records one dispatch of kind.
func (m *Metrics) Dispatch(kind string) {
	if m == nil {
		return
	}
	m.Dispatches.WithLabelValues(kind).Inc()
}

// HandlerFault records a failed handler.
func (m *Metrics) HandlerFault(kind, owner string) {
	if m == nil {
		return
	}
	m.HandlerFaults.WithLabelValues(kind, owner).Inc()
}

func (m *Metrics) AuditLine() {
	if m == nil {
		return
	}
	m.AuditLines.Inc()
}

func (m *Metrics) AuditFailure() {
	if m == nil {
		return
	}
	m.AuditFailures.Inc()
}

func (m *Metrics) PatchApplied() {
	if m == nil {
		return
	}
	m.PatchesOK.Inc()
}

func (m *Metrics) PatchFailed(descriptor string) {
	if m == nil {
		return
	}
	m.PatchesFailed.WithLabelValues(descriptor).Inc()
}

func (m *Metrics) HostCall(method string) {
	if m == nil {
		return
	}
	m.HostCalls.WithLabelValues(method).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
