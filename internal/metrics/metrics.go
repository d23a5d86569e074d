package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service counters. A nil *Metrics is valid and records
// nothing, which keeps tests free of registry setup.
type Metrics struct {
	registry         *prometheus.Registry
	catalogRefreshes *prometheus.CounterVec
	restorations     *prometheus.CounterVec
	submissions      *prometheus.CounterVec
	quantityClamps   prometheus.Counter
	notifyEvents     *prometheus.CounterVec
}

// New registers every counter on a fresh registry together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		catalogRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderdesk",
			Name:      "catalog_refreshes_total",
			Help:      "Product catalog reloads by result.",
		}, []string{"result"}),
		restorations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderdesk",
			Name:      "edit_restorations_total",
			Help:      "Edit-start restorations by result.",
		}, []string{"result"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderdesk",
			Name:      "order_submissions_total",
			Help:      "Order submissions by mode and outcome.",
		}, []string{"mode", "outcome"}),
		quantityClamps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orderdesk",
			Name:      "quantity_clamps_total",
			Help:      "Quantity edits lowered to the allocation ceiling.",
		}),
		notifyEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderdesk",
			Name:      "notify_events_total",
			Help:      "Change notifications received by type.",
		}, []string{"type"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.catalogRefreshes,
		m.restorations,
		m.submissions,
		m.quantityClamps,
		m.notifyEvents,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) CatalogRefresh(ok bool) {
	if m == nil {
		return
	}
	m.catalogRefreshes.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) Restoration(ok bool) {
	if m == nil {
		return
	}
	m.restorations.WithLabelValues(result(ok)).Inc()
}

// Submission counts a submit attempt. mode is "create" or "update".
func (m *Metrics) Submission(mode, outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) QuantityClamped() {
	if m == nil {
		return
	}
	m.quantityClamps.Inc()
}

func (m *Metrics) NotifyEvent(eventType string) {
	if m == nil {
		return
	}
	m.notifyEvents.WithLabelValues(eventType).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
