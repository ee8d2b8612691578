// Package metrics holds the Prometheus collectors for imports and agenda
// builds. Each Metrics owns its registry so tests and multiple servers do
// not collide on the global one.
package metrics

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"breakcal/internal/ics"
	"breakcal/internal/model"
)

// Import results used as the "result" label.
const (
	ResultOK            = "ok"
	ResultInvalidFormat = "invalid_format"
	ResultParseError    = "parse_error"
	ResultIOError       = "io_error"
	ResultStoreError    = "store_error"
)

// Metrics bundles the collectors.
type Metrics struct {
	registry *prometheus.Registry

	imports        *prometheus.CounterVec
	eventsImported *prometheus.CounterVec
	agendaBuilds   prometheus.Counter
	breaks         *prometheus.CounterVec
}

// New creates and registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "breakcal",
			Name:      "imports_total",
			Help:      "Calendar imports by origin and result.",
		}, []string{"origin", "result"}),
		eventsImported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "breakcal",
			Name:      "events_imported_total",
			Help:      "Events extracted from successful imports.",
		}, []string{"origin"}),
		agendaBuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "breakcal",
			Name:      "agenda_builds_total",
			Help:      "Agendas computed.",
		}),
		breaks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "breakcal",
			Name:      "breaks_suggested_total",
			Help:      "Suggested breaks by bucket length in minutes.",
		}, []string{"bucket"}),
	}

	m.registry.MustRegister(
		m.imports,
		m.eventsImported,
		m.agendaBuilds,
		m.breaks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry (used by tests).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveImport records the outcome of one import. origin is "upload",
// "file" or "subscription".
func (m *Metrics) ObserveImport(origin string, events int, err error) {
	if m == nil {
		return
	}
	m.imports.WithLabelValues(origin, ImportResult(err)).Inc()
	if err == nil {
		m.eventsImported.WithLabelValues(origin).Add(float64(events))
	}
}

// ObserveAgenda records one agenda build.
func (m *Metrics) ObserveAgenda(items []model.AgendaItem) {
	if m == nil {
		return
	}
	m.agendaBuilds.Inc()
	for _, it := range items {
		if it.Kind == model.KindBreak && it.Break != nil {
			m.breaks.WithLabelValues(strconv.Itoa(int(it.Break.Bucket))).Inc()
		}
	}
}

// ImportResult classifies an import error into a label value.
func ImportResult(err error) string {
	var (
		perr  *ics.ParseError
		ioErr *ics.IOError
	)
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, ics.ErrInvalidFormat):
		return ResultInvalidFormat
	case errors.As(err, &perr):
		return ResultParseError
	case errors.As(err, &ioErr):
		return ResultIOError
	default:
		return ResultStoreError
	}
}
