// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the counters below.
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
	OutcomeEmpty   = "empty"

	OutcomeMatchedExact = "matched_exact"
	OutcomeMatchedName  = "matched_name"
	OutcomeCreated      = "created"
	OutcomeUnresolved   = "unresolved"
)

// Pipeline holds the counters of one process. A nil *Pipeline is a no-op so
// services can run without metrics in tests.
type Pipeline struct {
	registry *prometheus.Registry

	findings        *prometheus.CounterVec
	sourceFailures  *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
	enrichments     *prometheus.CounterVec
	coalesced       prometheus.Counter
	timetables      *prometheus.CounterVec
	fallbackFields  *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
}

func New() *Pipeline {
	reg := prometheus.NewRegistry()
	p := &Pipeline{
		registry: reg,
		findings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ipo_discovery_findings_total",
			Help: "Listings staged by discovery, by exchange and outcome.",
		}, []string{"source", "outcome"}),
		sourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ipo_source_failures_total",
			Help: "Exchange calls that failed, by exchange and operation.",
		}, []string{"source", "operation"}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ipo_reconciliation_findings_total",
			Help: "Findings processed by reconciliation, by outcome.",
		}, []string{"outcome"}),
		enrichments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ipo_enrichment_refreshes_total",
			Help: "Offering refreshes, by outcome.",
		}, []string{"outcome"}),
		coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ipo_enrichment_coalesced_total",
			Help: "Refresh requests that joined an in-flight refresh of the same offering.",
		}),
		timetables: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ipo_timetable_extractions_total",
			Help: "Prospectus timetable extractions, by outcome.",
		}, []string{"outcome"}),
		fallbackFields: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ipo_fallback_fields_applied_total",
			Help: "Settlement dates written by the regulatory fallback, by column.",
		}, []string{"field"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ipo_stage_duration_seconds",
			Help:    "Pipeline stage run time.",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}, []string{"stage"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.findings,
		p.sourceFailures,
		p.reconciliations,
		p.enrichments,
		p.coalesced,
		p.timetables,
		p.fallbackFields,
		p.stageDuration,
	)
	return p
}

func (p *Pipeline) Handler() http.Handler {
	if p == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Pipeline) Registry() *prometheus.Registry {
	if p == nil {
		return nil
	}
	return p.registry
}

func (p *Pipeline) Finding(source, outcome string) {
	if p == nil {
		return
	}
	p.findings.WithLabelValues(source, outcome).Inc()
}

func (p *Pipeline) SourceFailure(source, operation string) {
	if p == nil {
		return
	}
	p.sourceFailures.WithLabelValues(source, operation).Inc()
}

func (p *Pipeline) Reconciled(outcome string) {
	if p == nil {
		return
	}
	p.reconciliations.WithLabelValues(outcome).Inc()
}

func (p *Pipeline) Enriched(outcome string) {
	if p == nil {
		return
	}
	p.enrichments.WithLabelValues(outcome).Inc()
}

func (p *Pipeline) Coalesced() {
	if p == nil {
		return
	}
	p.coalesced.Inc()
}

func (p *Pipeline) Timetable(outcome string) {
	if p == nil {
		return
	}
	p.timetables.WithLabelValues(outcome).Inc()
}

func (p *Pipeline) FallbackApplied(field string) {
	if p == nil {
		return
	}
	p.fallbackFields.WithLabelValues(field).Inc()
}

func (p *Pipeline) ObserveStage(stage string, seconds float64) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(seconds)
}
