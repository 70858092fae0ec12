// Package metrics exposes Prometheus collectors for the scoring engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records rule, batch, lookup and HTTP measurements.
// It satisfies rules.Recorder and lookup.Observer.
type Metrics struct {
	registry *prometheus.Registry

	ruleEvaluations *prometheus.CounterVec
	ruleDuration    *prometheus.HistogramVec

	batchEvaluations *prometheus.CounterVec
	batchDuration    *prometheus.HistogramVec

	lookupCache *prometheus.CounterVec

	bankDecisions *prometheus.CounterVec
	reloads       *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers the collectors on registry. A nil registry gets a fresh one.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		ruleEvaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "underwriter_rule_evaluations_total",
				Help: "Rule evaluations by class and outcome",
			},
			[]string{"class", "outcome"},
		),
		ruleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "underwriter_rule_duration_seconds",
				Help:    "Duration of single rule evaluations",
				Buckets: prometheus.ExponentialBuckets(0.000001, 4, 10), // 1µs to ~260ms
			},
			[]string{"class"},
		),

		batchEvaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "underwriter_batch_evaluations_total",
				Help: "Rule set evaluations by mode and result",
			},
			[]string{"mode", "result"},
		),
		batchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "underwriter_batch_duration_seconds",
				Help:    "Duration of rule set evaluations",
				Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
			[]string{"mode"},
		),

		lookupCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "underwriter_lookup_cache_total",
				Help: "Lookup cache reads by kind and result",
			},
			[]string{"kind", "result"},
		),

		bankDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "underwriter_bank_decisions_total",
				Help: "Per-bank eligibility decisions",
			},
			[]string{"bank", "result"},
		),
		reloads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "underwriter_settings_reloads_total",
				Help: "Settings reload attempts by result",
			},
			[]string{"result"},
		),

		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "underwriter_http_requests_total",
				Help: "HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "underwriter_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// RuleEvaluated records one guarded rule evaluation.
func (m *Metrics) RuleEvaluated(class, outcome string, d time.Duration) {
	m.ruleEvaluations.WithLabelValues(class, outcome).Inc()
	m.ruleDuration.WithLabelValues(class).Observe(d.Seconds())
}

// BatchEvaluated records one rule set evaluation.
func (m *Metrics) BatchEvaluated(mode string, passed bool, d time.Duration) {
	m.batchEvaluations.WithLabelValues(mode, result(passed)).Inc()
	m.batchDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// LookupCache records a lookup cache hit or miss.
func (m *Metrics) LookupCache(kind string, hit bool) {
	r := "miss"
	if hit {
		r = "hit"
	}
	m.lookupCache.WithLabelValues(kind, r).Inc()
}

// BankDecision records the outcome of checking a request against a bank.
func (m *Metrics) BankDecision(bank string, passed bool) {
	m.bankDecisions.WithLabelValues(bank, result(passed)).Inc()
}

// SettingsReloaded records a reload attempt.
func (m *Metrics) SettingsReloaded(err error) {
	m.reloads.WithLabelValues(result(err == nil)).Inc()
}

// HTTPRequest records a served HTTP request.
func (m *Metrics) HTTPRequest(route, method string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(route, method, statusClass(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

func result(ok bool) string {
	if ok {
		return "pass"
	}
	return "fail"
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
