// Package metrics exposes the Prometheus collectors of the web app and worker.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "walletwise"

// Metrics groups every collector on its own registry so tests can create
// as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests    *prometheus.CounterVec
	apiLatency     *prometheus.HistogramVec
	mutations      *prometheus.CounterVec
	staleRefreshes prometheus.Counter
	parseFailures  prometheus.Counter
	httpRequests   *prometheus.CounterVec
	activitySynced *prometheus.CounterVec
	rateLimited    prometheus.Counter
	suspicious     prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Requests sent to the bill API by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Latency of bill API requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bill_mutations_total",
			Help:      "Claim, mark-paid and register actions by outcome.",
		}, []string{"action", "outcome"}),
		staleRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "board_stale_refreshes_total",
			Help:      "Bill list fetches discarded because a newer fetch was issued.",
		}),
		parseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_records_rejected_total",
			Help:      "Bill records skipped because they failed the boundary parse.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served by method and status code.",
		}, []string{"method", "code"}),
		activitySynced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_sync_total",
			Help:      "Activity rows mirrored to the spreadsheet by outcome.",
		}, []string{"outcome"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Requests refused by the per-IP rate limiter.",
		}),
		suspicious: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suspicious_requests_total",
			Help:      "Requests matching a known probing pattern.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests,
		m.apiLatency,
		m.mutations,
		m.staleRefreshes,
		m.parseFailures,
		m.httpRequests,
		m.activitySynced,
		m.rateLimited,
		m.suspicious,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}

// ObserveAPI records one bill API round trip.
func (m *Metrics) ObserveAPI(endpoint string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(endpoint, outcome(err)).Inc()
	m.apiLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

// RejectedRecords counts records dropped at the parse step.
func (m *Metrics) RejectedRecords(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.parseFailures.Add(float64(n))
}

// StaleRefresh counts a discarded out-of-order fetch.
func (m *Metrics) StaleRefresh() {
	if m == nil {
		return
	}
	m.staleRefreshes.Inc()
}

// Mutation records the outcome of a user action. Local rejections are
// labelled separately so they are not mistaken for API failures.
func (m *Metrics) Mutation(action string, err error, local bool) {
	if m == nil {
		return
	}
	out := outcome(err)
	if err != nil && local {
		out = "rejected"
	}
	m.mutations.WithLabelValues(action, out).Inc()
}

// HTTPRequest counts a served request.
func (m *Metrics) HTTPRequest(method string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

// ActivitySynced counts one mirror attempt.
func (m *Metrics) ActivitySynced(err error) {
	if m == nil {
		return
	}
	m.activitySynced.WithLabelValues(outcome(err)).Inc()
}

// RateLimited counts a refused request.
func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// SuspiciousRequest counts a request flagged by the detector.
func (m *Metrics) SuspiciousRequest() {
	if m == nil {
		return
	}
	m.suspicious.Inc()
}
