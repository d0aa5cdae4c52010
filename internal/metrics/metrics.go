// Package metrics holds the Prometheus collectors for the portal API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "portal"

type Metrics struct {
	gatherer prometheus.Gatherer

	// Labels: method, route, status
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	// Labels: kind (like, dislike), result (added, switched, removed, failed)
	ReactionToggles *prometheus.CounterVec
	CommentsTotal   prometheus.Counter
	// Labels: outcome (sent, skipped, failed)
	Notifications *prometheus.CounterVec
	// Labels: source (aggregate, fallback, none)
	CommentCountLoads *prometheus.CounterVec
	// Labels: backend (meilisearch, postgres)
	Searches *prometheus.CounterVec
	// Labels: format (html, pdf)
	Exports     *prometheus.CounterVec
	ActiveViews prometheus.Gauge
}

// New registers every collector on reg. Pass prometheus.NewRegistry() in
// tests so repeated construction does not collide.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route", "status"}),
		ReactionToggles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reactions",
			Name:      "toggles_total",
			Help:      "Reaction toggles by kind and result.",
		}, []string{"kind", "result"}),
		CommentsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "comments",
			Name:      "created_total",
			Help:      "Comments stored.",
		}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "emails_total",
			Help:      "Response notification emails by outcome.",
		}, []string{"outcome"}),
		CommentCountLoads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "comments",
			Name:      "count_loads_total",
			Help:      "Comment count loads by the source that answered.",
		}, []string{"source"}),
		Searches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "queries_total",
			Help:      "Search queries by the backend that answered.",
		}, []string{"backend"}),
		Exports: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analytics",
			Name:      "exports_total",
			Help:      "Analytics report exports by format.",
		}, []string{"format"}),
		ActiveViews: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_views",
			Help:      "Per-session engagement views currently held in memory.",
		}),
	}
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.RequestsTotal.WithLabelValues(method, route, code).Inc()
	m.RequestDuration.WithLabelValues(method, route, code).Observe(elapsed.Seconds())
}

func (m *Metrics) ReactionToggled(kind, result string) {
	if m == nil {
		return
	}
	m.ReactionToggles.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) CommentCreated() {
	if m == nil {
		return
	}
	m.CommentsTotal.Inc()
}

func (m *Metrics) Notification(outcome string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CommentCountsLoaded(source string) {
	if m == nil {
		return
	}
	m.CommentCountLoads.WithLabelValues(source).Inc()
}

func (m *Metrics) Searched(backend string) {
	if m == nil {
		return
	}
	m.Searches.WithLabelValues(backend).Inc()
}

func (m *Metrics) Exported(format string) {
	if m == nil {
		return
	}
	m.Exports.WithLabelValues(format).Inc()
}

func (m *Metrics) SetActiveViews(n int) {
	if m == nil {
		return
	}
	m.ActiveViews.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
