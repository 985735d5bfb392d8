package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "specranking_client"

// Refresh outcomes
const (
	RefreshSuccess = "success"
	RefreshFailure = "failure"
	RefreshStale   = "stale"
)

// Metrics holds the client side collectors shared by the HTTP adapter, the
// session manager and the bookmark cache.
type Metrics struct {
	InFlight          prometheus.Gauge
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	RequestReplays    prometheus.Counter
	TokenRefreshes    *prometheus.CounterVec
	SessionPhase      *prometheus.CounterVec
	BookmarkMutations *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil reg keeps them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "In-flight outgoing HTTP requests.",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of outgoing HTTP requests.",
		}, []string{"method", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Outgoing HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
		RequestReplays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_request_replays_total",
			Help:      "Requests replayed after a silent token refresh.",
		}),
		TokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Access token refresh attempts by outcome.",
		}, []string{"outcome"}),
		SessionPhase: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Session state machine transitions by target phase.",
		}, []string{"phase"}),
		BookmarkMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookmark_mutations_total",
			Help:      "Bookmark add/remove calls by operation and outcome.",
		}, []string{"op", "outcome"}),
	}

	if reg != nil {
		reg.MustRegister(m.InFlight, m.RequestsTotal, m.RequestDuration, m.RequestReplays,
			m.TokenRefreshes, m.SessionPhase, m.BookmarkMutations)
	}
	return m
}

// ObserveRequest records one completed round trip. status 0 means a transport error.
func (m *Metrics) ObserveRequest(method string, status int, started time.Time) {
	code := strconv.Itoa(status)
	if status == 0 {
		code = "error"
	}
	m.RequestDuration.WithLabelValues(method, code).Observe(time.Since(started).Seconds())
	m.RequestsTotal.WithLabelValues(method, code).Inc()
}

// Outcome maps an error to the "success"/"failure" label pair.
func Outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// Handler exposes the collectors of g over HTTP.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
