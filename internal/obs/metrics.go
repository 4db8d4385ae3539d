package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics shared by the whole API surface.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	authOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_outcomes_total",
			Help: "Identity resolution outcomes.",
		},
		[]string{"outcome"},
	)

	gateDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_denials_total",
			Help: "Access-control gate denials by error code.",
		},
		[]string{"code"},
	)

	crisisEscalations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crisis_escalations_total",
			Help: "Crisis escalations dispatched.",
		},
		[]string{"severity"},
	)
)

// Init registers metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		authOutcomes,
		gateDenials,
		crisisEscalations,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAuthOutcome counts one identity resolution result.
func RecordAuthOutcome(outcome string) {
	authOutcomes.WithLabelValues(outcome).Inc()
}

// RecordGateDenial counts one gate denial by its error code.
func RecordGateDenial(code string) {
	gateDenials.WithLabelValues(code).Inc()
}

// RecordCrisisEscalation counts one dispatched crisis escalation.
func RecordCrisisEscalation(severity string) {
	crisisEscalations.WithLabelValues(severity).Inc()
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses identifier segments so metric cardinality stays
// bounded.
func CanonicalPath(path string) string {
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 4 && parts[1] == "v1" && parts[2] == "sessions":
		return "/v1/sessions/:id"
	case len(parts) == 5 && parts[1] == "v1" && parts[2] == "sessions" && parts[4] == "messages":
		return "/v1/sessions/:id/messages"
	case len(parts) == 5 && parts[1] == "v1" && parts[2] == "users" && parts[4] == "profile":
		return "/v1/users/:id/profile"
	}
	return path
}

// statusWriter captures the response code for labelling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
