package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counter: how many page lookups were served from cache.
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of page cache hits.",
		},
	)

	// Counter: transient retries against the ticket upstream.
	UpstreamRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "upstream_retries_total",
			Help: "Total number of retried upstream attempts.",
		},
	)

	// Counter: pages served empty because the upstream stayed down
	// through the retry budget.
	DegradedResponsesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "degraded_responses_total",
			Help: "Total number of degraded (empty) page responses.",
		},
	)

	// Counter: stream side-channel appends that failed and were
	// swallowed.
	StreamEmitFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_emit_failures_total",
			Help: "Total number of swallowed stream append failures.",
		},
	)

	// Counter: completed cache warming sweeps (at most 1 per process).
	WarmerSweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warmer_sweeps_total",
			Help: "Total number of completed cache warming sweeps.",
		},
	)

	// Counter: warming combinations that failed and were skipped.
	WarmerComboFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warmer_combo_failures_total",
			Help: "Total number of failed cache warming combinations.",
		},
	)

	// Histogram: gateway HTTP latency in seconds.
	GatewayLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_latency_seconds",
			Help:    "HTTP request latency for the gateway in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
		},
		[]string{"path", "method", "status_code"},
	)
)

// Register is called once in main() to register metrics.
func Register() {
	prometheus.MustRegister(
		CacheHitsTotal,
		UpstreamRetriesTotal,
		DegradedResponsesTotal,
		StreamEmitFailuresTotal,
		WarmerSweepsTotal,
		WarmerComboFailuresTotal,
		GatewayLatencySeconds,
	)
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures gateway latency for each HTTP request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		GatewayLatencySeconds.
			WithLabelValues(r.URL.Path, r.Method, strconv.Itoa(rec.statusCode)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
