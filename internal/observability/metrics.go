package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	apiRequestsTotal      *prometheus.CounterVec
	apiLatencySeconds     *prometheus.HistogramVec
	apiErrorsTotal        *prometheus.CounterVec
	interviewTransitions  *prometheus.CounterVec
	summaryFallbacksTotal prometheus.Counter
	statusCacheLookups    *prometheus.CounterVec
	eventStreamClients    prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the interview API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interview_api_requests_total",
			Help: "Total number of interview API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "interview_api_latency_seconds",
			Help:    "Latency distribution for interview API requests.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interview_api_errors_total",
			Help: "Total number of error responses returned by interview endpoints.",
		}, []string{"method", "route", "status"})

		interviewTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interview_transitions_total",
			Help: "Interview lifecycle transitions by target status.",
		}, []string{"status"})

		summaryFallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "interview_summary_fallbacks_total",
			Help: "Final summaries replaced by the fallback record after a generation failure.",
		})

		statusCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interview_status_cache_lookups_total",
			Help: "Status cache lookups by result.",
		}, []string{"result"})

		eventStreamClients = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "interview_event_stream_clients",
			Help: "Websocket clients currently subscribed to interview events.",
		})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			interviewTransitions,
			summaryFallbacksTotal,
			statusCacheLookups,
			eventStreamClients,
		)
	})
}

// APIRequests exposes the counter for interview API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for interview API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for interview API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// InterviewTransitions counts transitions into each lifecycle status.
func InterviewTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return interviewTransitions
}

// SummaryFallbacks counts completions stored with the fallback summary.
func SummaryFallbacks() prometheus.Counter {
	RegisterMetrics()
	return summaryFallbacksTotal
}

// StatusCacheLookups counts status cache hits and misses.
func StatusCacheLookups() *prometheus.CounterVec {
	RegisterMetrics()
	return statusCacheLookups
}

// EventStreamClients tracks connected websocket subscribers.
func EventStreamClients() prometheus.Gauge {
	RegisterMetrics()
	return eventStreamClients
}
