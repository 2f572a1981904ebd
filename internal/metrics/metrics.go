package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)
	// RateLimited counts requests rejected by the limiter
	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "http_rate_limited_total", Help: "Requests rejected with 429."},
	)

	// SolverRuns counts finished solver runs by problem kind and stop reason
	SolverRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "solver_runs_total", Help: "Finished solver runs."},
		[]string{"kind", "stop_reason"},
	)
	// SolverDuration records wall time per run in seconds
	SolverDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "solver_run_duration_seconds", Help: "Solver run duration in seconds.", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300}},
		[]string{"kind"},
	)
	// SolverGenerations records generations per run
	SolverGenerations = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "solver_generations", Help: "Generations per solver run.", Buckets: prometheus.ExponentialBuckets(10, 4, 8)},
		[]string{"kind"},
	)
	// SolverInfeasible counts VRP runs whose best solution violates a constraint
	SolverInfeasible = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "solver_infeasible_total", Help: "Solver runs returning an infeasible best solution."},
	)
	// SolveCacheHits counts synchronous solves answered from the result cache
	SolveCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "solve_cache_hits_total", Help: "Solve requests served from cache."},
	)
	// JobsRunning is the number of async jobs currently solving
	JobsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "jobs_running", Help: "Async solve jobs in progress."},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers the collectors on Registry once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(
			HTTPRequests, HTTPDuration, RateLimited,
			SolverRuns, SolverDuration, SolverGenerations, SolverInfeasible, SolveCacheHits, JobsRunning,
			WebhookDeliveries, WebhookLatency,
		)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// ObserveSolve records one finished run. kind is "vrp" or "tsp".
func ObserveSolve(kind, stopReason string, generations int, elapsed time.Duration) {
	SolverRuns.WithLabelValues(kind, stopReason).Inc()
	SolverDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	SolverGenerations.WithLabelValues(kind).Observe(float64(generations))
}

// ObserveWebhook records one delivery attempt; status is "delivered",
// "retry" or "failed".
func ObserveWebhook(eventType, status string, latency time.Duration) {
	WebhookDeliveries.WithLabelValues(eventType, status).Inc()
	WebhookLatency.WithLabelValues(eventType, status).Observe(float64(latency.Milliseconds()))
}
