package metrics

import (
    "sync"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the API
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

    // Solves counts solve outcomes (success, validation, infeasible, error) by requested objective
    Solves = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "vrp_solves_total", Help: "Solves by objective and outcome."},
        []string{"objective", "outcome"},
    )
    // SolveDuration records wall time of whole solves in seconds
    SolveDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "vrp_solve_duration_seconds", Help: "Solve duration in seconds.", Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}},
        []string{"objective"},
    )
    ObjectiveFallbacks = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "vrp_objective_fallbacks_total", Help: "Solves retried with the distance objective."},
    )
    // Diagnoses counts failure classifications by type
    Diagnoses = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "vrp_diagnoses_total", Help: "No-solution diagnoses by type."},
        []string{"type"},
    )
    EngineIterations = prometheus.NewHistogram(
        prometheus.HistogramOpts{Name: "vrp_engine_iterations", Help: "Search iterations per solve.", Buckets: prometheus.ExponentialBuckets(10, 4, 8)},
    )
    // ProjectBusy counts solves rejected because the project already had one running
    ProjectBusy = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "vrp_project_busy_total", Help: "Solves rejected by the per-project lock."},
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

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(Solves)
        Registry.MustRegister(SolveDuration)
        Registry.MustRegister(ObjectiveFallbacks)
        Registry.MustRegister(Diagnoses)
        Registry.MustRegister(EngineIterations)
        Registry.MustRegister(ProjectBusy)
        Registry.MustRegister(WebhookDeliveries)
        Registry.MustRegister(WebhookLatency)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
