package api

import (
    "context"
    "errors"
    "fmt"
    "io"
    "log"
    "net/http"
    "strings"

    "github.com/prometheus/client_golang/prometheus/promhttp"

    "github.com/CielmobilityWorks/route-optimization-tools/internal/config"
    "github.com/CielmobilityWorks/route-optimization-tools/internal/metrics"
    "github.com/CielmobilityWorks/route-optimization-tools/internal/opt"
    "github.com/CielmobilityWorks/route-optimization-tools/internal/store"
    "github.com/CielmobilityWorks/route-optimization-tools/internal/vrp"
    "github.com/CielmobilityWorks/route-optimization-tools/internal/webhooks"
)

const defaultProject = "default"

type Server struct {
    Store   store.Store
    Pub     *webhooks.Publisher
    Broker  EventBroker
    Solver  *vrp.Solver
    Config  config.Config
    locks   *projectLocks
    limiter *rateLimiter
}

// NewServer wires the store, broker and solver selected by cfg. Postgres
// wins over SQLite; with neither configured runs are kept in memory.
func NewServer(cfg config.Config) (*Server, error) {
    var s store.Store
    switch {
    case strings.TrimSpace(cfg.DatabaseURL) != "":
        sp, err := store.NewPostgres(cfg.DatabaseURL)
        if err != nil {
            return nil, fmt.Errorf("postgres: %w", err)
        }
        if cfg.Migrate {
            if err := sp.Migrate(context.Background()); err != nil { return nil, err }
        }
        s = sp
    case strings.TrimSpace(cfg.SQLitePath) != "":
        sq, err := store.NewSQLite(cfg.SQLitePath)
        if err != nil {
            return nil, err
        }
        s = sq
    default:
        s = store.NewMemory()
    }
    // Broker selection
    var broker EventBroker = NewBroker()
    if cfg.RedisURL != "" {
        if rb, err := NewRedisBroker(cfg.RedisURL); err == nil {
            broker = rb
        } else {
            log.Printf("redis broker unavailable, using in-memory: %v", err)
        }
    }
    solver := vrp.NewSolver(opt.Factory(opt.Options{
        Seed:            cfg.Solver.Seed,
        IterationsLimit: cfg.Solver.MaxIterations,
        StallLimit:      cfg.Solver.StallIterations,
    }))
    return &Server{
        Store:   s,
        Pub:     webhooks.NewPublisher(s),
        Broker:  broker,
        Solver:  solver,
        Config:  cfg,
        locks:   newProjectLocks(),
        limiter: newRateLimiter(cfg.RateLimit),
    }, nil
}

// Routes registers every endpoint on a fresh mux.
func (s *Server) Routes() http.Handler {
    metrics.RegisterDefault()
    mux := http.NewServeMux()

    // Optimization
    mux.Handle("/v1/optimize", s.limiter.wrap(http.HandlerFunc(s.OptimizeHandler)))
    mux.HandleFunc("/v1/optimizer/config", s.OptimizerConfigHandler)

    // Runs
    mux.HandleFunc("/v1/runs", s.RunsHandler)
    mux.HandleFunc("/v1/runs/", s.RunByIDHandler) // includes /routes.csv, /summary.csv, /metrics, /events/stream
    mux.HandleFunc("/v1/events/stream", s.ProjectEventsHandler)
    mux.HandleFunc("/v1/ws", s.WSHandler)

    // Subscriptions
    mux.HandleFunc("/v1/subscriptions", s.SubscriptionsHandler)
    mux.HandleFunc("/v1/subscriptions/", s.SubscriptionByIDHandler)

    // Admin
    mux.HandleFunc("/v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)
    mux.HandleFunc("/v1/admin/webhook-dlq", s.WebhookDLQHandler)

    // Health, docs, metrics
    mux.HandleFunc("/healthz", s.HealthHandler)
    mux.HandleFunc("/readyz", s.ReadyHandler)
    mux.HandleFunc("/openapi.json", s.OpenAPIHandler)
    mux.HandleFunc("/openapi.yaml", s.OpenAPIYAMLHandler)
    mux.HandleFunc("/docs", s.DocsHandler)
    mux.HandleFunc("/debug/info", s.DebugJSON)
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

    return instrument(mux)
}

// projectOf reads the project scope from X-Project-Id.
func projectOf(r *http.Request) string {
    if p := strings.TrimSpace(r.Header.Get("X-Project-Id")); p != "" { return p }
    return defaultProject
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
    w := webhooks.NewWorker(s.Store, s.Config.Webhooks.MaxAttempts)
    if s.Config.Webhooks.PollInterval > 0 { w.Interval = s.Config.Webhooks.PollInterval }
    return w
}

// Close releases the broker and the store connection, if any.
func (s *Server) Close() error {
    var errs []error
    if s.Broker != nil { errs = append(errs, s.Broker.Close()) }
    if c, ok := s.Store.(io.Closer); ok { errs = append(errs, c.Close()) }
    return errors.Join(errs...)
}
