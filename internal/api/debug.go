package api

import (
    "net/http"
    "time"

    "github.com/CielmobilityWorks/route-optimization-tools/internal/buildinfo"
    "github.com/CielmobilityWorks/route-optimization-tools/internal/store"
)

// DebugJSON reports build info and the effective configuration. Secrets are
// tagged json:"-" on config.Config and only reported as present or absent.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    info := map[string]any{
        "build":  buildinfo.Info(),
        "time":   time.Now().UTC().Format(time.RFC3339),
        "config": s.Config,
        "backends": map[string]any{
            "store":            storeKind(s),
            "broker":           brokerKind(s),
            "HAS_DATABASE_URL": s.Config.DatabaseURL != "",
            "HAS_REDIS_URL":    s.Config.RedisURL != "",
            "HAS_ADMIN_TOKEN":  s.Config.AdminToken != "",
        },
    }
    writeJSON(w, 200, info)
}

func storeKind(s *Server) string {
    switch s.Store.(type) {
    case *store.Postgres:
        return "postgres"
    case *store.SQLite:
        return "sqlite"
    }
    return "memory"
}

func brokerKind(s *Server) string {
    if _, ok := s.Broker.(*RedisBroker); ok { return "redis" }
    return "memory"
}
