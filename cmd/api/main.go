package main

import (
    "context"
    "errors"
    "flag"
    "log"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/CielmobilityWorks/route-optimization-tools/internal/api"
    "github.com/CielmobilityWorks/route-optimization-tools/internal/buildinfo"
    "github.com/CielmobilityWorks/route-optimization-tools/internal/config"
)

func main() {
    cfgPath := flag.String("config", "", "YAML config file (env CONFIG_FILE)")
    flag.Parse()

    cfg, err := config.Load(*cfgPath)
    if err != nil {
        log.Fatalf("failed to load config: %v", err)
    }
    srvDeps, err := api.NewServer(cfg)
    if err != nil {
        log.Fatalf("failed to init server: %v", err)
    }
    defer func() { _ = srvDeps.Close() }()

    addr := ":" + cfg.Port
    srv := &http.Server{
        Addr:              addr,
        Handler:           logMiddleware(srvDeps.Routes()),
        ReadHeaderTimeout: 5 * time.Second,
    }

    // Start webhook worker
    worker := srvDeps.NewWebhookWorker()
    worker.Start()

    errCh := make(chan error, 1)
    go func() {
        log.Printf("API listening on %s (version %s)", addr, buildinfo.Version)
        errCh <- srv.ListenAndServe()
    }()

    stop := make(chan os.Signal, 1)
    signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
    select {
    case err := <-errCh:
        if err != nil && !errors.Is(err, http.ErrServerClosed) {
            log.Fatalf("server error: %v", err)
        }
    case sig := <-stop:
        log.Printf("shutting down on %s", sig)
    }

    close(worker.Stop)
    // solves are synchronous; give in-flight ones their full time limit
    ctx, cancel := context.WithTimeout(context.Background(), cfg.Solver.TimeLimit+5*time.Second)
    defer cancel()
    if err := srv.Shutdown(ctx); err != nil {
        log.Printf("shutdown: %v", err)
    }
}

func logMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        next.ServeHTTP(w, r)
        dur := time.Since(start)
        log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, dur)
    })
}
