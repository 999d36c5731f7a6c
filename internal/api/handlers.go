package api

import (
    "context"
    "errors"
    "fmt"
    "log"
    "net/http"
    "strings"
    "time"

    "github.com/google/uuid"

    "github.com/CielmobilityWorks/route-optimization-tools/internal/dataset"
    "github.com/CielmobilityWorks/route-optimization-tools/internal/metrics"
    "github.com/CielmobilityWorks/route-optimization-tools/internal/model"
    "github.com/CielmobilityWorks/route-optimization-tools/internal/opt"
    "github.com/CielmobilityWorks/route-optimization-tools/internal/store"
    "github.com/CielmobilityWorks/route-optimization-tools/internal/vrp"
)

// OptimizeHandler handles POST /v1/optimize
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var req model.OptimizeRequest
    if err := decodeJSON(w, r, &req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    in, err := buildInput(&req, s.Config)
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
        return
    }
    project := req.ProjectID
    if project == "" { project = projectOf(r) }

    release := s.locks.tryLock(project)
    if release == nil {
        metrics.ProjectBusy.Inc()
        writeProblem(w, http.StatusConflict, "Project busy", "an optimization is already running for project "+project, r.URL.Path)
        return
    }
    defer release()

    id, err := uuid.NewV7()
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Run id failed", err.Error(), r.URL.Path)
        return
    }
    run := model.Run{
        ID:        id.String(),
        ProjectID: project,
        Status:    model.RunRunning,
        Objective: string(in.Objective),
        RouteMode: in.Topology.String(),
        Stops:     len(in.Stops),
        Capacity:  in.Fleet.Capacity,
        CreatedAt: time.Now().UTC(),
    }
    if err := s.Store.SaveRun(r.Context(), run); err != nil {
        writeProblem(w, http.StatusInternalServerError, "Save run failed", err.Error(), r.URL.Path)
        return
    }
    s.publish(r.Context(), run, model.EventRunStarted)

    ctx := vrp.WithRunID(r.Context(), run.ID)
    start := time.Now()
    res, solveErr := s.Solver.Solve(ctx, in)
    elapsed := time.Since(start)
    observeSolve(in.Objective, res, solveErr, elapsed)

    run.Result = &res
    run.DurationMs = elapsed.Milliseconds()
    run.Status = model.RunCompleted
    if solveErr != nil {
        run.Status = model.RunFailed
        run.Error = res.Message
    }
    // the request context may already be gone; the record must still land
    bg, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
    defer cancel()
    if err := s.Store.SaveRun(bg, run); err != nil {
        log.Printf("optimize: save run=%s: %v", run.ID, err)
    }
    s.saveEngineMetrics(bg, run)

    if solveErr != nil {
        log.Printf("optimize: run=%s project=%s failed: %v", run.ID, project, solveErr)
        s.publish(bg, run, model.EventRunFailed)
        writeJSON(w, http.StatusUnprocessableEntity, model.OptimizeResponse{RunID: run.ID, Result: res})
        return
    }
    s.publish(bg, run, model.EventRunCompleted)
    writeJSON(w, http.StatusOK, model.OptimizeResponse{RunID: run.ID, Result: res})
}

func observeSolve(requested vrp.Objective, res vrp.RunResult, err error, elapsed time.Duration) {
    outcome := "success"
    var verr *vrp.ValidationError
    var ierr *vrp.InfeasibleError
    switch {
    case err == nil:
    case errors.As(err, &verr):
        outcome = "validation"
    case errors.As(err, &ierr):
        outcome = "infeasible"
        metrics.Diagnoses.WithLabelValues(ierr.Diagnosis.Type).Inc()
    default:
        outcome = "error"
    }
    metrics.Solves.WithLabelValues(string(requested), outcome).Inc()
    metrics.SolveDuration.WithLabelValues(string(requested)).Observe(elapsed.Seconds())
    if res.FellBack { metrics.ObjectiveFallbacks.Inc() }
}

// saveEngineMetrics copies the in-process engine metrics of a run into the store.
func (s *Server) saveEngineMetrics(ctx context.Context, run model.Run) {
    m, ok := opt.GetMetrics(run.ID)
    if !ok { return }
    metrics.EngineIterations.Observe(float64(m.Iterations))
    if err := s.Store.SaveRunMetrics(ctx, run.ProjectID, run.ID, "alns", m.Map()); err != nil {
        log.Printf("optimize: save metrics run=%s: %v", run.ID, err)
        return
    }
    if len(m.Snapshots) == 0 { return }
    if err := s.Store.SaveRunMetricsWeights(ctx, run.ProjectID, run.ID, weightMaps(m.Snapshots)); err != nil {
        log.Printf("optimize: save weights run=%s: %v", run.ID, err)
    }
}

func weightMaps(snaps []opt.WeightSnapshot) []map[string]any {
    out := make([]map[string]any, 0, len(snaps))
    for _, sn := range snaps {
        out = append(out, map[string]any{
            "iteration": sn.Iteration,
            "removal":   []float64{sn.Removal[0], sn.Removal[1]},
            "insertion": []float64{sn.Insertion[0], sn.Insertion[1]},
        })
    }
    return out
}

// publish fans a run event out to stream clients and webhook subscribers.
func (s *Server) publish(ctx context.Context, run model.Run, eventType string) {
    data := eventData(run)
    evt := SSEEvent{Type: eventType, Data: data}
    s.Broker.Publish(runTopic(run.ID), evt)
    s.Broker.Publish(projectTopic(run.ProjectID), evt)
    if s.Pub != nil { s.Pub.Emit(ctx, run.ProjectID, eventType, data) }
}

func eventData(run model.Run) map[string]any {
    data := map[string]any{
        "runId":     run.ID,
        "projectId": run.ProjectID,
        "status":    run.Status,
        "objective": run.Objective,
        "ts":        time.Now().UTC().Format(time.RFC3339),
    }
    if res := run.Result; res != nil {
        data["success"] = res.Success
        data["vehicleCount"] = len(res.Routes)
        data["totalDistance"] = res.TotalDistance
        data["totalTime"] = res.TotalTime
        data["fellBack"] = res.FellBack
        if res.Message != "" { data["message"] = res.Message }
        if res.Diagnosis != nil { data["diagnosis"] = res.Diagnosis.Type }
    }
    return data
}

// terminalEvent is the event a finished run ended with, or "".
func terminalEvent(run model.Run) string {
    switch run.Status {
    case model.RunCompleted:
        return model.EventRunCompleted
    case model.RunFailed:
        return model.EventRunFailed
    }
    return ""
}

func isTerminal(eventType string) bool {
    return eventType == model.EventRunCompleted || eventType == model.EventRunFailed
}

// OptimizerConfigHandler returns the effective solver defaults
func (s *Server) OptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/optimizer/config" || r.Method != http.MethodGet { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    objectives := make([]string, 0, len(vrp.Objectives))
    for _, o := range vrp.Objectives { objectives = append(objectives, string(o)) }
    sc := s.Config.Solver
    defaults := map[string]any{
        "timeLimitSeconds":     int(sc.TimeLimit / time.Second),
        "primaryObjective":     sc.Objective,
        "routeMode":            s.Config.DefaultTopology().String(),
        "seed":                 sc.Seed,
        "stallIterations":      sc.StallIterations,
        "maxIterations":        sc.MaxIterations,
        "objectives":           objectives,
        "additionalObjectives": []string{vrp.WorkloadBalance},
        "routeModes":           []string{vrp.TopologyFreeStartDepotEnd.String(), vrp.TopologyDepotStartOpenEnd.String(), vrp.TopologyRoundTrip.String()},
    }
    writeJSON(w, 200, map[string]any{"defaults": defaults})
}

// RunsHandler handles GET /v1/runs
func (s *Server) RunsHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/runs" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    cursor := r.URL.Query().Get("cursor")
    items, next, err := s.Store.ListRuns(r.Context(), projectOf(r), cursor, queryLimit(r))
    if err != nil { writeProblem(w, 500, "List runs failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, model.RunList{Items: items, NextCursor: next})
}

// RunByIDHandler handles GET /v1/runs/{id} and its exports, metrics and event stream
func (s *Server) RunByIDHandler(w http.ResponseWriter, r *http.Request) {
    path := r.URL.Path
    rest := strings.TrimPrefix(path, "/v1/runs/")
    if rest == path || rest == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", path)
        return
    }
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    parts := strings.Split(strings.TrimSuffix(rest, "/"), "/")
    id := parts[0]
    project := projectOf(r)

    if len(parts) == 3 && parts[1] == "events" && parts[2] == "stream" {
        s.streamRun(w, r, project, id)
        return
    }
    if len(parts) == 2 && parts[1] == "metrics" {
        s.runMetrics(w, r, project, id)
        return
    }

    run, err := s.Store.GetRun(r.Context(), project, id)
    if errors.Is(err, store.ErrNotFound) { writeProblem(w, 404, "Run not found", id, path); return }
    if err != nil { writeProblem(w, 500, "Get run failed", err.Error(), path); return }

    if len(parts) == 1 {
        writeJSON(w, 200, run)
        return
    }
    if len(parts) == 2 && (parts[1] == "routes.csv" || parts[1] == "summary.csv") {
        if run.Result == nil || !run.Result.Success {
            writeProblem(w, http.StatusConflict, "No routes", "run "+id+" has no successful result", path)
            return
        }
        w.Header().Set("Content-Type", "text/csv; charset=utf-8")
        if parts[1] == "routes.csv" {
            w.Header().Set("Content-Disposition", `attachment; filename="optimization_routes.csv"`)
            err = dataset.WriteRoutesCSV(w, *run.Result)
        } else {
            w.Header().Set("Content-Disposition", `attachment; filename="optimization_summary.csv"`)
            err = dataset.WriteSummaryCSV(w, *run.Result, run.Capacity)
        }
        if err != nil { log.Printf("export run=%s %s: %v", id, parts[1], err) }
        return
    }
    writeProblem(w, 404, "Not Found", "", path)
}

// runMetrics prefers stored metrics and falls back to the in-process engine record.
func (s *Server) runMetrics(w http.ResponseWriter, r *http.Request, project, id string) {
    if _, err := s.Store.GetRun(r.Context(), project, id); err != nil {
        if errors.Is(err, store.ErrNotFound) { writeProblem(w, 404, "Run not found", id, r.URL.Path); return }
        writeProblem(w, 500, "Get run failed", err.Error(), r.URL.Path)
        return
    }
    includeWeights := false
    if v := r.URL.Query().Get("includeWeights"); strings.EqualFold(v, "true") || v == "1" { includeWeights = true }

    item, err := s.Store.GetRunMetrics(r.Context(), project, id)
    var local *opt.Metrics
    if err != nil {
        m, ok := opt.GetMetrics(id)
        if !ok {
            writeProblem(w, 404, "Metrics not found", "no engine metrics recorded for run "+id, r.URL.Path)
            return
        }
        local = &m
        item = m.Map()
        item["algo"] = "alns"
    }
    if includeWeights {
        var snaps []map[string]any
        if local != nil {
            snaps = weightMaps(local.Snapshots)
        } else if snaps, err = s.Store.ListRunMetricsWeights(r.Context(), project, id); err != nil {
            writeProblem(w, 500, "Metrics weights failed", err.Error(), r.URL.Path)
            return
        }
        item["weights"] = snaps
    }
    writeJSON(w, 200, map[string]any{"runId": id, "metrics": item})
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions (admin)
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/subscriptions" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if !s.isAdmin(r) { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    switch r.Method {
    case http.MethodPost:
        var req model.SubscriptionRequest
        if err := decodeJSON(w, r, &req); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
        if req.ProjectID == "" { req.ProjectID = projectOf(r) }
        if err := validateSubscription(&req); err != nil { writeProblem(w, 400, "Invalid subscription", err.Error(), r.URL.Path); return }
        sub, err := s.Store.CreateSubscription(r.Context(), req)
        if err != nil { writeProblem(w, 500, "Create subscription failed", err.Error(), r.URL.Path); return }
        writeJSON(w, http.StatusCreated, sub)
    case http.MethodGet:
        items, next, err := s.Store.ListSubscriptions(r.Context(), projectOf(r), r.URL.Query().Get("cursor"), queryLimit(r))
        if err != nil { writeProblem(w, 500, "List subscriptions failed", err.Error(), r.URL.Path); return }
        for i := range items { items[i].Secret = "" }
        writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id} (admin)
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
    id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
    if id == "" || strings.Contains(id, "/") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodDelete { w.WriteHeader(405); return }
    if !s.isAdmin(r) { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    err := s.Store.DeleteSubscription(r.Context(), projectOf(r), id)
    if errors.Is(err, store.ErrNotFound) { writeProblem(w, 404, "Subscription not found", id, r.URL.Path); return }
    if err != nil { writeProblem(w, 500, "Delete subscription failed", err.Error(), r.URL.Path); return }
    w.WriteHeader(204)
}

// Admin: webhook deliveries
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    if !s.isAdmin(r) { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    if r.Method != http.MethodGet { w.WriteHeader(405); return }
    items, err := s.Store.ListWebhookDeliveries(r.Context(), projectOf(r), r.URL.Query().Get("status"), queryLimit(r))
    if err != nil { writeProblem(w, 500, "List deliveries failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": items})
}

// Admin: webhook dead letters
func (s *Server) WebhookDLQHandler(w http.ResponseWriter, r *http.Request) {
    if !s.isAdmin(r) { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    if r.Method != http.MethodGet { w.WriteHeader(405); return }
    items, err := s.Store.ListWebhookDLQ(r.Context(), projectOf(r), queryLimit(r))
    if err != nil { writeProblem(w, 500, "List DLQ failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": items})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
    defer cancel()
    if err := s.Store.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}

func queryLimit(r *http.Request) int {
    limit := 100
    if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
    return limit
}
