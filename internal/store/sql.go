package store

import (
    "context"
    "database/sql"
    _ "embed"
    "encoding/json"
    "errors"
    "fmt"
    "strconv"
    "strings"
    "time"

    "github.com/google/uuid"
    "github.com/CielmobilityWorks/route-optimization-tools/internal/model"
    "github.com/CielmobilityWorks/route-optimization-tools/internal/vrp"
)

//go:embed schema.sql
var schemaSQL string

// sqlStore holds the queries shared by Postgres and SQLite. Queries are
// written with ? placeholders and rebound per dialect.
type sqlStore struct {
    db     *sql.DB
    dollar bool
}

func (s *sqlStore) q(query string) string {
    if !s.dollar { return query }
    return rebind(query)
}

// rebind turns ? placeholders into $1..$n.
func rebind(query string) string {
    var b strings.Builder
    n := 0
    for _, r := range query {
        if r == '?' {
            n++
            b.WriteString("$" + strconv.Itoa(n))
            continue
        }
        b.WriteRune(r)
    }
    return b.String()
}

func (s *sqlStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *sqlStore) Close() error { return s.db.Close() }

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *sqlStore) Migrate(ctx context.Context) error {
    for _, stmt := range strings.Split(schemaSQL, ";") {
        if strings.TrimSpace(stmt) == "" { continue }
        if _, err := s.db.ExecContext(ctx, stmt); err != nil {
            return fmt.Errorf("migrate: %w", err)
        }
    }
    return nil
}

func nowMs() int64 { return time.Now().UnixMilli() }

func toJSON(v any) string {
    b, _ := json.Marshal(v)
    return string(b)
}

// Runs
func (s *sqlStore) SaveRun(ctx context.Context, run model.Run) error {
    var result sql.NullString
    if run.Result != nil { result = sql.NullString{String: toJSON(run.Result), Valid: true} }
    _, err := s.db.ExecContext(ctx, s.q(`INSERT INTO runs (id, project_id, status, objective, route_mode, stops, capacity, result, error, duration_ms, created_ms)
        VALUES (?,?,?,?,?,?,?,?,?,?,?)
        ON CONFLICT (id) DO UPDATE SET status=excluded.status, objective=excluded.objective, result=excluded.result, error=excluded.error, duration_ms=excluded.duration_ms`),
        run.ID, run.ProjectID, run.Status, run.Objective, run.RouteMode, run.Stops, run.Capacity, result, run.Error, run.DurationMs, run.CreatedAt.UnixMilli())
    return err
}

func (s *sqlStore) GetRun(ctx context.Context, projectID, id string) (model.Run, error) {
    row := s.db.QueryRowContext(ctx, s.q(`SELECT id, project_id, status, objective, route_mode, stops, capacity, result, error, duration_ms, created_ms FROM runs WHERE project_id=? AND id=?`), projectID, id)
    var r model.Run
    var result sql.NullString
    var created int64
    if err := row.Scan(&r.ID, &r.ProjectID, &r.Status, &r.Objective, &r.RouteMode, &r.Stops, &r.Capacity, &result, &r.Error, &r.DurationMs, &created); err != nil {
        if errors.Is(err, sql.ErrNoRows) { return model.Run{}, ErrNotFound }
        return model.Run{}, err
    }
    r.CreatedAt = time.UnixMilli(created).UTC()
    if result.Valid {
        var res vrp.RunResult
        if err := json.Unmarshal([]byte(result.String), &res); err != nil { return model.Run{}, fmt.Errorf("run %s result: %w", id, err) }
        r.Result = &res
    }
    return r, nil
}

func (s *sqlStore) ListRuns(ctx context.Context, projectID, cursor string, limit int) ([]model.RunSummary, string, error) {
    limit = clampLimit(limit)
    base := `SELECT id, project_id, status, objective, stops, result, duration_ms, created_ms FROM runs WHERE project_id=?`
    args := []any{projectID}
    if cursor != "" { base += ` AND id < ?`; args = append(args, cursor) }
    base += ` ORDER BY id DESC LIMIT ?`
    args = append(args, limit)
    rows, err := s.db.QueryContext(ctx, s.q(base), args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.RunSummary{}
    for rows.Next() {
        var r model.Run
        var result sql.NullString
        var created int64
        if err := rows.Scan(&r.ID, &r.ProjectID, &r.Status, &r.Objective, &r.Stops, &result, &r.DurationMs, &created); err != nil { return nil, "", err }
        r.CreatedAt = time.UnixMilli(created).UTC()
        if result.Valid {
            var res vrp.RunResult
            if json.Unmarshal([]byte(result.String), &res) == nil { r.Result = &res }
        }
        out = append(out, r.Summary())
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    next := ""
    if len(out) == limit { next = out[len(out)-1].ID }
    return out, next, nil
}

// Engine metrics
func (s *sqlStore) SaveRunMetrics(ctx context.Context, projectID, runID, algo string, metrics map[string]any) error {
    _, err := s.db.ExecContext(ctx, s.q(`INSERT INTO run_metrics (project_id, run_id, algo, metrics, created_ms) VALUES (?,?,?,?,?)
        ON CONFLICT (project_id, run_id) DO UPDATE SET algo=excluded.algo, metrics=excluded.metrics, created_ms=excluded.created_ms`),
        projectID, runID, algo, toJSON(metrics), nowMs())
    return err
}

func (s *sqlStore) GetRunMetrics(ctx context.Context, projectID, runID string) (map[string]any, error) {
    var algo, js string
    err := s.db.QueryRowContext(ctx, s.q(`SELECT algo, metrics FROM run_metrics WHERE project_id=? AND run_id=?`), projectID, runID).Scan(&algo, &js)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) { return nil, ErrNotFound }
        return nil, err
    }
    out := map[string]any{}
    if err := json.Unmarshal([]byte(js), &out); err != nil { return nil, err }
    out["algo"] = algo
    return out, nil
}

func (s *sqlStore) SaveRunMetricsWeights(ctx context.Context, projectID, runID string, snaps []map[string]any) error {
    tx, err := s.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func(){ _ = tx.Rollback() }()
    for _, s0 := range snaps {
        _, err := tx.ExecContext(ctx, s.q(`INSERT INTO run_metrics_weights (id, project_id, run_id, iteration, removal_weights, insertion_weights) VALUES (?,?,?,?,?,?)`),
            uuid.New().String(), projectID, runID, s0["iteration"], toJSON(s0["removal"]), toJSON(s0["insertion"]))
        if err != nil { return err }
    }
    return tx.Commit()
}

func (s *sqlStore) ListRunMetricsWeights(ctx context.Context, projectID, runID string) ([]map[string]any, error) {
    rows, err := s.db.QueryContext(ctx, s.q(`SELECT iteration, removal_weights, insertion_weights FROM run_metrics_weights WHERE project_id=? AND run_id=? ORDER BY iteration`), projectID, runID)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []map[string]any{}
    for rows.Next() {
        var iter int
        var rem, ins string
        if err := rows.Scan(&iter, &rem, &ins); err != nil { return nil, err }
        var rw, iw []float64
        _ = json.Unmarshal([]byte(rem), &rw)
        _ = json.Unmarshal([]byte(ins), &iw)
        out = append(out, map[string]any{"iteration": iter, "removal": rw, "insertion": iw})
    }
    return out, rows.Err()
}

// Subscriptions
func (s *sqlStore) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    id := uuid.New().String()
    _, err := s.db.ExecContext(ctx, s.q(`INSERT INTO subscriptions (id, project_id, url, events, secret, created_ms) VALUES (?,?,?,?,?,?)`), id, req.ProjectID, req.URL, toJSON(req.Events), req.Secret, nowMs())
    if err != nil { return model.Subscription{}, err }
    return model.Subscription{ID: id, ProjectID: req.ProjectID, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (s *sqlStore) scanSubscriptions(rows *sql.Rows, projectID string) ([]model.Subscription, error) {
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        var sub model.Subscription
        var ev string
        if err := rows.Scan(&sub.ID, &sub.URL, &sub.Secret, &ev); err != nil { return nil, err }
        sub.ProjectID = projectID
        _ = json.Unmarshal([]byte(ev), &sub.Events)
        out = append(out, sub)
    }
    return out, rows.Err()
}

// GetSubscriptionsForEvent filters in Go; events are stored as JSON text.
func (s *sqlStore) GetSubscriptionsForEvent(ctx context.Context, projectID, eventType string) ([]model.Subscription, error) {
    rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, url, secret, events FROM subscriptions WHERE project_id=? ORDER BY id`), projectID)
    if err != nil { return nil, err }
    all, err := s.scanSubscriptions(rows, projectID)
    if err != nil { return nil, err }
    out := []model.Subscription{}
    for _, sub := range all {
        if subscribed(sub.Events, eventType) { out = append(out, sub) }
    }
    return out, nil
}

func (s *sqlStore) ListSubscriptions(ctx context.Context, projectID, cursor string, limit int) ([]model.Subscription, string, error) {
    limit = clampLimit(limit)
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = s.db.QueryContext(ctx, s.q(`SELECT id, url, secret, events FROM subscriptions WHERE project_id=? AND id > ? ORDER BY id LIMIT ?`), projectID, cursor, limit)
    } else {
        rows, err = s.db.QueryContext(ctx, s.q(`SELECT id, url, secret, events FROM subscriptions WHERE project_id=? ORDER BY id LIMIT ?`), projectID, limit)
    }
    if err != nil { return nil, "", err }
    out, err := s.scanSubscriptions(rows, projectID)
    if err != nil { return nil, "", err }
    next := ""
    if len(out) == limit { next = out[len(out)-1].ID }
    return out, next, nil
}

func (s *sqlStore) DeleteSubscription(ctx context.Context, projectID, id string) error {
    res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM subscriptions WHERE project_id=? AND id=?`), projectID, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

// Webhook deliveries
func (s *sqlStore) EnqueueWebhook(ctx context.Context, projectID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    id := uuid.New().String()
    now := nowMs()
    res, err := s.db.ExecContext(ctx, s.q(`INSERT INTO webhook_deliveries (id, project_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_ms, dedup_key, updated_ms)
        VALUES (?,?,?,?,?,?,?,'pending',0,?,?,?)
        ON CONFLICT (project_id, event_type, url, dedup_key) DO NOTHING`),
        id, projectID, subscriptionID, eventType, url, secret, string(payload), now, computeDedupKey(payload), now)
    if err != nil { return "", err }
    if n, _ := res.RowsAffected(); n == 0 { return "", nil }
    return id, nil
}

const deliveryColumns = `id, project_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_ms, last_error, response_code, latency_ms`

func scanDeliveries(rows *sql.Rows) ([]WebhookDelivery, error) {
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        var d WebhookDelivery
        var payload string
        var next int64
        if err := rows.Scan(&d.ID, &d.ProjectID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &payload, &d.Status, &d.Attempts, &next, &d.LastError, &d.ResponseCode, &d.LatencyMs); err != nil { return nil, err }
        d.Payload = []byte(payload)
        d.NextAttemptAt = time.UnixMilli(next)
        out = append(out, d)
    }
    return out, rows.Err()
}

func (s *sqlStore) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    if limit <= 0 { limit = 100 }
    rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+deliveryColumns+` FROM webhook_deliveries
        WHERE status IN ('pending','retry') AND next_attempt_ms <= ? ORDER BY next_attempt_ms ASC LIMIT ?`), nowMs(), limit)
    if err != nil { return nil, err }
    return scanDeliveries(rows)
}

func (s *sqlStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    var res sql.Result
    var err error
    if success {
        res, err = s.db.ExecContext(ctx, s.q(`UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', last_error='', response_code=?, latency_ms=?, updated_ms=? WHERE id=?`), responseCode, latencyMs, nowMs(), id)
    } else {
        next := time.Now().Add(1 * time.Minute)
        if nextAttemptAt != nil { next = *nextAttemptAt }
        res, err = s.db.ExecContext(ctx, s.q(`UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=?, next_attempt_ms=?, response_code=?, latency_ms=?, updated_ms=? WHERE id=?`), lastError, next.UnixMilli(), responseCode, latencyMs, nowMs(), id)
    }
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

// FailWebhookDelivery marks the delivery failed and copies it to the DLQ.
func (s *sqlStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    tx, err := s.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func(){ _ = tx.Rollback() }()
    res, err := tx.ExecContext(ctx, s.q(`UPDATE webhook_deliveries SET attempts=attempts+1, status='failed', last_error=?, response_code=?, latency_ms=?, updated_ms=? WHERE id=?`), lastError, responseCode, latencyMs, nowMs(), id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    var projectID, eventType, url, payload string
    var attempts int
    err = tx.QueryRowContext(ctx, s.q(`SELECT project_id, event_type, url, payload, attempts FROM webhook_deliveries WHERE id=?`), id).Scan(&projectID, &eventType, &url, &payload, &attempts)
    if err != nil { return err }
    _, err = tx.ExecContext(ctx, s.q(`INSERT INTO webhook_dlq (id, project_id, delivery_id, event_type, url, payload, attempts, last_error, response_code, created_ms) VALUES (?,?,?,?,?,?,?,?,?,?)`),
        uuid.New().String(), projectID, id, eventType, url, payload, attempts, lastError, responseCode, nowMs())
    if err != nil { return err }
    return tx.Commit()
}

func (s *sqlStore) ListWebhookDeliveries(ctx context.Context, projectID, status string, limit int) ([]WebhookDelivery, error) {
    limit = clampLimit(limit)
    q := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE project_id=?`
    args := []any{projectID}
    if status != "" { q += ` AND status=?`; args = append(args, status) }
    q += ` ORDER BY updated_ms, id LIMIT ?`
    args = append(args, limit)
    rows, err := s.db.QueryContext(ctx, s.q(q), args...)
    if err != nil { return nil, err }
    return scanDeliveries(rows)
}

func (s *sqlStore) ListWebhookDLQ(ctx context.Context, projectID string, limit int) ([]map[string]any, error) {
    limit = clampLimit(limit)
    rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, delivery_id, event_type, url, attempts, last_error, response_code, created_ms FROM webhook_dlq WHERE project_id=? ORDER BY created_ms DESC LIMIT ?`), projectID, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []map[string]any{}
    for rows.Next() {
        var id, deliveryID, typ, url, lastErr string
        var attempts, code int
        var created int64
        if err := rows.Scan(&id, &deliveryID, &typ, &url, &attempts, &lastErr, &code, &created); err != nil { return nil, err }
        m := map[string]any{"id": id, "deliveryId": deliveryID, "projectId": projectID, "eventType": typ, "url": url, "attempts": attempts, "responseCode": code, "createdAt": time.UnixMilli(created).UTC()}
        if lastErr != "" { m["lastError"] = lastErr }
        out = append(out, m)
    }
    return out, rows.Err()
}
