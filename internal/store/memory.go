package store

import (
    "context"
    "sort"
    "sync"
    "time"

    "github.com/google/uuid"
    "github.com/CielmobilityWorks/route-optimization-tools/internal/model"
)

// Memory is a simple in-memory store used when no database is configured.
type Memory struct {
    mu      sync.Mutex
    runs    map[string]model.Run                  // id -> run
    byProj  map[string][]string                   // project -> run ids
    runMx   map[string]map[string]any             // project|run -> metrics
    weights map[string][]map[string]any           // project|run -> weight snapshots
    subs    map[string][]model.Subscription       // project -> subscriptions
    // Webhooks queue state
    deliveries  map[string]*WebhookDelivery       // id -> delivery state
    deliveryIDs []string                          // enqueue order
    dedup       map[string]bool                   // project|event|url|key
    dlq         []map[string]any                  // dead-lettered deliveries
}

func NewMemory() *Memory {
    return &Memory{
        runs: map[string]model.Run{},
        byProj: map[string][]string{},
        runMx: map[string]map[string]any{},
        weights: map[string][]map[string]any{},
        subs: map[string][]model.Subscription{},
        deliveries: map[string]*WebhookDelivery{},
        dedup: map[string]bool{},
        dlq: []map[string]any{},
    }
}

func runKey(projectID, runID string) string { return projectID + "|" + runID }

func (m *Memory) Ping(ctx context.Context) error { return nil }

// SaveRun inserts or replaces a run.
func (m *Memory) SaveRun(ctx context.Context, run model.Run) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.runs[run.ID]; !ok {
        m.byProj[run.ProjectID] = append(m.byProj[run.ProjectID], run.ID)
    }
    m.runs[run.ID] = run
    return nil
}

func (m *Memory) GetRun(ctx context.Context, projectID, id string) (model.Run, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    r, ok := m.runs[id]
    if !ok || r.ProjectID != projectID { return model.Run{}, ErrNotFound }
    return r, nil
}

// ListRuns returns newest runs first. Run ids are time-ordered, so the
// cursor is the last id of the previous page.
func (m *Memory) ListRuns(ctx context.Context, projectID, cursor string, limit int) ([]model.RunSummary, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    limit = clampLimit(limit)
    ids := append([]string(nil), m.byProj[projectID]...)
    sort.Sort(sort.Reverse(sort.StringSlice(ids)))
    out := []model.RunSummary{}
    for _, id := range ids {
        if cursor != "" && id >= cursor { continue }
        out = append(out, m.runs[id].Summary())
        if len(out) == limit { break }
    }
    next := ""
    if len(out) == limit { next = out[len(out)-1].ID }
    return out, next, nil
}

func (m *Memory) SaveRunMetrics(ctx context.Context, projectID, runID, algo string, metrics map[string]any) error {
    m.mu.Lock(); defer m.mu.Unlock()
    cp := make(map[string]any, len(metrics)+1)
    for k, v := range metrics { cp[k] = v }
    cp["algo"] = algo
    m.runMx[runKey(projectID, runID)] = cp
    return nil
}

func (m *Memory) GetRunMetrics(ctx context.Context, projectID, runID string) (map[string]any, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    mx, ok := m.runMx[runKey(projectID, runID)]
    if !ok { return nil, ErrNotFound }
    cp := make(map[string]any, len(mx))
    for k, v := range mx { cp[k] = v }
    return cp, nil
}

func (m *Memory) SaveRunMetricsWeights(ctx context.Context, projectID, runID string, snaps []map[string]any) error {
    m.mu.Lock(); defer m.mu.Unlock()
    k := runKey(projectID, runID)
    m.weights[k] = append(m.weights[k], snaps...)
    return nil
}

func (m *Memory) ListRunMetricsWeights(ctx context.Context, projectID, runID string) ([]map[string]any, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := append([]map[string]any{}, m.weights[runKey(projectID, runID)]...)
    return out, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s := model.Subscription{ID: uuid.New().String(), ProjectID: req.ProjectID, URL: req.URL, Events: req.Events, Secret: req.Secret}
    m.subs[req.ProjectID] = append(m.subs[req.ProjectID], s)
    return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, projectID, eventType string) ([]model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    var out []model.Subscription
    for _, s := range m.subs[projectID] {
        if subscribed(s.Events, eventType) { out = append(out, s) }
    }
    return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, projectID, cursor string, limit int) ([]model.Subscription, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    list := m.subs[projectID]
    start := 0
    if cursor != "" {
        for i := range list { if list[i].ID == cursor { start = i+1; break } }
    }
    limit = clampLimit(limit)
    end := start + limit
    if end > len(list) { end = len(list) }
    items := append([]model.Subscription{}, list[start:end]...)
    next := ""
    if end < len(list) { next = list[end-1].ID }
    return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, projectID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    arr := m.subs[projectID]
    out := make([]model.Subscription, 0, len(arr))
    for _, s := range arr { if s.ID != id { out = append(out, s) } }
    if len(out) == len(arr) { return ErrNotFound }
    m.subs[projectID] = out
    return nil
}

// Webhook deliveries
func (m *Memory) EnqueueWebhook(ctx context.Context, projectID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    dk := projectID + "|" + eventType + "|" + url + "|" + computeDedupKey(payload)
    if m.dedup[dk] { return "", nil }
    m.dedup[dk] = true
    id := uuid.New().String()
    m.deliveries[id] = &WebhookDelivery{ID: id, ProjectID: projectID, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: DeliveryPending, NextAttemptAt: time.Now()}
    m.deliveryIDs = append(m.deliveryIDs, id)
    return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    now := time.Now()
    out := []WebhookDelivery{}
    for _, id := range m.deliveryIDs {
        d := m.deliveries[id]
        if (d.Status == DeliveryPending || d.Status == DeliveryRetry) && !d.NextAttemptAt.After(now) {
            out = append(out, *d)
            if limit > 0 && len(out) >= limit { break }
        }
    }
    return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    d.Attempts++
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    if success {
        d.Status = DeliveryDelivered
        d.LastError = ""
    } else {
        d.Status = DeliveryRetry
        d.LastError = lastError
        if nextAttemptAt != nil { d.NextAttemptAt = *nextAttemptAt } else { d.NextAttemptAt = time.Now().Add(1 * time.Minute) }
    }
    return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    d.Attempts++
    d.Status = DeliveryFailed
    d.LastError = lastError
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    m.dlq = append(m.dlq, map[string]any{"id": uuid.New().String(), "deliveryId": id, "projectId": d.ProjectID, "eventType": d.EventType, "url": d.URL, "attempts": d.Attempts, "lastError": lastError, "responseCode": responseCode})
    return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, projectID, status string, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    limit = clampLimit(limit)
    out := []WebhookDelivery{}
    for _, id := range m.deliveryIDs {
        d := m.deliveries[id]
        if d.ProjectID != projectID { continue }
        if status == "" || d.Status == status { out = append(out, *d) }
        if len(out) == limit { break }
    }
    return out, nil
}

func (m *Memory) ListWebhookDLQ(ctx context.Context, projectID string, limit int) ([]map[string]any, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    limit = clampLimit(limit)
    out := []map[string]any{}
    for _, e := range m.dlq {
        if e["projectId"] == projectID { out = append(out, e) }
        if len(out) == limit { break }
    }
    return out, nil
}

func subscribed(events []string, eventType string) bool {
    for _, e := range events {
        if e == eventType || e == "*" { return true }
    }
    return false
}
