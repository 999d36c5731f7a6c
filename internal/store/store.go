package store

import (
    "context"
    "errors"
    "time"

    "github.com/CielmobilityWorks/route-optimization-tools/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
    // Runs
    SaveRun(ctx context.Context, run model.Run) error
    GetRun(ctx context.Context, projectID, id string) (model.Run, error)
    ListRuns(ctx context.Context, projectID, cursor string, limit int) ([]model.RunSummary, string, error)

    // Engine metrics per run
    SaveRunMetrics(ctx context.Context, projectID, runID, algo string, metrics map[string]any) error
    GetRunMetrics(ctx context.Context, projectID, runID string) (map[string]any, error)
    SaveRunMetricsWeights(ctx context.Context, projectID, runID string, snaps []map[string]any) error
    ListRunMetricsWeights(ctx context.Context, projectID, runID string) ([]map[string]any, error)

    // Subscriptions
    CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
    GetSubscriptionsForEvent(ctx context.Context, projectID, eventType string) ([]model.Subscription, error)
    ListSubscriptions(ctx context.Context, projectID, cursor string, limit int) ([]model.Subscription, string, error)
    DeleteSubscription(ctx context.Context, projectID, id string) error

    // Webhook deliveries
    EnqueueWebhook(ctx context.Context, projectID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
    FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
    MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
    FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
    ListWebhookDeliveries(ctx context.Context, projectID, status string, limit int) ([]WebhookDelivery, error)
    ListWebhookDLQ(ctx context.Context, projectID string, limit int) ([]map[string]any, error)

    Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")

func clampLimit(limit int) int {
    if limit <= 0 || limit > 500 { return 100 }
    return limit
}
