package store

import (
    "context"
    "encoding/hex"
    "errors"
    "fmt"
    "path/filepath"
    "testing"
    "time"

    "github.com/CielmobilityWorks/route-optimization-tools/internal/model"
    "github.com/CielmobilityWorks/route-optimization-tools/internal/vrp"
)

func stores(t *testing.T) map[string]Store {
    t.Helper()
    sq, err := NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
    if err != nil { t.Fatalf("NewSQLite: %v", err) }
    t.Cleanup(func() { _ = sq.Close() })
    return map[string]Store{"memory": NewMemory(), "sqlite": sq}
}

func TestRunsRoundTripAndPaging(t *testing.T) {
    for name, s := range stores(t) {
        t.Run(name, func(t *testing.T) {
            ctx := context.Background()
            created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
            for i := 1; i <= 5; i++ {
                r := model.Run{ID: fmt.Sprintf("r%02d", i), ProjectID: "p1", Status: model.RunRunning, Objective: "distance", Stops: 3, Capacity: 10, CreatedAt: created}
                if err := s.SaveRun(ctx, r); err != nil { t.Fatalf("SaveRun: %v", err) }
            }
            if err := s.SaveRun(ctx, model.Run{ID: "other", ProjectID: "p2", Status: model.RunRunning, CreatedAt: created}); err != nil { t.Fatal(err) }

            res := &vrp.RunResult{Success: true, TotalDistance: 25, Routes: []vrp.Route{{VehicleID: 0, Distance: 25}}}
            done := model.Run{ID: "r03", ProjectID: "p1", Status: model.RunCompleted, Objective: "distance", Stops: 3, Capacity: 10, Result: res, DurationMs: 12, CreatedAt: created}
            if err := s.SaveRun(ctx, done); err != nil { t.Fatalf("update: %v", err) }

            got, err := s.GetRun(ctx, "p1", "r03")
            if err != nil { t.Fatalf("GetRun: %v", err) }
            if got.Status != model.RunCompleted || got.Result == nil || got.Result.TotalDistance != 25 || !got.CreatedAt.Equal(created) {
                t.Fatalf("got %+v", got)
            }
            if _, err := s.GetRun(ctx, "p2", "r03"); !errors.Is(err, ErrNotFound) {
                t.Fatalf("cross-project read: %v", err)
            }

            page, next, err := s.ListRuns(ctx, "p1", "", 2)
            if err != nil { t.Fatal(err) }
            if len(page) != 2 || page[0].ID != "r05" || page[1].ID != "r04" || next != "r04" {
                t.Fatalf("page1 %+v next=%q", page, next)
            }
            page, next, err = s.ListRuns(ctx, "p1", next, 2)
            if err != nil { t.Fatal(err) }
            if len(page) != 2 || page[0].ID != "r03" || page[0].VehicleCount != 1 || page[0].TotalDistance != 25 {
                t.Fatalf("page2 %+v", page)
            }
            page, next, err = s.ListRuns(ctx, "p1", next, 2)
            if err != nil { t.Fatal(err) }
            if len(page) != 1 || page[0].ID != "r01" || next != "" {
                t.Fatalf("page3 %+v next=%q", page, next)
            }
        })
    }
}

func TestRunMetrics(t *testing.T) {
    for name, s := range stores(t) {
        t.Run(name, func(t *testing.T) {
            ctx := context.Background()
            if _, err := s.GetRunMetrics(ctx, "p1", "r1"); !errors.Is(err, ErrNotFound) {
                t.Fatalf("want ErrNotFound, got %v", err)
            }
            if err := s.SaveRunMetrics(ctx, "p1", "r1", "alns", map[string]any{"iterations": 10}); err != nil { t.Fatal(err) }
            if err := s.SaveRunMetrics(ctx, "p1", "r1", "alns", map[string]any{"iterations": 20}); err != nil { t.Fatal(err) }
            mx, err := s.GetRunMetrics(ctx, "p1", "r1")
            if err != nil { t.Fatal(err) }
            if mx["algo"] != "alns" || fmt.Sprint(mx["iterations"]) != "20" {
                t.Fatalf("metrics %v", mx)
            }
            snaps := []map[string]any{
                {"iteration": 50, "removal": []float64{1, 2}, "insertion": []float64{3, 4}},
                {"iteration": 100, "removal": []float64{1.5, 2}, "insertion": []float64{3, 4.5}},
            }
            if err := s.SaveRunMetricsWeights(ctx, "p1", "r1", snaps); err != nil { t.Fatal(err) }
            ws, err := s.ListRunMetricsWeights(ctx, "p1", "r1")
            if err != nil { t.Fatal(err) }
            if len(ws) != 2 || fmt.Sprint(ws[1]["iteration"]) != "100" {
                t.Fatalf("weights %v", ws)
            }
        })
    }
}

func TestSubscriptions(t *testing.T) {
    for name, s := range stores(t) {
        t.Run(name, func(t *testing.T) {
            ctx := context.Background()
            a, err := s.CreateSubscription(ctx, model.SubscriptionRequest{ProjectID: "p1", URL: "http://a", Events: []string{model.EventRunCompleted}, Secret: "k"})
            if err != nil { t.Fatal(err) }
            if _, err := s.CreateSubscription(ctx, model.SubscriptionRequest{ProjectID: "p1", URL: "http://b", Events: []string{"*"}}); err != nil { t.Fatal(err) }
            if _, err := s.CreateSubscription(ctx, model.SubscriptionRequest{ProjectID: "p2", URL: "http://c", Events: []string{model.EventRunCompleted}}); err != nil { t.Fatal(err) }

            subs, err := s.GetSubscriptionsForEvent(ctx, "p1", model.EventRunCompleted)
            if err != nil { t.Fatal(err) }
            if len(subs) != 2 { t.Fatalf("completed subs %+v", subs) }
            subs, _ = s.GetSubscriptionsForEvent(ctx, "p1", model.EventRunFailed)
            if len(subs) != 1 || subs[0].URL != "http://b" { t.Fatalf("failed subs %+v", subs) }

            all, _, err := s.ListSubscriptions(ctx, "p1", "", 10)
            if err != nil || len(all) != 2 { t.Fatalf("list %v %+v", err, all) }

            if err := s.DeleteSubscription(ctx, "p1", a.ID); err != nil { t.Fatal(err) }
            if err := s.DeleteSubscription(ctx, "p1", a.ID); !errors.Is(err, ErrNotFound) {
                t.Fatalf("second delete: %v", err)
            }
            all, _, _ = s.ListSubscriptions(ctx, "p1", "", 10)
            if len(all) != 1 { t.Fatalf("after delete %+v", all) }
        })
    }
}

func TestWebhookDeliveryLifecycle(t *testing.T) {
    for name, s := range stores(t) {
        t.Run(name, func(t *testing.T) {
            ctx := context.Background()
            body := []byte(`{"id":"evt_1","type":"run.completed"}`)
            id, err := s.EnqueueWebhook(ctx, "p1", "sub1", model.EventRunCompleted, "http://a", "k", body)
            if err != nil || id == "" { t.Fatalf("enqueue: %q %v", id, err) }
            dup, err := s.EnqueueWebhook(ctx, "p1", "sub1", model.EventRunCompleted, "http://a", "k", body)
            if err != nil || dup != "" { t.Fatalf("duplicate enqueue: %q %v", dup, err) }

            due, err := s.FetchDueWebhookDeliveries(ctx, 10)
            if err != nil || len(due) != 1 { t.Fatalf("due %v %+v", err, due) }
            if string(due[0].Payload) != string(body) || due[0].Secret != "k" || due[0].Status != DeliveryPending {
                t.Fatalf("delivery %+v", due[0])
            }

            later := time.Now().Add(time.Hour)
            if err := s.MarkWebhookDelivery(ctx, id, false, &later, "boom", 500, 3); err != nil { t.Fatal(err) }
            due, _ = s.FetchDueWebhookDeliveries(ctx, 10)
            if len(due) != 0 { t.Fatalf("retry scheduled in the future must not be due: %+v", due) }
            list, err := s.ListWebhookDeliveries(ctx, "p1", DeliveryRetry, 10)
            if err != nil || len(list) != 1 || list[0].Attempts != 1 || list[0].LastError != "boom" {
                t.Fatalf("retry list %v %+v", err, list)
            }

            if err := s.FailWebhookDelivery(ctx, id, "gave up", 502, 4); err != nil { t.Fatal(err) }
            dlq, err := s.ListWebhookDLQ(ctx, "p1", 10)
            if err != nil || len(dlq) != 1 || dlq[0]["deliveryId"] != id {
                t.Fatalf("dlq %v %+v", err, dlq)
            }
            list, _ = s.ListWebhookDeliveries(ctx, "p1", DeliveryFailed, 10)
            if len(list) != 1 || list[0].Attempts != 2 { t.Fatalf("failed list %+v", list) }

            other, _ := s.EnqueueWebhook(ctx, "p1", "", model.EventRunFailed, "http://a", "", []byte(`{"id":"evt_2"}`))
            if err := s.MarkWebhookDelivery(ctx, other, true, nil, "", 204, 1); err != nil { t.Fatal(err) }
            list, _ = s.ListWebhookDeliveries(ctx, "p1", DeliveryDelivered, 10)
            if len(list) != 1 || list[0].ResponseCode != 204 { t.Fatalf("delivered %+v", list) }
            if err := s.MarkWebhookDelivery(ctx, "missing", true, nil, "", 200, 1); !errors.Is(err, ErrNotFound) {
                t.Fatalf("missing delivery: %v", err)
            }
        })
    }
}

func TestRebind(t *testing.T) {
    got := rebind(`SELECT a FROM t WHERE x=? AND y IN (?,?) LIMIT ?`)
    want := `SELECT a FROM t WHERE x=$1 AND y IN ($2,$3) LIMIT $4`
    if got != want { t.Fatalf("got %s, want %s", got, want) }
}

func TestComputeDedupKeyFromID(t *testing.T) {
    body := []byte(`{"id":"evt_123","type":"x"}`)
    got := computeDedupKey(body)
    if got != "evt_123" {
        t.Fatalf("want evt_123, got %s", got)
    }
}

func TestComputeDedupKeyFromHash(t *testing.T) {
    body := []byte(`{"notId":"x"}`)
    got := computeDedupKey(body)
    b, err := hex.DecodeString(got)
    if err != nil {
        t.Fatalf("invalid hex: %v", err)
    }
    if len(b) != 8 {
        t.Fatalf("expected 8 bytes, got %d", len(b))
    }
}
