package webhooks

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/CielmobilityWorks/route-optimization-tools/internal/store"
)

type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Emit enqueues one delivery per subscription of the project to eventType.
// It returns the number of deliveries queued.
func (p *Publisher) Emit(ctx context.Context, projectID, eventType string, data any) int {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, projectID, eventType)
	if err != nil {
		log.Printf("webhooks: subscriptions project=%s type=%s: %v", projectID, eventType, err)
		return 0
	}
	if len(subs) == 0 {
		return 0
	}
	payload := map[string]any{
		"id":        "evt_" + uuid.NewString(),
		"type":      eventType,
		"projectId": projectID,
		"ts":        time.Now().UTC().Format(time.RFC3339),
		"data":      data,
	}
	body, _ := json.Marshal(payload)
	queued := 0
	for _, s := range subs {
		id, err := p.Store.EnqueueWebhook(ctx, projectID, s.ID, eventType, s.URL, s.Secret, body)
		if err != nil {
			log.Printf("webhooks: enqueue sub=%s: %v", s.ID, err)
			continue
		}
		if id != "" {
			queued++
		}
	}
	return queued
}
