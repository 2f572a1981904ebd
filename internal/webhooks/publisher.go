package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"elasticroute/internal/store"
)

type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Emit enqueues an event for the job's callback URL. Jobs without a
// callback are skipped.
func (p *Publisher) Emit(ctx context.Context, job store.Job, eventType string, data any) (string, error) {
	if job.CallbackURL == "" {
		return "", nil
	}
	payload := map[string]any{
		"id":    "evt_" + uuid.New().String(),
		"type":  eventType,
		"jobId": job.ID,
		"ts":    time.Now().UTC().Format(time.RFC3339),
		"data":  data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return p.Store.EnqueueWebhook(ctx, job.ID, eventType, job.CallbackURL, job.CallbackSecret, body)
}
