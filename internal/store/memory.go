package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is a simple in-memory store used when no database is configured.
type Memory struct {
	mu   sync.Mutex
	jobs map[string]*Job // id -> job
	// Webhooks queue state
	deliveries map[string]*WebhookDelivery // id -> delivery state
	order      []string                    // delivery ids in enqueue order
	dedup      map[string]string           // eventType|url|key -> delivery id
	now        func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		jobs:       map[string]*Job{},
		deliveries: map[string]*WebhookDelivery{},
		dedup:      map[string]string{},
		now:        time.Now,
	}
}

func (m *Memory) CreateJob(ctx context.Context, job Job) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if _, dup := m.jobs[job.ID]; dup {
		return Job{}, fmt.Errorf("%w: job %s exists", ErrConflict, job.ID)
	}
	now := m.now().UTC()
	job.Status = JobQueued
	job.CreatedAt, job.UpdatedAt = now, now
	j := job
	m.jobs[job.ID] = &j
	return job, nil
}

func (m *Memory) GetJob(ctx context.Context, id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	if j == nil {
		return Job{}, ErrNotFound
	}
	return *j, nil
}

func (m *Memory) ListJobs(ctx context.Context, status, cursor string, limit int) ([]Job, string, error) {
	limit = clampLimit(limit)
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.jobs))
	for id := range m.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := []Job{}
	for _, id := range ids {
		if cursor != "" && id <= cursor {
			continue
		}
		j := m.jobs[id]
		if status != "" && string(j.Status) != status {
			continue
		}
		out = append(out, *j)
		if len(out) == limit {
			break
		}
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (m *Memory) StartJob(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	if j == nil {
		return ErrNotFound
	}
	if j.Status != JobQueued {
		return fmt.Errorf("%w: job %s is %s", ErrConflict, id, j.Status)
	}
	j.Status = JobRunning
	j.UpdatedAt = m.now().UTC()
	return nil
}

func (m *Memory) UpdateJobProgress(ctx context.Context, id string, generation int, bestCost float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	if j == nil {
		return ErrNotFound
	}
	if j.Status.Terminal() {
		return nil
	}
	j.Generation, j.BestCost = generation, bestCost
	j.UpdatedAt = m.now().UTC()
	return nil
}

func (m *Memory) FinishJob(ctx context.Context, id string, status JobStatus, result []byte, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	if j == nil {
		return ErrNotFound
	}
	if j.Status.Terminal() {
		return fmt.Errorf("%w: job %s is %s", ErrConflict, id, j.Status)
	}
	now := m.now().UTC()
	j.Status, j.Result, j.Error = status, result, errMsg
	j.UpdatedAt, j.FinishedAt = now, &now
	return nil
}

// Webhook deliveries
func (m *Memory) EnqueueWebhook(ctx context.Context, jobID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := eventType + "|" + url + "|" + computeDedupKey(payload)
	if id, ok := m.dedup[key]; ok {
		return id, nil
	}
	id := uuid.New().String()
	m.deliveries[id] = &WebhookDelivery{ID: id, JobID: jobID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: DeliveryPending, NextAttemptAt: m.now()}
	m.order = append(m.order, id)
	m.dedup[key] = id
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	out := []WebhookDelivery{}
	for _, id := range m.order {
		d := m.deliveries[id]
		if (d.Status == DeliveryPending || d.Status == DeliveryRetry) && !d.NextAttemptAt.After(now) {
			out = append(out, *d)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].NextAttemptAt.Before(out[j].NextAttemptAt) })
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = DeliveryDelivered
		now := m.now()
		d.DeliveredAt = &now
		return nil
	}
	d.Status = DeliveryRetry
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = m.now().Add(1 * time.Minute)
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = DeliveryFailed
	d.LastError, d.ResponseCode, d.LatencyMs = lastError, responseCode, latencyMs
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]WebhookDelivery, string, error) {
	limit = clampLimit(limit)
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := append([]string(nil), m.order...)
	sort.Strings(ids)
	out := []WebhookDelivery{}
	for _, id := range ids {
		if cursor != "" && id <= cursor {
			continue
		}
		d := m.deliveries[id]
		if status != "" && d.Status != status {
			continue
		}
		out = append(out, *d)
		if len(out) == limit {
			break
		}
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Status = DeliveryPending
	d.Attempts = 0
	d.NextAttemptAt = m.now()
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
