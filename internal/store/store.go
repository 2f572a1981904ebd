package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of an async solve.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transitions happen.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Job is one async solve. Request and Result hold the JSON bodies.
type Job struct {
	ID             string     `json:"id"`
	Kind           string     `json:"kind"`
	Status         JobStatus  `json:"status"`
	Request        []byte     `json:"-"`
	Result         []byte     `json:"-"`
	Error          string     `json:"error,omitempty"`
	CallbackURL    string     `json:"callbackUrl,omitempty"`
	CallbackSecret string     `json:"-"`
	Generation     int        `json:"generation"`
	BestCost       float64    `json:"bestCost"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
}

// Store is the persistence interface used by the API server.
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, job Job) (Job, error)
	GetJob(ctx context.Context, id string) (Job, error)
	ListJobs(ctx context.Context, status, cursor string, limit int) (items []Job, nextCursor string, err error)
	StartJob(ctx context.Context, id string) error
	UpdateJobProgress(ctx context.Context, id string, generation int, bestCost float64) error
	FinishJob(ctx context.Context, id string, status JobStatus, result []byte, errMsg string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, jobID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]WebhookDelivery, string, error)
	RetryWebhookDelivery(ctx context.Context, id string) error

	Ping(ctx context.Context) error
	Close() error
}

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned for transitions out of a terminal job state.
	ErrConflict = errors.New("conflict")
)

// Open returns the store for driver: "memory" (or empty), "postgres" or
// "sqlite". SQL stores are migrated before they are returned.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "postgres":
		p, err := NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		if err := p.Migrate(ctx); err != nil {
			_ = p.Close()
			return nil, err
		}
		return p, nil
	case "sqlite":
		s, err := NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("store: unknown driver %q", driver)
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
