package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// dialect holds what differs between the SQL backends.
type dialect struct {
	name     string
	numbered bool // $1 placeholders instead of ?
	schema   []string
}

// SQL is a Store over database/sql, shared by the Postgres and SQLite
// backends. Timestamps are stored as unix milliseconds.
type SQL struct {
	db  *sql.DB
	d   dialect
	now func() time.Time
}

func newSQL(db *sql.DB, d dialect) *SQL {
	return &SQL{db: db, d: d, now: time.Now}
}

// Migrate creates the tables when they are missing.
func (s *SQL) Migrate(ctx context.Context) error {
	for _, stmt := range s.d.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: %s migrate: %w", s.d.name, err)
		}
	}
	return nil
}

func (s *SQL) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQL) Close() error { return s.db.Close() }

// rebind rewrites ? placeholders for dialects with numbered parameters.
func (s *SQL) rebind(q string) string {
	if !s.d.numbered {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQL) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(q), args...)
}

func (s *SQL) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(q), args...)
}

func (s *SQL) stamp() int64 { return s.now().UnixMilli() }

const jobColumns = `id, kind, status, request, result, error, callback_url, callback_secret, generation, best_cost, created_at, updated_at, finished_at`

type scanner interface{ Scan(dest ...any) error }

func scanJob(sc scanner) (Job, error) {
	var (
		j                Job
		status           string
		created, updated int64
		finished         sql.NullInt64
	)
	if err := sc.Scan(&j.ID, &j.Kind, &status, &j.Request, &j.Result, &j.Error, &j.CallbackURL, &j.CallbackSecret,
		&j.Generation, &j.BestCost, &created, &updated, &finished); err != nil {
		return Job{}, err
	}
	j.Status = JobStatus(status)
	j.CreatedAt = time.UnixMilli(created).UTC()
	j.UpdatedAt = time.UnixMilli(updated).UTC()
	if finished.Valid {
		t := time.UnixMilli(finished.Int64).UTC()
		j.FinishedAt = &t
	}
	return j, nil
}

func (s *SQL) CreateJob(ctx context.Context, job Job) (Job, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	now := s.stamp()
	job.Status = JobQueued
	job.CreatedAt = time.UnixMilli(now).UTC()
	job.UpdatedAt = job.CreatedAt
	_, err := s.exec(ctx, `INSERT INTO jobs (`+jobColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,NULL)`,
		job.ID, job.Kind, string(job.Status), job.Request, job.Result, job.Error, job.CallbackURL, job.CallbackSecret,
		job.Generation, job.BestCost, now, now)
	if err != nil {
		return Job{}, fmt.Errorf("store: create job: %w", err)
	}
	return job, nil
}

func (s *SQL) GetJob(ctx context.Context, id string) (Job, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+jobColumns+` FROM jobs WHERE id=?`), id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	return j, err
}

func (s *SQL) ListJobs(ctx context.Context, status, cursor string, limit int) ([]Job, string, error) {
	limit = clampLimit(limit)
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE id > ?`
	args := []any{cursor}
	if status != "" {
		q += ` AND status=?`
		args = append(args, status)
	}
	q += ` ORDER BY id LIMIT ?`
	args = append(args, limit)
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

// transition reports ErrNotFound or ErrConflict when an update touched no
// row.
func (s *SQL) transition(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil || n > 0 {
		return err
	}
	j, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: job %s is %s", ErrConflict, id, j.Status)
}

func (s *SQL) StartJob(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `UPDATE jobs SET status=?, updated_at=? WHERE id=? AND status=?`,
		string(JobRunning), s.stamp(), id, string(JobQueued))
	if err != nil {
		return err
	}
	return s.transition(ctx, res, id)
}

func (s *SQL) UpdateJobProgress(ctx context.Context, id string, generation int, bestCost float64) error {
	res, err := s.exec(ctx, `UPDATE jobs SET generation=?, best_cost=?, updated_at=? WHERE id=? AND status IN (?,?)`,
		generation, bestCost, s.stamp(), id, string(JobQueued), string(JobRunning))
	if err != nil {
		return err
	}
	if err := s.transition(ctx, res, id); err != nil && !errors.Is(err, ErrConflict) {
		return err
	}
	return nil
}

func (s *SQL) FinishJob(ctx context.Context, id string, status JobStatus, result []byte, errMsg string) error {
	now := s.stamp()
	res, err := s.exec(ctx, `UPDATE jobs SET status=?, result=?, error=?, updated_at=?, finished_at=? WHERE id=? AND status IN (?,?)`,
		string(status), result, errMsg, now, now, id, string(JobQueued), string(JobRunning))
	if err != nil {
		return err
	}
	return s.transition(ctx, res, id)
}

// Webhook deliveries
func (s *SQL) EnqueueWebhook(ctx context.Context, jobID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	dk := computeDedupKey(payload)
	res, err := s.exec(ctx, `INSERT INTO webhook_deliveries (id, job_id, event_type, url, secret, payload, status, attempts, next_attempt_at, last_error, response_code, latency_ms, dedup_key)
        VALUES (?,?,?,?,?,?,?,0,?,'',0,0,?)
        ON CONFLICT (event_type, url, dedup_key) DO NOTHING`, id, jobID, eventType, url, secret, payload, DeliveryPending, s.stamp(), dk)
	if err != nil {
		return "", err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = s.db.QueryRowContext(ctx, s.rebind(`SELECT id FROM webhook_deliveries WHERE event_type=? AND url=? AND dedup_key=?`), eventType, url, dk).Scan(&id)
		if err != nil {
			return "", err
		}
	}
	return id, nil
}

const deliveryColumns = `id, job_id, event_type, url, secret, payload, status, attempts, next_attempt_at, last_error, response_code, latency_ms, delivered_at`

func scanDelivery(sc scanner) (WebhookDelivery, error) {
	var (
		d         WebhookDelivery
		next      int64
		delivered sql.NullInt64
	)
	if err := sc.Scan(&d.ID, &d.JobID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts,
		&next, &d.LastError, &d.ResponseCode, &d.LatencyMs, &delivered); err != nil {
		return d, err
	}
	d.NextAttemptAt = time.UnixMilli(next).UTC()
	if delivered.Valid {
		t := time.UnixMilli(delivered.Int64).UTC()
		d.DeliveredAt = &t
	}
	return d, nil
}

func (s *SQL) deliveries(ctx context.Context, q string, args ...any) ([]WebhookDelivery, error) {
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQL) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	return s.deliveries(ctx, `SELECT `+deliveryColumns+` FROM webhook_deliveries
        WHERE status IN (?,?) AND next_attempt_at <= ? ORDER BY next_attempt_at ASC LIMIT ?`,
		DeliveryPending, DeliveryRetry, s.stamp(), clampLimit(limit))
}

func (s *SQL) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	var (
		res sql.Result
		err error
	)
	if success {
		res, err = s.exec(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status=?, delivered_at=?, response_code=?, latency_ms=? WHERE id=?`,
			DeliveryDelivered, s.stamp(), responseCode, latencyMs, id)
	} else {
		if nextAttemptAt == nil {
			t := s.now().Add(1 * time.Minute)
			nextAttemptAt = &t
		}
		res, err = s.exec(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status=?, last_error=?, next_attempt_at=?, response_code=?, latency_ms=? WHERE id=?`,
			DeliveryRetry, lastError, nextAttemptAt.UnixMilli(), responseCode, latencyMs, id)
	}
	return touched(res, err)
}

func (s *SQL) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	res, err := s.exec(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status=?, last_error=?, response_code=?, latency_ms=? WHERE id=?`,
		DeliveryFailed, lastError, responseCode, latencyMs, id)
	return touched(res, err)
}

func (s *SQL) ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]WebhookDelivery, string, error) {
	limit = clampLimit(limit)
	q := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE id > ?`
	args := []any{cursor}
	if status != "" {
		q += ` AND status=?`
		args = append(args, status)
	}
	q += ` ORDER BY id LIMIT ?`
	args = append(args, limit)
	out, err := s.deliveries(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (s *SQL) RetryWebhookDelivery(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `UPDATE webhook_deliveries SET status=?, attempts=0, next_attempt_at=? WHERE id=?`, DeliveryPending, s.stamp(), id)
	return touched(res, err)
}

func touched(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func computeDedupKey(payload []byte) string {
	// try to parse JSON and use id
	var m map[string]any
	if json.Unmarshal(payload, &m) == nil {
		if v, ok := m["id"].(string); ok && v != "" {
			return v
		}
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}
