package webhooks

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"elasticroute/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []markRec
	fails []failRec
}

type markRec struct {
	ID      string
	Success bool
	Code    int
	LastErr string
	Next    *time.Time
}

type failRec struct {
	ID      string
	Code    int
	LastErr string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, markRec{ID: id, Success: success, Code: responseCode, LastErr: lastError, Next: nextAttemptAt})
	r.mu.Unlock()
	return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}

func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, failRec{ID: id, Code: responseCode, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var gotSig, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotType = r.Header.Get("X-Event-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := NewWorker(rs, 3, nil)
	w.HTTP = srv.Client()

	pub := NewPublisher(rs)
	id, err := pub.Emit(context.Background(), store.Job{ID: "job1", CallbackURL: srv.URL, CallbackSecret: "secret"}, "job.completed", map[string]any{"cost": 12.5})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	w.processOnce(context.Background())

	require.Equal(t, "job.completed", gotType)
	require.NoError(t, Verify("secret", gotBody, gotSig, time.Now(), time.Minute))
	require.Len(t, rs.marks, 1)
	require.True(t, rs.marks[0].Success)
}

func TestWorkerRetriesThenFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := NewWorker(rs, 2, nil)
	w.HTTP = srv.Client()
	id, err := rs.Memory.EnqueueWebhook(context.Background(), "job1", "job.failed", srv.URL, "", []byte(`{"id":"evt"}`))
	require.NoError(t, err)

	w.processOnce(context.Background())
	require.Len(t, rs.marks, 1)
	require.False(t, rs.marks[0].Success)
	require.Equal(t, http.StatusInternalServerError, rs.marks[0].Code)
	require.NotNil(t, rs.marks[0].Next)
	require.True(t, rs.marks[0].Next.After(time.Now()))

	// not due yet
	w.processOnce(context.Background())
	require.Len(t, rs.marks, 1)

	require.NoError(t, rs.Memory.MarkWebhookDelivery(context.Background(), id, false, &time.Time{}, "", 500, 0))
	w.processOnce(context.Background())
	require.Len(t, rs.fails, 1)
	require.Equal(t, id, rs.fails[0].ID)
}

func TestPublisherSkipsJobsWithoutCallback(t *testing.T) {
	m := store.NewMemory()
	id, err := NewPublisher(m).Emit(context.Background(), store.Job{ID: "j"}, "job.completed", nil)
	require.NoError(t, err)
	require.Empty(t, id)
	due, err := m.FetchDueWebhookDeliveries(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, due)
}

func TestNextBackoff(t *testing.T) {
	require.Equal(t, time.Second, nextBackoff(-1))
	require.Equal(t, 8*time.Second, nextBackoff(3))
	require.Equal(t, 1024*time.Second, nextBackoff(40))
}
