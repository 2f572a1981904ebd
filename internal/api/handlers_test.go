package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"elasticroute/internal/auth"
	"elasticroute/internal/config"
	"elasticroute/internal/metrics"
	"elasticroute/internal/model"
	"elasticroute/internal/store"
)

const instance = `{
  "coordSystem": "cartesian",
  "nodes": [
    {"id": "depot", "role": "depot", "location": {"x": 0, "y": 0}},
    {"id": "a", "role": "customer", "location": {"x": 3, "y": 4}},
    {"id": "b", "role": "customer", "location": {"x": -3, "y": 4}}
  ],
  "requests": [
    {"id": "ra", "sender": "depot", "receiver": "a", "quantity": 4},
    {"id": "rb", "sender": "depot", "receiver": "b", "quantity": 4}
  ],
  "vehicles": [
    {"id": "truck", "capacity": 10, "start": "depot", "end": "depot"}
  ]
}`

const quickConfig = `{"evol": {"populationSize": 8, "maxGenerations": 15, "seed": 3}}`

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Solver.Evol.PopulationSize = 8
	cfg.Solver.Evol.MaxGenerations = 15
	cfg.Solver.Evol.StallGenerations = 0
	cfg.Server.MaxConcurrentJobs = 2
	return cfg
}

func newTestServer(t *testing.T, cfg config.Config) (*Server, http.Handler) {
	t.Helper()
	s, err := New(cfg, store.NewMemory(), NewBroker(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, s.Routes()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func solveBody(config string) string {
	if config == "" {
		return `{"instance": ` + instance + `}`
	}
	return `{"instance": ` + instance + `, "config": ` + config + `}`
}

func TestHealthReady(t *testing.T) {
	_, h := newTestServer(t, testConfig())
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/readyz", "").Code)
}

func TestSolveAndCache(t *testing.T) {
	_, h := newTestServer(t, testConfig())

	rr := do(t, h, http.MethodPost, "/v1/solve", solveBody(quickConfig))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, "miss", rr.Header().Get("X-Cache"))
	var sol model.Solution
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sol))
	require.True(t, sol.Feasible)
	require.Empty(t, sol.Unassigned)
	require.Len(t, sol.Routes, 1)
	require.InDelta(t, 16.0, sol.Distance, 1e-9)
	require.EqualValues(t, 3, sol.Seed)

	rr = do(t, h, http.MethodPost, "/v1/solve", solveBody(quickConfig))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "hit", rr.Header().Get("X-Cache"))
	var again model.Solution
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &again))
	require.Equal(t, sol.Cost, again.Cost)

	// unseeded runs are not cached
	rr = do(t, h, http.MethodPost, "/v1/solve", solveBody(""))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, rr.Header().Get("X-Cache"))

	// neither are seeded runs a wall-clock limit may cut short
	timed := `{"evol": {"populationSize": 8, "maxGenerations": 15, "timeLimit": 60000000000, "seed": 3}}`
	for i := 0; i < 2; i++ {
		rr = do(t, h, http.MethodPost, "/v1/solve", solveBody(timed))
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		require.Empty(t, rr.Header().Get("X-Cache"))
	}
}

func TestSolveRejectsBadInput(t *testing.T) {
	_, h := newTestServer(t, testConfig())

	rr := do(t, h, http.MethodPost, "/v1/solve", `{"instance": {}, "extra": 1}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	bad := strings.Replace(instance, `"receiver": "b"`, `"receiver": "c"`, 1)
	rr = do(t, h, http.MethodPost, "/v1/solve", `{"instance": `+bad+`}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	var p Problem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	require.Equal(t, "Invalid model", p.Title)

	rr = do(t, h, http.MethodPost, "/v1/solve", solveBody(`{"evol": {"populationSize": 1}}`))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, h, http.MethodGet, "/v1/solve", "")
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestTSP(t *testing.T) {
	_, h := newTestServer(t, testConfig())
	body := `{
	  "coordSystem": "cartesian",
	  "points": [{"x":0,"y":0},{"x":1,"y":1},{"x":1,"y":0},{"x":0,"y":1}],
	  "start": 0, "end": 0, "roundTrip": true,
	  "config": {"evol": {"populationSize": 6, "maxGenerations": 10, "seed": 1}}
	}`
	rr := do(t, h, http.MethodPost, "/v1/tsp", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var tour struct {
		Nodes []int   `json:"nodes"`
		Cost  float64 `json:"cost"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tour))
	require.InDelta(t, 4.0, tour.Cost, 1e-9)
	require.Equal(t, 0, tour.Nodes[0])

	rr = do(t, h, http.MethodPost, "/v1/tsp", `{"points": []}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSolverConfig(t *testing.T) {
	_, h := newTestServer(t, testConfig())
	rr := do(t, h, http.MethodGet, "/v1/solver/config", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Contains(t, body, "vrp")
	require.Contains(t, body, "tsp")
	require.EqualValues(t, 8, body["vrp"]["evol"].(map[string]any)["populationSize"])
}

func createJob(t *testing.T, h http.Handler, body string) string {
	t.Helper()
	rr := do(t, h, http.MethodPost, "/v1/jobs", body)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	var out struct {
		JobID string `json:"jobId"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.NotEmpty(t, out.JobID)
	require.Equal(t, "/v1/jobs/"+out.JobID, rr.Header().Get("Location"))
	return out.JobID
}

func waitStatus(t *testing.T, h http.Handler, id string, want store.JobStatus) jobView {
	t.Helper()
	var v jobView
	require.Eventually(t, func() bool {
		rr := do(t, h, http.MethodGet, "/v1/jobs/"+id, "")
		if rr.Code != http.StatusOK {
			return false
		}
		v = jobView{}
		if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
			return false
		}
		return v.Status == want
	}, 10*time.Second, 20*time.Millisecond)
	return v
}

func TestJobLifecycle(t *testing.T) {
	_, h := newTestServer(t, testConfig())

	body := `{"instance": ` + instance + `, "config": ` + quickConfig + `, "callbackUrl": "http://hooks.example/solve"}`
	id := createJob(t, h, body)
	v := waitStatus(t, h, id, store.JobCompleted)
	require.NotNil(t, v.FinishedAt)
	var sol model.Solution
	require.NoError(t, json.Unmarshal(v.Solution, &sol))
	require.True(t, sol.Feasible)
	require.Equal(t, id, sol.RunID)

	rr := do(t, h, http.MethodGet, "/v1/jobs?status=completed", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), id)

	rr = do(t, h, http.MethodGet, "/v1/jobs/"+id+"/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var jm jobMetrics
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &jm))
	require.False(t, jm.Live)
	require.Equal(t, store.JobCompleted, jm.Status)
	require.NotNil(t, jm.Metrics)
	require.Equal(t, sol.Stats.Generations, jm.Metrics.Generations)
	require.Equal(t, sol.Cost, jm.Metrics.FinalCost)
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/jobs/nope/metrics", "").Code)

	// finished jobs cannot be cancelled
	require.Equal(t, http.StatusConflict, do(t, h, http.MethodDelete, "/v1/jobs/"+id, "").Code)
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/v1/jobs/nope", "").Code)
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/jobs/nope", "").Code)

	// completion queues a webhook for the callback
	var list struct {
		Items []store.WebhookDelivery `json:"items"`
	}
	require.Eventually(t, func() bool {
		rr := do(t, h, http.MethodGet, "/v1/webhooks/deliveries", "")
		return rr.Code == http.StatusOK && json.Unmarshal(rr.Body.Bytes(), &list) == nil && len(list.Items) == 1
	}, 5*time.Second, 20*time.Millisecond)
	require.Equal(t, EventCompleted, list.Items[0].EventType)
	require.Equal(t, id, list.Items[0].JobID)
	require.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/v1/webhooks/deliveries/"+list.Items[0].ID+"/retry", "").Code)
}

func TestJobRejectsBadRequests(t *testing.T) {
	_, h := newTestServer(t, testConfig())
	rr := do(t, h, http.MethodPost, "/v1/jobs", `{"instance": `+instance+`, "callbackUrl": "ftp://x"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(t, h, http.MethodPost, "/v1/jobs", `{"instance": {"vehicles": [{"id": "v", "start": "nowhere"}]}}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(t, h, http.MethodGet, "/v1/jobs?limit=x", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCancelJob(t *testing.T) {
	_, h := newTestServer(t, testConfig())
	long := `{"evol": {"populationSize": 8, "maxGenerations": 0, "stallGenerations": 0, "stallPeriod": 0, "timeLimit": 60000000000, "seed": 5}}`
	id := createJob(t, h, solveBody(long))

	// operator statistics are readable while the search runs
	var jm jobMetrics
	require.Eventually(t, func() bool {
		rr := do(t, h, http.MethodGet, "/v1/jobs/"+id+"/metrics", "")
		return rr.Code == http.StatusOK && json.Unmarshal(rr.Body.Bytes(), &jm) == nil &&
			jm.Live && jm.Metrics.Generations > 0
	}, 10*time.Second, 20*time.Millisecond)
	require.Equal(t, store.JobRunning, jm.Status)

	rr := do(t, h, http.MethodDelete, "/v1/jobs/"+id, "")
	require.Equal(t, http.StatusAccepted, rr.Code)
	waitStatus(t, h, id, store.JobCancelled)
}

func TestJobEventsStream(t *testing.T) {
	s, h := newTestServer(t, testConfig())
	srv := httptest.NewServer(h)
	defer srv.Close()

	id := createJob(t, h, solveBody(quickConfig))
	waitStatus(t, h, id, store.JobCompleted)

	resp, err := http.Get(srv.URL + "/v1/jobs/" + id + "/events/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	sc := bufio.NewScanner(resp.Body)
	require.True(t, sc.Scan())
	require.Equal(t, "event: "+EventCompleted, sc.Text())
	require.True(t, sc.Scan())
	require.Contains(t, sc.Text(), `"status":"completed"`)

	// a live stream relays published events until the terminal one
	job, err := s.Store.CreateJob(context.Background(), store.Job{Kind: "vrp"})
	require.NoError(t, err)
	resp2, err := http.Get(srv.URL + "/v1/jobs/" + job.ID + "/events/stream")
	require.NoError(t, err)
	defer resp2.Body.Close()
	sc = bufio.NewScanner(resp2.Body)
	require.True(t, sc.Scan())
	require.Equal(t, "event: heartbeat", sc.Text())
	s.Broker.Publish(job.ID, Event{Type: EventProgress, Data: map[string]any{"generation": 7}})
	s.Broker.Publish(job.ID, Event{Type: EventFailed, Data: map[string]any{"error": "boom"}})
	var lines []string
	for sc.Scan() {
		if sc.Text() != "" {
			lines = append(lines, sc.Text())
		}
	}
	require.Contains(t, lines, "event: "+EventProgress)
	require.Contains(t, lines, "event: "+EventFailed)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RateRPS = 0.001
	cfg.Server.RateBurst = 1
	_, h := newTestServer(t, cfg)

	metrics.RegisterDefault()
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/v1/solver/config", "").Code)
	rr := do(t, h, http.MethodGet, "/v1/solver/config", "")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.Equal(t, "1", rr.Header().Get("Retry-After"))
	// probes are exempt
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)

	rr = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "http_rate_limited_total")
}

func TestAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.Auth{Mode: "hmac", HMACSecret: "k", RoleClaim: "role"}
	_, h := newTestServer(t, cfg)

	require.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/v1/solver/config", "").Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)

	call := func(path string, claims map[string]any) int {
		tok, err := auth.SignHS256("k", claims)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}
	require.Equal(t, http.StatusOK, call("/v1/solver/config", map[string]any{"sub": "u"}))
	require.Equal(t, http.StatusForbidden, call("/v1/webhooks/deliveries", map[string]any{"sub": "u"}))
	require.Equal(t, http.StatusOK, call("/v1/webhooks/deliveries", map[string]any{"sub": "u", "role": "admin"}))
}

func TestDocsAndDebug(t *testing.T) {
	_, h := newTestServer(t, testConfig())

	rr := do(t, h, http.MethodGet, "/openapi.yaml", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("openapi:")))

	rr = do(t, h, http.MethodGet, "/openapi.json", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	require.Contains(t, doc["paths"], "/v1/solve")

	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/docs", "").Code)

	rr = do(t, h, http.MethodGet, "/debug", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var info map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &info))
	require.Contains(t, info, "build")
	require.Equal(t, "memory", info["config"].(map[string]any)["storeDriver"])
	require.NotContains(t, rr.Body.String(), fmt.Sprintf("%q", "dsn"))
}
