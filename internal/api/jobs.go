package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"elasticroute/internal/evol"
	"elasticroute/internal/metrics"
	"elasticroute/internal/model"
	"elasticroute/internal/opt"
	"elasticroute/internal/store"
	"elasticroute/internal/vrp"
)

// progressEvery throttles progress events and store updates per job.
const progressEvery = 250 * time.Millisecond

type jobRequest struct {
	model.SolveRequest
	CallbackURL    string `json:"callbackUrl,omitempty"`
	CallbackSecret string `json:"callbackSecret,omitempty"`
}

// jobView is a job with its solution once there is one.
type jobView struct {
	store.Job
	Solution json.RawMessage `json:"solution,omitempty"`
}

func viewOf(j store.Job) jobView {
	v := jobView{Job: j}
	if len(j.Result) > 0 {
		v.Solution = j.Result
	}
	return v
}

// runner executes async solves, at most limit at a time.
type runner struct {
	s   *Server
	sem *semaphore.Weighted

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func newRunner(s *Server, limit int) *runner {
	if limit < 1 {
		limit = 1
	}
	ctx, stop := context.WithCancel(context.Background())
	return &runner{
		s:       s,
		sem:     semaphore.NewWeighted(int64(limit)),
		ctx:     ctx,
		stop:    stop,
		cancels: map[string]context.CancelFunc{},
	}
}

func (r *runner) start(job store.Job, p *vrp.Problem, cfg opt.Config) {
	ctx, cancel := context.WithCancel(r.ctx)
	r.mu.Lock()
	r.cancels[job.ID] = cancel
	r.mu.Unlock()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.forget(job.ID)
		r.run(ctx, job, p, cfg)
	}()
}

// cancel reports whether job id was running here.
func (r *runner) cancel(id string) bool {
	r.mu.Lock()
	fn, ok := r.cancels[id]
	r.mu.Unlock()
	if ok {
		fn()
	}
	return ok
}

func (r *runner) forget(id string) {
	r.mu.Lock()
	if fn, ok := r.cancels[id]; ok {
		fn()
		delete(r.cancels, id)
	}
	r.mu.Unlock()
}

func (r *runner) shutdown() {
	r.stop()
	r.wg.Wait()
}

func (r *runner) run(ctx context.Context, job store.Job, p *vrp.Problem, cfg opt.Config) {
	s := r.s
	log := s.Log.With(zap.String("job", job.ID))
	// state changes are recorded even after ctx is cancelled
	bg := context.WithoutCancel(ctx)

	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.finish(bg, log, job, store.JobCancelled, nil, "cancelled before start")
		return
	}
	defer r.sem.Release(1)

	if err := s.Store.StartJob(bg, job.ID); err != nil {
		// cancelled while queued
		log.Info("job not started", zap.Error(err))
		return
	}
	metrics.JobsRunning.Inc()
	defer metrics.JobsRunning.Dec()

	var last time.Time
	observer := func(pr opt.Progress) {
		if time.Since(last) < progressEvery {
			return
		}
		last = time.Now()
		if err := s.Store.UpdateJobProgress(bg, job.ID, pr.Generation, pr.BestCost); err != nil {
			log.Warn("progress update failed", zap.Error(err))
		}
		s.Broker.Publish(job.ID, Event{Type: EventProgress, Data: map[string]any{
			"jobId":      job.ID,
			"generation": pr.Generation,
			"bestCost":   pr.BestCost,
			"meanCost":   pr.MeanCost,
			"elapsedMs":  pr.Elapsed.Milliseconds(),
		}})
	}

	start := time.Now()
	res, err := opt.Solve(ctx, p, cfg, opt.WithLogger(log), opt.WithObserver(observer), opt.WithRunID(job.ID))
	if err != nil {
		if ctx.Err() != nil {
			// cancelled before any solution existed
			r.finish(bg, log, job, store.JobCancelled, nil, "cancelled")
			return
		}
		log.Warn("job failed", zap.Error(err))
		r.finish(bg, log, job, store.JobFailed, nil, err.Error())
		return
	}
	metrics.ObserveSolve("vrp", string(res.Stats.StopReason), res.Stats.Generations, time.Since(start))
	if !res.Feasible {
		metrics.SolverInfeasible.Inc()
	}
	sol := model.FromResult(p, res)
	body, err := json.Marshal(sol)
	if err != nil {
		r.finish(bg, log, job, store.JobFailed, nil, err.Error())
		return
	}
	status := store.JobCompleted
	if res.Stats.StopReason == evol.StopCancelled {
		status = store.JobCancelled
	}
	r.finish(bg, log, job, status, body, "")
}

// finish records the terminal state, then notifies subscribers and the
// job's callback.
func (r *runner) finish(ctx context.Context, log *zap.Logger, job store.Job, status store.JobStatus, result []byte, errMsg string) {
	s := r.s
	if err := s.Store.FinishJob(ctx, job.ID, status, result, errMsg); err != nil {
		log.Warn("finish job failed", zap.Error(err))
		return
	}
	data := map[string]any{"jobId": job.ID, "status": string(status)}
	if errMsg != "" {
		data["error"] = errMsg
	}
	if len(result) > 0 {
		var sol model.Solution
		if err := json.Unmarshal(result, &sol); err == nil {
			data["cost"] = sol.Cost
			data["feasible"] = sol.Feasible
			data["unassigned"] = len(sol.Unassigned)
		}
	}
	evt := eventFor(status)
	s.Broker.Publish(job.ID, Event{Type: evt, Data: data})
	if _, err := s.Pub.Emit(ctx, job, evt, data); err != nil {
		log.Warn("webhook enqueue failed", zap.Error(err))
	}
	log.Info("job finished", zap.String("status", string(status)))
}

func eventFor(status store.JobStatus) string {
	switch status {
	case store.JobCompleted:
		return EventCompleted
	case store.JobCancelled:
		return EventCancelled
	}
	return EventFailed
}

// terminalEvent renders a finished job the way finish announced it.
func terminalEvent(j store.Job) Event {
	data := map[string]any{"jobId": j.ID, "status": string(j.Status)}
	if j.Error != "" {
		data["error"] = j.Error
	}
	return Event{Type: eventFor(j.Status), Data: data}
}

func isTerminalEvent(t string) bool {
	return t == EventCompleted || t == EventFailed || t == EventCancelled
}

// CreateJobHandler handles POST /v1/jobs. The model and config are
// validated before the job is queued.
func (s *Server) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	req.Config = s.defaultConfig()
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateCallback(req.CallbackURL); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid callback", err.Error(), r.URL.Path)
		return
	}
	cfg := s.effectiveConfig(req.Config)
	if err := cfg.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := model.Build(req.Instance)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := p.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	body, err := json.Marshal(req.SolveRequest)
	if err != nil {
		writeError(w, r, err)
		return
	}
	job, err := s.Store.CreateJob(r.Context(), store.Job{
		Kind:           "vrp",
		Request:        body,
		CallbackURL:    req.CallbackURL,
		CallbackSecret: req.CallbackSecret,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.jobs.start(job, p, cfg)
	w.Header().Set("Location", "/v1/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, map[string]any{"jobId": job.ID, "status": job.Status})
}

// ListJobsHandler handles GET /v1/jobs?status=&cursor=&limit=.
func (s *Server) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(q.Get("limit"), 100)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid limit", err.Error(), r.URL.Path)
		return
	}
	items, next, err := s.Store.ListJobs(r.Context(), q.Get("status"), q.Get("cursor"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) JobHandler(w http.ResponseWriter, r *http.Request) {
	job, err := s.Store.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(job))
}

type jobMetrics struct {
	JobID  string          `json:"jobId"`
	Status store.JobStatus `json:"status"`
	// Live is set while the solver is running; the counters then describe
	// the generations finished so far.
	Live    bool         `json:"live"`
	Metrics *opt.Metrics `json:"metrics,omitempty"`
}

// JobMetricsHandler handles GET /v1/jobs/{id}/metrics: the operator
// statistics of a running job, or those stored with its solution.
func (s *Server) JobMetricsHandler(w http.ResponseWriter, r *http.Request) {
	job, err := s.Store.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := jobMetrics{JobID: job.ID, Status: job.Status}
	if m, ok := opt.GetMetrics(job.ID); ok && !job.Status.Terminal() {
		out.Live, out.Metrics = true, &m
	} else if len(job.Result) > 0 {
		var sol model.Solution
		if err := json.Unmarshal(job.Result, &sol); err != nil {
			writeError(w, r, err)
			return
		}
		out.Metrics = &sol.Metrics
	}
	writeJSON(w, http.StatusOK, out)
}

// CancelJobHandler handles DELETE /v1/jobs/{id}. A running job stops at
// the next generation and keeps the best solution found so far.
func (s *Server) CancelJobHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, err := s.Store.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if job.Status.Terminal() {
		writeError(w, r, fmt.Errorf("%w: job %s is %s", store.ErrConflict, id, job.Status))
		return
	}
	if !s.jobs.cancel(id) {
		// owned by no runner in this process
		if err := s.Store.FinishJob(r.Context(), id, store.JobCancelled, nil, "cancelled"); err != nil {
			writeError(w, r, err)
			return
		}
		s.Broker.Publish(id, Event{Type: EventCancelled, Data: map[string]any{"jobId": id, "status": string(store.JobCancelled)}})
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"jobId": id, "status": "cancelling"})
}

// JobEventsHandler streams job events as SSE until the job finishes or the
// client goes away.
func (s *Server) JobEventsHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)

	job, err := s.Store.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(evt Event) {
		b, _ := json.Marshal(evt.Data)
		fmt.Fprintf(w, "event: %s\n", evt.Type)
		fmt.Fprintf(w, "data: %s\n\n", b)
		flusher.Flush()
	}
	heartbeat := func() {
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"jobId\":%q,\"ts\":%q}\n\n", id, time.Now().UTC().Format(time.RFC3339))
		flusher.Flush()
	}

	if job.Status.Terminal() {
		send(terminalEvent(job))
		return
	}
	heartbeat()
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			send(evt)
			if isTerminalEvent(evt.Type) {
				return
			}
		case <-ticker.C:
			heartbeat()
		}
	}
}

// WebhookDeliveriesHandler handles GET /v1/webhooks/deliveries.
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(q.Get("limit"), 100)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid limit", err.Error(), r.URL.Path)
		return
	}
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), q.Get("status"), q.Get("cursor"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// WebhookDeliveryRetryHandler requeues a delivery, typically a failed one.
func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.RetryWebhookDelivery(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": 1})
}

func queryInt(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New("not an integer: " + v)
	}
	return n, nil
}
