package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"elasticroute/internal/metrics"
	"elasticroute/internal/model"
	"elasticroute/internal/opt"
	"elasticroute/internal/tsp"
)

// SolveHandler handles POST /v1/solve. Seeded requests are reproducible
// and answered from the cache when seen before.
func (s *Server) SolveHandler(w http.ResponseWriter, r *http.Request) {
	var req model.SolveRequest
	req.Config = s.defaultConfig()
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	cfg := s.effectiveConfig(req.Config)
	req.Config = &cfg

	key, cacheable := fingerprint(req)
	if cacheable {
		if sol, ok := s.cache.get(key); ok {
			metrics.SolveCacheHits.Inc()
			w.Header().Set("X-Cache", "hit")
			writeJSON(w, http.StatusOK, sol)
			return
		}
	}

	p, err := model.Build(req.Instance)
	if err != nil {
		writeError(w, r, err)
		return
	}
	start := time.Now()
	res, err := opt.Solve(r.Context(), p, cfg, opt.WithLogger(s.Log))
	if err != nil {
		writeError(w, r, err)
		return
	}
	metrics.ObserveSolve("vrp", string(res.Stats.StopReason), res.Stats.Generations, time.Since(start))
	if !res.Feasible {
		metrics.SolverInfeasible.Inc()
	}
	sol := model.FromResult(p, res)
	// a cancelled run is the best so far, not the reproducible answer
	if cacheable && r.Context().Err() == nil {
		s.cache.add(key, sol)
		w.Header().Set("X-Cache", "miss")
	}
	writeJSON(w, http.StatusOK, sol)
}

// TSPHandler handles POST /v1/tsp.
func (s *Server) TSPHandler(w http.ResponseWriter, r *http.Request) {
	var req model.TSPRequest
	def := tsp.DefaultConfig()
	req.Config = &def
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	cfg := tsp.DefaultConfig()
	if req.Config != nil {
		cfg = *req.Config
	}
	p, err := model.BuildTSP(req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	start := time.Now()
	tour, err := p.Solve(r.Context(), cfg, tsp.WithLogger(s.Log.With(zap.String("kind", "tsp"))))
	if err != nil {
		writeError(w, r, err)
		return
	}
	metrics.ObserveSolve("tsp", string(tour.Stats.StopReason), tour.Stats.Generations, time.Since(start))
	writeJSON(w, http.StatusOK, tour)
}

// SolverConfigHandler returns the defaults requests are decoded over.
func (s *Server) SolverConfigHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"vrp": s.defaultConfig(),
		"tsp": tsp.DefaultConfig(),
	})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
