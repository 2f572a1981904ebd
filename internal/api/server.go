package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"elasticroute/internal/auth"
	"elasticroute/internal/config"
	"elasticroute/internal/metrics"
	"elasticroute/internal/store"
	"elasticroute/internal/webhooks"
)

type Server struct {
	Store  store.Store
	Pub    *webhooks.Publisher
	Broker EventBroker
	Log    *zap.Logger
	Cfg    config.Config

	auth    *auth.Verifier
	cache   *solveCache
	limiter *rate.Limiter
	jobs    *runner
}

// NewServer opens the configured store and event broker. A Redis broker
// that cannot be reached falls back to the in-memory one.
func NewServer(ctx context.Context, cfg config.Config, log *zap.Logger) (*Server, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, err
	}
	var broker EventBroker = NewBroker()
	if cfg.Redis.URL != "" {
		rb, err := NewRedisBroker(cfg.Redis.URL)
		if err != nil {
			log.Warn("redis broker unavailable, using in-memory events", zap.Error(err))
		} else {
			broker = rb
		}
	}
	s, err := New(cfg, st, broker, log)
	if err != nil {
		_ = broker.Close()
		_ = st.Close()
		return nil, err
	}
	return s, nil
}

// New assembles a server over an already opened store and broker.
func New(cfg config.Config, st store.Store, broker EventBroker, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cache, err := newSolveCache(cfg.Server.CacheSize)
	if err != nil {
		return nil, err
	}
	v, err := auth.NewVerifier(cfg.Auth.Mode, cfg.Auth.HMACSecret, cfg.Auth.JWKSURL, cfg.Auth.RoleClaim)
	if err != nil {
		return nil, err
	}
	s := &Server{
		Store:  st,
		Pub:    webhooks.NewPublisher(st),
		Broker: broker,
		Log:    log,
		Cfg:    cfg,
		auth:   v,
		cache:  cache,
	}
	if cfg.Server.RateRPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.Server.RateRPS), max(cfg.Server.RateBurst, 1))
	}
	s.jobs = newRunner(s, cfg.Server.MaxConcurrentJobs)
	return s, nil
}

// Routes returns the full handler with logging, metrics, rate limiting and
// authentication.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/solve", s.SolveHandler)
	mux.HandleFunc("POST /v1/tsp", s.TSPHandler)
	mux.HandleFunc("GET /v1/solver/config", s.SolverConfigHandler)

	mux.HandleFunc("POST /v1/jobs", s.CreateJobHandler)
	mux.HandleFunc("GET /v1/jobs", s.ListJobsHandler)
	mux.HandleFunc("GET /v1/jobs/{id}", s.JobHandler)
	mux.HandleFunc("DELETE /v1/jobs/{id}", s.CancelJobHandler)
	mux.HandleFunc("GET /v1/jobs/{id}/events/stream", s.JobEventsHandler)
	mux.HandleFunc("GET /v1/jobs/{id}/metrics", s.JobMetricsHandler)
	mux.HandleFunc("GET /v1/ws", s.WSHandler)

	mux.HandleFunc("GET /v1/webhooks/deliveries", s.requireAdmin(s.WebhookDeliveriesHandler))
	mux.HandleFunc("POST /v1/webhooks/deliveries/{id}/retry", s.requireAdmin(s.WebhookDeliveryRetryHandler))

	mux.HandleFunc("GET /healthz", s.HealthHandler)
	mux.HandleFunc("GET /readyz", s.ReadyHandler)
	mux.HandleFunc("GET /debug", s.DebugJSON)
	mux.HandleFunc("GET /openapi.yaml", s.OpenAPIHandler)
	mux.HandleFunc("GET /openapi.json", s.OpenAPIJSONHandler)
	mux.HandleFunc("GET /docs", s.DocsHandler)
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	return observe(s.Log, limit(s.limiter, authenticate(s.auth, mux)))
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.Cfg.Webhooks.MaxAttempts, s.Log.Named("webhooks"))
}

// Close cancels running jobs, waits for them to record their state and
// releases the broker and the store.
func (s *Server) Close() error {
	s.jobs.shutdown()
	return errors.Join(s.Broker.Close(), s.Store.Close())
}
