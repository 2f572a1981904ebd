package api

import (
	"net/http"
	"runtime"
	"time"

	"elasticroute/internal/buildinfo"
)

// DebugJSON reports build, host and redacted runtime configuration.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"build":      buildinfo.Info(),
		"host":       buildinfo.Host(r.Context()),
		"time":       time.Now().UTC().Format(time.RFC3339),
		"goroutines": runtime.NumGoroutine(),
		"cacheSize":  s.cache.len(),
		"config": map[string]any{
			"addr":              s.Cfg.Server.Addr,
			"rateRps":           s.Cfg.Server.RateRPS,
			"rateBurst":         s.Cfg.Server.RateBurst,
			"maxConcurrentJobs": s.Cfg.Server.MaxConcurrentJobs,
			"storeDriver":       s.Cfg.Store.Driver,
			"hasStoreDsn":       s.Cfg.Store.DSN != "",
			"hasRedisUrl":       s.Cfg.Redis.URL != "",
			"logLevel":          s.Cfg.Log.Level,
			"webhookAttempts":   s.Cfg.Webhooks.MaxAttempts,
		},
	}
	writeJSON(w, http.StatusOK, info)
}
