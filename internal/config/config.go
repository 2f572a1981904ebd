// Package config loads service settings from a YAML file with environment
// overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"elasticroute/internal/opt"
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Server   Server     `yaml:"server"`
	Store    Store      `yaml:"store"`
	Redis    Redis      `yaml:"redis"`
	Log      Log        `yaml:"log"`
	Auth     Auth       `yaml:"auth"`
	Webhooks Webhooks   `yaml:"webhooks"`
	Solver   opt.Config `yaml:"solver"`
}

type Server struct {
	Addr string `yaml:"addr"`
	// RateRPS of zero disables rate limiting.
	RateRPS           float64 `yaml:"rateRps"`
	RateBurst         int     `yaml:"rateBurst"`
	MaxConcurrentJobs int     `yaml:"maxConcurrentJobs"`
	// CacheSize bounds the solve result cache; zero disables it.
	CacheSize int `yaml:"cacheSize"`
}

// Store selects the job store: "memory", "postgres" or "sqlite".
type Store struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type Redis struct {
	URL string `yaml:"url"`
}

type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Auth guards the /v1 endpoints with bearer JWTs unless Mode is "none".
type Auth struct {
	Mode       string `yaml:"mode"`
	HMACSecret string `yaml:"hmacSecret"`
	JWKSURL    string `yaml:"jwksUrl"`
	RoleClaim  string `yaml:"roleClaim"`
}

type Webhooks struct {
	MaxAttempts int `yaml:"maxAttempts"`
}

func Default() Config {
	return Config{
		Server: Server{
			Addr:              ":8080",
			RateBurst:         20,
			MaxConcurrentJobs: 4,
			CacheSize:         128,
		},
		Store:    Store{Driver: "memory"},
		Log:      Log{Level: "info"},
		Auth:     Auth{Mode: "none", RoleClaim: "role"},
		Webhooks: Webhooks{MaxAttempts: 10},
		Solver:   opt.DefaultConfig(),
	}
}

// Load reads path over the defaults, then applies the environment. An empty
// path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overlays the environment variables the deployment sets.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	if v, ok := get("PORT"); ok {
		c.Server.Addr = ":" + strings.TrimPrefix(v, ":")
	}
	if v, ok := get("DATABASE_URL"); ok {
		c.Store = Store{Driver: "postgres", DSN: v}
	} else if v, ok := get("SQLITE_PATH"); ok {
		c.Store = Store{Driver: "sqlite", DSN: v}
	}
	if v, ok := get("REDIS_URL"); ok {
		c.Redis.URL = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := get("AUTH_MODE"); ok {
		c.Auth.Mode = strings.ToLower(v)
	}
	if v, ok := get("AUTH_HMAC_SECRET"); ok {
		c.Auth.HMACSecret = v
	}
	if v, ok := get("AUTH_JWKS_URL"); ok {
		c.Auth.JWKSURL = v
	}
	if v, ok := get("RATE_RPS"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: RATE_RPS %q", ErrInvalid, v)
		}
		c.Server.RateRPS = f
	}
	if v, ok := get("RATE_BURST"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: RATE_BURST %q", ErrInvalid, v)
		}
		c.Server.RateBurst = n
	}
	if v, ok := get("WEBHOOK_MAX_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: WEBHOOK_MAX_ATTEMPTS %q", ErrInvalid, v)
		}
		c.Webhooks.MaxAttempts = n
	}
	if v, ok := get("SOLVER_SEED"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: SOLVER_SEED %q", ErrInvalid, v)
		}
		c.Solver.Evol.Seed = &n
	}
	return nil
}

func (c Config) Validate() error {
	switch c.Store.Driver {
	case "memory":
	case "postgres", "sqlite":
		if c.Store.DSN == "" {
			return fmt.Errorf("%w: store %s needs a dsn", ErrInvalid, c.Store.Driver)
		}
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalid, c.Store.Driver)
	}
	if c.Server.RateRPS < 0 || c.Server.RateBurst < 0 {
		return fmt.Errorf("%w: negative rate limit", ErrInvalid)
	}
	if c.Server.RateRPS > 0 && c.Server.RateBurst == 0 {
		return fmt.Errorf("%w: rateBurst must be positive when rateRps is set", ErrInvalid)
	}
	if c.Server.MaxConcurrentJobs < 1 {
		return fmt.Errorf("%w: maxConcurrentJobs must be at least 1", ErrInvalid)
	}
	if c.Server.CacheSize < 0 {
		return fmt.Errorf("%w: negative cacheSize", ErrInvalid)
	}
	switch c.Auth.Mode {
	case "", "none":
	case "hmac":
		if c.Auth.HMACSecret == "" {
			return fmt.Errorf("%w: auth mode hmac needs hmacSecret", ErrInvalid)
		}
	case "jwks":
		if c.Auth.JWKSURL == "" {
			return fmt.Errorf("%w: auth mode jwks needs jwksUrl", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown auth mode %q", ErrInvalid, c.Auth.Mode)
	}
	if c.Webhooks.MaxAttempts < 1 {
		return fmt.Errorf("%w: webhooks.maxAttempts must be at least 1", ErrInvalid)
	}
	return c.Solver.Validate()
}
