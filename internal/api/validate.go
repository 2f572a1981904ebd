package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"elasticroute/internal/opt"
)

const maxBody = 32 << 20

// decodeJSON reads a single JSON document and rejects unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON body")
	}
	return nil
}

func validateCallback(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("callbackUrl scheme %q must be http or https", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("callbackUrl has no host")
	}
	return nil
}

// defaultConfig returns a copy of the server's solver config that a request
// body can be decoded over.
func (s *Server) defaultConfig() *opt.Config {
	c := s.Cfg.Solver
	if c.Evol.Seed != nil {
		seed := *c.Evol.Seed
		c.Evol.Seed = &seed
	}
	c.Heuristics = append([]string(nil), c.Heuristics...)
	return &c
}

func (s *Server) effectiveConfig(c *opt.Config) opt.Config {
	if c == nil {
		return *s.defaultConfig()
	}
	return *c
}
