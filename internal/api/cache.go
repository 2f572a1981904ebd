package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	lru "github.com/hashicorp/golang-lru/v2"

	"elasticroute/internal/model"
)

// solveCache remembers solutions of seeded requests, which are
// reproducible. A nil cache stores nothing.
type solveCache struct {
	c *lru.Cache[string, model.Solution]
}

func newSolveCache(size int) (*solveCache, error) {
	if size <= 0 {
		return nil, nil
	}
	c, err := lru.New[string, model.Solution](size)
	if err != nil {
		return nil, err
	}
	return &solveCache{c: c}, nil
}

// fingerprint hashes the canonical JSON of a request whose effective
// config is reproducible; ok is false for unseeded requests and for
// requests with a time limit.
func fingerprint(req model.SolveRequest) (key string, ok bool) {
	if req.Config == nil || !req.Config.Evol.Reproducible() {
		return "", false
	}
	b, err := json.Marshal(req)
	if err != nil {
		return "", false
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), true
}

func (c *solveCache) get(key string) (model.Solution, bool) {
	if c == nil {
		return model.Solution{}, false
	}
	return c.c.Get(key)
}

func (c *solveCache) add(key string, sol model.Solution) {
	if c != nil {
		c.c.Add(key, sol)
	}
}

func (c *solveCache) len() int {
	if c == nil {
		return 0
	}
	return c.c.Len()
}
