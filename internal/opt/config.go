package opt

import (
	"errors"
	"fmt"

	"elasticroute/internal/construct"
	"elasticroute/internal/evol"
	"elasticroute/internal/route"
	"elasticroute/internal/vrp"
)

var errBadSolverConfig = errors.New("bad solver config")

// Config tunes one solver run.
type Config struct {
	Evol evol.Config     `yaml:"evol" json:"evol"`
	Cost route.CostModel `yaml:"cost" json:"cost"`

	// initial roulette weights: [random, shaw] and [greedy, regret2]
	RemovalWeights   [2]float64 `yaml:"removalWeights" json:"removalWeights"`
	InsertionWeights [2]float64 `yaml:"insertionWeights" json:"insertionWeights"`

	// RuinMin and RuinMax bound the requests removed per mutation. A zero
	// RuinMax means 15% of the requests, at least RuinMin.
	RuinMin int `yaml:"ruinMin" json:"ruinMin"`
	RuinMax int `yaml:"ruinMax" json:"ruinMax"`

	LocalSearch bool `yaml:"localSearch" json:"localSearch"`
	// Heuristics names the construction heuristics used for seeding; empty
	// means all of them.
	Heuristics []string `yaml:"heuristics,omitempty" json:"heuristics,omitempty"`
	// SeedsPerHeuristic caps the solutions a deterministic heuristic adds.
	SeedsPerHeuristic int `yaml:"seedsPerHeuristic" json:"seedsPerHeuristic"`
}

func DefaultConfig() Config {
	return Config{
		Evol:              evol.DefaultConfig(),
		Cost:              route.DefaultCostModel(),
		RemovalWeights:    [2]float64{1, 1},
		InsertionWeights:  [2]float64{1, 1},
		RuinMin:           1,
		LocalSearch:       true,
		SeedsPerHeuristic: 10,
	}
}

// Validate reports the first problem as a *vrp.ConfigurationError.
func (c Config) Validate() error {
	bad := func(msg string, args ...any) error {
		return &vrp.ConfigurationError{Op: "opt.Config", Msg: fmt.Sprintf(msg, args...), Err: errBadSolverConfig}
	}
	if err := c.Evol.Validate(); err != nil {
		return &vrp.ConfigurationError{Op: "opt.Config", Err: err}
	}
	switch c.Cost.Objective {
	case route.MinDistance, route.MinDuration:
	default:
		return bad("unknown objective %q", c.Cost.Objective)
	}
	if c.Cost.CapacityPenalty < 0 || c.Cost.LatenessPenalty < 0 || c.Cost.UnassignedPenalty <= 0 {
		return bad("penalties must be non-negative and the unassigned penalty positive")
	}
	for _, w := range [][2]float64{c.RemovalWeights, c.InsertionWeights} {
		if w[0] < 0 || w[1] < 0 || w[0]+w[1] <= 0 {
			return bad("operator weights %v must be non-negative with a positive sum", w)
		}
	}
	if c.RuinMin < 1 {
		return bad("ruinMin %d < 1", c.RuinMin)
	}
	if c.RuinMax != 0 && c.RuinMax < c.RuinMin {
		return bad("ruinMax %d < ruinMin %d", c.RuinMax, c.RuinMin)
	}
	if c.SeedsPerHeuristic < 1 {
		return bad("seedsPerHeuristic %d < 1", c.SeedsPerHeuristic)
	}
	if _, err := construct.ByName(c.Heuristics...); err != nil {
		return &vrp.ConfigurationError{Op: "opt.Config", Err: err}
	}
	return nil
}

func (c Config) heuristics() []construct.Heuristic {
	if len(c.Heuristics) == 0 {
		return construct.Defaults()
	}
	hs, _ := construct.ByName(c.Heuristics...)
	return hs
}

// ruinRange resolves the removal bounds for n requests.
func (c Config) ruinRange(n int) (lo, hi int) {
	hi = c.RuinMax
	if hi == 0 {
		hi = max(c.RuinMin, n*15/100)
	}
	lo = min(c.RuinMin, n)
	hi = min(hi, n)
	return lo, hi
}
