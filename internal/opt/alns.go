// Package opt solves vehicle routing problems with the evolutionary engine:
// route-exchange and order crossover, ruin-and-recreate mutation with
// adaptive operator weights, and local search.
package opt

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"elasticroute/internal/evol"
	"elasticroute/internal/rng"
	"elasticroute/internal/route"
	"elasticroute/internal/vrp"
)

// Progress is reported after every generation.
type Progress = evol.Progress

type Result struct {
	RunID      string
	Solution   *route.Solution
	Eval       route.Eval
	Feasible   bool
	Violation  float64
	Unassigned []vrp.RequestID
	Seed       uint64
	Stats      evol.Stats
	Metrics    Metrics
}

type solveOptions struct {
	log      *zap.Logger
	observer func(Progress)
	runID    string
}

type Option func(*solveOptions)

func WithLogger(l *zap.Logger) Option {
	return func(o *solveOptions) {
		if l != nil {
			o.log = l
		}
	}
}

func WithObserver(fn func(Progress)) Option {
	return func(o *solveOptions) { o.observer = fn }
}

// WithRunID names the run in logs and in the live metrics store, where
// GetMetrics finds it while Solve is running. By default a random id is
// used.
func WithRunID(id string) Option {
	return func(o *solveOptions) { o.runID = id }
}

// Solve validates and freezes p, seeds a population with the configured
// construction heuristics and evolves it. It returns the cheapest feasible
// solution evaluated during the run, or the least infeasible one when none
// was feasible, even if the population later lost it to a cheaper penalised
// cost. Infeasibility is reported in the result, never as an error.
func Solve(ctx context.Context, p *vrp.Problem, cfg Config, opts ...Option) (Result, error) {
	o := solveOptions{log: zap.NewNop()}
	for _, fn := range opts {
		fn(&o)
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	p.Freeze()
	log := o.log.With(zap.String("run", o.runID))

	if p.NumRequests() == 0 {
		s := route.NewSolution(p)
		return finish(o.runID, newIndividual(s, cfg.Cost, -1, -1), evol.Stats{StopReason: evol.StopGenerations}, 0, Metrics{}), nil
	}

	ops := newOperators(p, cfg)
	defer ForgetMetrics(o.runID)
	// runs on the engine goroutine after Learn, so ops.m is stable here
	observe := func(pr Progress) {
		RecordMetrics(o.runID, ops.metrics(pr.BestCost))
		if o.observer != nil {
			o.observer(pr)
		}
	}
	engine, err := evol.New[*Individual](cfg.Evol, ops, seeders(p, cfg, ops),
		evol.WithLogger(log), evol.WithObserver(observe))
	if err != nil {
		return Result{}, &vrp.ConfigurationError{Op: "Solve", Err: err}
	}
	res, err := engine.Run(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("opt: Solve: %w", err)
	}

	best := res.Preferred
	m := ops.metrics(res.Cost)
	m.FinalCost = best.Eval.Cost

	out := finish(o.runID, best, res.Stats, res.Seed, m)
	log.Info("solve finished",
		zap.Float64("cost", out.Eval.Cost),
		zap.Bool("feasible", out.Feasible),
		zap.Int("unassigned", len(out.Unassigned)),
		zap.Int("routes", out.Solution.UsedVehicles()))
	return out, nil
}

func finish(runID string, best *Individual, stats evol.Stats, seed uint64, m Metrics) Result {
	return Result{
		RunID:      runID,
		Solution:   best.Solution,
		Eval:       best.Eval,
		Feasible:   best.Eval.Feasible(),
		Violation:  best.Eval.Violation(),
		Unassigned: best.Solution.Unassigned(),
		Seed:       seed,
		Stats:      stats,
		Metrics:    m,
	}
}

// better prefers feasible evaluations by cost, then fewer unassigned
// requests, then smaller violation, then cost.
func better(a, b route.Eval) bool {
	fa, fb := a.Feasible(), b.Feasible()
	switch {
	case fa != fb:
		return fa
	case fa:
		return a.Cost < b.Cost
	case a.Unassigned != b.Unassigned:
		return a.Unassigned < b.Unassigned
	case a.Violation() != b.Violation():
		return a.Violation() < b.Violation()
	}
	return a.Cost < b.Cost
}

// seeders wraps the construction heuristics. Deterministic ones add at most
// SeedsPerHeuristic solutions each.
func seeders(p *vrp.Problem, cfg Config, ops *operators) []evol.Seeder[*Individual] {
	var out []evol.Seeder[*Individual]
	for _, h := range cfg.heuristics() {
		s := evol.Seeder[*Individual]{
			Name:       h.Name(),
			Randomized: h.Randomized(),
			Build: func(ctx context.Context, r *rng.RNG, n int) ([]*Individual, error) {
				sols, err := h.Build(ctx, p, cfg.Cost, r, n)
				if err != nil {
					return nil, err
				}
				gs := make([]*Individual, len(sols))
				for i, sol := range sols {
					if cfg.LocalSearch {
						ops.ls.improve(sol)
					}
					gs[i] = newIndividual(sol, cfg.Cost, -1, -1)
				}
				return gs, nil
			},
		}
		if !h.Randomized() {
			s.Max = cfg.SeedsPerHeuristic
		}
		out = append(out, s)
	}
	return out
}
