package opt

import (
	"elasticroute/internal/evol"
	"elasticroute/internal/rng"
	"elasticroute/internal/route"
	"elasticroute/internal/vrp"
)

// Individual is one member of the population. It is never modified after
// creation, which lets breeding goroutines share it.
type Individual struct {
	Solution *route.Solution
	Eval     route.Eval
	key      string
	// operators of the ruin-and-recreate step that produced it, -1 if none
	removal, insertion int
}

func newIndividual(s *route.Solution, cm route.CostModel, rem, ins int) *Individual {
	return &Individual{Solution: s, Eval: s.Evaluate(cm), key: s.Key(), removal: rem, insertion: ins}
}

// operators adapts the VRP to evol.Operators.
type operators struct {
	p      *vrp.Problem
	cfg    Config
	single bool
	ls     searcher
	w      weights
	m      Metrics
}

var _ evol.Operators[*Individual] = (*operators)(nil)
var _ evol.Learner[*Individual] = (*operators)(nil)
var _ evol.Preferrer[*Individual] = (*operators)(nil)

func newOperators(p *vrp.Problem, cfg Config) *operators {
	single := p.IsSingleVisit()
	return &operators{
		p:      p,
		cfg:    cfg,
		single: single,
		ls:     searcher{cm: cfg.Cost, paired: !single},
		w:      weights{removal: cfg.RemovalWeights, insertion: cfg.InsertionWeights},
	}
}

func (o *operators) Cost(g *Individual) float64 { return g.Eval.Cost }

func (o *operators) Distance(a, b *Individual) float64 {
	return route.BrokenPairs(a.Solution, b.Solution)
}

func (o *operators) Key(g *Individual) string { return g.key }

// Prefer ranks by feasibility before penalised cost.
func (o *operators) Prefer(a, b *Individual) bool { return better(a.Eval, b.Eval) }

// Crossover recombines by route exchange; for single-visit problems the
// giant-tour order crossover is used instead half of the time.
func (o *operators) Crossover(r *rng.RNG, a, b *Individual) []*Individual {
	var s *route.Solution
	if o.single && r.Bool(0.5) {
		s = orderCrossover(a.Solution, b.Solution, o.cfg.Cost, r)
	}
	if s == nil {
		s = routeExchange(a.Solution, b.Solution, o.cfg.Cost, r)
	}
	return []*Individual{newIndividual(s, o.cfg.Cost, -1, -1)}
}

func (o *operators) Mutate(r *rng.RNG, g *Individual) *Individual {
	s := g.Solution.Clone()
	rem, ins := ruinAndRecreate(s, o.cfg, &o.w, r)
	return newIndividual(s, o.cfg.Cost, rem, ins)
}

func (o *operators) Improve(_ *rng.RNG, g *Individual) *Individual {
	if !o.cfg.LocalSearch {
		return g
	}
	s := g.Solution.Clone()
	o.ls.improve(s)
	out := newIndividual(s, o.cfg.Cost, g.removal, g.insertion)
	if out.Eval.Cost > g.Eval.Cost {
		return g
	}
	return out
}

func (o *operators) Learn(gen int, outcomes []evol.Outcome[*Individual]) {
	o.w.learn(&o.m, gen, outcomes)
}

// metrics snapshots the counters with the current weights.
func (o *operators) metrics(best float64) Metrics {
	m := o.m
	m.BestCost = best
	m.FinalRemovalWeights = o.w.removal
	m.FinalInsertionWeights = o.w.insertion
	return m
}
