// Package evol is a population-based evolutionary engine, generic over the
// genome type.
//
// A run seeds the population, then repeats generations: parents are picked by
// tournament, offspring are bred in parallel, and afterwards each child is
// admitted or rejected in slot order. The engine is deterministic for a fixed
// seed: every offspring slot draws from its own derived stream and all
// population changes happen on one goroutine after the barrier. A seeded run
// ignores StallPeriod; only an explicit TimeLimit or cancellation can make it
// stop at a different generation (see Config.Reproducible).
package evol

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"elasticroute/internal/container"
	"elasticroute/internal/rng"
)

var ErrNoSeed = errors.New("evol: seeders produced no genome")

// Operators supply the problem-specific parts. Implementations must not
// modify their arguments; Crossover, Mutate and Improve return new genomes.
// Every method may be called from several goroutines at once.
type Operators[G any] interface {
	Cost(g G) float64
	// Distance is a dissimilarity in [0, 1].
	Distance(a, b G) float64
	Crossover(r *rng.RNG, a, b G) []G
	Mutate(r *rng.RNG, g G) G
	Improve(r *rng.RNG, g G) G
	// Key identifies equivalent genomes.
	Key(g G) string
}

// Learner is implemented by operators that adapt between generations. Learn
// runs on the engine goroutine after the offspring barrier.
type Learner[G any] interface {
	Learn(generation int, outcomes []Outcome[G])
}

// Preferrer is implemented by operators whose callers rank genomes by more
// than the penalised cost, e.g. feasibility first. The engine remembers the
// most preferred genome it has evaluated during the whole run, including
// members that were evicted later, and returns it as Result.Preferred.
type Preferrer[G any] interface {
	// Prefer reports whether a ranks strictly before b.
	Prefer(a, b G) bool
}

type Outcome[G any] struct {
	Child     G
	Cost      float64
	Accepted  bool
	Duplicate bool
	NewBest   bool
}

// Seeder produces initial genomes. Deterministic seeders run once with n
// set to Max; randomized ones are called until the population is full.
type Seeder[G any] struct {
	Name       string
	Randomized bool
	// Max caps the genomes per call; 0 means the population size.
	Max   int
	Build func(ctx context.Context, r *rng.RNG, n int) ([]G, error)
}

type StopReason string

const (
	StopGenerations StopReason = "generations"
	StopTimeLimit   StopReason = "time limit"
	StopStalled     StopReason = "stalled"
	StopCancelled   StopReason = "cancelled"
)

type Stats struct {
	Generations  int           `json:"generations"`
	Offspring    int           `json:"offspring"`
	Accepted     int           `json:"accepted"`
	Rejected     int           `json:"rejected"`
	Duplicates   int           `json:"duplicates"`
	Improvements int           `json:"improvements"`
	StopReason   StopReason    `json:"stopReason"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Progress is reported to the observer after every generation.
type Progress struct {
	Generation int
	BestCost   float64
	MeanCost   float64
	Population int
	Ancestors  int
	Accepted   int
	Elapsed    time.Duration
}

type Result[G any] struct {
	Best G
	Cost float64
	// Preferred is set when the operators implement Preferrer.
	Preferred G
	Seed      uint64
	// Population holds the final members, cheapest first.
	Population []G
	Stats      Stats
}

type options struct {
	log      *zap.Logger
	observer func(Progress)
}

type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func WithObserver(fn func(Progress)) Option {
	return func(o *options) { o.observer = fn }
}

type Engine[G any] struct {
	cfg     Config
	ops     Operators[G]
	seeders []Seeder[G]
	opts    options
}

func New[G any](cfg Config, ops Operators[G], seeders []Seeder[G], opts ...Option) (*Engine[G], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{log: zap.NewNop()}
	for _, fn := range opts {
		fn(&o)
	}
	return &Engine[G]{cfg: cfg, ops: ops, seeders: seeders, opts: o}, nil
}

// candidate is a bred child waiting for admission. dist holds its distances
// to the members as they were when the generation started.
type candidate[G any] struct {
	g    G
	cost float64
	key  string
	dist []float64
}

// run is the mutable state of one Run call, touched only by the engine
// goroutine.
type run[G any] struct {
	e       *Engine[G]
	pop     *population[G]
	anc     *container.Queue[string]
	ancKeys map[string]int
	changed map[int]bool
	best    float64
	stats   Stats

	pref      Preferrer[G]
	preferred G
	hasPref   bool
}

const seedStream = 1 << 62

func (e *Engine[G]) Run(ctx context.Context) (Result[G], error) {
	start := time.Now()
	var master *rng.RNG
	if e.cfg.Seed != nil {
		master = rng.New(*e.cfg.Seed)
	} else {
		master = rng.NewFromEntropy()
	}
	pop, err := newPopulation[G](e.cfg.PopulationSize, e.cfg.Neighbors, e.cfg.FitnessWeight)
	if err != nil {
		return Result[G]{}, err
	}
	st := &run[G]{
		e:       e,
		pop:     pop,
		anc:     container.NewQueue[string](e.cfg.Ancestors),
		ancKeys: make(map[string]int),
		best:    math.Inf(1),
	}
	st.pref, _ = e.ops.(Preferrer[G])
	log := e.opts.log.With(zap.Uint64("seed", master.Seed()))
	log.Info("evolution started",
		zap.Int("population", e.cfg.PopulationSize),
		zap.Int("offspring", e.cfg.Offspring),
		zap.Int("workers", e.cfg.workers()))

	if err := st.seed(ctx, master); err != nil {
		if pop.len() == 0 || ctx.Err() == nil {
			return Result[G]{}, err
		}
		st.stats.StopReason = StopCancelled
	}
	if pop.len() == 0 {
		return Result[G]{}, ErrNoSeed
	}
	log.Debug("population seeded", zap.Int("size", pop.len()), zap.Float64("best", st.best))
	// counters describe the generations only
	st.stats = Stats{StopReason: st.stats.StopReason}

	learner, _ := e.ops.(Learner[G])
	refCost, refGen, refTime := st.best, 0, time.Now()
	for st.stats.StopReason == "" {
		if reason := st.terminate(ctx, start, refGen, refTime); reason != "" {
			st.stats.StopReason = reason
			break
		}
		gen := st.stats.Generations + 1
		kids, err := st.breed(ctx, master, gen)
		if err != nil {
			if ctx.Err() != nil {
				st.stats.StopReason = StopCancelled
				break
			}
			return Result[G]{}, err
		}
		st.changed = make(map[int]bool)
		outcomes := make([]Outcome[G], 0, len(kids))
		accepted := 0
		for _, c := range kids {
			out := st.admit(c)
			if out.Accepted {
				accepted++
			}
			outcomes = append(outcomes, out)
		}
		st.stats.Generations = gen
		if learner != nil {
			learner.Learn(gen, outcomes)
		}
		if st.best < refCost-e.cfg.MinImprovement*math.Abs(refCost) {
			refCost, refGen, refTime = st.best, gen, time.Now()
		}

		p := st.progress(gen, accepted, time.Since(start))
		if ce := log.Check(zap.DebugLevel, "generation"); ce != nil {
			ce.Write(zap.Int("gen", gen), zap.Float64("best", p.BestCost),
				zap.Float64("mean", p.MeanCost), zap.Int("accepted", accepted))
		}
		if e.opts.observer != nil {
			e.opts.observer(p)
		}
	}

	st.stats.Elapsed = time.Since(start)
	res := st.result(master.Seed())
	log.Info("evolution finished",
		zap.String("reason", string(st.stats.StopReason)),
		zap.Int("generations", st.stats.Generations),
		zap.Float64("cost", res.Cost),
		zap.Duration("elapsed", st.stats.Elapsed))
	return res, nil
}

func (st *run[G]) terminate(ctx context.Context, start time.Time, refGen int, refTime time.Time) StopReason {
	cfg := st.e.cfg
	gens := st.stats.Generations
	switch {
	case ctx.Err() != nil:
		return StopCancelled
	case cfg.MaxGenerations > 0 && gens >= cfg.MaxGenerations:
		return StopGenerations
	case cfg.TimeLimit > 0 && time.Since(start) >= cfg.TimeLimit:
		return StopTimeLimit
	case cfg.StallGenerations > 0 && gens-refGen >= cfg.StallGenerations:
		return StopStalled
	case cfg.stallPeriod() > 0 && time.Since(refTime) >= cfg.stallPeriod():
		return StopStalled
	}
	return ""
}

// seed runs deterministic seeders once, then calls randomized seeders in turn
// until the population is full or a whole round adds nothing.
func (st *run[G]) seed(ctx context.Context, master *rng.RNG) error {
	size := st.e.cfg.PopulationSize
	var random []int
	for i, s := range st.e.seeders {
		if s.Randomized {
			random = append(random, i)
			continue
		}
		n := s.Max
		if n <= 0 {
			n = size
		}
		gs, err := s.Build(ctx, master.Derive(seedStream|uint64(i)<<16), n)
		if err != nil {
			return err
		}
		for _, g := range gs {
			st.admit(st.evaluate(g))
		}
	}
	for round := 0; len(random) > 0 && st.pop.len() < size; round++ {
		before := st.pop.len()
		for _, i := range random {
			s := st.e.seeders[i]
			need := size - st.pop.len()
			if need <= 0 {
				break
			}
			if s.Max > 0 {
				need = min(need, s.Max)
			}
			r := master.Derive(seedStream | uint64(i)<<16 | uint64(round+1))
			gs, err := s.Build(ctx, r, need)
			if err != nil {
				return err
			}
			for _, g := range gs {
				st.admit(st.evaluate(g))
			}
		}
		if st.pop.len() == before {
			break
		}
	}
	return nil
}

func (st *run[G]) evaluate(g G) candidate[G] {
	ops := st.e.ops
	c := candidate[G]{g: g, cost: ops.Cost(g), key: ops.Key(g)}
	c.dist = make([]float64, st.pop.len())
	for j, m := range st.pop.members {
		c.dist[j] = ops.Distance(g, m.g)
	}
	return c
}

// breed produces the children of one generation. Slot k of generation gen
// draws from master.Derive(gen<<16 | k), so the outcome does not depend on
// the number of workers.
func (st *run[G]) breed(ctx context.Context, master *rng.RNG, gen int) ([]candidate[G], error) {
	cfg, ops, pop := st.e.cfg, st.e.ops, st.pop
	fit, _ := pop.fitness(nil)
	slots := make([][]candidate[G], cfg.Offspring)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(cfg.workers())
	for k := 0; k < cfg.Offspring; k++ {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r := master.Derive(uint64(gen)<<16 | uint64(k))
			a := tournament(fit, cfg.ParentDice, r.Intn, -1)
			var kids []G
			if pop.len() > 1 {
				b := tournament(fit, cfg.MateDice, r.Intn, a)
				kids = ops.Crossover(r, pop.members[a].g, pop.members[b].g)
			}
			if len(kids) == 0 {
				kids = []G{ops.Mutate(r, pop.members[a].g)}
			} else {
				for i := range kids {
					if r.Bool(cfg.MutationRate) {
						kids[i] = ops.Mutate(r, kids[i])
					}
				}
			}
			out := make([]candidate[G], len(kids))
			for i, g := range kids {
				g = ops.Improve(r, g)
				c := candidate[G]{g: g, cost: ops.Cost(g), key: ops.Key(g)}
				c.dist = make([]float64, pop.len())
				for j, m := range pop.members {
					c.dist[j] = ops.Distance(g, m.g)
				}
				out[i] = c
			}
			slots[k] = out
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	var all []candidate[G]
	for _, s := range slots {
		all = append(all, s...)
	}
	return all, nil
}

// admit applies the replacement rules to one child: duplicates of a living
// member or an ancestor are dropped; a new best always enters; otherwise a
// full population admits the child only when it is fitter than the least
// fit member other than the best, which then moves to the ancestors.
func (st *run[G]) admit(c candidate[G]) Outcome[G] {
	pop, ops := st.pop, st.e.ops
	out := Outcome[G]{Child: c.g, Cost: c.cost}
	st.stats.Offspring++
	if pop.keys[c.key] > 0 || st.ancKeys[c.key] > 0 {
		out.Duplicate = true
		st.stats.Duplicates++
		return out
	}
	st.consider(c.g)

	dist := make([]float64, pop.len())
	for j, m := range pop.members {
		if j < len(c.dist) && !st.changed[j] {
			dist[j] = c.dist[j]
		} else {
			dist[j] = ops.Distance(c.g, m.g)
		}
	}
	m := pop.stage(dist)
	m.g, m.cost, m.key = c.g, c.cost, c.key
	newBest := c.cost < st.best-1e-9

	slot := pop.len()
	if slot >= st.e.cfg.PopulationSize {
		fit, cf := pop.fitness(m)
		w := pop.worst(fit)
		if !newBest && cf <= fit[w] {
			st.stats.Rejected++
			return out
		}
		st.retire(pop.members[w].key)
		slot = w
	}
	pop.place(slot, m)
	if st.changed != nil {
		st.changed[slot] = true
	}
	out.Accepted = true
	st.stats.Accepted++
	if newBest {
		if !math.IsInf(st.best, 1) {
			st.stats.Improvements++
		}
		st.best = c.cost
		out.NewBest = true
	}
	return out
}

func (st *run[G]) retire(key string) {
	if st.e.cfg.Ancestors == 0 {
		return
	}
	st.ancKeys[key]++
	if old, evicted := st.anc.Push(key); evicted {
		if st.ancKeys[old] <= 1 {
			delete(st.ancKeys, old)
		} else {
			st.ancKeys[old]--
		}
	}
}

func (st *run[G]) progress(gen, accepted int, elapsed time.Duration) Progress {
	var sum float64
	for _, m := range st.pop.members {
		sum += m.cost
	}
	return Progress{
		Generation: gen,
		BestCost:   st.best,
		MeanCost:   sum / float64(st.pop.len()),
		Population: st.pop.len(),
		Ancestors:  st.anc.Len(),
		Accepted:   accepted,
		Elapsed:    elapsed,
	}
}

// consider keeps c.g when the operators prefer it over everything seen so
// far. Ties keep the earlier genome.
func (st *run[G]) consider(g G) {
	if st.pref == nil {
		return
	}
	if !st.hasPref || st.pref.Prefer(g, st.preferred) {
		st.preferred, st.hasPref = g, true
	}
}

func (st *run[G]) result(seed uint64) Result[G] {
	ms := append([]*member[G](nil), st.pop.members...)
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].cost < ms[j].cost })
	res := Result[G]{Best: ms[0].g, Cost: ms[0].cost, Preferred: st.preferred, Seed: seed, Stats: st.stats}
	res.Population = make([]G, len(ms))
	for i, m := range ms {
		res.Population[i] = m.g
	}
	return res
}
