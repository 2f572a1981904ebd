package tsp

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"elasticroute/internal/evol"
	"elasticroute/internal/geo"
	"elasticroute/internal/rng"
)

const improveEps = 1e-9

type Config struct {
	Evol        evol.Config `yaml:"evol" json:"evol"`
	LocalSearch bool        `yaml:"localSearch" json:"localSearch"`
}

func DefaultConfig() Config {
	c := Config{Evol: evol.DefaultConfig(), LocalSearch: true}
	c.Evol.PopulationSize = 60
	c.Evol.MaxGenerations = 2000
	c.Evol.StallGenerations = 300
	return c
}

// Tour is a solved trip. Nodes starts with the start node and ends with the
// end node when they are set; a round trip lists its depot at both ends.
type Tour struct {
	Nodes     []int      `json:"nodes"`
	Cost      float64    `json:"cost"`
	RoundTrip bool       `json:"roundTrip"`
	Seed      uint64     `json:"seed"`
	Stats     evol.Stats `json:"stats"`
}

type Option = evol.Option

var (
	WithLogger   = evol.WithLogger
	WithObserver = evol.WithObserver
)

// Solve validates the model and evolves a tour. Models with fewer than two
// free nodes have a single tour and return it without searching.
func (p *Problem) Solve(ctx context.Context, cfg Config, opts ...Option) (Tour, error) {
	if err := p.Validate(); err != nil {
		return Tour{}, fmt.Errorf("tsp: Solve: %w", err)
	}
	l, _ := p.regularize()
	if l.hi-l.lo < 2 {
		return Tour{Nodes: l.template, Cost: p.TourCost(l.template), RoundTrip: l.round, Stats: evol.Stats{StopReason: evol.StopGenerations}}, nil
	}
	ops := &operators{p: p, l: l, symmetric: p.symmetric(), ls: cfg.LocalSearch}
	seeders := []evol.Seeder[*genome]{
		{Name: "sweep", Max: 2, Build: ops.sweep},
		{Name: "random", Randomized: true, Build: ops.random},
	}
	engine, err := evol.New[*genome](cfg.Evol, ops, seeders, opts...)
	if err != nil {
		return Tour{}, fmt.Errorf("tsp: Solve: %w", err)
	}
	res, err := engine.Run(ctx)
	if err != nil {
		return Tour{}, fmt.Errorf("tsp: Solve: %w", err)
	}
	return Tour{
		Nodes:     res.Best.nodes,
		Cost:      res.Cost,
		RoundTrip: l.round,
		Seed:      res.Seed,
		Stats:     res.Stats,
	}, nil
}

type genome struct {
	nodes []int
	cost  float64
	key   string
}

type operators struct {
	p         *Problem
	l         layout
	symmetric bool
	ls        bool
}

var _ evol.Operators[*genome] = (*operators)(nil)

func (o *operators) newGenome(nodes []int) *genome {
	free := nodes[o.l.lo:o.l.hi]
	b := make([]byte, 0, len(free)*4)
	for i, n := range free {
		if i > 0 {
			b = append(b, ',')
		}
		b = strconv.AppendInt(b, int64(n), 10)
	}
	return &genome{nodes: nodes, cost: o.p.TourCost(nodes), key: string(b)}
}

func (o *operators) Cost(g *genome) float64 { return g.cost }
func (o *operators) Key(g *genome) string   { return g.key }

// Distance is the edit distance between the free parts, normalised by their
// length.
func (o *operators) Distance(a, b *genome) float64 {
	n := o.l.hi - o.l.lo
	return float64(levenshtein(a.nodes[o.l.lo:o.l.hi], b.nodes[o.l.lo:o.l.hi])) / float64(n)
}

// Crossover is OX on the free parts; it returns both children.
func (o *operators) Crossover(r *rng.RNG, a, b *genome) []*genome {
	pa, pb := a.nodes[o.l.lo:o.l.hi], b.nodes[o.l.lo:o.l.hi]
	n := len(pa)
	i, j := r.Intn(n), r.Intn(n)
	if i > j {
		i, j = j, i
	}
	c1, c2 := o.clone(a), o.clone(b)
	ox(c1[o.l.lo:o.l.hi], pa, pb, i, j)
	ox(c2[o.l.lo:o.l.hi], pb, pa, i, j)
	return []*genome{o.newGenome(c1), o.newGenome(c2)}
}

// ox keeps keep[i..j] in dst and fills the other slots circularly from
// j+1 with the nodes of fill in their order after j.
func ox(dst, keep, fill []int, i, j int) {
	n := len(keep)
	fixed := make(map[int]bool, j-i+1)
	for k := i; k <= j; k++ {
		dst[k] = keep[k]
		fixed[keep[k]] = true
	}
	pos := (j + 1) % n
	for k := 0; k < n; k++ {
		v := fill[(j+1+k)%n]
		if fixed[v] {
			continue
		}
		dst[pos] = v
		pos = (pos + 1) % n
	}
}

// Mutate reverses a random segment of the free part, or swaps two nodes.
func (o *operators) Mutate(r *rng.RNG, g *genome) *genome {
	nodes := o.clone(g)
	i, j := r.IntRange(o.l.lo, o.l.hi), r.IntRange(o.l.lo, o.l.hi)
	if i > j {
		i, j = j, i
	}
	if r.Bool(0.5) {
		reverse(nodes, i, j)
	} else {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}
	return o.newGenome(nodes)
}

// Improve runs first-improvement 2-opt on the free part.
func (o *operators) Improve(_ *rng.RNG, g *genome) *genome {
	if !o.ls {
		return g
	}
	nodes := o.clone(g)
	if !o.twoOpt(nodes) {
		return g
	}
	return o.newGenome(nodes)
}

func (o *operators) clone(g *genome) []int { return append([]int(nil), g.nodes...) }

func (o *operators) twoOpt(nodes []int) bool {
	changed := false
	for improved := true; improved; {
		improved = false
		for i := o.l.lo; i < o.l.hi-1; i++ {
			for k := i + 1; k < o.l.hi; k++ {
				if o.reverseDelta(nodes, i, k) < -improveEps {
					reverse(nodes, i, k)
					improved, changed = true, true
				}
			}
		}
	}
	return changed
}

// reverseDelta is the cost change of reversing nodes[i..k]. Symmetric costs
// only look at the two boundary arcs; asymmetric ones refold the segment.
func (o *operators) reverseDelta(nodes []int, i, k int) float64 {
	c := o.p.costs.Get
	var before, after float64
	if i > 0 {
		before += c(nodes[i-1], nodes[i])
		after += c(nodes[i-1], nodes[k])
	}
	if k+1 < len(nodes) {
		before += c(nodes[k], nodes[k+1])
		after += c(nodes[i], nodes[k+1])
	}
	if !o.symmetric {
		for m := i; m < k; m++ {
			before += c(nodes[m], nodes[m+1])
			after += c(nodes[m+1], nodes[m])
		}
	}
	return after - before
}

func reverse(xs []int, i, j int) {
	for ; i < j; i, j = i+1, j-1 {
		xs[i], xs[j] = xs[j], xs[i]
	}
}

// sweep orders the free nodes by polar angle around the start node, or
// around the centroid when there is none, in both directions. It adds
// nothing without coordinates.
func (o *operators) sweep(_ context.Context, _ *rng.RNG, n int) ([]*genome, error) {
	p := o.p
	if !p.hasCoords() {
		return nil, nil
	}
	var ref geo.Coord
	if o.l.start != none {
		ref = p.coords[o.l.start]
	} else {
		for _, c := range p.coords {
			ref.X += c.X
			ref.Y += c.Y
		}
		ref.X /= float64(p.n)
		ref.Y /= float64(p.n)
	}
	nodes := append([]int(nil), o.l.template...)
	free := nodes[o.l.lo:o.l.hi]
	angle := make(map[int]float64, len(free))
	for _, id := range free {
		angle[id] = geo.PolarAngle(p.coords[id], ref, p.sys)
	}
	sort.SliceStable(free, func(a, b int) bool {
		if angle[free[a]] != angle[free[b]] {
			return angle[free[a]] < angle[free[b]]
		}
		return free[a] < free[b]
	})
	out := []*genome{o.newGenome(nodes)}
	if n > 1 {
		back := append([]int(nil), nodes...)
		reverse(back, o.l.lo, o.l.hi-1)
		out = append(out, o.newGenome(back))
	}
	for i, g := range out {
		if o.ls {
			out[i] = o.Improve(nil, g)
		}
	}
	return out, nil
}

// random shuffles the free part of the template n times.
func (o *operators) random(ctx context.Context, r *rng.RNG, n int) ([]*genome, error) {
	out := make([]*genome, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		nodes := append([]int(nil), o.l.template...)
		r.ShuffleRange(nodes, o.l.lo, o.l.hi)
		out = append(out, o.newGenome(nodes))
	}
	return out, nil
}

// levenshtein is the edit distance between a and b with unit costs.
//
// Complexity: O(len(a)·len(b)) time, O(len(b)) space.
func levenshtein(a, b []int) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			sub := prev[j-1]
			if a[i-1] != b[j-1] {
				sub++
			}
			cur[j] = min(sub, prev[j]+1, cur[j-1]+1)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
