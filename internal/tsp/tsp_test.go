package tsp

import (
	"context"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"elasticroute/internal/geo"
	"elasticroute/internal/rng"
)

var sample = []geo.Coord{{X: 0, Y: 0}, {X: 2, Y: 2}, {X: 1, Y: 1.5}, {X: 3, Y: 1}, {X: 4, Y: 0.5}, {X: 5, Y: 0}}

func plane(t *testing.T, coords []geo.Coord) *Problem {
	t.Helper()
	p, err := New(len(coords))
	require.NoError(t, err)
	p.SetCoordSystem(geo.Cartesian2D)
	for i, c := range coords {
		require.NoError(t, p.SetNodeCoord(i, c))
	}
	require.NoError(t, p.GenerateBeelineCosts(geo.Beeline))
	return p
}

func quick(seed uint64) Config {
	cfg := DefaultConfig()
	cfg.Evol.PopulationSize = 20
	cfg.Evol.Offspring = 6
	cfg.Evol.MaxGenerations = 60
	cfg.Evol.StallGenerations = 0
	cfg.Evol.StallPeriod = 0
	cfg.Evol.Seed = &seed
	return cfg
}

// bruteForce returns the cheapest cost over all orders of the free nodes.
func bruteForce(p *Problem) float64 {
	l, _ := p.regularize()
	nodes := append([]int(nil), l.template...)
	best := math.Inf(1)
	var rec func(k int)
	rec = func(k int) {
		if k == l.hi {
			best = math.Min(best, p.TourCost(nodes))
			return
		}
		for i := k; i < l.hi; i++ {
			nodes[k], nodes[i] = nodes[i], nodes[k]
			rec(k + 1)
			nodes[k], nodes[i] = nodes[i], nodes[k]
		}
	}
	rec(l.lo)
	return best
}

func TestRegularize(t *testing.T) {
	p, err := New(4)
	require.NoError(t, err)

	p.SetRoundTrip(true)
	l, err := p.regularize()
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2, 3, 0}, l.template)
	require.Equal(t, 1, l.lo)
	require.Equal(t, 4, l.hi)

	require.NoError(t, p.SetEnd(2))
	l, err = p.regularize()
	require.NoError(t, err)
	require.Equal(t, []int{2, 0, 1, 3, 2}, l.template)

	require.NoError(t, p.SetStart(1))
	_, err = p.regularize()
	require.ErrorIs(t, err, ErrRoundTrip)

	p.SetRoundTrip(false)
	l, err = p.regularize()
	require.NoError(t, err)
	require.False(t, l.round)
	require.Equal(t, []int{1, 0, 3, 2}, l.template)

	require.NoError(t, p.SetEnd(1))
	l, err = p.regularize()
	require.NoError(t, err)
	require.True(t, l.round)
	require.Equal(t, []int{1, 0, 2, 3, 1}, l.template)
}

func TestValidate(t *testing.T) {
	_, err := New(0)
	require.ErrorIs(t, err, ErrEmpty)

	p, err := New(3)
	require.NoError(t, err)
	require.ErrorIs(t, p.Validate(), ErrUndefinedCost)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			require.NoError(t, p.SetCost(i, j, float64(i+j)))
		}
	}
	require.NoError(t, p.Validate())
	require.ErrorIs(t, p.SetCost(0, 3, 1), ErrUnknownNode)
	require.ErrorIs(t, p.SetCost(0, 1, -1), ErrBadCost)

	require.NoError(t, p.SetNodeCoord(0, geo.Coord{}))
	require.ErrorIs(t, p.GenerateBeelineCosts(geo.Beeline), geo.ErrNoSystem)
	p.SetCoordSystem(geo.Cartesian2D)
	require.ErrorIs(t, p.GenerateBeelineCosts(geo.Beeline), ErrNoCoordinates)
}

func TestSolveRoundTripIsOptimalOnSmallInstance(t *testing.T) {
	p := plane(t, sample)
	require.NoError(t, p.SetStart(0))
	require.NoError(t, p.SetEnd(0))

	tour, err := p.Solve(context.Background(), quick(7))
	require.NoError(t, err)
	require.True(t, tour.RoundTrip)
	require.Len(t, tour.Nodes, 7)
	require.Equal(t, 0, tour.Nodes[0])
	require.Equal(t, 0, tour.Nodes[6])
	require.InDelta(t, bruteForce(p), tour.Cost, 1e-9)
	require.InDelta(t, p.TourCost(tour.Nodes), tour.Cost, 1e-9)

	visited := append([]int(nil), tour.Nodes[:6]...)
	sort.Ints(visited)
	require.Equal(t, []int{0, 1, 2, 3, 4, 5}, visited)
}

func TestSolveOneWayKeepsEnds(t *testing.T) {
	p := plane(t, sample)
	require.NoError(t, p.SetStart(0))
	require.NoError(t, p.SetEnd(5))

	tour, err := p.Solve(context.Background(), quick(3))
	require.NoError(t, err)
	require.False(t, tour.RoundTrip)
	require.Len(t, tour.Nodes, 6)
	require.Equal(t, 0, tour.Nodes[0])
	require.Equal(t, 5, tour.Nodes[5])
	require.InDelta(t, bruteForce(p), tour.Cost, 1e-9)
}

func TestSolveDeterministic(t *testing.T) {
	g := rng.New(99)
	coords := make([]geo.Coord, 25)
	for i := range coords {
		coords[i] = geo.Coord{X: g.FloatRange(0, 100), Y: g.FloatRange(0, 100)}
	}
	run := func(workers int) Tour {
		p := plane(t, coords)
		p.SetRoundTrip(true)
		cfg := quick(11)
		cfg.Evol.Workers = workers
		tour, err := p.Solve(context.Background(), cfg)
		require.NoError(t, err)
		return tour
	}
	a, b := run(1), run(4)
	require.Equal(t, a.Nodes, b.Nodes)
	require.Equal(t, a.Cost, b.Cost)
	require.Equal(t, uint64(11), a.Seed)
}

func TestSolveTrivial(t *testing.T) {
	p := plane(t, sample[:2])
	p.SetRoundTrip(true)
	tour, err := p.Solve(context.Background(), quick(1))
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 0}, tour.Nodes)
	require.InDelta(t, 2*math.Sqrt(8), tour.Cost, 1e-9)
}

func TestReverseDeltaMatchesRecomputedCost(t *testing.T) {
	const n = 8
	p, err := New(n)
	require.NoError(t, err)
	g := rng.New(5)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				require.NoError(t, p.SetCost(i, j, g.FloatRange(1, 10)))
			}
		}
	}
	require.False(t, p.symmetric())
	for _, start := range []int{none, 3} {
		p.start, p.end = start, none
		l, err := p.regularize()
		require.NoError(t, err)
		o := &operators{p: p, l: l, symmetric: false}
		nodes := append([]int(nil), l.template...)
		base := p.TourCost(nodes)
		for i := l.lo; i < l.hi-1; i++ {
			for k := i + 1; k < l.hi; k++ {
				d := o.reverseDelta(nodes, i, k)
				reverse(nodes, i, k)
				require.InDelta(t, p.TourCost(nodes)-base, d, 1e-9)
				reverse(nodes, i, k)
			}
		}
	}
}

func TestCrossoverYieldsPermutations(t *testing.T) {
	p := plane(t, sample)
	p.SetRoundTrip(true)
	l, err := p.regularize()
	require.NoError(t, err)
	o := &operators{p: p, l: l, symmetric: true}
	g := rng.New(2)
	gs, err := o.random(context.Background(), g, 2)
	require.NoError(t, err)
	for k := 0; k < 50; k++ {
		for _, c := range o.Crossover(g, gs[0], gs[1]) {
			require.Equal(t, 0, c.nodes[0])
			require.Equal(t, 0, c.nodes[len(c.nodes)-1])
			free := append([]int(nil), c.nodes[l.lo:l.hi]...)
			sort.Ints(free)
			require.Equal(t, []int{1, 2, 3, 4, 5}, free)
		}
		m := o.Mutate(g, gs[0])
		require.Len(t, m.nodes, 7)
	}
}

func TestLevenshtein(t *testing.T) {
	require.Equal(t, 0, levenshtein([]int{1, 2, 3}, []int{1, 2, 3}))
	require.Equal(t, 2, levenshtein([]int{1, 2, 3}, []int{2, 1, 3}))
	require.Equal(t, 3, levenshtein(nil, []int{4, 5, 6}))
	require.Equal(t, 1, levenshtein([]int{1, 2, 3}, []int{1, 3}))
}
