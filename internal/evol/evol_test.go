package evol

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"elasticroute/internal/rng"
)

// bits is a OneMax genome: the cost is the number of zero bits.
type bits []bool

type oneMax struct {
	n       int
	learned atomic.Int64
}

func (o *oneMax) Cost(g bits) float64 {
	c := 0
	for _, b := range g {
		if !b {
			c++
		}
	}
	return float64(c)
}

func (o *oneMax) Distance(a, b bits) float64 {
	d := 0
	for i := range a {
		if a[i] != b[i] {
			d++
		}
	}
	return float64(d) / float64(len(a))
}

func (o *oneMax) Crossover(r *rng.RNG, a, b bits) []bits {
	c := make(bits, len(a))
	for i := range c {
		if r.Bool(0.5) {
			c[i] = a[i]
		} else {
			c[i] = b[i]
		}
	}
	return []bits{c}
}

func (o *oneMax) Mutate(r *rng.RNG, g bits) bits {
	c := append(bits(nil), g...)
	i := r.Intn(len(c))
	c[i] = !c[i]
	return c
}

// Improve sets one random zero bit.
func (o *oneMax) Improve(r *rng.RNG, g bits) bits {
	var zeros []int
	for i, b := range g {
		if !b {
			zeros = append(zeros, i)
		}
	}
	if len(zeros) == 0 {
		return g
	}
	c := append(bits(nil), g...)
	c[zeros[r.Intn(len(zeros))]] = true
	return c
}

func (o *oneMax) Key(g bits) string {
	var sb strings.Builder
	for _, b := range g {
		if b {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

func (o *oneMax) Learn(int, []Outcome[bits]) { o.learned.Add(1) }

func (o *oneMax) seeders() []Seeder[bits] {
	return []Seeder[bits]{
		{Name: "zeros", Max: 1, Build: func(context.Context, *rng.RNG, int) ([]bits, error) {
			return []bits{make(bits, o.n)}, nil
		}},
		{Name: "random", Randomized: true, Build: func(_ context.Context, r *rng.RNG, n int) ([]bits, error) {
			out := make([]bits, n)
			for i := range out {
				out[i] = make(bits, o.n)
				for j := range out[i] {
					out[i][j] = r.Bool(0.3)
				}
			}
			return out, nil
		}},
	}
}

func testConfig(seed uint64) Config {
	cfg := DefaultConfig()
	cfg.PopulationSize = 20
	cfg.Offspring = 6
	cfg.Ancestors = 10
	cfg.MaxGenerations = 300
	cfg.StallGenerations = 0
	cfg.StallPeriod = 0
	cfg.Seed = &seed
	return cfg
}

func TestEngineSolvesOneMax(t *testing.T) {
	ops := &oneMax{n: 24}
	var gens []int
	var bests []float64
	e, err := New[bits](testConfig(5), ops, ops.seeders(), WithObserver(func(p Progress) {
		gens = append(gens, p.Generation)
		bests = append(bests, p.BestCost)
	}))
	require.NoError(t, err)

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0.0, res.Cost)
	require.Equal(t, uint64(5), res.Seed)
	require.Equal(t, StopGenerations, res.Stats.StopReason)
	require.Equal(t, 300, res.Stats.Generations)
	require.Len(t, gens, 300)
	require.Equal(t, int64(300), ops.learned.Load())
	require.LessOrEqual(t, len(res.Population), 20)

	// the best member is never evicted
	for i := 1; i < len(bests); i++ {
		require.LessOrEqual(t, bests[i], bests[i-1])
	}
	for i := 1; i < len(res.Population); i++ {
		require.LessOrEqual(t, ops.Cost(res.Population[i-1]), ops.Cost(res.Population[i]))
	}
}

func TestEngineDeterministicAcrossWorkers(t *testing.T) {
	run := func(workers int) Result[bits] {
		ops := &oneMax{n: 40}
		cfg := testConfig(99)
		cfg.MaxGenerations = 40
		cfg.Workers = workers
		e, err := New[bits](cfg, ops, ops.seeders())
		require.NoError(t, err)
		res, err := e.Run(context.Background())
		require.NoError(t, err)
		return res
	}
	a, b := run(1), run(4)
	require.Equal(t, a.Cost, b.Cost)
	require.Equal(t, (&oneMax{}).Key(a.Best), (&oneMax{}).Key(b.Best))
	a.Stats.Elapsed, b.Stats.Elapsed = 0, 0
	require.Equal(t, a.Stats, b.Stats)
	require.Len(t, b.Population, len(a.Population))
	for i := range a.Population {
		require.Equal(t, a.Population[i], b.Population[i])
	}
}

func TestEngineRejectsDuplicates(t *testing.T) {
	ops := &oneMax{n: 3}
	cfg := testConfig(1)
	cfg.MaxGenerations = 50
	e, err := New[bits](cfg, ops, ops.seeders())
	require.NoError(t, err)
	res, err := e.Run(context.Background())
	require.NoError(t, err)

	// only 8 distinct genomes exist
	require.LessOrEqual(t, len(res.Population), 8)
	seen := map[string]bool{}
	for _, g := range res.Population {
		k := ops.Key(g)
		require.False(t, seen[k], k)
		seen[k] = true
	}
	require.Positive(t, res.Stats.Duplicates)
	require.Equal(t, res.Stats.Offspring, res.Stats.Accepted+res.Stats.Rejected+res.Stats.Duplicates)
}

func TestEngineStopsOnCancel(t *testing.T) {
	ops := &oneMax{n: 16}
	cfg := testConfig(2)
	cfg.MaxGenerations = 0
	cfg.TimeLimit = time.Minute
	ctx, cancel := context.WithCancel(context.Background())
	e, err := New[bits](cfg, ops, ops.seeders(), WithObserver(func(p Progress) {
		if p.Generation == 3 {
			cancel()
		}
	}))
	require.NoError(t, err)
	res, err := e.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, StopCancelled, res.Stats.StopReason)
	require.Equal(t, 3, res.Stats.Generations)
}

func TestEngineStallStops(t *testing.T) {
	ops := &oneMax{n: 4}
	cfg := testConfig(3)
	cfg.MaxGenerations = 0
	cfg.StallGenerations = 25
	e, err := New[bits](cfg, ops, ops.seeders())
	require.NoError(t, err)
	res, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StopStalled, res.Stats.StopReason)
	require.Equal(t, 0.0, res.Cost)
}

func TestEngineNoSeed(t *testing.T) {
	ops := &oneMax{n: 4}
	e, err := New[bits](testConfig(1), ops, nil)
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	require.ErrorIs(t, err, ErrNoSeed)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	for name, mut := range map[string]func(*Config){
		"population": func(c *Config) { c.PopulationSize = 1 },
		"offspring":  func(c *Config) { c.Offspring = 0 },
		"weight":     func(c *Config) { c.FitnessWeight = 1.5 },
		"dice":       func(c *Config) { c.MateDice = 0 },
		"rate":       func(c *Config) { c.MutationRate = -0.1 },
		"neighbors":  func(c *Config) { c.Neighbors = 0 },
		"unbounded": func(c *Config) {
			c.MaxGenerations, c.TimeLimit, c.StallGenerations, c.StallPeriod = 0, 0, 0, 0
		},
	} {
		cfg := DefaultConfig()
		mut(&cfg)
		require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig, name)
	}
}

func TestOffer(t *testing.T) {
	var l []neighbor
	for i, d := range []float64{0.5, 0.1, 0.9, 0.3, 0.2} {
		l = offer(l, neighbor{i, d}, 3)
	}
	require.Equal(t, []neighbor{{1, 0.1}, {4, 0.2}, {3, 0.3}}, l)
}

// zerosFirst prefers genomes with fewer set bits, the opposite of the cost.
type zerosFirst struct{ *oneMax }

func (zerosFirst) Prefer(a, b bits) bool { return ones(a) < ones(b) }

func ones(g bits) int {
	n := 0
	for _, b := range g {
		if b {
			n++
		}
	}
	return n
}

func TestPreferredSurvivesEviction(t *testing.T) {
	ops := zerosFirst{&oneMax{n: 24}}
	e, err := New[bits](testConfig(9), ops, ops.seeders())
	require.NoError(t, err)
	res, err := e.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, make(bits, 24), res.Preferred)
	for _, g := range res.Population {
		require.NotZero(t, ones(g), "the all-zero seed should have been evicted")
	}
	require.Less(t, res.Cost, 24.0)

	// without the interface nothing is kept
	plain := &oneMax{n: 24}
	e, err = New[bits](testConfig(9), plain, plain.seeders())
	require.NoError(t, err)
	res, err = e.Run(context.Background())
	require.NoError(t, err)
	require.Nil(t, res.Preferred)
}

func TestSeededRunIgnoresStallPeriod(t *testing.T) {
	cfg := testConfig(4)
	cfg.MaxGenerations = 40
	cfg.StallPeriod = time.Nanosecond
	require.True(t, cfg.Reproducible())
	ops := &oneMax{n: 16}
	e, err := New[bits](cfg, ops, ops.seeders())
	require.NoError(t, err)
	res, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StopGenerations, res.Stats.StopReason)
	require.Equal(t, 40, res.Stats.Generations)

	cfg.Seed = nil
	require.False(t, cfg.Reproducible())
	e, err = New[bits](cfg, ops, ops.seeders())
	require.NoError(t, err)
	res, err = e.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StopStalled, res.Stats.StopReason)
	require.Less(t, res.Stats.Generations, 40)

	timed := testConfig(4)
	timed.TimeLimit = time.Minute
	require.False(t, timed.Reproducible())

	// a seed leaves StallPeriod without effect, so it cannot be the only limit
	only := testConfig(4)
	only.MaxGenerations = 0
	only.StallPeriod = time.Second
	require.ErrorIs(t, only.Validate(), ErrInvalidConfig)
	only.Seed = nil
	require.NoError(t, only.Validate())
}
