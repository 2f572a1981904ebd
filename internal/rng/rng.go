// Package rng provides the seeded pseudo-random streams used by every
// stochastic decision in the solver.
//
// A generator is never shared between goroutines. Parallel work derives an
// independent child stream with Derive, which depends only on the parent seed
// and the stream index, so a run is reproducible for a fixed seed no matter
// how the work is scheduled.
package rng

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
)

// RNG is a deterministic PCG stream.
type RNG struct {
	seed uint64
	r    *rand.Rand
}

// New returns a generator seeded with seed. Any value, including zero, is a
// valid explicit seed.
func New(seed uint64) *RNG {
	s1 := splitmix64(seed)
	s2 := splitmix64(s1)
	return &RNG{seed: seed, r: rand.New(rand.NewPCG(s1, s2))}
}

// NewFromEntropy seeds a generator from crypto/rand. The seed is kept so the
// stream can be replayed with New(r.Seed()).
func NewFromEntropy() *RNG {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		// crypto/rand.Read does not fail on supported platforms.
		panic("rng: entropy source unavailable: " + err.Error())
	}
	return New(binary.LittleEndian.Uint64(b[:]))
}

// Seed reports the seed the stream was created with.
func (g *RNG) Seed() uint64 { return g.seed }

// Derive returns the child stream with index stream. It does not advance g.
func (g *RNG) Derive(stream uint64) *RNG {
	return New(splitmix64(g.seed ^ splitmix64(stream+0x9e3779b97f4a7c15)))
}

// Uint64 returns the next raw 64-bit value.
func (g *RNG) Uint64() uint64 { return g.r.Uint64() }

// Intn returns a uniform int in [0, n). It panics if n <= 0.
func (g *RNG) Intn(n int) int {
	if n <= 0 {
		panic("rng: Intn called with non-positive n")
	}
	return g.r.IntN(n)
}

// IntRange returns a uniform int in [lo, hi). It panics if hi <= lo.
func (g *RNG) IntRange(lo, hi int) int {
	return lo + g.Intn(hi-lo)
}

// Float64 returns a uniform float in [0, 1).
func (g *RNG) Float64() float64 { return g.r.Float64() }

// FloatRange returns a uniform float in [lo, hi).
func (g *RNG) FloatRange(lo, hi float64) float64 {
	return lo + (hi-lo)*g.r.Float64()
}

// Bool returns true with probability p.
func (g *RNG) Bool(p float64) bool { return g.r.Float64() < p }

// Shuffle permutes xs in place (Fisher–Yates).
func (g *RNG) Shuffle(xs []int) {
	g.ShuffleRange(xs, 0, len(xs))
}

// ShuffleRange permutes xs[lo:hi] in place and leaves the rest untouched.
//
// Complexity: O(hi-lo).
func (g *RNG) ShuffleRange(xs []int, lo, hi int) {
	var i, j int
	for i = hi - 1; i > lo; i-- {
		j = lo + g.Intn(i-lo+1)
		xs[i], xs[j] = xs[j], xs[i]
	}
}

// Perm returns a random permutation of 0..n-1.
func (g *RNG) Perm(n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	g.Shuffle(p)
	return p
}

// Pick returns a uniformly chosen index among the ones for which keep
// returns true, or -1 when there is none. Candidates are scanned in order so
// the draw is reproducible.
func (g *RNG) Pick(n int, keep func(i int) bool) int {
	var (
		chosen = -1
		seen   int
	)
	for i := 0; i < n; i++ {
		if !keep(i) {
			continue
		}
		seen++
		// reservoir sampling of size one
		if g.Intn(seen) == 0 {
			chosen = i
		}
	}
	return chosen
}

// splitmix64 is the SplitMix64 finalizer (Vigna 2014).
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
