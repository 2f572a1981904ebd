package rng_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"elasticroute/internal/rng"
)

func TestSameSeedSameStream(t *testing.T) {
	a, b := rng.New(42), rng.New(42)
	for i := 0; i < 1000; i++ {
		require.Equal(t, a.Uint64(), b.Uint64())
	}
}

func TestZeroSeedIsExplicit(t *testing.T) {
	a, b := rng.New(0), rng.New(0)
	require.Equal(t, a.Intn(1<<30), b.Intn(1<<30))
	require.NotEqual(t, rng.New(0).Uint64(), rng.New(1).Uint64())
}

func TestIntnBounds(t *testing.T) {
	g := rng.New(7)
	for i := 0; i < 10000; i++ {
		v := g.Intn(13)
		require.GreaterOrEqual(t, v, 0)
		require.Less(t, v, 13)
	}
	require.Panics(t, func() { g.Intn(0) })
}

func TestIntRangeAndFloat(t *testing.T) {
	g := rng.New(9)
	for i := 0; i < 5000; i++ {
		v := g.IntRange(-3, 4)
		require.GreaterOrEqual(t, v, -3)
		require.Less(t, v, 4)
		f := g.Float64()
		require.GreaterOrEqual(t, f, 0.0)
		require.Less(t, f, 1.0)
	}
}

func TestShuffleIsPermutation(t *testing.T) {
	g := rng.New(3)
	xs := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	g.Shuffle(xs)
	cp := append([]int(nil), xs...)
	sort.Ints(cp)
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, cp)
}

func TestShuffleRangeKeepsOutside(t *testing.T) {
	g := rng.New(11)
	xs := []int{100, 1, 2, 3, 4, 5, 200}
	g.ShuffleRange(xs, 1, 6)
	require.Equal(t, 100, xs[0])
	require.Equal(t, 200, xs[6])
	mid := append([]int(nil), xs[1:6]...)
	sort.Ints(mid)
	require.Equal(t, []int{1, 2, 3, 4, 5}, mid)
}

func TestDeriveIsPureAndIndependent(t *testing.T) {
	parent := rng.New(5)
	c1 := parent.Derive(1)
	// deriving must not advance the parent
	fresh := rng.New(5)
	require.Equal(t, fresh.Uint64(), parent.Uint64())

	c1b := rng.New(5).Derive(1)
	require.Equal(t, c1.Uint64(), c1b.Uint64())

	c2 := rng.New(5).Derive(2)
	require.NotEqual(t, rng.New(5).Derive(1).Uint64(), c2.Uint64())
}

func TestEntropySeedReplays(t *testing.T) {
	g := rng.NewFromEntropy()
	replay := rng.New(g.Seed())
	require.Equal(t, g.Uint64(), replay.Uint64())
}

func TestPick(t *testing.T) {
	g := rng.New(1)
	require.Equal(t, -1, g.Pick(5, func(int) bool { return false }))
	for i := 0; i < 100; i++ {
		v := g.Pick(10, func(i int) bool { return i%3 == 0 })
		require.Contains(t, []int{0, 3, 6, 9}, v)
	}
}
