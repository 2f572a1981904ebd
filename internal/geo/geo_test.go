package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCartesianMetrics(t *testing.T) {
	a, b := Coord{0, 0}, Coord{3, 4}
	d, err := Distance(a, b, Cartesian2D, Beeline)
	require.NoError(t, err)
	require.Equal(t, 5.0, d)

	d, err = Distance(a, b, Cartesian2D, Manhattan)
	require.NoError(t, err)
	require.Equal(t, 7.0, d)

	d, err = Distance(Coord{0, 0}, Coord{1, 1}, Cartesian2D, BeelineRounded)
	require.NoError(t, err)
	require.Equal(t, 1.0, d)

	_, err = Distance(a, b, SystemNone, Beeline)
	require.ErrorIs(t, err, ErrNoSystem)
	_, err = Distance(a, b, WGS84, Manhattan)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestHaversineKnownPair(t *testing.T) {
	// Paris to London is roughly 343.5 km.
	d, err := Distance(Coord{48.8566, 2.3522}, Coord{51.5074, -0.1278}, WGS84, Beeline)
	require.NoError(t, err)
	require.InDelta(t, 343_500, d, 2_000)
}

func TestDistanceMatrixSymmetricZeroDiagonal(t *testing.T) {
	coords := []Coord{{0, 0}, {1, 0}, {5, 5}, {5, 5}, {-2, 7}}
	m, err := DistanceMatrix(coords, Cartesian2D, Beeline)
	require.NoError(t, err)
	for i := range coords {
		require.Zero(t, m.Get(i, i))
		for j := range coords {
			require.Equal(t, m.Get(i, j), m.Get(j, i))
		}
	}
	// duplicate coordinates cost nothing
	require.Zero(t, m.Get(2, 3))

	again, err := DistanceMatrix(coords, Cartesian2D, Beeline)
	require.NoError(t, err)
	require.True(t, m.Equal(again))
}

func TestDurationMatrix(t *testing.T) {
	m, err := DistanceMatrix([]Coord{{0, 0}, {10, 0}}, Cartesian2D, Beeline)
	require.NoError(t, err)

	_, err = DurationMatrix(m, 0)
	require.ErrorIs(t, err, ErrNonPositive)
	_, err = DurationMatrix(m, math.NaN())
	require.ErrorIs(t, err, ErrNonPositive)

	dur, err := DurationMatrix(m, 2)
	require.NoError(t, err)
	require.Equal(t, 5.0, dur.Get(0, 1))
}

func TestPolarAngle(t *testing.T) {
	ref := Coord{0, 0}
	require.InDelta(t, 0, PolarAngle(Coord{1, 0}, ref, Cartesian2D), 1e-12)
	require.InDelta(t, math.Pi/2, PolarAngle(Coord{0, 1}, ref, Cartesian2D), 1e-12)
	require.InDelta(t, math.Pi, PolarAngle(Coord{-1, 0}, ref, Cartesian2D), 1e-12)
}

func TestParseNames(t *testing.T) {
	s, err := ParseSystem("wgs84")
	require.NoError(t, err)
	require.Equal(t, WGS84, s)
	_, err = ParseSystem("mercator")
	require.Error(t, err)

	m, err := ParseMetric("nint")
	require.NoError(t, err)
	require.Equal(t, BeelineRounded, m)
}
