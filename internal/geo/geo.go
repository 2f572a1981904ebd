// Package geo computes beeline distances between node coordinates and builds
// the dense distance and duration matrices the solver reads.
package geo

import (
	"errors"
	"fmt"
	"math"

	"elasticroute/internal/container"
)

// System identifies how a Coord is interpreted.
type System int

const (
	SystemNone System = iota
	Cartesian2D
	// WGS84 coordinates carry latitude in X and longitude in Y, in degrees.
	WGS84
)

func (s System) String() string {
	switch s {
	case Cartesian2D:
		return "cartesian"
	case WGS84:
		return "wgs84"
	default:
		return "none"
	}
}

// ParseSystem maps the wire names back to a System.
func ParseSystem(s string) (System, error) {
	switch s {
	case "", "none":
		return SystemNone, nil
	case "cartesian", "cartesian2d", "euclidean":
		return Cartesian2D, nil
	case "wgs84", "geographic", "latlon":
		return WGS84, nil
	}
	return SystemNone, fmt.Errorf("geo: unknown coordinate system %q", s)
}

// Metric selects the beeline formula.
type Metric int

const (
	Beeline Metric = iota
	// BeelineRounded rounds every arc to the nearest integer (TSPLIB nint).
	BeelineRounded
	// Manhattan is only defined for Cartesian coordinates.
	Manhattan
)

func (m Metric) String() string {
	switch m {
	case BeelineRounded:
		return "beeline_rounded"
	case Manhattan:
		return "manhattan"
	default:
		return "beeline"
	}
}

func ParseMetric(s string) (Metric, error) {
	switch s {
	case "", "beeline", "euclidean", "haversine":
		return Beeline, nil
	case "beeline_rounded", "rounded", "nint":
		return BeelineRounded, nil
	case "manhattan":
		return Manhattan, nil
	}
	return Beeline, fmt.Errorf("geo: unknown metric %q", s)
}

type Coord struct {
	X, Y float64
}

var (
	ErrNoSystem       = errors.New("geo: no coordinate system")
	ErrUnsupported    = errors.New("geo: metric not supported for coordinate system")
	ErrNonPositive    = errors.New("geo: speed must be positive")
	ErrEmptyCoords    = errors.New("geo: no coordinates")
	ErrDimensionCheck = errors.New("geo: matrix dimension mismatch")
)

// EarthRadius is the mean radius used by the haversine formula, in metres.
const EarthRadius = 6371000.0

// Distance returns the beeline distance between a and b.
func Distance(a, b Coord, sys System, metric Metric) (float64, error) {
	var d float64
	switch sys {
	case Cartesian2D:
		dx, dy := a.X-b.X, a.Y-b.Y
		if metric == Manhattan {
			d = math.Abs(dx) + math.Abs(dy)
		} else {
			d = math.Sqrt(dx*dx + dy*dy)
		}
	case WGS84:
		if metric == Manhattan {
			return 0, ErrUnsupported
		}
		d = haversine(a.X, a.Y, b.X, b.Y)
	default:
		return 0, ErrNoSystem
	}
	if metric == BeelineRounded {
		d = math.Floor(d + 0.5)
	}
	return d, nil
}

// PolarAngle returns the angle of c seen from ref, in radians within
// (-π, π]. For WGS84 the angle is taken on an equirectangular projection
// around ref.
func PolarAngle(c, ref Coord, sys System) float64 {
	switch sys {
	case WGS84:
		x := (c.Y - ref.Y) * math.Cos(ref.X*math.Pi/180)
		y := c.X - ref.X
		return math.Atan2(y, x)
	default:
		return math.Atan2(c.Y-ref.Y, c.X-ref.X)
	}
}

// DistanceMatrix returns the symmetric beeline matrix over coords. Each
// unordered pair is computed once and mirrored.
//
// Complexity: O(n²).
func DistanceMatrix(coords []Coord, sys System, metric Metric) (*container.Matrix[float64], error) {
	n := len(coords)
	if n == 0 {
		return nil, ErrEmptyCoords
	}
	m, err := container.NewMatrix[float64](n, n)
	if err != nil {
		return nil, err
	}
	var i, j int
	for i = 0; i < n; i++ {
		for j = i + 1; j < n; j++ {
			d, err := Distance(coords[i], coords[j], sys, metric)
			if err != nil {
				return nil, err
			}
			m.Put(i, j, d)
			m.Put(j, i, d)
		}
	}
	return m, nil
}

// DurationMatrix scales a distance matrix by 1/speed.
func DurationMatrix(dist *container.Matrix[float64], speed float64) (*container.Matrix[float64], error) {
	if !(speed > 0) || math.IsInf(speed, 0) {
		return nil, ErrNonPositive
	}
	if dist == nil || dist.Rows() != dist.Cols() {
		return nil, ErrDimensionCheck
	}
	n := dist.Rows()
	out, err := container.NewMatrix[float64](n, n)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out.Put(i, j, dist.Get(i, j)/speed)
		}
	}
	return out, nil
}

func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadius * c
}
