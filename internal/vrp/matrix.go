package vrp

import (
	"math"

	"elasticroute/internal/container"
	"elasticroute/internal/geo"
)

// GenerateDistances fills the distance matrix from node coordinates. Every
// node needs a coordinate. Durations previously derived from distances are
// dropped and must be generated again.
func (p *Problem) GenerateDistances(metric geo.Metric) error {
	const op = "GenerateDistances"
	if err := p.mutable(op); err != nil {
		return err
	}
	if p.nodes.Len() == 0 {
		return misconfigured(op, ErrNoCoordinates, "no nodes")
	}
	if !p.sysSet || p.sys == geo.SystemNone {
		return misconfigured(op, ErrNoCoordinates, "coordinate system not set")
	}
	coords := make([]geo.Coord, p.nodes.Len())
	for i, n := range p.nodes.Slice() {
		if !n.HasCoord {
			return misconfigured(op, ErrNoCoordinates, "node %q has no coordinate", n.ExtID)
		}
		coords[i] = n.Coord
	}
	m, err := geo.DistanceMatrix(coords, p.sys, metric)
	if err != nil {
		return misconfigured(op, err, "")
	}
	p.dist = m
	if p.durDerived {
		p.dur = nil
		p.durDerived = false
	}
	return nil
}

// GenerateDurations derives travel durations as distance/speed.
func (p *Problem) GenerateDurations(speed float64) error {
	const op = "GenerateDurations"
	if err := p.mutable(op); err != nil {
		return err
	}
	if p.dist == nil {
		return misconfigured(op, ErrNoDistances, "generate or set distances first")
	}
	m, err := geo.DurationMatrix(p.dist, speed)
	if err != nil {
		return misconfigured(op, err, "speed %v", speed)
	}
	p.dur, p.durDerived, p.speed = m, true, speed
	return nil
}

// SetArcDistance overrides one directed arc, e.g. with a road distance. A
// zero matrix is allocated on first use.
func (p *Problem) SetArcDistance(from, to NodeID, d float64) error {
	const op = "SetArcDistance"
	if err := p.mutable(op); err != nil {
		return err
	}
	if err := p.checkArc(op, from, to, d); err != nil {
		return err
	}
	if p.dist == nil || p.dist.Rows() != p.nodes.Len() {
		m, err := p.resized(p.dist)
		if err != nil {
			return misconfigured(op, err, "")
		}
		p.dist = m
	}
	p.dist.Put(int(from), int(to), d)
	return nil
}

// SetArcDuration overrides one directed arc of the duration matrix.
func (p *Problem) SetArcDuration(from, to NodeID, d float64) error {
	const op = "SetArcDuration"
	if err := p.mutable(op); err != nil {
		return err
	}
	if err := p.checkArc(op, from, to, d); err != nil {
		return err
	}
	if p.dur == nil || p.dur.Rows() != p.nodes.Len() {
		m, err := p.resized(p.dur)
		if err != nil {
			return misconfigured(op, err, "")
		}
		p.dur = m
	}
	p.dur.Put(int(from), int(to), d)
	p.durDerived = false
	return nil
}

// SetDistanceMatrix installs a full n×n matrix, n being the node count.
func (p *Problem) SetDistanceMatrix(m *container.Matrix[float64]) error {
	const op = "SetDistanceMatrix"
	if err := p.mutable(op); err != nil {
		return err
	}
	if err := p.checkMatrix(op, m); err != nil {
		return err
	}
	p.dist = m.Clone()
	if p.durDerived {
		p.dur, p.durDerived = nil, false
	}
	return nil
}

func (p *Problem) SetDurationMatrix(m *container.Matrix[float64]) error {
	const op = "SetDurationMatrix"
	if err := p.mutable(op); err != nil {
		return err
	}
	if err := p.checkMatrix(op, m); err != nil {
		return err
	}
	p.dur, p.durDerived = m.Clone(), false
	return nil
}

func (p *Problem) checkArc(op string, from, to NodeID, d float64) error {
	if !p.validNode(from) || !p.validNode(to) {
		return invalid(op, ErrUnknownNode, "arc %d->%d", from, to)
	}
	if d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return invalid(op, ErrNegativeValue, "arc %d->%d: %v", from, to, d)
	}
	return nil
}

func (p *Problem) checkMatrix(op string, m *container.Matrix[float64]) error {
	n := p.nodes.Len()
	if m == nil || m.Rows() != n || m.Cols() != n {
		return invalid(op, container.ErrInvalidDimensions, "need %dx%d matrix", n, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := m.Get(i, j)
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return invalid(op, ErrNegativeValue, "entry (%d,%d) = %v", i, j, v)
			}
		}
	}
	return nil
}

// resized copies old into a fresh matrix sized for the current node count.
func (p *Problem) resized(old *container.Matrix[float64]) (*container.Matrix[float64], error) {
	n := p.nodes.Len()
	m, err := container.NewMatrix[float64](n, n)
	if err != nil {
		return nil, err
	}
	if old != nil {
		k := min(old.Rows(), n)
		for i := 0; i < k; i++ {
			for j := 0; j < k; j++ {
				m.Put(i, j, old.Get(i, j))
			}
		}
	}
	return m, nil
}

// Distance is the hot-path arc lookup. Either end may be None, which costs
// nothing (open route ends).
func (p *Problem) Distance(a, b NodeID) float64 {
	if a == None || b == None {
		return 0
	}
	return p.dist.Get(int(a), int(b))
}

// Duration returns zero when no duration matrix exists.
func (p *Problem) Duration(a, b NodeID) float64 {
	if a == None || b == None || p.dur == nil {
		return 0
	}
	return p.dur.Get(int(a), int(b))
}

func (p *Problem) HasDistances() bool { return p.dist != nil }
func (p *Problem) HasDurations() bool { return p.dur != nil }

// DistanceMatrix exposes the current matrix; callers must not modify it.
func (p *Problem) DistanceMatrix() *container.Matrix[float64] { return p.dist }

func (p *Problem) DurationMatrix() *container.Matrix[float64] { return p.dur }

// Speed is the factor last passed to GenerateDurations, zero otherwise.
func (p *Problem) Speed() float64 { return p.speed }
