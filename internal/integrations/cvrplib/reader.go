// Package cvrplib reads capacitated VRP instances in the TSPLIB-derived
// format used by CVRPLIB (.vrp files).
package cvrplib

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"elasticroute/internal/model"
)

var (
	ErrFormat      = errors.New("cvrplib: malformed instance")
	ErrUnsupported = errors.New("cvrplib: unsupported edge weights")
)

var fleetPattern = regexp.MustCompile(`-[kK](\d+)`)

type Reader struct{}

func (Reader) Name() string { return "cvrplib" }

type section int

const (
	noSection section = iota
	coordSection
	demandSection
	depotSection
	weightSection
)

type header struct {
	name       string
	dimension  int
	capacity   float64
	weightType string
	format     string
	vehicles   int
}

// Read parses one instance. Node ids are the 1-based indices of the file.
// Every customer gets one request from the depot carrying its demand. The
// fleet size comes from a "-kN" suffix in the NAME field or in name, or
// falls back to one vehicle per customer.
func (Reader) Read(r io.Reader, name string) (*model.Instance, error) {
	var (
		h       header
		sec     = noSection
		coords  []*model.Point
		demands []float64
		depots  []int
		weights []float64
		lineNo  int
	)
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: line %d: %s", ErrFormat, lineNo, fmt.Sprintf(format, args...))
	}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == "EOF" {
			break
		}
		if key, val, ok := strings.Cut(line, ":"); ok {
			sec = noSection
			key, val = strings.TrimSpace(key), strings.TrimSpace(val)
			switch key {
			case "NAME":
				h.name = val
			case "DIMENSION":
				n, err := strconv.Atoi(val)
				if err != nil || n < 1 {
					return nil, bad("dimension %q", val)
				}
				h.dimension = n
				coords = make([]*model.Point, n)
				demands = make([]float64, n)
			case "CAPACITY":
				c, err := strconv.ParseFloat(val, 64)
				if err != nil {
					return nil, bad("capacity %q", val)
				}
				h.capacity = c
			case "EDGE_WEIGHT_TYPE":
				h.weightType = val
			case "EDGE_WEIGHT_FORMAT":
				h.format = val
			case "VEHICLES":
				k, err := strconv.Atoi(val)
				if err != nil {
					return nil, bad("vehicles %q", val)
				}
				h.vehicles = k
			}
			continue
		}
		if strings.HasSuffix(line, "_SECTION") {
			switch line {
			case "NODE_COORD_SECTION":
				sec = coordSection
			case "DEMAND_SECTION":
				sec = demandSection
			case "DEPOT_SECTION":
				sec = depotSection
			case "EDGE_WEIGHT_SECTION":
				sec = weightSection
			default:
				sec = noSection
			}
			if sec != noSection && sec != depotSection && h.dimension == 0 {
				return nil, bad("%s before DIMENSION", line)
			}
			continue
		}

		f := strings.Fields(line)
		switch sec {
		case coordSection:
			if len(f) < 3 {
				return nil, bad("coordinate line %q", line)
			}
			i, err := index(f[0], h.dimension)
			if err != nil {
				return nil, bad("%v", err)
			}
			x, err1 := strconv.ParseFloat(f[1], 64)
			y, err2 := strconv.ParseFloat(f[2], 64)
			if err1 != nil || err2 != nil {
				return nil, bad("coordinate line %q", line)
			}
			coords[i] = &model.Point{X: x, Y: y}
		case demandSection:
			if len(f) < 2 {
				return nil, bad("demand line %q", line)
			}
			i, err := index(f[0], h.dimension)
			if err != nil {
				return nil, bad("%v", err)
			}
			d, err := strconv.ParseFloat(f[1], 64)
			if err != nil {
				return nil, bad("demand %q", f[1])
			}
			demands[i] = d
		case depotSection:
			for _, s := range f {
				d, err := strconv.Atoi(s)
				if err != nil {
					return nil, bad("depot %q", s)
				}
				if d < 0 {
					sec = noSection
					break
				}
				depots = append(depots, d-1)
			}
		case weightSection:
			for _, s := range f {
				w, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return nil, bad("weight %q", s)
				}
				weights = append(weights, w)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("cvrplib: read: %w", err)
	}
	if h.dimension == 0 {
		return nil, fmt.Errorf("%w: no DIMENSION", ErrFormat)
	}

	inst := &model.Instance{Name: h.name, Speed: 1}
	if inst.Name == "" {
		inst.Name = name
	}
	if err := h.applyWeights(inst, coords, weights); err != nil {
		return nil, err
	}

	depot := 0
	if len(depots) > 0 {
		depot = depots[0]
	}
	if depot < 0 || depot >= h.dimension {
		return nil, fmt.Errorf("%w: depot %d out of range", ErrFormat, depot+1)
	}
	for i := 0; i < h.dimension; i++ {
		n := model.Node{ID: strconv.Itoa(i + 1), Role: "customer", Location: coords[i]}
		if i == depot {
			n.Role = "depot"
		}
		inst.Nodes = append(inst.Nodes, n)
	}
	depotID := inst.Nodes[depot].ID
	for i, n := range inst.Nodes {
		if i == depot {
			continue
		}
		inst.Requests = append(inst.Requests, model.Request{
			ID:       n.ID,
			Sender:   depotID,
			Receiver: n.ID,
			Quantity: demands[i],
		})
	}

	k := h.vehicles
	if k == 0 {
		k = fleetSize(h.name, name)
	}
	if k == 0 {
		k = max(1, h.dimension-1)
	}
	for v := 1; v <= k; v++ {
		inst.Vehicles = append(inst.Vehicles, model.Vehicle{
			ID:       "v" + strconv.Itoa(v),
			Capacity: h.capacity,
			Start:    depotID,
			End:      depotID,
		})
	}
	return inst, nil
}

func index(s string, n int) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil || i < 1 || i > n {
		return 0, fmt.Errorf("node index %q out of 1..%d", s, n)
	}
	return i - 1, nil
}

func fleetSize(names ...string) int {
	for _, s := range names {
		if m := fleetPattern.FindStringSubmatch(s); m != nil {
			k, _ := strconv.Atoi(m[1])
			return k
		}
	}
	return 0
}

// applyWeights sets the coordinate system for EUC_2D (rounded to the
// nearest integer, as TSPLIB's nint) or fills an explicit matrix.
func (h header) applyWeights(inst *model.Instance, coords []*model.Point, weights []float64) error {
	n := h.dimension
	switch h.weightType {
	case "EUC_2D", "":
		if err := complete(coords); err != nil {
			return err
		}
		inst.CoordSystem = "cartesian"
		inst.Metric = "beeline_rounded"
		return nil
	case "CEIL_2D":
		if err := complete(coords); err != nil {
			return err
		}
		inst.Distances = square(n)
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				d := math.Ceil(math.Hypot(coords[i].X-coords[j].X, coords[i].Y-coords[j].Y))
				inst.Distances[i][j], inst.Distances[j][i] = d, d
			}
		}
		return nil
	case "EXPLICIT":
		m, err := explicit(h.format, n, weights)
		if err != nil {
			return err
		}
		inst.Distances = m
		return nil
	}
	return fmt.Errorf("%w: EDGE_WEIGHT_TYPE %s", ErrUnsupported, h.weightType)
}

func complete(coords []*model.Point) error {
	for i, c := range coords {
		if c == nil {
			return fmt.Errorf("%w: no coordinate for node %d", ErrFormat, i+1)
		}
	}
	return nil
}

func square(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	return m
}

// explicit unpacks the EDGE_WEIGHT_SECTION values.
func explicit(format string, n int, w []float64) ([][]float64, error) {
	m := square(n)
	want := 0
	switch format {
	case "LOWER_ROW", "LOWROW":
		want = n * (n - 1) / 2
	case "LOWER_DIAG_ROW":
		want = n * (n + 1) / 2
	case "UPPER_ROW":
		want = n * (n - 1) / 2
	case "FULL_MATRIX":
		want = n * n
	default:
		return nil, fmt.Errorf("%w: EDGE_WEIGHT_FORMAT %q", ErrUnsupported, format)
	}
	if len(w) != want {
		return nil, fmt.Errorf("%w: %d edge weights, want %d for %s", ErrFormat, len(w), want, format)
	}
	k := 0
	switch format {
	case "LOWER_ROW", "LOWROW":
		for i := 1; i < n; i++ {
			for j := 0; j < i; j++ {
				m[i][j], m[j][i] = w[k], w[k]
				k++
			}
		}
	case "LOWER_DIAG_ROW":
		for i := 0; i < n; i++ {
			for j := 0; j <= i; j++ {
				m[i][j], m[j][i] = w[k], w[k]
				k++
			}
		}
	case "UPPER_ROW":
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				m[i][j], m[j][i] = w[k], w[k]
				k++
			}
		}
	case "FULL_MATRIX":
		for i := 0; i < n; i++ {
			copy(m[i], w[i*n:(i+1)*n])
		}
	}
	return m, nil
}
