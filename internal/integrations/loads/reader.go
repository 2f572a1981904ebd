// Package loads reads pickup-and-delivery load lists: a header line, then
// one line per load with its number, pickup point and dropoff point,
// separated by spaces, e.g.
//
//	loadNumber pickup dropoff
//	1 (-50.1,80.0) (90.1,12.2)
//
// Drivers start and finish at the origin and carry one load at a time.
package loads

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"elasticroute/internal/model"
)

var ErrFormat = errors.New("loads: malformed input")

// ShiftLength is the working time of a driver in distance units at unit
// speed.
const ShiftLength = 12 * 60

type Reader struct{}

func (Reader) Name() string { return "loads" }

// Read builds one depot, a pickup and a dropoff node per load, and one
// driver per load, so every load can be served alone.
func (Reader) Read(r io.Reader, name string) (*model.Instance, error) {
	cr := csv.NewReader(r)
	cr.Comma = ' '
	cr.FieldsPerRecord = 3
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%w: no loads", ErrFormat)
	}

	inst := &model.Instance{
		Name:        name,
		CoordSystem: "cartesian",
		Nodes:       []model.Node{{ID: "depot", Role: "depot", Location: &model.Point{}}},
		Speed:       1,
	}
	for i, rec := range records[1:] {
		id := strings.TrimSpace(rec[0])
		if _, err := strconv.Atoi(id); err != nil {
			return nil, fmt.Errorf("%w: line %d: load number %q", ErrFormat, i+2, rec[0])
		}
		from, err := point(rec[1])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: pickup: %v", ErrFormat, i+2, err)
		}
		to, err := point(rec[2])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: dropoff: %v", ErrFormat, i+2, err)
		}
		pick, drop := "p"+id, "d"+id
		inst.Nodes = append(inst.Nodes,
			model.Node{ID: pick, Role: "customer", Location: from},
			model.Node{ID: drop, Role: "customer", Location: to})
		inst.Requests = append(inst.Requests, model.Request{ID: id, Sender: pick, Receiver: drop, Quantity: 1})
	}
	for v := 1; v < len(records); v++ {
		inst.Vehicles = append(inst.Vehicles, model.Vehicle{
			ID:       "driver" + strconv.Itoa(v),
			Capacity: 1,
			Start:    "depot",
			End:      "depot",
			Shift:    &model.TimeWindow{Earliest: 0, Latest: ShiftLength},
		})
	}
	return inst, nil
}

// point parses "(x,y)".
func point(s string) (*model.Point, error) {
	xy := strings.Split(strings.Trim(strings.TrimSpace(s), "()"), ",")
	if len(xy) != 2 {
		return nil, fmt.Errorf("point %q", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xy[0]), 64)
	if err != nil {
		return nil, fmt.Errorf("point %q: %w", s, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(xy[1]), 64)
	if err != nil {
		return nil, fmt.Errorf("point %q: %w", s, err)
	}
	return &model.Point{X: x, Y: y}, nil
}
