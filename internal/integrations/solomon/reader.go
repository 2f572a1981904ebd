// Package solomon reads VRPTW instances in the format of Solomon's 1987
// benchmark set and its Gehring & Homberger extensions.
package solomon

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"elasticroute/internal/model"
)

var ErrFormat = errors.New("solomon: malformed instance")

type Reader struct{}

func (Reader) Name() string { return "solomon" }

// Read parses one instance. The first customer row is the depot: its window
// becomes the vehicle shift and the pickup window of every request. Each
// other row is a depot->customer request with the row's window and service
// time on the delivery side. Distances are unrounded Euclidean and travel
// takes one time unit per distance unit.
func (Reader) Read(r io.Reader, name string) (*model.Instance, error) {
	inst := &model.Instance{Name: name, CoordSystem: "cartesian", Metric: "beeline", Speed: 1}
	var (
		lineNo   int
		state    string
		vehicles int
		capacity float64
		rows     [][7]float64
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		f := strings.Fields(line)
		switch {
		case strings.EqualFold(f[0], "VEHICLE"):
			state = "vehicle"
			continue
		case strings.EqualFold(f[0], "CUSTOMER"):
			state = "customer"
			continue
		case !numeric(f[0]):
			// the title line precedes the sections; column headers are skipped
			if state == "" {
				inst.Name = line
			}
			continue
		}

		switch state {
		case "vehicle":
			if len(f) < 2 {
				return nil, fmt.Errorf("%w: line %d: vehicle line %q", ErrFormat, lineNo, line)
			}
			k, err1 := strconv.Atoi(f[0])
			c, err2 := strconv.ParseFloat(f[1], 64)
			if err1 != nil || err2 != nil {
				return nil, fmt.Errorf("%w: line %d: vehicle line %q", ErrFormat, lineNo, line)
			}
			vehicles, capacity = k, c
		case "customer":
			if len(f) < 7 {
				return nil, fmt.Errorf("%w: line %d: customer row has %d fields", ErrFormat, lineNo, len(f))
			}
			var row [7]float64
			for i := 0; i < 7; i++ {
				v, err := strconv.ParseFloat(f[i], 64)
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: field %d: %v", ErrFormat, lineNo, i+1, err)
				}
				row[i] = v
			}
			rows = append(rows, row)
		default:
			return nil, fmt.Errorf("%w: line %d: data outside a section", ErrFormat, lineNo)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("solomon: read: %w", err)
	}
	if vehicles < 1 {
		return nil, fmt.Errorf("%w: no VEHICLE section", ErrFormat)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no customers", ErrFormat)
	}

	depot := rows[0]
	depotID := id(depot[0])
	shift := model.TimeWindow{Earliest: depot[4], Latest: depot[5]}
	for i, row := range rows {
		role := "customer"
		if i == 0 {
			role = "depot"
		}
		inst.Nodes = append(inst.Nodes, model.Node{ID: id(row[0]), Role: role, Location: &model.Point{X: row[1], Y: row[2]}})
		if i == 0 {
			continue
		}
		inst.Requests = append(inst.Requests, model.Request{
			ID:       id(row[0]),
			Sender:   depotID,
			Receiver: id(row[0]),
			Quantity: row[3],
			Pickup:   &model.Endpoint{Windows: []model.TimeWindow{shift}},
			Delivery: &model.Endpoint{
				Windows: []model.TimeWindow{{Earliest: row[4], Latest: row[5]}},
				Service: row[6],
			},
		})
	}
	for v := 1; v <= vehicles; v++ {
		s := shift
		inst.Vehicles = append(inst.Vehicles, model.Vehicle{
			ID:       "v" + strconv.Itoa(v),
			Capacity: capacity,
			Start:    depotID,
			End:      depotID,
			Shift:    &s,
		})
	}
	return inst, nil
}

func numeric(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func id(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
