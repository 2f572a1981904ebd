package construct

import (
	"context"
	"math"
	"slices"

	"elasticroute/internal/route"
	"elasticroute/internal/vrp"
)

// table caches the best insertion of every pending request into every route.
// Only the column of a route that changed is recomputed.
type table struct {
	s     *route.Solution
	cm    route.CostModel
	reqs  []vrp.RequestID
	cells [][]cell
}

type cell struct {
	ins route.Insertion
	ok  bool
}

func newTable(s *route.Solution, reqs []vrp.RequestID, cm route.CostModel) *table {
	t := &table{s: s, cm: cm, reqs: append([]vrp.RequestID(nil), reqs...)}
	nv := len(s.Routes())
	t.cells = make([][]cell, len(t.reqs))
	for i, req := range t.reqs {
		t.cells[i] = make([]cell, nv)
		for v := 0; v < nv; v++ {
			ins, ok := route.BestInsertion(s.Route(vrp.VehicleID(v)), req, cm)
			t.cells[i][v] = cell{ins, ok}
		}
	}
	return t
}

func (t *table) refresh(v vrp.VehicleID) {
	r := t.s.Route(v)
	for i, req := range t.reqs {
		ins, ok := route.BestInsertion(r, req, t.cm)
		t.cells[i][v] = cell{ins, ok}
	}
}

func (t *table) drop(i int) {
	t.reqs = append(t.reqs[:i], t.reqs[i+1:]...)
	t.cells = append(t.cells[:i], t.cells[i+1:]...)
}

func (t *table) apply(i int) error {
	var best route.Insertion
	found := false
	for _, c := range t.cells[i] {
		if c.ok && (!found || c.ins.Delta < best.Delta) {
			best, found = c.ins, true
		}
	}
	if !found {
		return nil
	}
	if err := best.Apply(t.s); err != nil {
		return err
	}
	t.drop(i)
	t.refresh(best.Vehicle)
	return nil
}

// InsertGreedy inserts reqs into s one at a time, always choosing the
// cheapest request/route/position combination over all pending requests.
// Ties go to the lower request id, then the lower vehicle id, then the
// earlier position. A request whose cheapest insertion costs at least the
// unassigned penalty stays unassigned and is returned.
//
// Complexity: O(R·V) insertion scans up front, then O(R) per placement.
func InsertGreedy(ctx context.Context, s *route.Solution, reqs []vrp.RequestID, cm route.CostModel) ([]vrp.RequestID, error) {
	t := newTable(s, sortedCopy(reqs), cm)
	for len(t.reqs) > 0 {
		if err := ctx.Err(); err != nil {
			return t.reqs, err
		}
		bi, bv := -1, -1
		bd := math.Inf(1)
		for i := range t.reqs {
			for v, c := range t.cells[i] {
				if c.ok && c.ins.Delta < bd {
					bi, bv, bd = i, v, c.ins.Delta
				}
			}
		}
		if bi < 0 || bd >= cm.UnassignedPenalty {
			break
		}
		ins := t.cells[bi][bv].ins
		if err := ins.Apply(s); err != nil {
			return t.reqs, err
		}
		t.drop(bi)
		t.refresh(ins.Vehicle)
	}
	return t.reqs, nil
}

// InsertRegret inserts reqs by the regret-2 rule: the request that would lose
// most by not getting its best route goes first. The unassigned penalty
// stands in for a missing second route.
func InsertRegret(ctx context.Context, s *route.Solution, reqs []vrp.RequestID, cm route.CostModel) ([]vrp.RequestID, error) {
	t := newTable(s, sortedCopy(reqs), cm)
	for len(t.reqs) > 0 {
		if err := ctx.Err(); err != nil {
			return t.reqs, err
		}
		bi := -1
		var bRegret, bCost float64
		for i := range t.reqs {
			b1, b2 := math.Inf(1), math.Inf(1)
			for _, c := range t.cells[i] {
				if !c.ok {
					continue
				}
				switch d := c.ins.Delta; {
				case d < b1:
					b1, b2 = d, b1
				case d < b2:
					b2 = d
				}
			}
			if b1 >= cm.UnassignedPenalty {
				continue
			}
			regret := min(b2, cm.UnassignedPenalty) - b1
			if bi < 0 || regret > bRegret || (regret == bRegret && b1 < bCost) {
				bi, bRegret, bCost = i, regret, b1
			}
		}
		if bi < 0 {
			break
		}
		if err := t.apply(bi); err != nil {
			return t.reqs, err
		}
	}
	return t.reqs, nil
}

// InsertSequential places reqs in the given order, each at its cheapest
// position at the time it is considered.
func InsertSequential(ctx context.Context, s *route.Solution, reqs []vrp.RequestID, cm route.CostModel) ([]vrp.RequestID, error) {
	var left []vrp.RequestID
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return append(left, req), err
		}
		var best route.Insertion
		found := false
		for _, r := range s.Routes() {
			ins, ok := route.BestInsertion(r, req, cm)
			if ok && (!found || ins.Delta < best.Delta) {
				best, found = ins, true
			}
		}
		if !found || best.Delta >= cm.UnassignedPenalty {
			left = append(left, req)
			continue
		}
		if err := best.Apply(s); err != nil {
			return left, err
		}
	}
	return left, nil
}

func sortedCopy(reqs []vrp.RequestID) []vrp.RequestID {
	out := append([]vrp.RequestID(nil), reqs...)
	slices.Sort(out)
	return out
}

func allRequests(p *vrp.Problem) []vrp.RequestID {
	out := make([]vrp.RequestID, p.NumRequests())
	for i := range out {
		out[i] = vrp.RequestID(i)
	}
	return out
}
