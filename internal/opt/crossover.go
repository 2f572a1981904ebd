package opt

import (
	"context"

	"elasticroute/internal/construct"
	"elasticroute/internal/rng"
	"elasticroute/internal/route"
	"elasticroute/internal/vrp"
)

// routeExchange copies parent a and installs one random non-empty route of
// parent b on the same vehicle. Requests of that route leave their old
// places in the copy; requests the vehicle served before, and anything
// unassigned, are reinserted by cheapest insertion in ascending id order.
func routeExchange(a, b *route.Solution, cm route.CostModel, r *rng.RNG) *route.Solution {
	child := a.Clone()
	routes := b.Routes()
	v := r.Pick(len(routes), func(i int) bool { return !routes[i].Empty() })
	if v < 0 {
		return child
	}
	child.ReplaceRoute(routes[v].Clone())
	_, _ = construct.InsertGreedy(context.Background(), child, child.Unassigned(), cm)
	return child
}

// orderCrossover applies OX to the giant tours of both parents and splits the
// child tour. It returns nil when the tour cannot be split.
func orderCrossover(a, b *route.Solution, cm route.CostModel, r *rng.RNG) *route.Solution {
	ta, tb := fullTour(a), fullTour(b)
	n := len(ta)
	if n < 2 {
		return nil
	}
	i, j := r.Intn(n), r.Intn(n)
	if i > j {
		i, j = j, i
	}
	child := make([]vrp.RequestID, n)
	used := make(map[vrp.RequestID]bool, j-i+1)
	for k := i; k <= j; k++ {
		child[k] = ta[k]
		used[ta[k]] = true
	}
	pos := (j + 1) % n
	for k := 0; k < n; k++ {
		req := tb[(j+1+k)%n]
		if used[req] {
			continue
		}
		child[pos] = req
		pos = (pos + 1) % n
	}
	s, err := construct.Split(a.Problem(), child, cm)
	if err != nil {
		return nil
	}
	return s
}

// fullTour is the giant tour followed by the unassigned requests.
func fullTour(s *route.Solution) []vrp.RequestID {
	return append(s.GiantTour(), s.Unassigned()...)
}
