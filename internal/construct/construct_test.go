package construct

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"elasticroute/internal/geo"
	"elasticroute/internal/rng"
	"elasticroute/internal/route"
	"elasticroute/internal/vrp"
)

// ring builds a depot at the origin with customers on a circle of radius 10,
// one depot delivery request each.
func ring(t *testing.T, customers int, demand, capacity float64, vehicles int) *vrp.Problem {
	t.Helper()
	p := vrp.New()
	require.NoError(t, p.SetCoordSystem(geo.Cartesian2D))
	d, err := p.AddNode("depot", vrp.Depot)
	require.NoError(t, err)
	require.NoError(t, p.SetNodeCoord(d, geo.Coord{}))
	for i := 0; i < customers; i++ {
		n, err := p.AddNode(fmt.Sprintf("c%d", i), vrp.Customer)
		require.NoError(t, err)
		a := 2 * math.Pi * float64(i) / float64(customers)
		require.NoError(t, p.SetNodeCoord(n, geo.Coord{X: 10 * math.Cos(a), Y: 10 * math.Sin(a)}))
		_, err = p.AddRequest(fmt.Sprintf("r%d", i), d, n, demand)
		require.NoError(t, err)
	}
	for v := 0; v < vehicles; v++ {
		_, err := p.AddVehicle(fmt.Sprintf("v%d", v), capacity, d, d)
		require.NoError(t, err)
	}
	require.NoError(t, p.GenerateDistances(geo.Beeline))
	require.NoError(t, p.GenerateDurations(1))
	require.NoError(t, p.Validate())
	p.Freeze()
	return p
}

func TestHeuristicsKeepInvariant(t *testing.T) {
	p := ring(t, 12, 3, 12, 4)
	cm := route.DefaultCostModel()
	for _, h := range Defaults() {
		t.Run(h.Name(), func(t *testing.T) {
			sols, err := h.Build(context.Background(), p, cm, rng.New(7), 5)
			require.NoError(t, err)
			require.NotEmpty(t, sols)
			require.LessOrEqual(t, len(sols), 5)
			for _, s := range sols {
				require.NoError(t, s.CheckInvariant())
				require.Empty(t, s.Unassigned())
				e := s.Evaluate(cm)
				require.True(t, e.Feasible(), "%s: %+v", h.Name(), e)
			}
		})
	}
}

func TestDeterministicHeuristicsRepeat(t *testing.T) {
	p := ring(t, 9, 2, 7, 3)
	cm := route.DefaultCostModel()
	for _, h := range Defaults() {
		a, err := h.Build(context.Background(), p, cm, rng.New(1), 3)
		require.NoError(t, err)
		b, err := h.Build(context.Background(), p, cm, rng.New(1), 3)
		require.NoError(t, err)
		require.Len(t, b, len(a))
		for i := range a {
			require.Equal(t, a[i].Key(), b[i].Key(), h.Name())
		}
	}
}

func TestCapacityForcesTwoRoutes(t *testing.T) {
	p := ring(t, 2, 6, 10, 2)
	cm := route.DefaultCostModel()
	for _, h := range Defaults() {
		sols, err := h.Build(context.Background(), p, cm, rng.New(3), 1)
		require.NoError(t, err)
		for _, s := range sols {
			require.Equal(t, 2, s.UsedVehicles(), h.Name())
			require.True(t, s.Evaluate(cm).Feasible(), h.Name())
		}
	}
}

func TestInsertGreedyLeavesUnplaceable(t *testing.T) {
	p := ring(t, 3, 4, 0, 1)
	s := route.NewSolution(p)
	cm := route.DefaultCostModel()
	left, err := InsertGreedy(context.Background(), s, allRequests(p), cm)
	require.NoError(t, err)
	require.Equal(t, []vrp.RequestID{0, 1, 2}, left)
	require.NoError(t, s.CheckInvariant())
	require.Equal(t, 3, s.Evaluate(cm).Unassigned)
}

func TestInsertRegretMatchesGreedyOnSingleVehicle(t *testing.T) {
	p := ring(t, 6, 1, 100, 1)
	cm := route.DefaultCostModel()
	g := route.NewSolution(p)
	_, err := InsertGreedy(context.Background(), g, allRequests(p), cm)
	require.NoError(t, err)
	r := route.NewSolution(p)
	_, err = InsertRegret(context.Background(), r, allRequests(p), cm)
	require.NoError(t, err)
	require.InDelta(t, g.Cost(cm), r.Cost(cm), 1e-6)
}

func TestSplitCutsAtCapacity(t *testing.T) {
	p := ring(t, 4, 5, 10, 3)
	cm := route.DefaultCostModel()
	s, err := Split(p, []vrp.RequestID{0, 1, 2, 3}, cm)
	require.NoError(t, err)
	require.NoError(t, s.CheckInvariant())
	require.True(t, s.Evaluate(cm).Feasible())
	for _, r := range s.Routes() {
		require.LessOrEqual(t, r.PeakLoad(), 10.0)
	}
	require.Equal(t, []vrp.RequestID{0, 1, 2, 3}, s.GiantTour())
}

func TestSplitOverflowsWhenFleetTooSmall(t *testing.T) {
	p := ring(t, 4, 5, 10, 1)
	cm := route.DefaultCostModel()
	s, err := Split(p, []vrp.RequestID{3, 2, 1, 0}, cm)
	require.NoError(t, err)
	require.NoError(t, s.CheckInvariant())
	require.Empty(t, s.Unassigned())
	e := s.Evaluate(cm)
	require.False(t, e.Feasible())
	require.InDelta(t, 10.0, e.CapacityExcess, 1e-9)
}

func TestSplitRejectsPickupAndDelivery(t *testing.T) {
	p := vrp.New()
	d, _ := p.AddNode("d", vrp.Depot)
	a, _ := p.AddNode("a", vrp.Customer)
	b, _ := p.AddNode("b", vrp.Customer)
	_, err := p.AddRequest("r", a, b, 1)
	require.NoError(t, err)
	_, err = p.AddVehicle("v", 5, d, d)
	require.NoError(t, err)

	_, err = Split(p, []vrp.RequestID{0}, route.DefaultCostModel())
	require.ErrorIs(t, err, ErrNotSingleVisit)

	sols, err := Savings{}.Build(context.Background(), p, route.DefaultCostModel(), nil, 0)
	require.NoError(t, err)
	require.Empty(t, sols)
}

func TestSavingsLambdaCount(t *testing.T) {
	p := ring(t, 8, 1, 4, 2)
	sols, err := Savings{}.Build(context.Background(), p, route.DefaultCostModel(), nil, 0)
	require.NoError(t, err)
	require.Len(t, sols, len(savingsLambdas))
}

func TestRandomSplitDependsOnSeed(t *testing.T) {
	p := ring(t, 10, 1, 3, 4)
	cm := route.DefaultCostModel()
	a, err := RandomSplit{}.Build(context.Background(), p, cm, rng.New(11), 4)
	require.NoError(t, err)
	b, err := RandomSplit{}.Build(context.Background(), p, cm, rng.New(11), 4)
	require.NoError(t, err)
	for i := range a {
		require.Equal(t, a[i].Key(), b[i].Key())
	}
}

func TestBuildStopsOnCancel(t *testing.T) {
	p := ring(t, 5, 1, 10, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := CheapestInsertion{}.Build(ctx, p, route.DefaultCostModel(), nil, 1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestByName(t *testing.T) {
	hs, err := ByName("sweep", "cheapest")
	require.NoError(t, err)
	require.Equal(t, "sweep", hs[0].Name())
	require.Equal(t, "cheapest", hs[1].Name())

	_, err = ByName("tabu")
	require.ErrorIs(t, err, ErrUnknownHeuristic)
}
