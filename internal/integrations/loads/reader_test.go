package loads

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"elasticroute/internal/model"
	"elasticroute/internal/opt"
)

const twoLoads = `loadNumber pickup dropoff
1 (-50.1,80.0) (90.1,12.2)
2 (-24.5,-19.2) (98.5,1.8)
`

func TestRead(t *testing.T) {
	inst, err := Reader{}.Read(strings.NewReader(twoLoads), "problem1")
	require.NoError(t, err)
	require.Len(t, inst.Nodes, 5)
	require.Equal(t, &model.Point{X: 90.1, Y: 12.2}, inst.Nodes[2].Location)
	require.Equal(t, model.Request{ID: "2", Sender: "p2", Receiver: "d2", Quantity: 1}, inst.Requests[1])
	require.Len(t, inst.Vehicles, 2)
	require.Equal(t, float64(ShiftLength), inst.Vehicles[0].Shift.Latest)
}

func TestSolvePickupAndDelivery(t *testing.T) {
	inst, err := Reader{}.Read(strings.NewReader(twoLoads), "problem1")
	require.NoError(t, err)
	p, err := model.Build(*inst)
	require.NoError(t, err)
	require.False(t, p.IsSingleVisit())

	cfg := opt.DefaultConfig()
	seed := uint64(1)
	cfg.Evol.Seed = &seed
	cfg.Evol.PopulationSize = 8
	cfg.Evol.MaxGenerations = 10
	cfg.Evol.StallGenerations = 0
	cfg.Evol.StallPeriod = 0
	res, err := opt.Solve(context.Background(), p, cfg)
	require.NoError(t, err)
	require.True(t, res.Feasible)
	require.NoError(t, res.Solution.CheckInvariant())
	for _, r := range res.Solution.Routes() {
		require.NoError(t, r.Valid())
		require.LessOrEqual(t, r.PeakLoad(), 1.0)
	}
}

func TestReadErrors(t *testing.T) {
	for _, src := range []string{
		"loadNumber pickup dropoff\n",
		"h h h\nx (1,2) (3,4)\n",
		"h h h\n1 (1,2,5) (3,4)\n",
		"h h h\n1 (1;2) (3,4)\n",
	} {
		_, err := Reader{}.Read(strings.NewReader(src), "x")
		require.ErrorIs(t, err, ErrFormat, src)
	}
}
