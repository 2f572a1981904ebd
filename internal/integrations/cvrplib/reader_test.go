package cvrplib

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"elasticroute/internal/model"
)

const small = `NAME : T-n4-k2
COMMENT : tiny test instance
TYPE : CVRP
DIMENSION : 4
EDGE_WEIGHT_TYPE : EUC_2D
CAPACITY : 10
NODE_COORD_SECTION
 1 0 0
 2 3 4
 3 -3 4
 4 0 -2
DEMAND_SECTION
1 0
2 6
3 6
4 3
DEPOT_SECTION
 1
 -1
EOF
`

func TestReadEuclidean(t *testing.T) {
	inst, err := Reader{}.Read(strings.NewReader(small), "ignored")
	require.NoError(t, err)
	require.Equal(t, "T-n4-k2", inst.Name)
	require.Equal(t, "cartesian", inst.CoordSystem)
	require.Equal(t, "beeline_rounded", inst.Metric)
	require.Len(t, inst.Nodes, 4)
	require.Equal(t, "depot", inst.Nodes[0].Role)
	require.Equal(t, &model.Point{X: -3, Y: 4}, inst.Nodes[2].Location)
	require.Len(t, inst.Requests, 3)
	require.Equal(t, model.Request{ID: "2", Sender: "1", Receiver: "2", Quantity: 6}, inst.Requests[0])
	require.Len(t, inst.Vehicles, 2)
	require.Equal(t, 10.0, inst.Vehicles[1].Capacity)

	p, err := model.Build(*inst)
	require.NoError(t, err)
	require.Equal(t, 5.0, p.Distance(0, 1))
	require.Equal(t, 2.0, p.Distance(0, 3))
}

func TestReadExplicitLowerRow(t *testing.T) {
	src := `NAME : E-n3
DIMENSION : 3
CAPACITY : 5
EDGE_WEIGHT_TYPE : EXPLICIT
EDGE_WEIGHT_FORMAT : LOWER_ROW
EDGE_WEIGHT_SECTION
 7
 8 9
DEMAND_SECTION
1 0
2 1
3 1
DEPOT_SECTION
1
-1
EOF`
	inst, err := Reader{}.Read(strings.NewReader(src), "E-n3-k1.vrp")
	require.NoError(t, err)
	require.Equal(t, [][]float64{{0, 7, 8}, {7, 0, 9}, {8, 9, 0}}, inst.Distances)
	require.Len(t, inst.Vehicles, 1)

	p, err := model.Build(*inst)
	require.NoError(t, err)
	require.Equal(t, 9.0, p.Distance(2, 1))
}

func TestFleetFallback(t *testing.T) {
	src := strings.Replace(small, "T-n4-k2", "T-n4", 1)
	inst, err := Reader{}.Read(strings.NewReader(src), "T-n4")
	require.NoError(t, err)
	require.Len(t, inst.Vehicles, 3)
}

func TestReadErrors(t *testing.T) {
	for name, src := range map[string]string{
		"no dimension": "NAME : x\nEOF\n",
		"bad index":    "DIMENSION : 2\nNODE_COORD_SECTION\n3 0 0\n",
		"missing xy":   "DIMENSION : 2\nNODE_COORD_SECTION\n1 0 0\n",
		"weight count": "DIMENSION : 3\nEDGE_WEIGHT_TYPE : EXPLICIT\nEDGE_WEIGHT_FORMAT : LOWER_ROW\nEDGE_WEIGHT_SECTION\n1 2\n",
	} {
		_, err := Reader{}.Read(strings.NewReader(src), "x")
		require.ErrorIs(t, err, ErrFormat, name)
	}
	_, err := Reader{}.Read(strings.NewReader("DIMENSION : 2\nEDGE_WEIGHT_TYPE : GEO\n"), "x")
	require.ErrorIs(t, err, ErrUnsupported)
}
