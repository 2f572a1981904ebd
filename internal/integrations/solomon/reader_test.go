package solomon

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"elasticroute/internal/model"
)

const c1 = `C1TINY

VEHICLE
NUMBER     CAPACITY
   2         20

CUSTOMER
CUST NO.  XCOORD.   YCOORD.    DEMAND   READY TIME  DUE DATE   SERVICE   TIME

    0      40         50          0          0       1236          0
    1      45         68         10        912        967         90
    2      45         70         15        825        870         90
`

func TestRead(t *testing.T) {
	inst, err := Reader{}.Read(strings.NewReader(c1), "c1tiny")
	require.NoError(t, err)
	require.Equal(t, "C1TINY", inst.Name)
	require.Len(t, inst.Nodes, 3)
	require.Equal(t, "depot", inst.Nodes[0].Role)
	require.Len(t, inst.Requests, 2)

	r := inst.Requests[1]
	require.Equal(t, "2", r.ID)
	require.Equal(t, "0", r.Sender)
	require.Equal(t, 15.0, r.Quantity)
	require.Equal(t, []model.TimeWindow{{Earliest: 825, Latest: 870}}, r.Delivery.Windows)
	require.Equal(t, 90.0, r.Delivery.Service)

	require.Len(t, inst.Vehicles, 2)
	require.Equal(t, 20.0, inst.Vehicles[0].Capacity)
	require.Equal(t, &model.TimeWindow{Earliest: 0, Latest: 1236}, inst.Vehicles[0].Shift)

	p, err := model.Build(*inst)
	require.NoError(t, err)
	require.True(t, p.HasTimeWindows())
	require.NoError(t, p.Validate())
}

func TestReadErrors(t *testing.T) {
	_, err := Reader{}.Read(strings.NewReader("X\nCUSTOMER\n0 1 2 3 4 5 6\n"), "x")
	require.ErrorIs(t, err, ErrFormat)
	_, err = Reader{}.Read(strings.NewReader("X\nVEHICLE\n1 10\nCUSTOMER\n0 1 2\n"), "x")
	require.ErrorIs(t, err, ErrFormat)
	_, err = Reader{}.Read(strings.NewReader("X\n1 2\n"), "x")
	require.ErrorIs(t, err, ErrFormat)
}
