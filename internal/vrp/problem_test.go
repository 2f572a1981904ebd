package vrp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"elasticroute/internal/container"
	"elasticroute/internal/geo"
)

func smallProblem(t *testing.T) (*Problem, NodeID, NodeID, NodeID) {
	t.Helper()
	p := New()
	require.NoError(t, p.SetCoordSystem(geo.Cartesian2D))
	d, err := p.AddNode("depot", Depot)
	require.NoError(t, err)
	a, err := p.AddNode("a", Customer)
	require.NoError(t, err)
	b, err := p.AddNode("b", Customer)
	require.NoError(t, err)
	require.NoError(t, p.SetNodeCoord(d, geo.Coord{X: 0, Y: 0}))
	require.NoError(t, p.SetNodeCoord(a, geo.Coord{X: 3, Y: 4}))
	require.NoError(t, p.SetNodeCoord(b, geo.Coord{X: 6, Y: 8}))
	return p, d, a, b
}

func TestDuplicateExternalIDs(t *testing.T) {
	p, d, a, _ := smallProblem(t)

	_, err := p.AddNode("a", Customer)
	require.ErrorIs(t, err, ErrValidation)
	require.ErrorIs(t, err, ErrDuplicateID)

	_, err = p.AddRequest("r1", d, a, 1)
	require.NoError(t, err)
	_, err = p.AddRequest("r1", d, a, 1)
	require.ErrorIs(t, err, ErrDuplicateID)

	_, err = p.AddVehicle("v", 10, d, d)
	require.NoError(t, err)
	_, err = p.AddVehicle("v", 10, d, d)
	require.ErrorIs(t, err, ErrDuplicateID)

	id, ok := p.QueryNode("a")
	require.True(t, ok)
	require.Equal(t, a, id)
	_, ok = p.QueryNode("nope")
	require.False(t, ok)
}

func TestRequestValidation(t *testing.T) {
	p, d, a, _ := smallProblem(t)

	_, err := p.AddRequest("neg", d, a, -1)
	require.ErrorIs(t, err, ErrNegativeQuantity)

	_, err = p.AddRequest("ghost", d, 99, 1)
	require.ErrorIs(t, err, ErrUnknownNode)

	_, err = p.AddRequest("nothing", None, None, 1)
	require.ErrorIs(t, err, ErrValidation)

	r, err := p.AddRequest("visit", None, a, 0)
	require.NoError(t, err)
	require.True(t, p.Request(r).IsVisit())

	var ve *ValidationError
	_, err = p.AddRequest("neg2", d, a, -5)
	require.True(t, errors.As(err, &ve))
	require.Equal(t, "AddRequest", ve.Op)
	require.Contains(t, err.Error(), "vrp: AddRequest:")
}

func TestTimeWindows(t *testing.T) {
	p, d, a, _ := smallProblem(t)
	r, err := p.AddRequest("r", d, a, 1)
	require.NoError(t, err)

	require.ErrorIs(t, p.AddTimeWindow(r, Delivery, 10, 5), ErrBadTimeWindow)
	require.ErrorIs(t, p.AddTimeWindow(r, Delivery, -1, 5), ErrBadTimeWindow)

	require.NoError(t, p.AddTimeWindow(r, Delivery, 50, 60))
	require.NoError(t, p.AddTimeWindow(r, Delivery, 10, 20))
	require.ErrorIs(t, p.AddTimeWindow(r, Delivery, 15, 30), ErrBadTimeWindow)

	ws := p.Request(r).Receiver.Windows
	require.Equal(t, []TimeWindow{{10, 20}, {50, 60}}, ws)

	v, err := p.AddRequest("v", None, a, 1)
	require.NoError(t, err)
	require.ErrorIs(t, p.AddTimeWindow(v, Pickup, 0, 5), ErrValidation)
	require.ErrorIs(t, p.SetServiceDuration(r, Delivery, -3), ErrValidation)
	require.NoError(t, p.SetServiceDuration(r, Delivery, 3))
	require.True(t, p.HasTimeWindows())
}

func TestVehicleValidation(t *testing.T) {
	p, d, _, _ := smallProblem(t)
	_, err := p.AddVehicle("neg", -1, d, d)
	require.ErrorIs(t, err, ErrValidation)
	_, err = p.AddVehicle("bad", 1, 42, d)
	require.ErrorIs(t, err, ErrUnknownNode)

	v, err := p.AddVehicle("open", 0, d, None)
	require.NoError(t, err)
	require.Equal(t, NodeID(None), p.Vehicle(v).End)
	require.ErrorIs(t, p.SetVehicleShift(v, 5, 1), ErrBadTimeWindow)
	require.NoError(t, p.SetVehicleShift(v, 0, 100))
}

func TestValidateGate(t *testing.T) {
	p, d, a, _ := smallProblem(t)
	_, err := p.AddRequest("r", d, a, 1)
	require.NoError(t, err)

	err = p.Validate()
	require.ErrorIs(t, err, ErrConfiguration)
	require.ErrorIs(t, err, ErrNoVehicles)

	_, err = p.AddVehicle("v", 10, d, d)
	require.NoError(t, err)
	require.ErrorIs(t, p.Validate(), ErrNoDistances)

	require.NoError(t, p.GenerateDistances(geo.Beeline))
	require.NoError(t, p.Validate())

	r2, err := p.AddRequest("r2", d, a, 1)
	require.NoError(t, err)
	require.NoError(t, p.AddTimeWindow(r2, Delivery, 0, 10))
	require.ErrorIs(t, p.Validate(), ErrNoDurations)

	require.NoError(t, p.GenerateDurations(1))
	require.NoError(t, p.Validate())
}

func TestGenerateDistancesRequiresCoordinates(t *testing.T) {
	p := New()
	require.ErrorIs(t, p.GenerateDistances(geo.Beeline), ErrConfiguration)

	_, err := p.AddNode("x", Depot)
	require.NoError(t, err)
	require.ErrorIs(t, p.GenerateDistances(geo.Beeline), ErrNoCoordinates)

	require.NoError(t, p.SetCoordSystem(geo.Cartesian2D))
	require.ErrorIs(t, p.GenerateDistances(geo.Beeline), ErrNoCoordinates)
	require.ErrorIs(t, p.SetCoordSystem(geo.WGS84), ErrConfiguration)
}

func TestGenerateDistancesIdempotent(t *testing.T) {
	p, d, a, b := smallProblem(t)
	require.NoError(t, p.GenerateDistances(geo.Beeline))
	first := p.DistanceMatrix().Clone()
	require.NoError(t, p.GenerateDistances(geo.Beeline))
	require.True(t, first.Equal(p.DistanceMatrix()))

	require.Equal(t, 5.0, p.Distance(d, a))
	require.Equal(t, 10.0, p.Distance(d, b))
	require.Equal(t, p.Distance(a, b), p.Distance(b, a))
	require.Zero(t, p.Distance(a, a))
}

func TestDurationsInvalidatedByRegeneration(t *testing.T) {
	p, d, a, _ := smallProblem(t)
	require.ErrorIs(t, p.GenerateDurations(1), ErrNoDistances)

	require.NoError(t, p.GenerateDistances(geo.Beeline))
	require.ErrorIs(t, p.GenerateDurations(0), ErrConfiguration)
	require.NoError(t, p.GenerateDurations(2))
	require.Equal(t, 2.5, p.Duration(d, a))

	require.NoError(t, p.GenerateDistances(geo.Beeline))
	require.False(t, p.HasDurations())
}

func TestArcOverrides(t *testing.T) {
	p, d, a, _ := smallProblem(t)
	require.NoError(t, p.SetArcDistance(d, a, 7))
	require.Equal(t, 7.0, p.Distance(d, a))
	require.Zero(t, p.Distance(a, d))
	require.ErrorIs(t, p.SetArcDistance(d, a, -1), ErrValidation)
	require.ErrorIs(t, p.SetArcDuration(d, 77, 1), ErrUnknownNode)

	m, err := container.NewMatrix[float64](2, 2)
	require.NoError(t, err)
	require.ErrorIs(t, p.SetDistanceMatrix(m), ErrValidation)
}

func TestFreezeRejectsMutation(t *testing.T) {
	p, d, a, _ := smallProblem(t)
	p.Freeze()
	_, err := p.AddNode("late", Customer)
	require.ErrorIs(t, err, ErrFrozen)
	require.ErrorIs(t, err, ErrConfiguration)
	_, err = p.AddRequest("late", d, a, 1)
	require.ErrorIs(t, err, ErrFrozen)
	require.ErrorIs(t, p.GenerateDistances(geo.Beeline), ErrFrozen)
}

func TestExplicitSides(t *testing.T) {
	p, d, a, b := smallProblem(t)
	v, err := p.AddVehicle("v", 10, d, d)
	require.NoError(t, err)

	out, _ := p.AddRequest("out", d, a, 1)
	back, _ := p.AddRequest("back", a, d, 1)
	pd, _ := p.AddRequest("pd", a, b, 1)
	visit, _ := p.AddRequest("visit", None, b, 1)

	pk, dl := p.Explicit(out, v)
	require.False(t, pk)
	require.True(t, dl)

	pk, dl = p.Explicit(back, v)
	require.True(t, pk)
	require.False(t, dl)

	pk, dl = p.Explicit(pd, v)
	require.True(t, pk)
	require.True(t, dl)

	pk, dl = p.Explicit(visit, v)
	require.False(t, pk)
	require.True(t, dl)

	require.False(t, p.IsSingleVisit())
}

func TestHomogeneousFleet(t *testing.T) {
	p, d, _, _ := smallProblem(t)
	_, _ = p.AddVehicle("v1", 10, d, d)
	_, _ = p.AddVehicle("v2", 10, d, d)
	require.True(t, p.HomogeneousFleet())
	_, _ = p.AddVehicle("v3", 5, d, d)
	require.False(t, p.HomogeneousFleet())
}
