// Package vrp holds the problem model: nodes, transport requests, vehicles,
// and the distance and duration matrices between nodes.
//
// Entities are referenced by stable integer handles assigned in insertion
// order. Mutators validate their input and return *ValidationError or
// *ConfigurationError. Once Freeze has been called the model is read-only
// and may be shared by any number of goroutines without locking.
package vrp

import (
	"fmt"
	"math"
	"sort"

	"elasticroute/internal/container"
	"elasticroute/internal/geo"
)

type (
	NodeID    int
	RequestID int
	VehicleID int
)

// None marks an absent node, request or vehicle reference.
const None = -1

// Role describes what a node is used for.
type Role int

const (
	RoleNone Role = iota
	Depot
	Customer
)

func (r Role) String() string {
	switch r {
	case Depot:
		return "depot"
	case Customer:
		return "customer"
	default:
		return "none"
	}
}

// Side selects the sender (pickup) or receiver (delivery) end of a request.
type Side int

const (
	Pickup Side = iota
	Delivery
)

func (s Side) String() string {
	if s == Pickup {
		return "pickup"
	}
	return "delivery"
}

// TimeWindow is an inclusive interval in the model's time unit.
type TimeWindow struct {
	Earliest float64
	Latest   float64
}

type Node struct {
	ExtID    string
	Role     Role
	Coord    geo.Coord
	HasCoord bool
}

// Endpoint is one side of a request: where it happens, when it may start and
// how long it takes.
type Endpoint struct {
	Node    NodeID
	Windows []TimeWindow
	Service float64
}

type Request struct {
	ExtID    string
	Sender   Endpoint
	Receiver Endpoint
	Quantity float64
}

// End returns the endpoint for side.
func (r *Request) End(side Side) *Endpoint {
	if side == Pickup {
		return &r.Sender
	}
	return &r.Receiver
}

// IsVisit reports whether the request has only one located side.
func (r *Request) IsVisit() bool {
	return r.Sender.Node == None || r.Receiver.Node == None
}

type Vehicle struct {
	ExtID    string
	Capacity float64
	Start    NodeID
	End      NodeID
	// Shift bounds departure and return when HasShift is set.
	Shift    TimeWindow
	HasShift bool
}

// Problem is the mutable-until-frozen model registry.
type Problem struct {
	sys    geo.System
	sysSet bool

	nodes    *container.Array[Node]
	requests *container.Array[Request]
	vehicles *container.Array[Vehicle]

	nodeIdx    *container.Map[string, NodeID]
	requestIdx *container.Map[string, RequestID]
	vehicleIdx *container.Map[string, VehicleID]

	dist       *container.Matrix[float64]
	dur        *container.Matrix[float64]
	durDerived bool
	speed      float64

	frozen bool
}

func New() *Problem {
	return &Problem{
		nodes:      container.NewArray[Node](16),
		requests:   container.NewArray[Request](16),
		vehicles:   container.NewArray[Vehicle](4),
		nodeIdx:    container.NewMap[string, NodeID](16),
		requestIdx: container.NewMap[string, RequestID](16),
		vehicleIdx: container.NewMap[string, VehicleID](4),
	}
}

func (p *Problem) mutable(op string) error {
	if p.frozen {
		return misconfigured(op, ErrFrozen, "model can no longer be changed")
	}
	return nil
}

// SetCoordSystem selects how node coordinates are read. It may be called more
// than once only with the same value.
func (p *Problem) SetCoordSystem(sys geo.System) error {
	const op = "SetCoordSystem"
	if err := p.mutable(op); err != nil {
		return err
	}
	if p.sysSet && p.sys != sys {
		return misconfigured(op, nil, "coordinate system already set to %s", p.sys)
	}
	p.sys, p.sysSet = sys, true
	return nil
}

func (p *Problem) CoordSystem() geo.System { return p.sys }

// AddNode registers a node under a unique external id.
func (p *Problem) AddNode(extID string, role Role) (NodeID, error) {
	const op = "AddNode"
	if err := p.mutable(op); err != nil {
		return None, err
	}
	id := NodeID(p.nodes.Len())
	if err := p.nodeIdx.Insert(extID, id); err != nil {
		return None, invalid(op, ErrDuplicateID, "node %q", extID)
	}
	if err := p.nodes.Append(Node{ExtID: extID, Role: role}); err != nil {
		p.nodeIdx.Delete(extID)
		return None, invalid(op, err, "node %q", extID)
	}
	return id, nil
}

// QueryNode looks a node up by external id.
func (p *Problem) QueryNode(extID string) (NodeID, bool) {
	id, ok := p.nodeIdx.Get(extID)
	if !ok {
		return None, false
	}
	return id, true
}

func (p *Problem) QueryRequest(extID string) (RequestID, bool) {
	id, ok := p.requestIdx.Get(extID)
	if !ok {
		return None, false
	}
	return id, true
}

func (p *Problem) QueryVehicle(extID string) (VehicleID, bool) {
	id, ok := p.vehicleIdx.Get(extID)
	if !ok {
		return None, false
	}
	return id, true
}

func (p *Problem) SetNodeCoord(id NodeID, c geo.Coord) error {
	const op = "SetNodeCoord"
	if err := p.mutable(op); err != nil {
		return err
	}
	if !p.validNode(id) {
		return invalid(op, ErrUnknownNode, "node %d", id)
	}
	if math.IsNaN(c.X) || math.IsNaN(c.Y) || math.IsInf(c.X, 0) || math.IsInf(c.Y, 0) {
		return invalid(op, nil, "node %d: coordinate is not finite", id)
	}
	items := p.nodes.Slice()
	items[id].Coord = c
	items[id].HasCoord = true
	return nil
}

// AddRequest registers a transport of qty from sender to receiver. One of the
// two nodes may be None, which makes the request a single visit.
func (p *Problem) AddRequest(extID string, sender, receiver NodeID, qty float64) (RequestID, error) {
	const op = "AddRequest"
	if err := p.mutable(op); err != nil {
		return None, err
	}
	if sender == None && receiver == None {
		return None, invalid(op, ErrUnknownNode, "request %q: sender and receiver both absent", extID)
	}
	for _, n := range []NodeID{sender, receiver} {
		if n != None && !p.validNode(n) {
			return None, invalid(op, ErrUnknownNode, "request %q: node %d", extID, n)
		}
	}
	if qty < 0 || math.IsNaN(qty) {
		return None, invalid(op, ErrNegativeQuantity, "request %q: quantity %v", extID, qty)
	}
	id := RequestID(p.requests.Len())
	if err := p.requestIdx.Insert(extID, id); err != nil {
		return None, invalid(op, ErrDuplicateID, "request %q", extID)
	}
	r := Request{
		ExtID:    extID,
		Sender:   Endpoint{Node: sender},
		Receiver: Endpoint{Node: receiver},
		Quantity: qty,
	}
	if err := p.requests.Append(r); err != nil {
		p.requestIdx.Delete(extID)
		return None, invalid(op, err, "request %q", extID)
	}
	return id, nil
}

// AddTimeWindow adds a window to one side of a request. Windows on the same
// side are kept sorted and may not overlap.
func (p *Problem) AddTimeWindow(req RequestID, side Side, earliest, latest float64) error {
	const op = "AddTimeWindow"
	if err := p.mutable(op); err != nil {
		return err
	}
	if !p.validRequest(req) {
		return invalid(op, ErrUnknownRequest, "request %d", req)
	}
	if earliest < 0 || earliest > latest || math.IsNaN(earliest) || math.IsNaN(latest) {
		return invalid(op, ErrBadTimeWindow, "request %d: [%v, %v]", req, earliest, latest)
	}
	end := p.requests.Slice()[req].End(side)
	if end.Node == None {
		return invalid(op, ErrUnknownNode, "request %d: %s side has no node", req, side)
	}
	tw := TimeWindow{Earliest: earliest, Latest: latest}
	for _, w := range end.Windows {
		if tw.Earliest <= w.Latest && w.Earliest <= tw.Latest {
			return invalid(op, ErrBadTimeWindow, "request %d: [%v, %v] overlaps [%v, %v]",
				req, earliest, latest, w.Earliest, w.Latest)
		}
	}
	end.Windows = append(end.Windows, tw)
	sort.Slice(end.Windows, func(i, j int) bool { return end.Windows[i].Earliest < end.Windows[j].Earliest })
	return nil
}

func (p *Problem) SetServiceDuration(req RequestID, side Side, d float64) error {
	const op = "SetServiceDuration"
	if err := p.mutable(op); err != nil {
		return err
	}
	if !p.validRequest(req) {
		return invalid(op, ErrUnknownRequest, "request %d", req)
	}
	if d < 0 || math.IsNaN(d) {
		return invalid(op, ErrNegativeValue, "request %d: service duration %v", req, d)
	}
	end := p.requests.Slice()[req].End(side)
	if end.Node == None {
		return invalid(op, ErrUnknownNode, "request %d: %s side has no node", req, side)
	}
	end.Service = d
	return nil
}

// AddVehicle registers a vehicle. Start or end may be None for an open route.
// A zero capacity is accepted; such a vehicle only serves zero-quantity
// requests.
func (p *Problem) AddVehicle(extID string, capacity float64, start, end NodeID) (VehicleID, error) {
	const op = "AddVehicle"
	if err := p.mutable(op); err != nil {
		return None, err
	}
	if capacity < 0 || math.IsNaN(capacity) {
		return None, invalid(op, ErrNegativeValue, "vehicle %q: capacity %v", extID, capacity)
	}
	for _, n := range []NodeID{start, end} {
		if n != None && !p.validNode(n) {
			return None, invalid(op, ErrUnknownNode, "vehicle %q: node %d", extID, n)
		}
	}
	id := VehicleID(p.vehicles.Len())
	if err := p.vehicleIdx.Insert(extID, id); err != nil {
		return None, invalid(op, ErrDuplicateID, "vehicle %q", extID)
	}
	if err := p.vehicles.Append(Vehicle{ExtID: extID, Capacity: capacity, Start: start, End: end}); err != nil {
		p.vehicleIdx.Delete(extID)
		return None, invalid(op, err, "vehicle %q", extID)
	}
	return id, nil
}

// SetVehicleShift bounds when the vehicle may leave and must be back.
func (p *Problem) SetVehicleShift(v VehicleID, earliest, latest float64) error {
	const op = "SetVehicleShift"
	if err := p.mutable(op); err != nil {
		return err
	}
	if !p.validVehicle(v) {
		return invalid(op, ErrUnknownVehicle, "vehicle %d", v)
	}
	if earliest < 0 || earliest > latest || math.IsNaN(earliest) || math.IsNaN(latest) {
		return invalid(op, ErrBadTimeWindow, "vehicle %d: [%v, %v]", v, earliest, latest)
	}
	items := p.vehicles.Slice()
	items[v].Shift = TimeWindow{Earliest: earliest, Latest: latest}
	items[v].HasShift = true
	return nil
}

// Freeze makes the model read-only. It is idempotent.
func (p *Problem) Freeze() { p.frozen = true }

func (p *Problem) Frozen() bool { return p.frozen }

func (p *Problem) validNode(id NodeID) bool { return id >= 0 && int(id) < p.nodes.Len() }

func (p *Problem) validRequest(id RequestID) bool {
	return id >= 0 && int(id) < p.requests.Len()
}

func (p *Problem) validVehicle(id VehicleID) bool {
	return id >= 0 && int(id) < p.vehicles.Len()
}

func (p *Problem) NumNodes() int    { return p.nodes.Len() }
func (p *Problem) NumRequests() int { return p.requests.Len() }
func (p *Problem) NumVehicles() int { return p.vehicles.Len() }

// Node returns a pointer into the registry; callers must not modify it.
func (p *Problem) Node(id NodeID) *Node { return &p.nodes.Slice()[id] }

func (p *Problem) Request(id RequestID) *Request { return &p.requests.Slice()[id] }

func (p *Problem) Vehicle(id VehicleID) *Vehicle { return &p.vehicles.Slice()[id] }

// NodesByRole lists the nodes with role in id order.
func (p *Problem) NodesByRole(role Role) []NodeID {
	var out []NodeID
	for i, n := range p.nodes.Slice() {
		if n.Role == role {
			out = append(out, NodeID(i))
		}
	}
	return out
}

func (p *Problem) Depots() []NodeID    { return p.NodesByRole(Depot) }
func (p *Problem) Customers() []NodeID { return p.NodesByRole(Customer) }

// HasTimeWindows reports whether any request window or vehicle shift exists.
func (p *Problem) HasTimeWindows() bool {
	for _, r := range p.requests.Slice() {
		if len(r.Sender.Windows) > 0 || len(r.Receiver.Windows) > 0 {
			return true
		}
	}
	for _, v := range p.vehicles.Slice() {
		if v.HasShift {
			return true
		}
	}
	return false
}

// HomogeneousFleet reports whether all vehicles share capacity, start and end.
func (p *Problem) HomogeneousFleet() bool {
	vs := p.vehicles.Slice()
	for i := 1; i < len(vs); i++ {
		if vs[i].Capacity != vs[0].Capacity || vs[i].Start != vs[0].Start || vs[i].End != vs[0].End {
			return false
		}
	}
	return true
}

// Explicit reports which sides of req appear as stops on a route of vehicle
// v. A pickup at the vehicle's start node is done at departure; a delivery at
// its end node after an explicit pickup is done on return. A missing sender
// means the goods are already on board at departure, a missing receiver that
// they stay on board until the end.
func (p *Problem) Explicit(req RequestID, v VehicleID) (pickup, delivery bool) {
	r := p.Request(req)
	veh := p.Vehicle(v)
	pickup = r.Sender.Node != None && r.Sender.Node != veh.Start
	delivery = r.Receiver.Node != None && !(pickup && r.Receiver.Node == veh.End)
	return pickup, delivery
}

// IsSingleVisit reports whether every request needs exactly one stop on every
// vehicle. Such problems admit a giant-tour representation.
func (p *Problem) IsSingleVisit() bool {
	if p.vehicles.Len() == 0 || p.requests.Len() == 0 {
		return false
	}
	for r := 0; r < p.requests.Len(); r++ {
		for v := 0; v < p.vehicles.Len(); v++ {
			pk, dl := p.Explicit(RequestID(r), VehicleID(v))
			if pk == dl {
				return false
			}
		}
	}
	return true
}

// StopNode is the node where the stop for req on side is made.
func (p *Problem) StopNode(req RequestID, side Side) NodeID {
	return p.Request(req).End(side).Node
}

// Validate checks that the model can be solved.
func (p *Problem) Validate() error {
	const op = "Validate"
	if p.vehicles.Len() == 0 {
		return misconfigured(op, ErrNoVehicles, "at least one vehicle is required")
	}
	if p.nodes.Len() == 0 {
		return misconfigured(op, ErrNoDistances, "no nodes")
	}
	if p.dist == nil {
		return misconfigured(op, ErrNoDistances, "generate or set distances first")
	}
	if p.dist.Rows() != p.nodes.Len() {
		return misconfigured(op, ErrNoDistances, "matrix covers %d of %d nodes", p.dist.Rows(), p.nodes.Len())
	}
	if p.dur != nil && p.dur.Rows() != p.nodes.Len() {
		return misconfigured(op, ErrNoDurations, "matrix covers %d of %d nodes", p.dur.Rows(), p.nodes.Len())
	}
	if p.dur == nil && p.HasTimeWindows() {
		return misconfigured(op, ErrNoDurations, "time windows require durations")
	}
	return nil
}

func (p *Problem) String() string {
	return fmt.Sprintf("vrp.Problem{nodes:%d requests:%d vehicles:%d}", p.NumNodes(), p.NumRequests(), p.NumVehicles())
}
