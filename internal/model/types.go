// Package model holds the JSON wire types of the service and the CLI, and
// the binding layer that turns an Instance into a vrp.Problem.
package model

import (
	"elasticroute/internal/evol"
	"elasticroute/internal/opt"
	"elasticroute/internal/tsp"
)

// Instance is a routing problem as sent by a client. Nodes, requests and
// vehicles reference each other by their string ids.
type Instance struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// CoordSystem is "cartesian", "wgs84" or empty when only explicit
	// matrices are given.
	CoordSystem string `json:"coordSystem,omitempty" yaml:"coordSystem,omitempty"`
	// Metric is "beeline" (default), "beeline_rounded" or "manhattan".
	Metric string `json:"metric,omitempty" yaml:"metric,omitempty"`
	// Speed converts distances to durations; 0 means 1.
	Speed float64 `json:"speed,omitempty" yaml:"speed,omitempty"`

	Nodes    []Node    `json:"nodes" yaml:"nodes"`
	Requests []Request `json:"requests" yaml:"requests"`
	Vehicles []Vehicle `json:"vehicles" yaml:"vehicles"`

	// Distances and Durations override generation when present. They are
	// indexed in the order of Nodes.
	Distances [][]float64 `json:"distances,omitempty" yaml:"distances,omitempty"`
	Durations [][]float64 `json:"durations,omitempty" yaml:"durations,omitempty"`
}

type Node struct {
	ID       string `json:"id" yaml:"id"`
	Role     string `json:"role,omitempty" yaml:"role,omitempty"` // depot, customer
	Location *Point `json:"location,omitempty" yaml:"location,omitempty"`
}

// Point is X/Y for Cartesian coordinates and latitude/longitude in degrees
// for WGS84.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

type TimeWindow struct {
	Earliest float64 `json:"earliest" yaml:"earliest"`
	Latest   float64 `json:"latest" yaml:"latest"`
}

// Endpoint carries the time windows and service duration of one side of a
// request.
type Endpoint struct {
	Windows []TimeWindow `json:"windows,omitempty" yaml:"windows,omitempty"`
	Service float64      `json:"service,omitempty" yaml:"service,omitempty"`
}

// Request moves Quantity from Sender to Receiver. Either node may be empty
// for a single visit.
type Request struct {
	ID       string    `json:"id" yaml:"id"`
	Sender   string    `json:"sender,omitempty" yaml:"sender,omitempty"`
	Receiver string    `json:"receiver,omitempty" yaml:"receiver,omitempty"`
	Quantity float64   `json:"quantity" yaml:"quantity"`
	Pickup   *Endpoint `json:"pickup,omitempty" yaml:"pickup,omitempty"`
	Delivery *Endpoint `json:"delivery,omitempty" yaml:"delivery,omitempty"`
}

type Vehicle struct {
	ID       string      `json:"id" yaml:"id"`
	Capacity float64     `json:"capacity" yaml:"capacity"`
	Start    string      `json:"start,omitempty" yaml:"start,omitempty"`
	End      string      `json:"end,omitempty" yaml:"end,omitempty"`
	Shift    *TimeWindow `json:"shift,omitempty" yaml:"shift,omitempty"`
}

// SolveRequest is the body of a synchronous or asynchronous solve. A nil
// Config means the server defaults.
type SolveRequest struct {
	Instance Instance    `json:"instance"`
	Config   *opt.Config `json:"config,omitempty"`
}

type Stop struct {
	Node      string  `json:"node"`
	Request   string  `json:"request"`
	Side      string  `json:"side"`
	Arrival   float64 `json:"arrival"`
	Start     float64 `json:"start"`
	Departure float64 `json:"departure"`
	Load      float64 `json:"load"`
	Late      float64 `json:"late,omitempty"`
}

type Route struct {
	Vehicle   string   `json:"vehicle"`
	Nodes     []string `json:"nodes"`
	Stops     []Stop   `json:"stops"`
	Distance  float64  `json:"distance"`
	Duration  float64  `json:"duration"`
	StartLoad float64  `json:"startLoad"`
	PeakLoad  float64  `json:"peakLoad"`
}

// Solution is a solver result rendered with external ids.
type Solution struct {
	RunID          string      `json:"runId,omitempty"`
	Routes         []Route     `json:"routes"`
	Unassigned     []string    `json:"unassigned"`
	Cost           float64     `json:"cost"`
	Distance       float64     `json:"distance"`
	Duration       float64     `json:"duration"`
	CapacityExcess float64     `json:"capacityExcess"`
	Lateness       float64     `json:"lateness"`
	Feasible       bool        `json:"feasible"`
	Violation      float64     `json:"violation"`
	Seed           uint64      `json:"seed"`
	Stats          evol.Stats  `json:"stats"`
	Metrics        opt.Metrics `json:"metrics"`
}

// TSPRequest is a standalone TSP over the given points, or over an explicit
// cost matrix when Costs is set. Start and End index into the nodes.
type TSPRequest struct {
	CoordSystem string      `json:"coordSystem,omitempty"`
	Metric      string      `json:"metric,omitempty"`
	Points      []Point     `json:"points,omitempty"`
	Costs       [][]float64 `json:"costs,omitempty"`
	Start       *int        `json:"start,omitempty"`
	End         *int        `json:"end,omitempty"`
	RoundTrip   bool        `json:"roundTrip"`
	Config      *tsp.Config `json:"config,omitempty"`
}
