// Package vrp builds capacitated vehicle-routing models, runs them through a
// pluggable search engine and turns the engine output into routes or a
// classified failure.
package vrp

import (
	"math"
	"time"
)

// Role tells a depot apart from a waypoint.
type Role string

const (
	RoleDepot    Role = "depot"
	RoleWaypoint Role = "waypoint"
)

// Stop is one location. The first stop of an input is always the depot.
type Stop struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Demand int    `json:"demand"`
}

// Matrix is a square cost matrix indexed by stop position.
type Matrix [][]float64

// Max returns the largest finite entry, or 0 for an empty matrix.
func (m Matrix) Max() float64 {
	peak := 0.0
	for _, row := range m {
		for _, v := range row {
			if v > peak && !math.IsInf(v, 0) {
				peak = v
			}
		}
	}
	return peak
}

// Fleet describes the vehicles available to a solve. Capacities, when set,
// overrides Capacity per vehicle and must have Count entries.
type Fleet struct {
	Capacity   int   `json:"capacity"`
	Count      int   `json:"count"`
	Capacities []int `json:"capacities,omitempty"`
}

func (f Fleet) capacities() []int {
	if len(f.Capacities) > 0 {
		return f.Capacities
	}
	if f.Count <= 0 {
		return nil
	}
	out := make([]int, 0, f.Count)
	for i := 0; i < f.Count; i++ {
		out = append(out, f.Capacity)
	}
	return out
}

// Total is the summed capacity of the fleet.
func (f Fleet) Total() int {
	total := 0
	for _, c := range f.capacities() {
		total += c
	}
	return total
}

// Largest is the biggest single-vehicle capacity.
func (f Fleet) Largest() int {
	largest := 0
	for _, c := range f.capacities() {
		if c > largest {
			largest = c
		}
	}
	return largest
}

// DefaultVehicleCount is ceil(totalDemand/capacity), at least 1.
func DefaultVehicleCount(stops []Stop, capacity int) int {
	if capacity <= 0 {
		return 1
	}
	total := waypointDemand(stops)
	n := (total + capacity - 1) / capacity
	if n < 1 {
		n = 1
	}
	return n
}

func waypointDemand(stops []Stop) int {
	total := 0
	for i, s := range stops {
		if i == 0 {
			continue
		}
		total += s.Demand
	}
	return total
}

// Input is everything a single solve needs.
type Input struct {
	Stops          []Stop
	TimeMatrix     Matrix
	DistanceMatrix Matrix
	Fleet          Fleet
	// TimeLimit defaults to DefaultTimeLimit when zero.
	TimeLimit       time.Duration
	Objective       Objective
	WorkloadBalance bool
	Topology        Topology
	Seed            int64
}

// Waypoint is one emitted stop along a route with running totals.
type Waypoint struct {
	Role               Role    `json:"role"`
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	Load               int     `json:"load"`
	CumulativeDistance float64 `json:"cumulativeDistance"`
	CumulativeTime     float64 `json:"cumulativeTime"`
}

// Route is the ordered stop list driven by one vehicle.
type Route struct {
	VehicleID int        `json:"vehicleId"`
	Waypoints []Waypoint `json:"waypoints"`
	Distance  float64    `json:"totalDistance"`
	Time      float64    `json:"totalTime"`
	Load      int        `json:"totalLoad"`
}

// Stats summarises an input for validation reports.
type Stats struct {
	Locations     int     `json:"locations"`
	TotalDemand   int     `json:"totalDemand"`
	TotalCapacity int     `json:"totalCapacity"`
	MaxCost       float64 `json:"maxCost"`
}

// Diagnosis classifies a search that returned no solution.
type Diagnosis struct {
	Type          string   `json:"type"`
	Message       string   `json:"message"`
	Suggestions   []string `json:"suggestions,omitempty"`
	ExtraVehicles int      `json:"extraVehicles,omitempty"`
	Stops         []string `json:"stops,omitempty"`
}

// RunResult is the outcome of a solve. When Success is false Message is
// always set and Routes is empty.
type RunResult struct {
	Success          bool           `json:"success"`
	Objective        Objective      `json:"objective,omitempty"`
	FellBack         bool           `json:"fellBack,omitempty"`
	ObjectiveValue   int64          `json:"objectiveValue"`
	Scale            float64        `json:"scale,omitempty"`
	Topology         Topology       `json:"topology"`
	VehicleCount     int            `json:"vehicleCount"`
	Routes           []Route        `json:"routes"`
	TotalDistance    float64        `json:"totalDistance"`
	TotalTime        float64        `json:"totalTime"`
	TotalLoad        int            `json:"totalLoad"`
	Message          string         `json:"message,omitempty"`
	ValidationErrors []Issue        `json:"validationErrors,omitempty"`
	Warnings         []Issue        `json:"warnings,omitempty"`
	Diagnosis        *Diagnosis     `json:"diagnosis,omitempty"`
	Stats            Stats          `json:"stats"`
	Engine           map[string]any `json:"engine,omitempty"`
}
