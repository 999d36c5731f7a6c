package vrp

import (
	"fmt"
	"math"
)

const (
	unreachableCost = 1000000
	largeStopCount  = 50
	largeFleetCount = 10
)

// Validation is the report of a validation pass.
type Validation struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
	Stats    Stats   `json:"stats"`
}

func (v *Validation) fail(code, format string, args ...any) {
	v.Errors = append(v.Errors, Issue{Code: code, Message: fmt.Sprintf(format, args...)})
}

func (v *Validation) warn(code, format string, args ...any) {
	v.Warnings = append(v.Warnings, Issue{Code: code, Message: fmt.Sprintf(format, args...)})
}

// Err returns a *ValidationError when the report is not valid.
func (v Validation) Err() error {
	if v.Valid {
		return nil
	}
	return &ValidationError{Issues: v.Errors}
}

// Validate checks stops, the primary cost matrix and the fleet. It never
// stops at the first problem; every finding is collected.
func Validate(stops []Stop, m Matrix, fleet Fleet) Validation {
	var v Validation
	v.Stats = Stats{
		Locations:     len(stops),
		TotalDemand:   waypointDemand(stops),
		TotalCapacity: fleet.Total(),
		MaxCost:       m.Max(),
	}

	if len(stops) == 0 {
		v.fail("empty_stops", "no stops given")
	}
	if len(m) == 0 {
		v.fail("empty_matrix", "cost matrix is empty")
	}
	checkMatrixShape(&v, "cost matrix", m, len(stops))
	checkMatrixFinite(&v, "cost matrix", m)

	negatives, diagonal, unreachable := 0, 0, 0
	for i, row := range m {
		for j, c := range row {
			switch {
			case c < 0:
				negatives++
			case c > unreachableCost:
				unreachable++
			}
			if i == j && c != 0 {
				diagonal++
			}
		}
	}
	if negatives > 0 {
		v.fail("negative_cost", "cost matrix has %d negative entries", negatives)
	}
	if diagonal > 0 {
		v.warn("nonzero_diagonal", "cost matrix has %d non-zero diagonal entries", diagonal)
	}
	if unreachable > 0 {
		v.warn("unreachable", "%d matrix entries exceed %d; those locations may be unreachable", unreachable, unreachableCost)
	}

	if len(stops) > 0 && stops[0].Demand != 0 {
		v.warn("depot_demand", "depot %q demand %d is ignored", stops[0].Name, stops[0].Demand)
	}
	for i, s := range stops {
		if i > 0 && s.Demand < 0 {
			v.fail("negative_demand", "stop %q has negative demand %d", s.Name, s.Demand)
		}
	}

	fleetOK := true
	if fleet.Count < 1 {
		v.fail("invalid_fleet", "vehicle count must be at least 1, got %d", fleet.Count)
		fleetOK = false
	}
	if len(fleet.Capacities) > 0 && len(fleet.Capacities) != fleet.Count {
		v.fail("fleet_mismatch", "%d capacities given for %d vehicles", len(fleet.Capacities), fleet.Count)
		fleetOK = false
	}
	for i, c := range fleet.capacities() {
		if c <= 0 {
			v.fail("invalid_capacity", "vehicle %d capacity must be positive, got %d", i+1, c)
			fleetOK = false
			break
		}
	}

	if fleetOK {
		if v.Stats.TotalDemand > v.Stats.TotalCapacity {
			v.fail("capacity_constraint", "total demand %d exceeds total capacity %d (%d vehicles)",
				v.Stats.TotalDemand, v.Stats.TotalCapacity, fleet.Count)
		}
		largest := fleet.Largest()
		for i, s := range stops {
			if i > 0 && s.Demand > largest {
				v.fail("individual_capacity", "stop %q demand %d exceeds vehicle capacity %d", s.Name, s.Demand, largest)
			}
		}
	}

	if len(stops) > largeStopCount {
		v.warn("problem_size", "%d stops may need a longer time limit", len(stops))
	}
	if fleet.Count > largeFleetCount {
		v.warn("fleet_size", "%d vehicles may slow the search", fleet.Count)
	}

	v.Valid = len(v.Errors) == 0
	return v
}

// checkMatrixFinite rejects NaN and infinite entries; unreachable arcs are
// expressed with large finite costs.
func checkMatrixFinite(v *Validation, name string, m Matrix) {
	bad := 0
	for _, row := range m {
		for _, c := range row {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				bad++
			}
		}
	}
	if bad > 0 {
		v.fail("non_finite_cost", "%s has %d NaN or infinite entries", name, bad)
	}
}

func checkMatrixShape(v *Validation, name string, m Matrix, n int) {
	if len(m) == 0 {
		return
	}
	for i, row := range m {
		if len(row) != len(m) {
			v.fail("matrix_shape", "%s row %d has %d columns, want %d", name, i, len(row), len(m))
			return
		}
	}
	if n > 0 && len(m) != n {
		v.fail("matrix_size", "%s is %dx%d but there are %d stops", name, len(m), len(m), n)
	}
}
