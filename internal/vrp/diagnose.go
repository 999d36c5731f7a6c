package vrp

import (
	"fmt"
	"math"
	"strings"
)

const (
	capacityUtilisation  = 0.95
	unreachableThreshold = 500000
	diagnoseStopCount    = 100
	singleVehicleStops   = 20
	asymmetryTolerance   = 0.1
)

// Diagnose guesses why a validated input produced no solution. The first
// matching rule wins.
func Diagnose(stops []Stop, m Matrix, fleet Fleet) Diagnosis {
	waypoints := 0
	if len(stops) > 1 {
		waypoints = len(stops) - 1
	}
	totalDemand := waypointDemand(stops)
	totalCapacity := fleet.Total()
	capacity := fleet.Capacity
	if capacity <= 0 {
		capacity = fleet.Largest()
	}

	if float64(totalDemand) > float64(totalCapacity)*capacityUtilisation {
		extra := 0
		if capacity > 0 {
			extra = totalDemand/capacity + 1 - fleet.Count
		}
		return Diagnosis{
			Type:          "capacity_constraint",
			Message:       fmt.Sprintf("total demand %d is too close to total capacity %d; add %d vehicle(s) or raise capacity", totalDemand, totalCapacity, extra),
			ExtraVehicles: extra,
		}
	}

	var over []string
	maxDemand := 0
	for i, s := range stops {
		if i == 0 {
			continue
		}
		if s.Demand > maxDemand {
			maxDemand = s.Demand
		}
		if s.Demand > fleet.Largest() {
			over = append(over, s.Name)
		}
	}
	if len(over) > 0 {
		return Diagnosis{
			Type:    "individual_capacity",
			Message: fmt.Sprintf("demand of %s (up to %d) exceeds vehicle capacity %d", strings.Join(over, ", "), maxDemand, fleet.Largest()),
			Stops:   over,
		}
	}

	if peak := m.Max(); peak > unreachableThreshold {
		return Diagnosis{
			Type:    "unreachable_locations",
			Message: fmt.Sprintf("largest matrix cost %.1f suggests unreachable locations; regenerate the matrix", peak),
		}
	}

	if len(stops) > diagnoseStopCount {
		return Diagnosis{
			Type:    "problem_size",
			Message: fmt.Sprintf("%d locations is too many for the time limit; remove stops or search longer", len(stops)),
		}
	}

	if fleet.Count == 1 && waypoints > singleVehicleStops {
		return Diagnosis{
			Type:    "vehicle_count",
			Message: fmt.Sprintf("%d waypoints are hard to serve with one vehicle; add vehicles", waypoints),
		}
	}

	if asymmetricPairs(m) > len(m) {
		return Diagnosis{
			Type:    "matrix_asymmetry",
			Message: "cost matrix is strongly asymmetric; regenerate the matrix",
		}
	}

	var suggestions []string
	if float64(totalCapacity) < float64(totalDemand)*1.2 {
		suggestions = append(suggestions, "raise vehicle capacity or add vehicles")
	}
	if fleet.Count < 2 {
		suggestions = append(suggestions, "use at least two vehicles")
	}
	if waypoints > 30 {
		suggestions = append(suggestions, "reduce the stop set to 30 or fewer")
	}
	if len(suggestions) == 0 {
		suggestions = []string{"regenerate the distance matrix", "raise vehicle capacity", "reduce the number of stops"}
	}
	return Diagnosis{
		Type:        "unknown",
		Message:     "no solution found; " + strings.Join(suggestions, "; "),
		Suggestions: suggestions,
	}
}

func asymmetricPairs(m Matrix) int {
	count := 0
	for i := range m {
		for j := range m[i] {
			if j >= len(m) || i >= len(m[j]) {
				continue
			}
			if math.Abs(m[i][j]-m[j][i]) > m[i][j]*asymmetryTolerance {
				count++
			}
		}
	}
	return count
}
