package vrp

import (
	"fmt"
	"strings"
)

// Objective is the primary optimisation goal. The set is closed.
type Objective string

const (
	ObjectiveDistance Objective = "distance"
	ObjectiveTime     Objective = "time"
	ObjectiveVehicles Objective = "vehicles"
	ObjectiveCost     Objective = "cost"
	ObjectiveMakespan Objective = "makespan"
)

// WorkloadBalance is the only add-on objective.
const WorkloadBalance = "workloadBalance"

const (
	vehiclesFixedCost      = 10000
	costFixedCost          = 100
	costFleetCeiling       = 10
	makespanFixedCost      = 50000
	balanceSpanCoefficient = 100
)

// Objectives lists every primary objective.
var Objectives = []Objective{ObjectiveDistance, ObjectiveTime, ObjectiveVehicles, ObjectiveCost, ObjectiveMakespan}

// ParseObjective accepts any case; an empty string means distance.
func ParseObjective(s string) (Objective, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ObjectiveDistance, nil
	}
	for _, o := range Objectives {
		if strings.EqualFold(string(o), s) {
			return o, nil
		}
	}
	return "", fmt.Errorf("unknown objective %q", s)
}

// Valid reports whether o is one of Objectives.
func (o Objective) Valid() bool {
	for _, known := range Objectives {
		if o == known {
			return true
		}
	}
	return false
}

// UsesTimeMatrix reports whether arcs are costed by travel time.
func (o Objective) UsesTimeMatrix() bool {
	return o == ObjectiveTime || o == ObjectiveMakespan
}

// plain objectives need no shaping and have nothing to fall back from.
func (o Objective) plain() bool {
	return o == ObjectiveDistance || o == ObjectiveTime
}

// ObjectiveConfig is the shaping applied on top of the arc cost.
type ObjectiveConfig struct {
	Objective        Objective `json:"objective"`
	FixedVehicleCost int64     `json:"fixedVehicleCost,omitempty"`
	// SpanCoefficient penalises the longest per-vehicle cumulative cost.
	SpanCoefficient int64 `json:"spanCoefficient,omitempty"`
}

// ConfigureObjective returns the shaping for o. Makespan and cost are
// fixed-cost approximations, not a min-max or a fixed+variable account.
func ConfigureObjective(o Objective, vehicleCount int, balance bool) (ObjectiveConfig, error) {
	cfg := ObjectiveConfig{Objective: o}
	switch o {
	case ObjectiveDistance, ObjectiveTime:
	case ObjectiveVehicles:
		cfg.FixedVehicleCost = vehiclesFixedCost
	case ObjectiveCost:
		if vehicleCount <= costFleetCeiling {
			cfg.FixedVehicleCost = costFixedCost
		}
	case ObjectiveMakespan:
		cfg.FixedVehicleCost = makespanFixedCost
	default:
		return ObjectiveConfig{}, fmt.Errorf("unknown objective %q", o)
	}
	if balance {
		cfg.SpanCoefficient = balanceSpanCoefficient
	}
	return cfg, nil
}
