package vrp

import (
	"math"
	"testing"
)

func stopsWithDemand(demands ...int) []Stop {
	out := make([]Stop, 0, len(demands)+1)
	out = append(out, Stop{ID: "depot", Name: "Depot"})
	for i, d := range demands {
		id := string(rune('a' + i))
		out = append(out, Stop{ID: id, Name: "Stop " + id, Demand: d})
	}
	return out
}

func uniformMatrix(n int, c float64) Matrix {
	m := make(Matrix, n)
	for i := range m {
		m[i] = make([]float64, n)
		for j := range m[i] {
			if i != j {
				m[i][j] = c
			}
		}
	}
	return m
}

func hasIssue(issues []Issue, code string) bool {
	for _, is := range issues {
		if is.Code == code {
			return true
		}
	}
	return false
}

func TestValidateAccumulatesEveryError(t *testing.T) {
	v := Validate(nil, nil, Fleet{Capacity: 0, Count: 0})
	if v.Valid {
		t.Fatalf("expected invalid")
	}
	for _, code := range []string{"empty_stops", "empty_matrix", "invalid_fleet"} {
		if !hasIssue(v.Errors, code) {
			t.Fatalf("missing %s in %+v", code, v.Errors)
		}
	}
}

func TestValidateCapacity(t *testing.T) {
	stops := stopsWithDemand(10, 10, 5)
	v := Validate(stops, uniformMatrix(4, 1), Fleet{Capacity: 10, Count: 1})
	if v.Valid || !hasIssue(v.Errors, "capacity_constraint") {
		t.Fatalf("want capacity_constraint, got %+v", v.Errors)
	}
	if v.Stats.TotalDemand != 25 || v.Stats.TotalCapacity != 10 || v.Stats.Locations != 4 {
		t.Fatalf("stats %+v", v.Stats)
	}

	stops = stopsWithDemand(15, 1)
	v = Validate(stops, uniformMatrix(3, 1), Fleet{Capacity: 10, Count: 3})
	if v.Valid || !hasIssue(v.Errors, "individual_capacity") || hasIssue(v.Errors, "capacity_constraint") {
		t.Fatalf("want individual_capacity only, got %+v", v.Errors)
	}
	err := v.Err()
	if ve, ok := err.(*ValidationError); !ok || !ve.Has("individual_capacity") {
		t.Fatalf("Err() = %v", err)
	}
}

func TestValidateWarningsAreNonFatal(t *testing.T) {
	stops := stopsWithDemand(1, 1)
	m := uniformMatrix(3, 5)
	m[1][2] = 2000000
	m[2][2] = 3
	stops[0].Demand = 4
	v := Validate(stops, m, Fleet{Capacity: 10, Count: 1})
	if !v.Valid {
		t.Fatalf("unexpected errors %+v", v.Errors)
	}
	for _, code := range []string{"unreachable", "nonzero_diagonal", "depot_demand"} {
		if !hasIssue(v.Warnings, code) {
			t.Fatalf("missing warning %s in %+v", code, v.Warnings)
		}
	}
	if v.Stats.TotalDemand != 2 {
		t.Fatalf("depot demand must not count: %d", v.Stats.TotalDemand)
	}
}

func TestValidateMatrixProblems(t *testing.T) {
	stops := stopsWithDemand(1, 1)
	m := uniformMatrix(3, 1)
	m[0][1] = -1
	v := Validate(stops, m, Fleet{Capacity: 5, Count: 1})
	if !hasIssue(v.Errors, "negative_cost") {
		t.Fatalf("want negative_cost, got %+v", v.Errors)
	}

	v = Validate(stops, uniformMatrix(4, 1), Fleet{Capacity: 5, Count: 1})
	if !hasIssue(v.Errors, "matrix_size") {
		t.Fatalf("want matrix_size, got %+v", v.Errors)
	}

	ragged := Matrix{{0, 1, 1}, {1, 0}, {1, 1, 0}}
	v = Validate(stops, ragged, Fleet{Capacity: 5, Count: 1})
	if !hasIssue(v.Errors, "matrix_shape") {
		t.Fatalf("want matrix_shape, got %+v", v.Errors)
	}
}

func TestValidateNonFiniteCosts(t *testing.T) {
	stops := stopsWithDemand(1, 1)
	for _, bad := range []float64{math.Inf(1), math.Inf(-1), math.NaN()} {
		m := Matrix{{0, 10, 5}, {10, 0, 5}, {10, 5, 0}}
		m[0][2] = bad
		v := Validate(stops, m, Fleet{Capacity: 5, Count: 1})
		if v.Valid || !hasIssue(v.Errors, "non_finite_cost") {
			t.Fatalf("%v: want non_finite_cost, got %+v", bad, v.Errors)
		}
		if v.Stats.MaxCost != 10 {
			t.Fatalf("%v: max cost %v", bad, v.Stats.MaxCost)
		}
	}
}

func TestValidateFleet(t *testing.T) {
	stops := stopsWithDemand(1, 1)
	m := uniformMatrix(3, 1)
	v := Validate(stops, m, Fleet{Count: 2, Capacities: []int{5}})
	if !hasIssue(v.Errors, "fleet_mismatch") {
		t.Fatalf("want fleet_mismatch, got %+v", v.Errors)
	}
	v = Validate(stops, m, Fleet{Count: 2, Capacity: -3})
	if !hasIssue(v.Errors, "invalid_capacity") {
		t.Fatalf("want invalid_capacity, got %+v", v.Errors)
	}
	for _, count := range []int{0, -1} {
		v = Validate(stops, m, Fleet{Capacity: 5, Count: count})
		if v.Valid || !hasIssue(v.Errors, "invalid_fleet") || v.Stats.TotalCapacity != 0 {
			t.Fatalf("count %d: want invalid_fleet, got %+v", count, v)
		}
	}
	v = Validate(stops, m, Fleet{Count: 2, Capacities: []int{1, 4}})
	if !v.Valid || v.Stats.TotalCapacity != 5 {
		t.Fatalf("heterogeneous fleet: %+v", v)
	}
}

func TestValidateSizeWarnings(t *testing.T) {
	demands := make([]int, 55)
	stops := stopsWithDemand(demands...)
	v := Validate(stops, uniformMatrix(len(stops), 1), Fleet{Capacity: 5, Count: 11})
	if !v.Valid || !hasIssue(v.Warnings, "problem_size") || !hasIssue(v.Warnings, "fleet_size") {
		t.Fatalf("want size warnings, got %+v", v)
	}
}

func TestDefaultVehicleCount(t *testing.T) {
	cases := []struct {
		demands  []int
		capacity int
		want     int
	}{
		{[]int{5, 5}, 10, 1},
		{[]int{5, 6}, 10, 2},
		{nil, 10, 1},
		{[]int{5}, 0, 1},
		{[]int{10, 10, 10}, 10, 3},
	}
	for _, c := range cases {
		if got := DefaultVehicleCount(stopsWithDemand(c.demands...), c.capacity); got != c.want {
			t.Fatalf("DefaultVehicleCount(%v, %d) = %d, want %d", c.demands, c.capacity, got, c.want)
		}
	}
}
