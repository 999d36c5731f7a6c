package vrp

import (
	"reflect"
	"testing"
)

func TestDiagnoseRules(t *testing.T) {
	big := make([]int, 101)
	many := make([]int, 21)

	asym := uniformMatrix(3, 10)
	asym[0][1], asym[0][2], asym[1][2], asym[2][1] = 1, 1, 1, 100

	unreachable := uniformMatrix(3, 10)
	unreachable[1][2] = 600000

	cases := []struct {
		name  string
		stops []Stop
		m     Matrix
		fleet Fleet
		want  string
	}{
		{"capacity", stopsWithDemand(10, 10), uniformMatrix(3, 1), Fleet{Capacity: 10, Count: 2}, "capacity_constraint"},
		{"individual", stopsWithDemand(12, 1), uniformMatrix(3, 1), Fleet{Capacity: 10, Count: 3}, "individual_capacity"},
		{"unreachable", stopsWithDemand(1, 1), unreachable, Fleet{Capacity: 10, Count: 1}, "unreachable_locations"},
		{"size", stopsWithDemand(big...), uniformMatrix(102, 1), Fleet{Capacity: 10, Count: 2}, "problem_size"},
		{"single vehicle", stopsWithDemand(many...), uniformMatrix(22, 1), Fleet{Capacity: 10, Count: 1}, "vehicle_count"},
		{"asymmetric", stopsWithDemand(1, 1), asym, Fleet{Capacity: 10, Count: 2}, "matrix_asymmetry"},
		{"unknown", stopsWithDemand(1, 1), uniformMatrix(3, 1), Fleet{Capacity: 10, Count: 2}, "unknown"},
	}
	for _, c := range cases {
		d := Diagnose(c.stops, c.m, c.fleet)
		if d.Type != c.want {
			t.Fatalf("%s: got %s (%s)", c.name, d.Type, d.Message)
		}
		if d.Message == "" {
			t.Fatalf("%s: empty message", c.name)
		}
	}
}

func TestDiagnoseCapacityExtraVehicles(t *testing.T) {
	d := Diagnose(stopsWithDemand(10, 9, 8), uniformMatrix(4, 1), Fleet{Capacity: 10, Count: 2})
	if d.Type != "capacity_constraint" || d.ExtraVehicles != 1 {
		t.Fatalf("got %+v", d)
	}
}

func TestDiagnoseNamesOversizedStops(t *testing.T) {
	d := Diagnose(stopsWithDemand(12, 1, 11), uniformMatrix(4, 1), Fleet{Capacity: 10, Count: 5})
	if !reflect.DeepEqual(d.Stops, []string{"Stop a", "Stop c"}) {
		t.Fatalf("stops %v", d.Stops)
	}
}

func TestDiagnoseUnknownSuggestions(t *testing.T) {
	d := Diagnose(stopsWithDemand(1, 1), uniformMatrix(3, 1), Fleet{Capacity: 10, Count: 1})
	if d.Type != "unknown" || len(d.Suggestions) == 0 {
		t.Fatalf("got %+v", d)
	}
	d = Diagnose(stopsWithDemand(1, 1), uniformMatrix(3, 1), Fleet{Capacity: 10, Count: 3})
	if len(d.Suggestions) != 3 {
		t.Fatalf("generic suggestions expected, got %v", d.Suggestions)
	}
}
