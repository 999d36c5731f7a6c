package vrp

import (
	"errors"
	"testing"
)

var (
	extractDist = Matrix{{0, 10, 10}, {10, 0, 5}, {10, 5, 0}}
	extractTime = Matrix{{0, 2, 3}, {2, 0, 1}, {3, 1, 0}}
)

func TestExtractRoundTrip(t *testing.T) {
	stops := stopsWithDemand(5, 4)
	g, err := BuildGraph(extractDist, stops, 2, GraphOptions{})
	if err != nil {
		t.Fatal(err)
	}
	routes, tot, err := Extract(g, Assignment{Routes: [][]int{{0, 1, 2, 0}, {0, 0}}}, stops, extractTime, extractDist)
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 1 {
		t.Fatalf("empty vehicle not dropped: %d routes", len(routes))
	}
	r := routes[0]
	if len(r.Waypoints) != 4 || r.Waypoints[0].Role != RoleDepot || r.Waypoints[3].Role != RoleDepot {
		t.Fatalf("waypoints %+v", r.Waypoints)
	}
	wantLoad := []int{0, 5, 9, 9}
	wantDist := []float64{0, 10, 15, 25}
	wantTime := []float64{0, 2, 3, 6}
	for i, w := range r.Waypoints {
		if w.Load != wantLoad[i] || w.CumulativeDistance != wantDist[i] || w.CumulativeTime != wantTime[i] {
			t.Fatalf("waypoint %d = %+v", i, w)
		}
	}
	if tot.Distance != 25 || tot.Time != 6 || tot.Load != 9 {
		t.Fatalf("totals %+v", tot)
	}
}

func TestExtractFreeStartSkipsVirtualArcs(t *testing.T) {
	stops := stopsWithDemand(5, 4)
	g, err := BuildGraph(extractDist, stops, 1, GraphOptions{FreeStart: true})
	if err != nil {
		t.Fatal(err)
	}
	routes, tot, err := Extract(g, Assignment{Routes: [][]int{{3, 2, 1, 0}}}, stops, extractTime, extractDist)
	if err != nil {
		t.Fatal(err)
	}
	wps := routes[0].Waypoints
	if len(wps) != 3 || wps[0].ID != "b" || wps[2].Role != RoleDepot {
		t.Fatalf("waypoints %+v", wps)
	}
	if wps[0].CumulativeDistance != 0 || wps[0].Load != 4 {
		t.Fatalf("first waypoint %+v", wps[0])
	}
	if tot.Distance != 15 || tot.Time != 3 {
		t.Fatalf("totals %+v", tot)
	}
}

func TestExtractOpenEndOmitsTerminal(t *testing.T) {
	stops := stopsWithDemand(5, 4)
	g, err := BuildGraph(extractDist, stops, 1, GraphOptions{OpenEnd: true})
	if err != nil {
		t.Fatal(err)
	}
	routes, tot, err := Extract(g, Assignment{Routes: [][]int{{0, 1, 2, 3}}}, stops, extractTime, extractDist)
	if err != nil {
		t.Fatal(err)
	}
	wps := routes[0].Waypoints
	if len(wps) != 3 || wps[2].ID != "b" {
		t.Fatalf("waypoints %+v", wps)
	}
	if tot.Distance != 15 {
		t.Fatalf("distance %v", tot.Distance)
	}
}

func TestExtractRejectsMalformedOutput(t *testing.T) {
	stops := stopsWithDemand(5, 4)
	g, err := BuildGraph(extractDist, stops, 2, GraphOptions{})
	if err != nil {
		t.Fatal(err)
	}
	bad := []Assignment{
		{Routes: [][]int{{0, 1, 2, 0}}},
		{Routes: [][]int{{1, 2, 0}, {0, 0}}},
		{Routes: [][]int{{0, 1, 0}, {0, 1, 2, 0}}},
		{Routes: [][]int{{0, 7, 0}, {0, 0}}},
		{Routes: [][]int{{0}, {0, 0}}},
	}
	for i, a := range bad {
		_, _, err := Extract(g, a, stops, extractTime, extractDist)
		var ee *ExtractionError
		if !errors.As(err, &ee) {
			t.Fatalf("case %d: err = %v", i, err)
		}
	}
}
