package vrp

import "fmt"

// Totals are the fleet-wide sums of an extracted solution.
type Totals struct {
	Distance float64
	Time     float64
	Load     int
}

// Extract walks every vehicle's node sequence into routes. Distance and
// time are both read from the raw matrices on real-to-real arcs, whatever
// matrix the engine optimised; arcs touching a virtual node add nothing.
func Extract(g *Graph, a Assignment, stops []Stop, timeM, distM Matrix) ([]Route, Totals, error) {
	if len(a.Routes) != len(g.Starts) {
		return nil, Totals{}, &ExtractionError{Vehicle: -1, Reason: fmt.Sprintf("engine returned %d routes for %d vehicles", len(a.Routes), len(g.Starts))}
	}
	seen := make(map[int]int)
	routes := []Route{}
	var tot Totals
	for v, seq := range a.Routes {
		if err := checkSequence(g, v, seq, seen); err != nil {
			return nil, Totals{}, err
		}
		if len(seq) <= 2 {
			continue
		}

		rt := Route{VehicleID: v, Waypoints: make([]Waypoint, 0, len(seq))}
		load := 0
		var dist, tm float64
		for i := 0; i < len(seq)-1; i++ {
			node, next := seq[i], seq[i+1]
			if node < g.RealNodes && node > 0 {
				load += stops[node].Demand
			}
			if !g.IsVirtualStart(node) {
				rt.Waypoints = append(rt.Waypoints, waypointAt(stops, node, load, dist, tm))
			}
			if !g.IsVirtual(node) && !g.IsVirtual(next) {
				dist += lookup(distM, node, next)
				tm += lookup(timeM, node, next)
			}
		}
		if last := seq[len(seq)-1]; !g.IsVirtual(last) {
			rt.Waypoints = append(rt.Waypoints, waypointAt(stops, last, load, dist, tm))
		}
		rt.Distance, rt.Time, rt.Load = dist, tm, load

		tot.Distance += dist
		tot.Time += tm
		tot.Load += load
		routes = append(routes, rt)
	}
	return routes, tot, nil
}

func checkSequence(g *Graph, v int, seq []int, seen map[int]int) error {
	if len(seq) < 2 {
		return &ExtractionError{Vehicle: v, Reason: fmt.Sprintf("sequence has %d nodes", len(seq))}
	}
	if seq[0] != g.Starts[v] || seq[len(seq)-1] != g.Ends[v] {
		return &ExtractionError{Vehicle: v, Reason: fmt.Sprintf("sequence runs %d->%d, want %d->%d", seq[0], seq[len(seq)-1], g.Starts[v], g.Ends[v])}
	}
	for _, node := range seq[1 : len(seq)-1] {
		if node < 0 || node >= g.RealNodes {
			return &ExtractionError{Vehicle: v, Reason: fmt.Sprintf("interior node %d is not a real stop", node)}
		}
		if prev, dup := seen[node]; dup {
			return &ExtractionError{Vehicle: v, Reason: fmt.Sprintf("node %d already visited by vehicle %d", node, prev)}
		}
		seen[node] = v
	}
	return nil
}

func waypointAt(stops []Stop, node, load int, dist, tm float64) Waypoint {
	role := RoleWaypoint
	if node == 0 {
		role = RoleDepot
	}
	s := stops[node]
	return Waypoint{Role: role, ID: s.ID, Name: s.Name, Load: load, CumulativeDistance: dist, CumulativeTime: tm}
}

func lookup(m Matrix, i, j int) float64 {
	if i >= len(m) || j >= len(m[i]) {
		return 0
	}
	return m[i][j]
}
