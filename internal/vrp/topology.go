package vrp

import (
	"fmt"
	"strings"
)

// Topology fixes where vehicles start and end.
type Topology int

const (
	// TopologyRoundTrip starts and ends every vehicle at the depot.
	TopologyRoundTrip Topology = iota
	// TopologyFreeStartDepotEnd lets each vehicle start at any stop and
	// return to the depot.
	TopologyFreeStartDepotEnd
	// TopologyDepotStartOpenEnd starts at the depot and ends anywhere.
	TopologyDepotStartOpenEnd
)

var topologyNames = map[Topology]string{
	TopologyRoundTrip:         "ROUND_TRIP",
	TopologyFreeStartDepotEnd: "FREE_START_DEPOT_END",
	TopologyDepotStartOpenEnd: "DEPOT_START_OPEN_END",
}

func (t Topology) String() string {
	if s, ok := topologyNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Topology(%d)", int(t))
}

func (t Topology) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Topology) UnmarshalText(b []byte) error {
	v, err := ParseRouteMode(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseRouteMode maps a route mode name to a Topology.
func ParseRouteMode(s string) (Topology, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	for t, name := range topologyNames {
		if name == key {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown route mode %q", s)
}

// TopologyFlags are the request-level switches that select a Topology.
// RouteMode wins over the legacy booleans when set.
type TopologyFlags struct {
	RouteMode      string
	StartAnywhere  bool
	EndAtDepotOnly bool
	OpenEnd        bool
}

// ResolveTopology turns flags into exactly one topology or a validation
// error when they contradict each other.
func ResolveTopology(f TopologyFlags) (Topology, error) {
	if strings.TrimSpace(f.RouteMode) != "" {
		t, err := ParseRouteMode(f.RouteMode)
		if err != nil {
			return 0, &ValidationError{Issues: []Issue{{Code: "topology_conflict", Message: err.Error()}}}
		}
		return t, nil
	}
	switch {
	case f.StartAnywhere && f.OpenEnd:
		return 0, &ValidationError{Issues: []Issue{{Code: "topology_conflict", Message: "startAnywhere and openEnd cannot be combined"}}}
	case f.OpenEnd && f.EndAtDepotOnly:
		return 0, &ValidationError{Issues: []Issue{{Code: "topology_conflict", Message: "openEnd and endAtDepotOnly cannot be combined"}}}
	case f.StartAnywhere:
		return TopologyFreeStartDepotEnd, nil
	case f.OpenEnd:
		return TopologyDepotStartOpenEnd, nil
	}
	return TopologyRoundTrip, nil
}

func (t Topology) augmentation() (freeStart, openEnd bool) {
	switch t {
	case TopologyFreeStartDepotEnd:
		return true, false
	case TopologyDepotStartOpenEnd:
		return false, true
	}
	return false, false
}
