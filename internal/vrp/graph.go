package vrp

import "fmt"

// Large is the arc cost used to forbid an edge. It exceeds any plausible
// real route cost and stays well inside the engine's integer range.
const Large = 999999

// rescaleCeiling is the largest distance entry fed to the engine unscaled.
const rescaleCeiling = 50000

// GraphOptions selects the augmentations applied by BuildGraph.
type GraphOptions struct {
	FreeStart bool
	OpenEnd   bool
	// Rescale shrinks the matrix linearly when its maximum exceeds
	// rescaleCeiling. Only distance matrices are rescaled.
	Rescale bool
}

type span struct{ Offset, Count int }

func (s span) contains(i int) bool { return s.Count > 0 && i >= s.Offset && i < s.Offset+s.Count }

// Graph is the integer node/demand model handed to a search engine. Real
// nodes occupy 0..RealNodes-1 with the depot at 0; virtual start and end
// nodes follow. Cost rows share one backing array sized up front.
type Graph struct {
	Cost      [][]int64
	Demand    []int64
	Starts    []int
	Ends      []int
	RealNodes int
	Scale     float64

	virtualStarts span
	virtualEnds   span
}

// BuildGraph converts stops and a cost matrix into a Graph for the given
// number of vehicles.
func BuildGraph(m Matrix, stops []Stop, vehicles int, opts GraphOptions) (*Graph, error) {
	n := len(stops)
	if n == 0 || len(m) != n {
		return nil, fmt.Errorf("build graph: matrix is %dx? for %d stops", len(m), n)
	}
	if vehicles < 1 {
		return nil, fmt.Errorf("build graph: %d vehicles", vehicles)
	}

	size := n
	g := &Graph{RealNodes: n, Scale: 1}
	if opts.FreeStart {
		g.virtualStarts = span{Offset: size, Count: vehicles}
		size += vehicles
	}
	if opts.OpenEnd {
		g.virtualEnds = span{Offset: size, Count: vehicles}
		size += vehicles
	}

	if peak := m.Max(); opts.Rescale && peak > rescaleCeiling {
		g.Scale = rescaleCeiling / peak
	}

	cells := make([]int64, size*size)
	g.Cost = make([][]int64, size)
	for i := range g.Cost {
		g.Cost[i] = cells[i*size : (i+1)*size]
		for j := range g.Cost[i] {
			g.Cost[i][j] = Large
		}
	}
	for i := 0; i < n; i++ {
		if len(m[i]) != n {
			return nil, fmt.Errorf("build graph: row %d has %d columns, want %d", i, len(m[i]), n)
		}
		for j := 0; j < n; j++ {
			g.Cost[i][j] = int64(m[i][j] * g.Scale)
		}
	}

	for v := 0; v < g.virtualStarts.Count; v++ {
		s := g.virtualStarts.Offset + v
		for j := 0; j < n; j++ {
			g.Cost[s][j] = 0
		}
		g.Cost[s][s] = 0
	}
	for v := 0; v < g.virtualEnds.Count; v++ {
		e := g.virtualEnds.Offset + v
		for i := 0; i < n; i++ {
			g.Cost[i][e] = 0
		}
		g.Cost[e][e] = 0
	}

	g.Demand = make([]int64, size)
	for i := 1; i < n; i++ {
		g.Demand[i] = int64(stops[i].Demand)
	}

	g.Starts = make([]int, vehicles)
	g.Ends = make([]int, vehicles)
	for v := 0; v < vehicles; v++ {
		if opts.FreeStart {
			g.Starts[v] = g.virtualStarts.Offset + v
		}
		if opts.OpenEnd {
			g.Ends[v] = g.virtualEnds.Offset + v
		}
	}
	return g, nil
}

// Size is the total node count including virtual nodes.
func (g *Graph) Size() int { return len(g.Cost) }

// ArcCost is clamped to [0, Large]; indices outside the graph cost Large.
func (g *Graph) ArcCost(from, to int) int64 {
	if from < 0 || to < 0 || from >= len(g.Cost) || to >= len(g.Cost) {
		return Large
	}
	c := g.Cost[from][to]
	switch {
	case c < 0:
		return 0
	case c > Large:
		return Large
	}
	return c
}

// DemandAt returns 0 for indices outside the graph.
func (g *Graph) DemandAt(node int) int64 {
	if node < 0 || node >= len(g.Demand) {
		return 0
	}
	return g.Demand[node]
}

func (g *Graph) IsVirtualStart(node int) bool { return g.virtualStarts.contains(node) }

func (g *Graph) IsVirtualEnd(node int) bool { return g.virtualEnds.contains(node) }

func (g *Graph) IsVirtual(node int) bool { return g.IsVirtualStart(node) || g.IsVirtualEnd(node) }

// VirtualStarts returns the offset and count of the virtual start block.
func (g *Graph) VirtualStarts() (offset, count int) {
	return g.virtualStarts.Offset, g.virtualStarts.Count
}

// VirtualEnds returns the offset and count of the virtual end block.
func (g *Graph) VirtualEnds() (offset, count int) {
	return g.virtualEnds.Offset, g.virtualEnds.Count
}
