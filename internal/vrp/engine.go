package vrp

import (
	"context"
	"time"
)

// Model is the configuration handed to a SearchEngine.
type Model struct {
	NodeCount  int
	Starts     []int
	Ends       []int
	ArcCost    func(from, to int) int64
	Demand     func(node int) int64
	Capacities []int64
	Objective  ObjectiveConfig
	Seed       int64
}

// Assignment is the engine output: for every vehicle, the node sequence from
// its start node to its end node.
type Assignment struct {
	Routes         [][]int
	ObjectiveValue int64
}

// SearchEngine is the combinatorial backend. Configure rejects models it
// cannot represent; Solve returns ErrNoSolution when nothing feasible was
// found within the limit.
type SearchEngine interface {
	Configure(m Model) error
	Solve(ctx context.Context, timeLimit time.Duration) (Assignment, error)
}

// EngineFactory returns a fresh engine per solve.
type EngineFactory func() SearchEngine

// StatsReporter is implemented by engines that expose search statistics.
type StatsReporter interface {
	Stats() map[string]any
}

func newModel(g *Graph, fleet Fleet, cfg ObjectiveConfig, seed int64) Model {
	caps := make([]int64, 0, fleet.Count)
	for _, c := range fleet.capacities() {
		caps = append(caps, int64(c))
	}
	return Model{
		NodeCount:  g.Size(),
		Starts:     append([]int(nil), g.Starts...),
		Ends:       append([]int(nil), g.Ends...),
		ArcCost:    g.ArcCost,
		Demand:     g.DemandAt,
		Capacities: caps,
		Objective:  cfg,
		Seed:       seed,
	}
}
