package opt

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/CielmobilityWorks/route-optimization-tools/internal/vrp"
)

// Options tune the search; zero values keep the engine defaults.
type Options struct {
	Seed            int64
	IterationsLimit int
	StallLimit      int
	InitialTemp     float64
	Cooling         float64
}

// Engine adapts the ALNS search to vrp.SearchEngine. One Engine serves one
// solve attempt.
type Engine struct {
	opts    Options
	model   vrp.Model
	ready   bool
	metrics Metrics
}

func NewEngine(o Options) *Engine { return &Engine{opts: o} }

// Factory hands the solver a fresh Engine per attempt.
func Factory(o Options) vrp.EngineFactory {
	return func() vrp.SearchEngine { return NewEngine(o) }
}

func (e *Engine) Configure(m vrp.Model) error {
	if m.NodeCount < 1 {
		return fmt.Errorf("opt: model has %d nodes", m.NodeCount)
	}
	if len(m.Starts) == 0 || len(m.Starts) != len(m.Ends) || len(m.Starts) != len(m.Capacities) {
		return fmt.Errorf("opt: %d starts, %d ends, %d capacities", len(m.Starts), len(m.Ends), len(m.Capacities))
	}
	for v := range m.Starts {
		if m.Starts[v] < 0 || m.Starts[v] >= m.NodeCount || m.Ends[v] < 0 || m.Ends[v] >= m.NodeCount {
			return fmt.Errorf("opt: vehicle %d runs %d->%d outside %d nodes", v, m.Starts[v], m.Ends[v], m.NodeCount)
		}
	}
	if m.ArcCost == nil || m.Demand == nil {
		return fmt.Errorf("opt: model lacks arc or demand callbacks")
	}
	if m.Objective.FixedVehicleCost < 0 || m.Objective.SpanCoefficient < 0 {
		return fmt.Errorf("opt: negative objective weights %+v", m.Objective)
	}
	e.model, e.ready = m, true
	return nil
}

func (e *Engine) Solve(ctx context.Context, limit time.Duration) (vrp.Assignment, error) {
	if !e.ready {
		return vrp.Assignment{}, fmt.Errorf("opt: solve before configure")
	}
	if limit <= 0 {
		limit = time.Second
	}
	m := e.model
	seed := e.opts.Seed
	if m.Seed != 0 {
		seed = m.Seed
	}
	p := Problem{
		NodeCount:        m.NodeCount,
		Starts:           m.Starts,
		Ends:             m.Ends,
		Arc:              m.ArcCost,
		Demand:           m.Demand,
		Capacities:       m.Capacities,
		FixedVehicleCost: m.Objective.FixedVehicleCost,
		SpanCoefficient:  m.Objective.SpanCoefficient,
		IterationsLimit:  e.opts.IterationsLimit,
		StallLimit:       e.opts.StallLimit,
		InitialTemp:      e.opts.InitialTemp,
		Cooling:          e.opts.Cooling,
	}
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()
	sol, met := Solve(ctx, p, seed, limit)
	e.metrics = met
	if id := vrp.RunID(ctx); id != "" {
		RecordMetrics(id, met)
	}
	log.Printf("[ALNS] run_id=%s iterations=%d improvements=%d best=%d stop=%s unassigned=%d",
		vrp.RunID(ctx), met.Iterations, met.Improvements, met.BestCost, met.StopReason, len(sol.Unassigned))
	if len(sol.Unassigned) > 0 {
		return vrp.Assignment{}, vrp.ErrNoSolution
	}

	out := vrp.Assignment{Routes: make([][]int, len(sol.Plans)), ObjectiveValue: sol.Cost}
	for v, pl := range sol.Plans {
		seq := make([]int, 0, len(pl.Order)+2)
		seq = append(seq, m.Starts[v])
		seq = append(seq, pl.Order...)
		out.Routes[v] = append(seq, m.Ends[v])
	}
	return out, nil
}

// Metrics returns the statistics of the last Solve.
func (e *Engine) Metrics() Metrics { return e.metrics }

func (e *Engine) Stats() map[string]any { return e.metrics.Map() }
