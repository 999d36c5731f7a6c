package vrp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// DefaultTimeLimit bounds a solve when Input.TimeLimit is zero.
const DefaultTimeLimit = 60 * time.Second

// Solver runs the validate, build, configure, search, extract pipeline.
// It holds no per-solve state and is safe for concurrent use.
type Solver struct {
	NewEngine EngineFactory
}

// NewSolver returns a Solver that asks f for a fresh engine per attempt.
func NewSolver(f EngineFactory) *Solver {
	return &Solver{NewEngine: f}
}

// Solve runs one optimisation. A failed solve returns a RunResult with
// Success false and a message together with one of *ValidationError,
// *ObjectiveConfigError, *InfeasibleError or *ExtractionError.
func (s *Solver) Solve(ctx context.Context, in Input) (res RunResult, err error) {
	defer timeOp(ctx, "solve")(&err)

	if in.Objective == "" {
		in.Objective = ObjectiveDistance
	}
	if in.TimeLimit <= 0 {
		in.TimeLimit = DefaultTimeLimit
	}
	if in.Fleet.Count == 0 && len(in.Fleet.Capacities) == 0 {
		in.Fleet.Count = DefaultVehicleCount(in.Stops, in.Fleet.Capacity)
	}
	if in.Fleet.Count == 0 {
		in.Fleet.Count = len(in.Fleet.Capacities)
	}
	res = RunResult{Objective: in.Objective, Topology: in.Topology, VehicleCount: in.Fleet.Count, Routes: []Route{}}

	if !in.Objective.Valid() {
		verr := &ValidationError{Issues: []Issue{{Code: "unknown_objective", Message: fmt.Sprintf("unknown objective %q", in.Objective)}}}
		return failed(res, verr.Error(), verr)
	}

	primary, secondary := in.DistanceMatrix, in.TimeMatrix
	if in.Objective.UsesTimeMatrix() {
		primary, secondary = in.TimeMatrix, in.DistanceMatrix
	}
	v := Validate(in.Stops, primary, in.Fleet)
	if len(secondary) == 0 {
		v.fail("empty_matrix", "secondary cost matrix is empty")
	}
	checkMatrixShape(&v, "secondary matrix", secondary, len(in.Stops))
	checkMatrixFinite(&v, "secondary matrix", secondary)
	v.Valid = len(v.Errors) == 0
	res.Stats, res.Warnings = v.Stats, v.Warnings
	for _, w := range v.Warnings {
		log.Printf("[VRP] run_id=%s warning %s: %s", RunID(ctx), w.Code, w.Message)
	}
	if !v.Valid {
		res.ValidationErrors = v.Errors
		verr := v.Err()
		return failed(res, verr.Error(), verr)
	}

	freeStart, openEnd := in.Topology.augmentation()
	g, err := BuildGraph(primary, in.Stops, in.Fleet.Count, GraphOptions{
		FreeStart: freeStart,
		OpenEnd:   openEnd,
		Rescale:   !in.Objective.UsesTimeMatrix(),
	})
	if err != nil {
		return failed(res, err.Error(), &ExtractionError{Vehicle: -1, Reason: err.Error()})
	}
	res.Scale = g.Scale
	if g.Scale != 1 {
		log.Printf("[VRP] run_id=%s rescaled distance matrix by %.4f (max %.1f)", RunID(ctx), g.Scale, v.Stats.MaxCost)
	}
	log.Printf("[VRP] run_id=%s topology=%s nodes=%d vehicles=%d objective=%s", RunID(ctx), in.Topology, g.Size(), in.Fleet.Count, in.Objective)

	a, engine, used, fellBack, err := s.search(ctx, g, in)
	res.Objective, res.FellBack = used, fellBack
	if sr, ok := engine.(StatsReporter); ok {
		res.Engine = sr.Stats()
	}
	if err != nil {
		if errors.Is(err, ErrNoSolution) {
			d := Diagnose(in.Stops, primary, in.Fleet)
			log.Printf("[VRP] run_id=%s no solution, diagnosis=%s", RunID(ctx), d.Type)
			res.Diagnosis = &d
			return failed(res, d.Message, &InfeasibleError{Diagnosis: d})
		}
		return failed(res, err.Error(), err)
	}

	routes, tot, err := Extract(g, a, in.Stops, in.TimeMatrix, in.DistanceMatrix)
	if err != nil {
		return failed(res, "could not read the engine result: "+err.Error(), err)
	}
	res.Success = true
	res.Routes = routes
	res.ObjectiveValue = a.ObjectiveValue
	res.TotalDistance, res.TotalTime, res.TotalLoad = tot.Distance, tot.Time, tot.Load
	return res, nil
}

// search configures and runs an engine, falling back once to plain
// distance when a shaped objective cannot be configured or errors out.
func (s *Solver) search(ctx context.Context, g *Graph, in Input) (Assignment, SearchEngine, Objective, bool, error) {
	objective := in.Objective
	fellBack := false

	fallback := func(cause error) error {
		if objective.plain() || fellBack {
			return &ObjectiveConfigError{Objective: objective, Err: cause}
		}
		log.Printf("[VRP] run_id=%s objective %s failed (%v), retrying with distance", RunID(ctx), objective, cause)
		objective, fellBack = ObjectiveDistance, true
		return nil
	}

	for {
		engine := s.NewEngine()
		cfg, err := ConfigureObjective(objective, in.Fleet.Count, in.WorkloadBalance)
		if err == nil {
			err = engine.Configure(newModel(g, in.Fleet, cfg, in.Seed))
		}
		if err != nil {
			if ferr := fallback(err); ferr != nil {
				return Assignment{}, engine, objective, fellBack, ferr
			}
			continue
		}

		a, err := engine.Solve(ctx, in.TimeLimit)
		if err != nil && !errors.Is(err, ErrNoSolution) {
			if ferr := fallback(err); ferr != nil {
				return Assignment{}, engine, objective, fellBack, fmt.Errorf("search: %w", err)
			}
			continue
		}
		return a, engine, objective, fellBack, err
	}
}

func failed(res RunResult, msg string, err error) (RunResult, error) {
	res.Success = false
	res.Message = msg
	res.Routes = []Route{}
	return res, err
}
