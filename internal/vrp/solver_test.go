package vrp

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

// fakeEngine visits every waypoint with vehicle 0 in index order unless the
// hooks say otherwise.
type fakeEngine struct {
	rec       *engineLog
	configure func(Model) error
	solve     func(Model) (Assignment, error)
	model     Model
}

type engineLog struct {
	created int
	models  []Model
}

func (f *fakeEngine) Configure(m Model) error {
	f.rec.models = append(f.rec.models, m)
	f.model = m
	if f.configure != nil {
		return f.configure(m)
	}
	return nil
}

func (f *fakeEngine) Solve(ctx context.Context, limit time.Duration) (Assignment, error) {
	if f.solve != nil {
		return f.solve(f.model)
	}
	return sweep(f.model), nil
}

func (f *fakeEngine) Stats() map[string]any { return map[string]any{"fake": true} }

func sweep(m Model) Assignment {
	terminal := map[int]bool{}
	for v := range m.Starts {
		terminal[m.Starts[v]] = true
		terminal[m.Ends[v]] = true
	}
	a := Assignment{Routes: make([][]int, len(m.Starts))}
	for v := range m.Starts {
		a.Routes[v] = []int{m.Starts[v]}
		if v == 0 {
			for n := 0; n < m.NodeCount; n++ {
				if !terminal[n] {
					a.Routes[v] = append(a.Routes[v], n)
				}
			}
		}
		a.Routes[v] = append(a.Routes[v], m.Ends[v])
	}
	return a
}

func fakeFactory(rec *engineLog, configure func(Model) error, solve func(Model) (Assignment, error)) EngineFactory {
	return func() SearchEngine {
		rec.created++
		return &fakeEngine{rec: rec, configure: configure, solve: solve}
	}
}

func scenarioInput() Input {
	return Input{
		Stops:          stopsWithDemand(5, 5),
		DistanceMatrix: Matrix{{0, 10, 10}, {10, 0, 5}, {10, 5, 0}},
		TimeMatrix:     Matrix{{0, 3, 4}, {3, 0, 2}, {4, 2, 0}},
		Fleet:          Fleet{Capacity: 10, Count: 1},
		TimeLimit:      time.Second,
	}
}

func TestSolveHappyPath(t *testing.T) {
	rec := &engineLog{}
	res, err := NewSolver(fakeFactory(rec, nil, nil)).Solve(context.Background(), scenarioInput())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || len(res.Routes) != 1 || res.TotalDistance != 25 || res.TotalTime != 9 || res.TotalLoad != 10 {
		t.Fatalf("result %+v", res)
	}
	if res.Objective != ObjectiveDistance || res.FellBack || res.Engine["fake"] != true {
		t.Fatalf("objective %s fellBack %v engine %v", res.Objective, res.FellBack, res.Engine)
	}
	if rec.created != 1 {
		t.Fatalf("engines created %d", rec.created)
	}
}

func TestSolveValidationSkipsEngine(t *testing.T) {
	rec := &engineLog{}
	in := scenarioInput()
	in.Stops = stopsWithDemand(10, 15)
	res, err := NewSolver(fakeFactory(rec, nil, nil)).Solve(context.Background(), in)
	var ve *ValidationError
	if !errors.As(err, &ve) || !ve.Has("capacity_constraint") {
		t.Fatalf("err = %v", err)
	}
	if res.Success || res.Message == "" || len(res.Routes) != 0 || !hasIssue(res.ValidationErrors, "capacity_constraint") {
		t.Fatalf("result %+v", res)
	}
	if rec.created != 0 {
		t.Fatalf("engine invoked %d times", rec.created)
	}
}

func TestSolveRejectsUnknownObjective(t *testing.T) {
	in := scenarioInput()
	in.Objective = "cheapest"
	_, err := NewSolver(fakeFactory(&engineLog{}, nil, nil)).Solve(context.Background(), in)
	var ve *ValidationError
	if !errors.As(err, &ve) || !ve.Has("unknown_objective") {
		t.Fatalf("err = %v", err)
	}
}

func TestSolveChecksSecondaryMatrix(t *testing.T) {
	in := scenarioInput()
	in.TimeMatrix = nil
	_, err := NewSolver(fakeFactory(&engineLog{}, nil, nil)).Solve(context.Background(), in)
	var ve *ValidationError
	if !errors.As(err, &ve) || !ve.Has("empty_matrix") {
		t.Fatalf("err = %v", err)
	}
}

func TestSolveRejectsBadInputWithoutEngine(t *testing.T) {
	cases := []struct {
		name string
		edit func(*Input)
		code string
	}{
		{"negative vehicles", func(in *Input) { in.Fleet.Count = -1 }, "invalid_fleet"},
		{"infinite distance", func(in *Input) { in.DistanceMatrix[0][2] = math.Inf(1) }, "non_finite_cost"},
		{"nan secondary", func(in *Input) { in.TimeMatrix[1][2] = math.NaN() }, "non_finite_cost"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec := &engineLog{}
			in := scenarioInput()
			c.edit(&in)
			res, err := NewSolver(fakeFactory(rec, nil, nil)).Solve(context.Background(), in)
			var ve *ValidationError
			if !errors.As(err, &ve) || !ve.Has(c.code) {
				t.Fatalf("err = %v", err)
			}
			if res.Success || res.Message == "" || rec.created != 0 {
				t.Fatalf("result %+v engines %d", res, rec.created)
			}
		})
	}
}

func TestSolveTimeObjectiveUsesTimeMatrix(t *testing.T) {
	rec := &engineLog{}
	in := scenarioInput()
	in.Objective = ObjectiveMakespan
	res, err := NewSolver(fakeFactory(rec, nil, nil)).Solve(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	m := rec.models[0]
	if m.ArcCost(1, 2) != 2 || m.Objective.FixedVehicleCost != 50000 {
		t.Fatalf("model arc %d cfg %+v", m.ArcCost(1, 2), m.Objective)
	}
	if res.TotalDistance != 25 || res.TotalTime != 9 {
		t.Fatalf("totals must come from the raw matrices: %+v", res)
	}
}

func TestSolveFallsBackToDistance(t *testing.T) {
	rec := &engineLog{}
	rejectShaped := func(m Model) error {
		if m.Objective.FixedVehicleCost > 0 {
			return errors.New("fixed costs unsupported")
		}
		return nil
	}
	in := scenarioInput()
	in.Objective = ObjectiveVehicles
	in.WorkloadBalance = true
	res, err := NewSolver(fakeFactory(rec, rejectShaped, nil)).Solve(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || !res.FellBack || res.Objective != ObjectiveDistance {
		t.Fatalf("result %+v", res)
	}
	if rec.created != 2 {
		t.Fatalf("engines created %d, want 2", rec.created)
	}
	if last := rec.models[1]; last.Objective.SpanCoefficient != 100 || last.Objective.FixedVehicleCost != 0 {
		t.Fatalf("fallback model %+v", last.Objective)
	}
}

func TestSolveFallbackExhausted(t *testing.T) {
	rec := &engineLog{}
	boom := func(Model) error { return errors.New("boom") }
	in := scenarioInput()
	in.Objective = ObjectiveCost
	res, err := NewSolver(fakeFactory(rec, boom, nil)).Solve(context.Background(), in)
	var oe *ObjectiveConfigError
	if !errors.As(err, &oe) || oe.Objective != ObjectiveDistance {
		t.Fatalf("err = %v", err)
	}
	if res.Success || res.Message == "" || rec.created != 2 {
		t.Fatalf("result %+v created %d", res, rec.created)
	}
}

func TestSolvePlainObjectiveDoesNotRetry(t *testing.T) {
	rec := &engineLog{}
	boom := func(Model) error { return errors.New("boom") }
	_, err := NewSolver(fakeFactory(rec, boom, nil)).Solve(context.Background(), scenarioInput())
	var oe *ObjectiveConfigError
	if !errors.As(err, &oe) || rec.created != 1 {
		t.Fatalf("err = %v created %d", err, rec.created)
	}
}

func TestSolveNoSolutionIsDiagnosed(t *testing.T) {
	none := func(Model) (Assignment, error) { return Assignment{}, ErrNoSolution }
	res, err := NewSolver(fakeFactory(&engineLog{}, nil, none)).Solve(context.Background(), scenarioInput())
	var ie *InfeasibleError
	if !errors.As(err, &ie) || !errors.Is(err, ErrNoSolution) {
		t.Fatalf("err = %v", err)
	}
	if res.Diagnosis == nil || res.Diagnosis.Type != "capacity_constraint" || res.Success {
		t.Fatalf("result %+v", res)
	}
}

func TestSolveMalformedEngineOutput(t *testing.T) {
	bad := func(Model) (Assignment, error) { return Assignment{Routes: [][]int{{0, 1, 1, 0}}}, nil }
	res, err := NewSolver(fakeFactory(&engineLog{}, nil, bad)).Solve(context.Background(), scenarioInput())
	var ee *ExtractionError
	if !errors.As(err, &ee) || res.Success || res.Message == "" {
		t.Fatalf("err = %v result %+v", err, res)
	}
}

func TestSolveDefaultsVehicleCount(t *testing.T) {
	rec := &engineLog{}
	in := scenarioInput()
	in.Fleet = Fleet{Capacity: 4}
	in.Stops = stopsWithDemand(3, 3, 3)
	in.DistanceMatrix = uniformMatrix(4, 2)
	in.TimeMatrix = uniformMatrix(4, 1)
	res, err := NewSolver(fakeFactory(rec, nil, func(m Model) (Assignment, error) {
		return Assignment{Routes: [][]int{{0, 1, 0}, {0, 2, 0}, {0, 3, 0}}}, nil
	})).Solve(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if res.VehicleCount != 3 || len(rec.models[0].Capacities) != 3 || len(res.Routes) != 3 {
		t.Fatalf("vehicles %d caps %v routes %d", res.VehicleCount, rec.models[0].Capacities, len(res.Routes))
	}
}
