package api

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/CielmobilityWorks/route-optimization-tools/internal/config"
	"github.com/CielmobilityWorks/route-optimization-tools/internal/model"
	"github.com/CielmobilityWorks/route-optimization-tools/internal/vrp"
)

// buildInput maps a wire request onto a solver input. Errors are request
// shape problems (400); semantic validation is left to the solver.
func buildInput(req *model.OptimizeRequest, cfg config.Config) (vrp.Input, error) {
	if len(req.Stops) == 0 {
		return vrp.Input{}, errors.New("stops must not be empty")
	}
	if req.TimeLimitSeconds < 0 {
		return vrp.Input{}, fmt.Errorf("timeLimitSeconds must be >= 0")
	}
	if req.VehicleCount < 0 {
		return vrp.Input{}, fmt.Errorf("vehicleCount must be >= 0")
	}
	if len(req.Capacities) > 0 && req.VehicleCount > 0 && len(req.Capacities) != req.VehicleCount {
		return vrp.Input{}, fmt.Errorf("capacities has %d entries, vehicleCount is %d", len(req.Capacities), req.VehicleCount)
	}

	objName := req.PrimaryObjective
	if strings.TrimSpace(objName) == "" {
		objName = cfg.Solver.Objective
	}
	objective, err := vrp.ParseObjective(objName)
	if err != nil {
		return vrp.Input{}, err
	}
	balance := false
	for _, extra := range req.AdditionalObjectives {
		if !strings.EqualFold(strings.TrimSpace(extra), vrp.WorkloadBalance) {
			return vrp.Input{}, fmt.Errorf("unknown additional objective %q (allowed: %s)", extra, vrp.WorkloadBalance)
		}
		balance = true
	}

	topology := cfg.DefaultTopology()
	if req.RouteMode != "" || req.StartAnywhere != nil || req.OpenEnd || req.EndAtDepotOnly {
		flags := vrp.TopologyFlags{RouteMode: req.RouteMode, EndAtDepotOnly: req.EndAtDepotOnly, OpenEnd: req.OpenEnd}
		if req.StartAnywhere != nil {
			flags.StartAnywhere = *req.StartAnywhere
		}
		if topology, err = vrp.ResolveTopology(flags); err != nil {
			return vrp.Input{}, err
		}
	}

	timeLimit := cfg.Solver.TimeLimit
	if req.TimeLimitSeconds > 0 {
		timeLimit = time.Duration(req.TimeLimitSeconds) * time.Second
	}
	seed := req.Seed
	if seed == 0 {
		seed = cfg.Solver.Seed
	}
	tm := req.TimeMatrix
	if len(tm) == 0 {
		tm = req.DistanceMatrix
	}
	return vrp.Input{
		Stops:           req.Stops,
		TimeMatrix:      tm,
		DistanceMatrix:  req.DistanceMatrix,
		Fleet:           vrp.Fleet{Capacity: req.VehicleCapacity, Count: req.VehicleCount, Capacities: req.Capacities},
		TimeLimit:       timeLimit,
		Objective:       objective,
		WorkloadBalance: balance,
		Topology:        topology,
		Seed:            seed,
	}, nil
}

var knownEvents = map[string]bool{
	model.EventRunStarted:   true,
	model.EventRunCompleted: true,
	model.EventRunFailed:    true,
	"*":                     true,
}

func validateSubscription(req *model.SubscriptionRequest) error {
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url must be an absolute http(s) URL")
	}
	if len(req.Events) == 0 {
		return errors.New("events must not be empty")
	}
	for _, e := range req.Events {
		if !knownEvents[e] {
			return fmt.Errorf("unknown event %q", e)
		}
	}
	return nil
}
