// Command vrpsolve solves a capacitated routing problem from CSV files and
// prints the routes, optionally writing the summary and route CSV exports.
package main

import (
    "context"
    "errors"
    "flag"
    "fmt"
    "io"
    "log"
    "os"
    "path/filepath"
    "strings"
    "time"

    "github.com/CielmobilityWorks/route-optimization-tools/internal/config"
    "github.com/CielmobilityWorks/route-optimization-tools/internal/dataset"
    "github.com/CielmobilityWorks/route-optimization-tools/internal/opt"
    "github.com/CielmobilityWorks/route-optimization-tools/internal/vrp"
)

func main() {
    var (
        cfgPath   = flag.String("config", "", "YAML config file (env CONFIG_FILE)")
        stopsPath = flag.String("stops", "", "stops CSV: id,name,demand; first row is the depot")
        distPath  = flag.String("distance", "", "labelled N x N distance matrix CSV")
        timePath  = flag.String("time", "", "labelled N x N time matrix CSV (defaults to the distance matrix)")
        capacity  = flag.Int("capacity", 0, "vehicle capacity")
        vehicles  = flag.Int("vehicles", 0, "vehicle count (default ceil(total demand / capacity))")
        limit     = flag.Duration("time-limit", 0, "search time limit (default from config)")
        objective = flag.String("objective", "", "distance, time, vehicles, cost or makespan")
        balance   = flag.Bool("balance", false, "add the workload balance objective")
        routeMode = flag.String("route-mode", "", "FREE_START_DEPOT_END, DEPOT_START_OPEN_END or ROUND_TRIP")
        seed      = flag.Int64("seed", 0, "search seed (0 uses the config seed)")
        outDir    = flag.String("out", "", "directory for optimization_summary.csv and optimization_routes.csv")
    )
    flag.Parse()
    log.SetFlags(0)

    if *stopsPath == "" || *distPath == "" || *capacity <= 0 {
        flag.Usage()
        os.Exit(2)
    }
    cfg, err := config.Load(*cfgPath)
    if err != nil { log.Fatalf("config: %v", err) }

    in, err := buildInput(*stopsPath, *distPath, *timePath)
    if err != nil { log.Fatal(err) }
    in.Fleet = vrp.Fleet{Capacity: *capacity, Count: *vehicles}
    in.WorkloadBalance = *balance
    in.TimeLimit = cfg.Solver.TimeLimit
    if *limit > 0 { in.TimeLimit = *limit }
    in.Seed = cfg.Solver.Seed
    if *seed != 0 { in.Seed = *seed }
    objName := cfg.Solver.Objective
    if *objective != "" { objName = *objective }
    if in.Objective, err = vrp.ParseObjective(objName); err != nil { log.Fatal(err) }
    in.Topology = cfg.DefaultTopology()
    if *routeMode != "" {
        if in.Topology, err = vrp.ParseRouteMode(*routeMode); err != nil { log.Fatal(err) }
    }

    solver := vrp.NewSolver(opt.Factory(opt.Options{
        IterationsLimit: cfg.Solver.MaxIterations,
        StallLimit:      cfg.Solver.StallIterations,
    }))
    ctx := vrp.WithRunID(context.Background(), "cli-"+time.Now().UTC().Format("20060102T150405"))
    res, err := solver.Solve(ctx, in)
    printResult(os.Stdout, res)
    if err != nil {
        var verr *vrp.ValidationError
        if errors.As(err, &verr) { os.Exit(3) }
        os.Exit(1)
    }
    if *outDir != "" {
        if err := export(*outDir, res, *capacity); err != nil { log.Fatal(err) }
    }
}

func buildInput(stopsPath, distPath, timePath string) (vrp.Input, error) {
    stops, enc, err := dataset.LoadStops(stopsPath)
    if err != nil { return vrp.Input{}, err }
    log.Printf("loaded %d stops from %s (%s)", len(stops), stopsPath, enc)
    dist, _, err := dataset.LoadMatrix(distPath)
    if err != nil { return vrp.Input{}, err }
    tm := dist
    if timePath != "" {
        if tm, _, err = dataset.LoadMatrix(timePath); err != nil { return vrp.Input{}, err }
    }
    return vrp.Input{Stops: stops, DistanceMatrix: dist, TimeMatrix: tm}, nil
}

func printResult(w io.Writer, res vrp.RunResult) {
    if !res.Success {
        fmt.Fprintf(w, "Optimization failed: %s\n", res.Message)
        for _, is := range res.ValidationErrors {
            fmt.Fprintf(w, "  - [%s] %s\n", is.Code, is.Message)
        }
        if d := res.Diagnosis; d != nil {
            fmt.Fprintf(w, "Diagnosis: %s\n", d.Type)
            for _, s := range d.Suggestions {
                fmt.Fprintf(w, "  * %s\n", s)
            }
        }
        return
    }
    objective := string(res.Objective)
    if res.FellBack { objective += " (fallback)" }
    fmt.Fprintf(w, "Objective: %s  value=%d  topology=%s\n", objective, res.ObjectiveValue, res.Topology)
    fmt.Fprintf(w, "Total distance: %.1f  total time: %.1f  total load: %d  vehicles used: %d/%d\n",
        res.TotalDistance, res.TotalTime, res.TotalLoad, len(res.Routes), res.VehicleCount)
    for _, r := range res.Routes {
        names := make([]string, 0, len(r.Waypoints))
        for _, wp := range r.Waypoints { names = append(names, wp.Name) }
        fmt.Fprintf(w, "Vehicle %d: %s  (distance %.1f, load %d)\n", r.VehicleID+1, strings.Join(names, " -> "), r.Distance, r.Load)
    }
    for _, is := range res.Warnings {
        fmt.Fprintf(w, "warning [%s] %s\n", is.Code, is.Message)
    }
}

func export(dir string, res vrp.RunResult, capacity int) error {
    if err := os.MkdirAll(dir, 0o755); err != nil { return err }
    write := func(name string, fn func(io.Writer) error) error {
        f, err := os.Create(filepath.Join(dir, name))
        if err != nil { return err }
        if err := fn(f); err != nil {
            _ = f.Close()
            return fmt.Errorf("write %s: %w", name, err)
        }
        return f.Close()
    }
    if err := write("optimization_summary.csv", func(w io.Writer) error { return dataset.WriteSummaryCSV(w, res, capacity) }); err != nil {
        return err
    }
    if err := write("optimization_routes.csv", func(w io.Writer) error { return dataset.WriteRoutesCSV(w, res) }); err != nil {
        return err
    }
    log.Printf("wrote CSV exports to %s", dir)
    return nil
}
