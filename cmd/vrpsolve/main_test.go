package main

import (
    "bytes"
    "os"
    "path/filepath"
    "strings"
    "testing"

    "github.com/CielmobilityWorks/route-optimization-tools/internal/vrp"
)

func TestPrintResultRoutes(t *testing.T) {
    res := vrp.RunResult{
        Success:       true,
        Objective:     vrp.ObjectiveDistance,
        VehicleCount:  1,
        TotalDistance: 25,
        Routes: []vrp.Route{{VehicleID: 0, Distance: 25, Load: 10, Waypoints: []vrp.Waypoint{
            {Role: vrp.RoleDepot, Name: "Depot"}, {Role: vrp.RoleWaypoint, Name: "A"},
            {Role: vrp.RoleWaypoint, Name: "B"}, {Role: vrp.RoleDepot, Name: "Depot"},
        }}},
    }
    var buf bytes.Buffer
    printResult(&buf, res)
    if !strings.Contains(buf.String(), "Vehicle 1: Depot -> A -> B -> Depot") {
        t.Fatalf("output:\n%s", buf.String())
    }
}

func TestPrintResultFailure(t *testing.T) {
    res := vrp.RunResult{
        Message:          "validation failed",
        ValidationErrors: []vrp.Issue{{Code: "capacity_constraint", Message: "total demand 25 exceeds total capacity 10"}},
    }
    var buf bytes.Buffer
    printResult(&buf, res)
    if !strings.Contains(buf.String(), "[capacity_constraint]") { t.Fatalf("output:\n%s", buf.String()) }
}

func TestExportWritesBothFiles(t *testing.T) {
    dir := filepath.Join(t.TempDir(), "out")
    if err := export(dir, vrp.RunResult{Success: true}, 10); err != nil { t.Fatal(err) }
    for _, name := range []string{"optimization_summary.csv", "optimization_routes.csv"} {
        if _, err := os.Stat(filepath.Join(dir, name)); err != nil { t.Fatalf("%s: %v", name, err) }
    }
}
