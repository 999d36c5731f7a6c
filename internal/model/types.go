package model

import (
    "time"

    "github.com/CielmobilityWorks/route-optimization-tools/internal/vrp"
)

// Wire types for the HTTP API

type OptimizeRequest struct {
    ProjectID            string       `json:"projectId,omitempty"`
    Stops                []vrp.Stop   `json:"stops"`
    TimeMatrix           vrp.Matrix   `json:"timeMatrix,omitempty"`
    DistanceMatrix       vrp.Matrix   `json:"distanceMatrix"`
    VehicleCapacity      int          `json:"vehicleCapacity"`
    VehicleCount         int          `json:"vehicleCount,omitempty"`
    Capacities           []int        `json:"capacities,omitempty"`
    TimeLimitSeconds     int          `json:"timeLimitSeconds,omitempty"`
    PrimaryObjective     string       `json:"primaryObjective,omitempty"`
    AdditionalObjectives []string     `json:"additionalObjectives,omitempty"`
    RouteMode            string       `json:"routeMode,omitempty"`
    StartAnywhere        *bool        `json:"startAnywhere,omitempty"`
    EndAtDepotOnly       bool         `json:"endAtDepotOnly,omitempty"`
    OpenEnd              bool         `json:"openEnd,omitempty"`
    Seed                 int64        `json:"seed,omitempty"`
}

// Run statuses
const (
    RunRunning   = "running"
    RunCompleted = "completed"
    RunFailed    = "failed"
)

// Run is one persisted solve, successful or not.
type Run struct {
    ID          string          `json:"id"`
    ProjectID   string          `json:"projectId"`
    Status      string          `json:"status"`
    Objective   string          `json:"objective,omitempty"`
    RouteMode   string          `json:"routeMode,omitempty"`
    Stops       int             `json:"stops"`
    Capacity    int             `json:"vehicleCapacity"`
    Result      *vrp.RunResult  `json:"result,omitempty"`
    Error       string          `json:"error,omitempty"`
    DurationMs  int64           `json:"durationMs"`
    CreatedAt   time.Time       `json:"createdAt"`
}

// RunSummary is the list view of a Run.
type RunSummary struct {
    ID             string    `json:"id"`
    ProjectID      string    `json:"projectId"`
    Status         string    `json:"status"`
    Objective      string    `json:"objective,omitempty"`
    Stops          int       `json:"stops"`
    VehicleCount   int       `json:"vehicleCount"`
    TotalDistance  float64   `json:"totalDistance"`
    DurationMs     int64     `json:"durationMs"`
    CreatedAt      time.Time `json:"createdAt"`
}

// Summary derives the list view.
func (r Run) Summary() RunSummary {
    s := RunSummary{ID: r.ID, ProjectID: r.ProjectID, Status: r.Status, Objective: r.Objective, Stops: r.Stops, DurationMs: r.DurationMs, CreatedAt: r.CreatedAt}
    if r.Result != nil {
        s.VehicleCount = len(r.Result.Routes)
        s.TotalDistance = r.Result.TotalDistance
    }
    return s
}

type OptimizeResponse struct {
    RunID  string         `json:"runId"`
    Result vrp.RunResult  `json:"result"`
}

type RunList struct {
    Items      []RunSummary `json:"items"`
    NextCursor string       `json:"nextCursor,omitempty"`
}

type SubscriptionRequest struct {
    ProjectID string   `json:"projectId"`
    URL       string   `json:"url"`
    Events    []string `json:"events"`
    Secret    string   `json:"secret"`
}

type Subscription struct {
    ID        string   `json:"id"`
    ProjectID string   `json:"projectId"`
    URL       string   `json:"url"`
    Events    []string `json:"events"`
    Secret    string   `json:"secret,omitempty"`
}

// Event types published on the broker and as webhooks
const (
    EventRunStarted   = "run.started"
    EventRunCompleted = "run.completed"
    EventRunFailed    = "run.failed"
)
