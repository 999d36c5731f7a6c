package api

import (
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "time"

    "github.com/CielmobilityWorks/route-optimization-tools/internal/store"
)

const heartbeatInterval = 15 * time.Second

type sseWriter struct {
    w http.ResponseWriter
    f http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
    f, ok := w.(http.Flusher)
    if !ok { return nil, false }
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")
    return &sseWriter{w: w, f: f}, true
}

func (s *sseWriter) event(typ string, data any) {
    b, _ := json.Marshal(data)
    fmt.Fprintf(s.w, "event: %s\n", typ)
    fmt.Fprintf(s.w, "data: %s\n\n", string(b))
    s.f.Flush()
}

func (s *sseWriter) heartbeat(key, id string) {
    s.event("heartbeat", map[string]string{key: id, "ts": time.Now().UTC().Format(time.RFC3339)})
}

// streamRun serves GET /v1/runs/{id}/events/stream. The stream ends after
// the run's terminal event; finished runs replay it immediately.
func (s *Server) streamRun(w http.ResponseWriter, r *http.Request, project, id string) {
    // subscribe before reading the run so a completion in between is not lost
    topic := runTopic(id)
    ch := s.Broker.Subscribe(topic)
    defer s.Broker.Unsubscribe(topic, ch)

    run, err := s.Store.GetRun(r.Context(), project, id)
    if errors.Is(err, store.ErrNotFound) { writeProblem(w, 404, "Run not found", id, r.URL.Path); return }
    if err != nil { writeProblem(w, 500, "Get run failed", err.Error(), r.URL.Path); return }

    sw, ok := newSSEWriter(w)
    if !ok { writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path); return }
    sw.heartbeat("runId", id)
    if t := terminalEvent(run); t != "" {
        sw.event(t, eventData(run))
        return
    }

    ticker := time.NewTicker(heartbeatInterval)
    defer ticker.Stop()
    for {
        select {
        case <-r.Context().Done():
            return
        case evt, ok := <-ch:
            if !ok { return }
            sw.event(evt.Type, evt.Data)
            if isTerminal(evt.Type) { return }
        case <-ticker.C:
            sw.heartbeat("runId", id)
        }
    }
}

// ProjectEventsHandler handles GET /v1/events/stream, every run event of the project.
func (s *Server) ProjectEventsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    project := projectOf(r)
    sw, ok := newSSEWriter(w)
    if !ok { writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path); return }
    topic := projectTopic(project)
    ch := s.Broker.Subscribe(topic)
    defer s.Broker.Unsubscribe(topic, ch)
    sw.heartbeat("projectId", project)

    ticker := time.NewTicker(heartbeatInterval)
    defer ticker.Stop()
    for {
        select {
        case <-r.Context().Done():
            return
        case evt, ok := <-ch:
            if !ok { return }
            sw.event(evt.Type, evt.Data)
        case <-ticker.C:
            sw.heartbeat("projectId", project)
        }
    }
}
