package opt

import "sync"

const maxRecorded = 256

var (
    mu    sync.Mutex
    store = map[string]Metrics{}
    order []string
)

// RecordMetrics keeps the last metrics per run, dropping the oldest runs
// beyond maxRecorded.
func RecordMetrics(runID string, m Metrics) {
    mu.Lock()
    defer mu.Unlock()
    if _, ok := store[runID]; !ok {
        order = append(order, runID)
    }
    store[runID] = m
    for len(order) > maxRecorded {
        delete(store, order[0])
        order = order[1:]
    }
}

func GetMetrics(runID string) (Metrics, bool) {
    mu.Lock()
    defer mu.Unlock()
    m, ok := store[runID]
    return m, ok
}
