package opt

import "sync"

// The live store holds the operator statistics of runs in progress, updated
// after every generation. Solve drops a run's entry when it returns; the
// final statistics travel in Result.Metrics.
var (
	mu   sync.Mutex
	live = map[string]Metrics{}
)

// RecordMetrics stores a snapshot of m for run.
func RecordMetrics(run string, m Metrics) {
	m.Snapshots = append([]WeightSnapshot(nil), m.Snapshots...)
	mu.Lock()
	live[run] = m
	mu.Unlock()
}

// GetMetrics returns the latest statistics of a run in progress.
func GetMetrics(run string) (Metrics, bool) {
	mu.Lock()
	defer mu.Unlock()
	m, ok := live[run]
	return m, ok
}

// ForgetMetrics drops the entry of run.
func ForgetMetrics(run string) {
	mu.Lock()
	delete(live, run)
	mu.Unlock()
}
