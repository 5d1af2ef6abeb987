package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/codeassist/codeassist/internal/fault"
)

// Runs tracks active task runs so concurrent runs on the same task are
// rejected and running tasks can be cancelled from the outside.
type Runs struct {
	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// NewRuns creates an empty run tracker.
func NewRuns() *Runs {
	return &Runs{active: make(map[string]context.CancelFunc)}
}

// Acquire registers a run for the task. A second Acquire for the same task
// before Release fails with InvalidParameters.
func (r *Runs) Acquire(taskID string, cancel context.CancelFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.active[taskID]; busy {
		return fault.New(fault.InvalidParameters, "task %s already has an active run", taskID)
	}
	r.active[taskID] = cancel
	return nil
}

// Release removes the run for the task.
func (r *Runs) Release(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, taskID)
}

// Cancel cancels the active run for a task. Returns false when no run is
// active.
func (r *Runs) Cancel(taskID string) bool {
	r.mu.Lock()
	cancel, ok := r.active[taskID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Active lists the task ids with running loops, sorted.
func (r *Runs) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
