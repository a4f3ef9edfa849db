package node

import (
	"context"
	"sync"

	"github.com/kailas-cloud/fedsearch/internal/domain"
)

// TaskRegistry tracks running node searches by ancestor id.
type TaskRegistry struct {
	mu    sync.Mutex
	next  uint64
	tasks map[string]map[uint64]context.CancelCauseFunc
}

// NewTaskRegistry creates an empty registry.
func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{tasks: make(map[string]map[uint64]context.CancelCauseFunc)}
}

// Register adds a task under ancestorID. The returned func removes it again.
func (r *TaskRegistry) Register(ancestorID string, cancel context.CancelCauseFunc) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id := r.next
	if r.tasks[ancestorID] == nil {
		r.tasks[ancestorID] = make(map[uint64]context.CancelCauseFunc)
	}
	r.tasks[ancestorID][id] = cancel

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.tasks[ancestorID], id)
		if len(r.tasks[ancestorID]) == 0 {
			delete(r.tasks, ancestorID)
		}
	}
}

// Terminate cancels every task of ancestorID with ErrTaskTerminated and returns how many there were.
func (r *TaskRegistry) Terminate(ancestorID string) int {
	r.mu.Lock()
	tasks := r.tasks[ancestorID]
	delete(r.tasks, ancestorID)
	r.mu.Unlock()

	for _, cancel := range tasks {
		cancel(domain.ErrTaskTerminated)
	}
	return len(tasks)
}

// Len returns the number of running tasks.
func (r *TaskRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.tasks {
		n += len(t)
	}
	return n
}
