package memory

import (
	"context"
	"sync"

	"github.com/imamik/edgefip/internal/gateway"
)

// Task is a scripted gateway.Task. Each Status call advances the script by
// one step; the final status repeats.
type Task struct {
	mu     sync.Mutex
	id     string
	script []gateway.TaskStatus
	reason string
	polls  int
}

// NewTask creates a task reporting statuses in order.
func NewTask(id, reason string, statuses ...gateway.TaskStatus) *Task {
	return &Task{id: id, script: statuses, reason: reason}
}

// ID implements gateway.Task.
func (t *Task) ID() string { return t.id }

// Status implements gateway.Task.
func (t *Task) Status(_ context.Context) (gateway.TaskStatus, string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.polls++
	if len(t.script) == 0 {
		return gateway.TaskSuccess, "", nil
	}
	s := t.script[min(t.polls-1, len(t.script)-1)]
	if s == gateway.TaskError {
		return s, t.reason, nil
	}
	return s, "", nil
}

// Polls returns how many times Status was called.
func (t *Task) Polls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.polls
}

func (t *Task) succeeds() bool {
	return len(t.script) == 0 || t.script[len(t.script)-1] == gateway.TaskSuccess
}
