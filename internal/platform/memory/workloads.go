package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/imamik/edgefip/internal/gateway"
)

// Workloads is an in-memory gateway.WorkloadLookup.
type Workloads struct {
	mu    sync.Mutex
	conns map[string][]gateway.Connection
}

// NewWorkloads creates an empty lookup.
func NewWorkloads() *Workloads {
	return &Workloads{conns: make(map[string][]gateway.Connection)}
}

// Set replaces the connections of a workload.
func (w *Workloads) Set(id string, conns ...gateway.Connection) *Workloads {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conns[id] = slices.Clone(conns)
	return w
}

// Remove forgets a workload.
func (w *Workloads) Remove(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.conns, id)
}

// NetworkConnections implements gateway.WorkloadLookup.
func (w *Workloads) NetworkConnections(_ context.Context, id string) ([]gateway.Connection, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	conns, ok := w.conns[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", gateway.ErrWorkloadNotFound, id)
	}
	return slices.Clone(conns), nil
}
