package gateway

import (
	"context"
	"errors"
)

// ErrWorkloadNotFound is returned by a WorkloadLookup for unknown workloads.
var ErrWorkloadNotFound = errors.New("workload not found")

// Connection is one network connection of a provisioned workload.
type Connection struct {
	Connected bool
	IP        string
	Network   string
}

// WorkloadLookup reads the network connections of a provisioned workload
// (a vApp, a server) identified by its recorded resource identifier.
type WorkloadLookup interface {
	NetworkConnections(ctx context.Context, workloadID string) ([]Connection, error)
}
