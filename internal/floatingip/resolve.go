package floatingip

import (
	"context"
	"errors"
	"fmt"

	"github.com/imamik/edgefip/internal/gateway"
)

// resolveInternalIP returns the internal address of the workload the
// interface is attached to. The workload must have exactly one connected
// network connection, optionally restricted to network.
func resolveInternalIP(ctx context.Context, lookup gateway.WorkloadLookup, rels []Relationship, network string) (string, error) {
	var workload string
	for _, rel := range rels {
		if rel.WorkloadID != "" {
			workload = rel.WorkloadID
			break
		}
	}
	if workload == "" {
		return "", &gateway.VMIPUnavailableError{Reason: "no relationship to a provisioned workload"}
	}
	if lookup == nil {
		return "", &gateway.VMIPUnavailableError{Workload: workload, Reason: "no workload lookup configured"}
	}

	conns, err := lookup.NetworkConnections(ctx, workload)
	if errors.Is(err, gateway.ErrWorkloadNotFound) {
		return "", &gateway.VMIPUnavailableError{Workload: workload, Reason: err.Error()}
	}
	if err != nil {
		return "", fmt.Errorf("failed to read network connections of %q: %w", workload, err)
	}

	var connected []gateway.Connection
	for _, c := range conns {
		if network != "" && c.Network != network {
			continue
		}
		if c.Connected {
			connected = append(connected, c)
		}
	}
	switch len(connected) {
	case 0:
		if network != "" {
			return "", &gateway.VMIPUnavailableError{Workload: workload, Reason: fmt.Sprintf("not connected to network %q", network)}
		}
		return "", &gateway.VMIPUnavailableError{Workload: workload, Reason: "no connected network"}
	case 1:
	default:
		return "", &gateway.VMIPUnavailableError{Workload: workload, Reason: fmt.Sprintf("%d connected networks, expected exactly one", len(connected))}
	}

	if connected[0].IP == "" {
		return "", &gateway.VMIPUnavailableError{Workload: workload, Reason: fmt.Sprintf("no address on network %q", connected[0].Network)}
	}
	ip, err := gateway.CheckIP(connected[0].IP)
	if err != nil {
		return "", &gateway.VMIPUnavailableError{Workload: workload, Reason: err.Error()}
	}
	return ip, nil
}
