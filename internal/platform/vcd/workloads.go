package vcd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/imamik/edgefip/internal/gateway"
)

// NetworkConnections implements gateway.WorkloadLookup for vApps. Only the
// first VM of the vApp is considered.
func (c *Client) NetworkConnections(ctx context.Context, vappName string) ([]gateway.Connection, error) {
	href, err := c.findInVDC(ctx, "vApp", vappName)
	if err != nil {
		return nil, err
	}
	if href == "" {
		return nil, fmt.Errorf("%w: vApp %s", gateway.ErrWorkloadNotFound, vappName)
	}

	var app vApp
	if err := c.request(ctx, http.MethodGet, href, "", nil, &app); err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("%w: vApp %s", gateway.ErrWorkloadNotFound, vappName)
		}
		return nil, fmt.Errorf("failed to read vApp %s: %w", vappName, err)
	}
	if len(app.VMs) == 0 {
		return nil, nil
	}

	conns := make([]gateway.Connection, 0, len(app.VMs[0].Connections))
	for _, nc := range app.VMs[0].Connections {
		conns = append(conns, gateway.Connection{
			Connected: nc.IsConnected,
			IP:        nc.IPAddress,
			Network:   nc.Network,
		})
	}
	return conns, nil
}
