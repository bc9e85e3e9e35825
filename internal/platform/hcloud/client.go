package hcloud

import (
	"context"
	"fmt"
	"sync"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/edgefip/internal/config"
	"github.com/imamik/edgefip/internal/gateway"
	"github.com/imamik/edgefip/internal/util/async"
	"github.com/imamik/edgefip/internal/util/retry"
)

// Workloads implements gateway.WorkloadLookup on top of the Hetzner Cloud API.
type Workloads struct {
	client   *hcloud.Client
	timeouts *config.Timeouts

	mu       sync.Mutex
	networks map[int64]string
}

// Option configures Workloads.
type Option func(*Workloads)

// WithTimeouts sets custom retry settings.
func WithTimeouts(t *config.Timeouts) Option {
	return func(w *Workloads) {
		w.timeouts = t
	}
}

// WithHCloudClient sets a custom hcloud client (useful for testing).
func WithHCloudClient(hc *hcloud.Client) Option {
	return func(w *Workloads) {
		w.client = hc
	}
}

// NewWorkloads creates a lookup authenticated with token.
func NewWorkloads(token string, opts ...Option) *Workloads {
	w := &Workloads{
		client:   hcloud.NewClient(hcloud.WithToken(token), hcloud.WithApplication("edgefip", "")),
		timeouts: config.LoadTimeouts(),
		networks: make(map[int64]string),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// NetworkConnections implements gateway.WorkloadLookup.
func (w *Workloads) NetworkConnections(ctx context.Context, workloadID string) ([]gateway.Connection, error) {
	var server *hcloud.Server
	err := w.do(ctx, func(ctx context.Context) error {
		var err error
		server, _, err = w.client.Server.Get(ctx, workloadID)
		return err
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("%w: server %s", gateway.ErrWorkloadNotFound, workloadID)
		}
		return nil, fmt.Errorf("failed to get server %s: %w", workloadID, err)
	}
	if server == nil {
		return nil, fmt.Errorf("%w: server %s", gateway.ErrWorkloadNotFound, workloadID)
	}

	running := server.Status == hcloud.ServerStatusRunning
	conns := make([]gateway.Connection, len(server.PrivateNet))
	tasks := make([]async.Task, 0, len(server.PrivateNet))
	for i, pn := range server.PrivateNet {
		conns[i].Connected = running
		if pn.IP != nil {
			conns[i].IP = pn.IP.String()
		}
		tasks = append(tasks, async.Task{
			Name: fmt.Sprintf("server %s network %d", workloadID, i),
			Func: func(ctx context.Context) error {
				name, err := w.networkName(ctx, pn.Network)
				conns[i].Network = name
				return err
			},
		})
	}
	if err := async.RunParallel(ctx, tasks); err != nil {
		return nil, err
	}
	return conns, nil
}

// networkName returns the name of a network. Server responses only carry
// the network ID, so names are fetched once and cached.
func (w *Workloads) networkName(ctx context.Context, n *hcloud.Network) (string, error) {
	if n == nil {
		return "", nil
	}
	if n.Name != "" {
		return n.Name, nil
	}

	w.mu.Lock()
	name, ok := w.networks[n.ID]
	w.mu.Unlock()
	if ok {
		return name, nil
	}

	var network *hcloud.Network
	err := w.do(ctx, func(ctx context.Context) error {
		var err error
		network, _, err = w.client.Network.GetByID(ctx, n.ID)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to get network %d: %w", n.ID, err)
	}
	if network == nil {
		return "", fmt.Errorf("network %d not found", n.ID)
	}

	w.mu.Lock()
	w.networks[n.ID] = network.Name
	w.mu.Unlock()
	return network.Name, nil
}

func (w *Workloads) do(ctx context.Context, op func(ctx context.Context) error) error {
	return retry.Do(ctx, op,
		retry.WithMaxAttempts(w.timeouts.RetryMaxAttempts+1),
		retry.WithInitialDelay(w.timeouts.RetryInitialDelay),
		retry.WithRetryIf(isRetryable),
	)
}
