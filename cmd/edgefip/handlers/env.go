package handlers

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/imamik/edgefip/internal/config"
	"github.com/imamik/edgefip/internal/floatingip"
	"github.com/imamik/edgefip/internal/gateway"
	"github.com/imamik/edgefip/internal/nat"
	"github.com/imamik/edgefip/internal/platform/hcloud"
	"github.com/imamik/edgefip/internal/platform/memory"
	"github.com/imamik/edgefip/internal/platform/s3"
	"github.com/imamik/edgefip/internal/platform/vcd"
	"github.com/imamik/edgefip/internal/state"
	"github.com/imamik/edgefip/internal/task"
)

// Options are the settings shared by all handlers.
type Options struct {
	ConfigPath  string
	MetricsFile string
}

// Factory function variables - can be replaced in tests.
var (
	loadConfig        = config.LoadFile
	newGatewayClient  = defaultGatewayClient
	newWorkloadLookup = defaultWorkloadLookup
	newStateStore     = defaultStateStore
)

// env is the wired dependency set of one command run.
type env struct {
	cfg       *config.Config
	timeouts  *config.Timeouts
	gateways  gateway.Client
	workloads gateway.WorkloadLookup
	store     state.Store
	registry  *prometheus.Registry
	metrics   *nat.Metrics
}

func setup(ctx context.Context, opts Options, withWorkloads bool) (*env, error) {
	path := opts.ConfigPath
	if path == "" {
		path = config.DefaultConfigFilename
	}
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}
	logger := logr.FromContextOrDiscard(ctx)
	for _, w := range cfg.Warnings() {
		logger.Info("configuration warning", "field", w.Field, "message", w.Message)
	}

	e := &env{cfg: cfg, timeouts: config.LoadTimeouts(), registry: prometheus.NewRegistry()}
	e.metrics = nat.NewMetrics(e.registry)

	if e.gateways, err = newGatewayClient(cfg, e.timeouts); err != nil {
		return nil, err
	}
	if !withWorkloads {
		return e, nil
	}
	if e.workloads, err = newWorkloadLookup(cfg, e.timeouts, e.gateways); err != nil {
		return nil, err
	}
	if e.store, err = newStateStore(ctx, cfg); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *env) waiter() *task.Waiter {
	return task.NewWaiter(e.timeouts.TaskPollInterval, e.timeouts.TaskMaxWait, task.WithObserver(e.metrics))
}

func (e *env) controller() *floatingip.Controller {
	c := floatingip.NewController(e.gateways, e.workloads, e.waiter())
	c.Metrics = e.metrics
	c.Rollback = e.cfg.FloatingIP.RollbackPartial
	c.RetryAfter = e.timeouts.BusyRetryAfter
	return c
}

// gateway resolves the configured gateway.
func (e *env) gateway(ctx context.Context) (gateway.Gateway, error) {
	name := e.cfg.FloatingIP.Gateway
	gw, err := e.gateways.GetGateway(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up gateway %q: %w", name, err)
	}
	if gw == nil {
		return nil, &gateway.GatewayNotFoundError{Gateway: name}
	}
	return gw, nil
}

// writeMetrics dumps the run's metrics in the node exporter textfile format.
func (e *env) writeMetrics(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, e.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

func defaultGatewayClient(cfg *config.Config, timeouts *config.Timeouts) (gateway.Client, error) {
	switch cfg.Provider {
	case config.ProviderMemory:
		return memory.NewClient(memoryGateway(cfg.Memory)), nil
	case config.ProviderVCD:
		return vcd.NewClient(vcd.Config{
			URL:        cfg.VCD.URL,
			Org:        cfg.VCD.Org,
			VDC:        cfg.VCD.VDC,
			User:       cfg.VCD.User,
			Password:   cfg.VCD.Password,
			APIVersion: cfg.VCD.APIVersion,
			Insecure:   cfg.VCD.Insecure,
		}, vcd.WithTimeouts(timeouts))
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// memoryGateway builds the dry-run gateway from its configuration section.
// Subnets were validated by config.Check.
func memoryGateway(mc config.MemoryConfig) *memory.Gateway {
	gw := memory.NewGateway(mc.Gateway, mc.PublicIPs...).WithSpareIPs(mc.SpareIPs...)
	for name, subnets := range mc.Networks {
		gw.WithNetwork(name, subnets...)
	}
	seed := nat.NewAllocator(nil)
	for _, p := range mc.Pairs {
		gw.WithRules(seed.Rules(p.Internal, p.External)...)
	}
	return gw
}

func defaultWorkloadLookup(cfg *config.Config, timeouts *config.Timeouts, gateways gateway.Client) (gateway.WorkloadLookup, error) {
	switch cfg.WorkloadBackend() {
	case config.WorkloadsMemory:
		w := memory.NewWorkloads()
		for id, wl := range cfg.Memory.Workloads {
			w.Set(id, gateway.Connection{Connected: true, IP: wl.IP, Network: wl.Network})
		}
		return w, nil
	case config.WorkloadsVCD:
		client, ok := gateways.(*vcd.Client)
		if !ok {
			return nil, fmt.Errorf("vcd workload lookup requires the vcd provider")
		}
		return client, nil
	case config.WorkloadsHCloud:
		return hcloud.NewWorkloads(cfg.HCloud.Token, hcloud.WithTimeouts(timeouts)), nil
	default:
		return nil, fmt.Errorf("unknown workload backend %q", cfg.WorkloadBackend())
	}
}

func defaultStateStore(ctx context.Context, cfg *config.Config) (state.Store, error) {
	switch cfg.State.Backend {
	case config.StateFile:
		return state.NewFileStore(cfg.State.Path), nil
	case config.StateS3:
		client, err := s3.NewClient(ctx, s3.Options{
			Endpoint:  cfg.State.Endpoint,
			Region:    cfg.State.Region,
			AccessKey: cfg.State.AccessKey,
			SecretKey: cfg.State.SecretKey,
			PathStyle: cfg.State.Endpoint != "",
		})
		if err != nil {
			return nil, err
		}
		if err := client.EnsureBucket(ctx, cfg.State.Bucket); err != nil {
			return nil, err
		}
		return state.NewS3Store(client, cfg.State.Bucket, cfg.State.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.State.Backend)
	}
}
