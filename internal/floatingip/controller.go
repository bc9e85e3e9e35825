package floatingip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/imamik/edgefip/internal/gateway"
	"github.com/imamik/edgefip/internal/nat"
)

// DefaultRetryAfter is the delay returned when the gateway is busy.
const DefaultRetryAfter = 10 * time.Second

// Controller runs floating IP operations against edge gateways.
type Controller struct {
	Client    gateway.Client
	Workloads gateway.WorkloadLookup
	Waiter    nat.TaskWaiter
	Metrics   *nat.Metrics
	// Rollback removes the SNAT rule of a pair whose DNAT rule failed.
	Rollback bool
	// RetryAfter is returned when a configuration commit found the gateway
	// busy.
	RetryAfter time.Duration
}

// NewController creates a Controller with default settings.
func NewController(client gateway.Client, workloads gateway.WorkloadLookup, waiter nat.TaskWaiter) *Controller {
	return &Controller{
		Client:     client,
		Workloads:  workloads,
		Waiter:     waiter,
		RetryAfter: DefaultRetryAfter,
	}
}

// Connect binds a public address to the interface's workload. The address is
// cfg.PublicIP, the one already recorded in the runtime state, the one an
// existing pair already maps the workload to, or the first free address of
// the gateway, in that order. With cfg.OnDemand an exhausted pool is grown
// by one address. On success the runtime state records the address.
func (c *Controller) Connect(ctx context.Context, ic InterfaceContext) (Result, error) {
	ctx, gw, err := c.prepare(ctx, ic, OpCreate)
	if err != nil {
		return Result{}, err
	}
	logger := logr.FromContextOrDiscard(ctx)
	rt := ic.Runtime

	if rt.Pending != "" {
		res, err := c.finishPending(ctx, gw, rt)
		if err != nil || !res.Done() {
			return res, err
		}
		if rt.Associated() {
			return Result{}, nil
		}
	}

	internal, err := resolveInternalIP(ctx, c.Workloads, ic.Relationships, ic.Config.Network)
	if err != nil {
		return Result{}, err
	}

	external := rt.PublicIP
	if ic.Config.PublicIP != "" {
		external, _ = gateway.CheckIP(ic.Config.PublicIP)
	}

	pairs, err := nat.ListAssignedPairs(ctx, gw)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list nat rules: %w", err)
	}
	if external != "" && pairs.HasExternal(external) {
		if pairs.Has(gateway.AssignedIPs{External: external, Internal: internal}) {
			rt.PublicIP = external
			logger.Info("floating ip already connected", "external", external, "internal", internal)
		} else {
			logger.Info("public ip already in use by another rule pair, nothing to do", "external", external)
		}
		return Result{}, nil
	}
	if existing, ok := pairs.ExternalFor(internal); ok {
		if external != "" {
			return Result{}, &gateway.AddressAssignedError{Address: internal, Slot: "internal", Gateway: gw.Name()}
		}
		rt.PublicIP = existing
		logger.Info("adopted existing floating ip", "external", existing, "internal", internal)
		return Result{}, nil
	}

	onDemand := false
	if external == "" {
		external, err = nat.FreeExternalAddress(ctx, gw)
		switch {
		case errors.Is(err, gateway.ErrNoFreeAddress) && ic.Config.OnDemand:
			if external, err = c.publicIPs().Allocate(ctx, gw); err != nil {
				return Result{}, err
			}
			onDemand = true
		case err != nil:
			return Result{}, err
		}
		logger.V(1).Info("allocated free public ip", "external", external, "ondemand", onDemand)
	}

	if err := c.allocator(ic.Config).CreatePair(ctx, gw, internal, external); err != nil {
		if onDemand {
			if relErr := c.publicIPs().Release(ctx, gw, external); relErr != nil {
				logger.Error(relErr, "failed to release public ip after failed connect", "external", external)
			}
		}
		return Result{}, err
	}
	rt.PublicIP = external
	rt.OnDemand = onDemand
	logger.Info("floating ip connected", "external", external, "internal", internal)

	return c.commit(ctx, gw, ic.Config, rt, OpCreate)
}

// Disconnect removes the rule pair binding the interface's public address to
// its workload and clears the association. An absent pair is not an error.
func (c *Controller) Disconnect(ctx context.Context, ic InterfaceContext) (Result, error) {
	ctx, gw, err := c.prepare(ctx, ic, OpDelete)
	if err != nil {
		return Result{}, err
	}
	logger := logr.FromContextOrDiscard(ctx)
	rt := ic.Runtime

	if rt.Pending != "" {
		pending := rt.Pending
		res, err := c.finishPending(ctx, gw, rt)
		if err != nil || !res.Done() || pending == OpDelete {
			return res, err
		}
	}

	external := rt.PublicIP
	if ic.Config.PublicIP != "" {
		external, _ = gateway.CheckIP(ic.Config.PublicIP)
	}
	if external == "" {
		logger.Info("no floating ip associated, nothing to do")
		return Result{}, nil
	}

	internal, err := resolveInternalIP(ctx, c.Workloads, ic.Relationships, ic.Config.Network)
	if err != nil {
		return Result{}, err
	}

	pair := gateway.AssignedIPs{External: external, Internal: internal}
	pairs, err := nat.ListAssignedPairs(ctx, gw)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list nat rules: %w", err)
	}
	if !pairs.Has(pair) {
		logger.Info("rule pair already absent", "external", external, "internal", internal)
		if err := c.releaseOnDemand(ctx, gw, rt, external); err != nil {
			return Result{}, err
		}
		rt.PublicIP = ""
		return Result{}, nil
	}

	if err := c.allocator(ic.Config).DeletePair(ctx, gw, internal, external); err != nil {
		return Result{}, err
	}
	if err := c.releaseOnDemand(ctx, gw, rt, external); err != nil {
		return Result{}, err
	}
	rt.PublicIP = ""
	logger.Info("floating ip disconnected", "external", external, "internal", internal)

	return c.commit(ctx, gw, ic.Config, rt, OpDelete)
}

func (c *Controller) prepare(ctx context.Context, ic InterfaceContext, op Operation) (context.Context, gateway.Gateway, error) {
	if err := ic.Config.Validate(); err != nil {
		return ctx, nil, err
	}
	if ic.Runtime == nil {
		return ctx, nil, fmt.Errorf("interface %q has no runtime state", ic.ID)
	}
	logger := logr.FromContextOrDiscard(ctx).WithValues("interface", ic.ID, "gateway", ic.Config.Gateway, "operation", op)
	ctx = logr.NewContext(ctx, logger)

	gw, err := c.Client.GetGateway(ctx, ic.Config.Gateway)
	if err != nil {
		return ctx, nil, fmt.Errorf("failed to get gateway %q: %w", ic.Config.Gateway, err)
	}
	if gw == nil {
		return ctx, nil, &gateway.GatewayNotFoundError{Gateway: ic.Config.Gateway}
	}
	return ctx, gw, nil
}

func (c *Controller) allocator(cfg Config) *nat.Allocator {
	return &nat.Allocator{
		Waiter:   c.Waiter,
		Options:  cfg.ruleOptions(),
		Rollback: c.Rollback,
		Metrics:  c.Metrics,
	}
}

func (c *Controller) commit(ctx context.Context, gw gateway.Gateway, cfg Config, rt *RuntimeState, op Operation) (Result, error) {
	if !cfg.Commit {
		return Result{}, nil
	}
	applied, err := c.persistor().Commit(ctx, gw)
	if err != nil {
		return Result{}, err
	}
	if !applied {
		rt.Pending = op
		logr.FromContextOrDiscard(ctx).Info("gateway busy, commit deferred", "retryAfter", c.retryAfter())
		return Result{RetryAfter: c.retryAfter()}, nil
	}
	return Result{}, nil
}

// finishPending retries a deferred configuration commit.
func (c *Controller) finishPending(ctx context.Context, gw gateway.Gateway, rt *RuntimeState) (Result, error) {
	applied, err := c.persistor().Commit(ctx, gw)
	if err != nil {
		return Result{}, err
	}
	if !applied {
		return Result{RetryAfter: c.retryAfter()}, nil
	}
	logr.FromContextOrDiscard(ctx).Info("deferred commit applied", "pending", rt.Pending)
	rt.Pending = ""
	return Result{}, nil
}

// releaseOnDemand returns an address allocated by Connect to the provider.
func (c *Controller) releaseOnDemand(ctx context.Context, gw gateway.Gateway, rt *RuntimeState, external string) error {
	if !rt.OnDemand || rt.PublicIP != external {
		return nil
	}
	if err := c.publicIPs().Release(ctx, gw, external); err != nil {
		return err
	}
	rt.OnDemand = false
	return nil
}

func (c *Controller) publicIPs() *nat.PublicIPPool {
	return &nat.PublicIPPool{Waiter: c.Waiter, Metrics: c.Metrics}
}

func (c *Controller) persistor() *nat.Persistor {
	return &nat.Persistor{Waiter: c.Waiter, Metrics: c.Metrics}
}

func (c *Controller) retryAfter() time.Duration {
	if c.RetryAfter <= 0 {
		return DefaultRetryAfter
	}
	return c.RetryAfter
}
