package nat

import (
	"context"
	"slices"

	"github.com/go-logr/logr"

	"github.com/imamik/edgefip/internal/gateway"
)

// PublicIPPool grows and shrinks a gateway's public address pool on demand.
type PublicIPPool struct {
	Waiter  TaskWaiter
	Metrics *Metrics
}

// NewPublicIPPool creates a PublicIPPool.
func NewPublicIPPool(waiter TaskWaiter) *PublicIPPool {
	return &PublicIPPool{Waiter: waiter}
}

// Allocate requests one more public address and returns it. The new address
// is the one that joined the pool; when the gateway does not tell them apart
// the first free address is returned.
func (p *PublicIPPool) Allocate(ctx context.Context, gw gateway.Gateway) (address string, err error) {
	logger := logr.FromContextOrDiscard(ctx).WithValues("gateway", gw.Name())
	defer func() { p.Metrics.publicIPRequest("allocate", err) }()

	before, err := gw.PublicIPs(ctx)
	if err != nil {
		return "", &gateway.PublicIPRequestError{Action: "allocate", Gateway: gw.Name(), Err: err}
	}

	accepted, t, err := gw.AllocatePublicIP(ctx)
	if err != nil {
		return "", &gateway.PublicIPRequestError{Action: "allocate", Gateway: gw.Name(), Err: err}
	}
	if !accepted {
		return "", &gateway.PublicIPRequestError{Action: "allocate", Gateway: gw.Name(), Reason: "request declined by gateway"}
	}
	if err := p.Waiter.Wait(ctx, t); err != nil {
		return "", &gateway.PublicIPRequestError{Action: "allocate", Gateway: gw.Name(), Err: err}
	}

	after, err := gw.PublicIPs(ctx)
	if err != nil {
		return "", &gateway.PublicIPRequestError{Action: "allocate", Gateway: gw.Name(), Err: err}
	}
	pairs, err := ListAssignedPairs(ctx, gw)
	if err != nil {
		return "", err
	}
	for _, a := range after {
		if !slices.Contains(before, a) && !pairs.HasExternal(a) {
			logger.Info("public ip allocated", "address", a)
			return a, nil
		}
	}
	return FreeExternalAddress(ctx, gw)
}

// Release returns address to the provider.
func (p *PublicIPPool) Release(ctx context.Context, gw gateway.Gateway, address string) (err error) {
	defer func() { p.Metrics.publicIPRequest("deallocate", err) }()

	accepted, t, err := gw.DeallocatePublicIP(ctx, address)
	if err != nil {
		return &gateway.PublicIPRequestError{Action: "deallocate", Gateway: gw.Name(), Address: address, Err: err}
	}
	if !accepted {
		return &gateway.PublicIPRequestError{Action: "deallocate", Gateway: gw.Name(), Address: address, Reason: "request declined by gateway"}
	}
	if err := p.Waiter.Wait(ctx, t); err != nil {
		return &gateway.PublicIPRequestError{Action: "deallocate", Gateway: gw.Name(), Address: address, Err: err}
	}
	logr.FromContextOrDiscard(ctx).Info("public ip released", "gateway", gw.Name(), "address", address)
	return nil
}
