package nat

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/imamik/edgefip/internal/gateway"
)

// Persistor commits the gateway services configuration.
type Persistor struct {
	Waiter  TaskWaiter
	Metrics *Metrics
}

// NewPersistor creates a Persistor.
func NewPersistor(waiter TaskWaiter) *Persistor {
	return &Persistor{Waiter: waiter}
}

// Commit saves the services configuration of gw. It returns applied=false
// without an error when the gateway is busy with another configuration
// change; the caller decides when to try again.
func (p *Persistor) Commit(ctx context.Context, gw gateway.Gateway) (applied bool, err error) {
	logger := logr.FromContextOrDiscard(ctx).WithValues("gateway", gw.Name())
	defer func() { p.Metrics.commit(applied, err) }()

	accepted, t, busy, err := gw.SaveServicesConfiguration(ctx)
	if err != nil {
		return false, &gateway.ConfigurationError{Gateway: gw.Name(), Err: err}
	}
	if busy {
		logger.Info("gateway is busy, configuration not saved")
		return false, nil
	}
	if !accepted {
		return false, &gateway.ConfigurationError{Gateway: gw.Name(), Reason: "save request declined by gateway"}
	}
	if err := p.Waiter.Wait(ctx, t); err != nil {
		return false, &gateway.ConfigurationError{Gateway: gw.Name(), Err: err}
	}
	logger.V(1).Info("gateway configuration saved")
	return true, nil
}
