package nat

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/imamik/edgefip/internal/gateway"
)

// TaskWaiter blocks until a remote task completes. Implemented by task.Waiter.
type TaskWaiter interface {
	Wait(ctx context.Context, t gateway.Task) error
}

// RuleOptions shapes the SNAT side of a pair. The DNAT side always matches
// any port and protocol.
type RuleOptions struct {
	Protocol       string
	OriginalPort   gateway.Port
	TranslatedPort gateway.Port
	// Interface binds both rules to a gateway interface; empty lets the
	// gateway pick its default uplink.
	Interface string
}

// Allocator creates and removes SNAT/DNAT rule pairs.
type Allocator struct {
	Waiter  TaskWaiter
	Options RuleOptions
	// Rollback removes the SNAT rule when the DNAT rule of a new pair fails.
	// Off by default: the SNAT rule is left in place and logged.
	Rollback bool
	Metrics  *Metrics
}

// NewAllocator creates an Allocator with default rule options.
func NewAllocator(waiter TaskWaiter) *Allocator {
	return &Allocator{Waiter: waiter}
}

type ruleFunc func(ctx context.Context, rule gateway.NATRule) (bool, gateway.Task, error)

// Rules returns the SNAT and DNAT rules of a pair, in issue order.
func (a *Allocator) Rules(internal, external string) []gateway.NATRule {
	protocol := a.Options.Protocol
	if protocol == "" {
		protocol = gateway.Any
	}
	origPort := a.Options.OriginalPort
	if origPort == "" {
		origPort = gateway.AnyPort
	}
	transPort := a.Options.TranslatedPort
	if transPort == "" {
		transPort = gateway.AnyPort
	}
	return []gateway.NATRule{
		{
			Type:           gateway.SNAT,
			OriginalIP:     internal,
			OriginalPort:   origPort,
			TranslatedIP:   external,
			TranslatedPort: transPort,
			Protocol:       protocol,
			Interface:      a.Options.Interface,
		},
		{
			Type:           gateway.DNAT,
			OriginalIP:     external,
			OriginalPort:   gateway.AnyPort,
			TranslatedIP:   internal,
			TranslatedPort: gateway.AnyPort,
			Protocol:       gateway.Any,
			Interface:      a.Options.Interface,
		},
	}
}

// CreatePair adds the SNAT rule, then the DNAT rule, waiting for each.
func (a *Allocator) CreatePair(ctx context.Context, gw gateway.Gateway, internal, external string) error {
	rules := a.Rules(internal, external)
	for i, rule := range rules {
		if err := a.apply(ctx, gw, "create", gw.AddNATRule, rule); err != nil {
			if i > 0 {
				a.partial(ctx, gw, "create", rules[:i], err)
			}
			return err
		}
	}
	return nil
}

// DeletePair removes the SNAT rule, then the DNAT rule, waiting for each.
func (a *Allocator) DeletePair(ctx context.Context, gw gateway.Gateway, internal, external string) error {
	rules := a.Rules(internal, external)
	for i, rule := range rules {
		if err := a.apply(ctx, gw, "delete", gw.DelNATRule, rule); err != nil {
			if i > 0 {
				a.partial(ctx, gw, "delete", rules[:i], err)
			}
			return err
		}
	}
	return nil
}

func (a *Allocator) apply(ctx context.Context, gw gateway.Gateway, action string, fn ruleFunc, rule gateway.NATRule) (err error) {
	logger := logr.FromContextOrDiscard(ctx)
	defer func() { a.Metrics.ruleRequest(action, rule.Type, err) }()

	logger.Info(action+" floating ip NAT rule",
		"gateway", gw.Name(),
		"type", string(rule.Type),
		"originalIP", rule.OriginalIP,
		"translatedIP", rule.TranslatedIP)

	rejected := func(reason string) error {
		return &gateway.NATRuleRequestRejectedError{
			Direction:    rule.Type,
			Action:       action,
			Gateway:      gw.Name(),
			OriginalIP:   rule.OriginalIP,
			TranslatedIP: rule.TranslatedIP,
			Reason:       reason,
		}
	}
	accepted, t, err := fn(ctx, rule)
	if err != nil {
		return rejected(err.Error())
	}
	if !accepted {
		return rejected("request declined by gateway")
	}
	if err := a.Waiter.Wait(ctx, t); err != nil {
		return &gateway.NATRuleCommitFailedError{Direction: rule.Type, Action: action, Gateway: gw.Name(), Err: err}
	}
	return nil
}

// partial reports a pair left half applied and, for creates with Rollback
// set, removes the rules that did get applied.
func (a *Allocator) partial(ctx context.Context, gw gateway.Gateway, action string, applied []gateway.NATRule, cause error) {
	logger := logr.FromContextOrDiscard(ctx)
	for _, rule := range applied {
		logger.Info("NAT rule pair partially applied",
			"partial", true,
			"gateway", gw.Name(),
			"action", action,
			"applied", rule.String(),
			"cause", cause.Error())
	}
	if !a.Rollback || action != "create" {
		return
	}
	for _, rule := range applied {
		if err := a.apply(ctx, gw, "delete", gw.DelNATRule, rule); err != nil {
			logger.Error(err, "rollback of partially created NAT rule failed", "rule", rule.String())
			continue
		}
		logger.Info("rolled back partially created NAT rule", "rule", rule.String())
	}
}
