// Package memory provides an in-memory edge gateway.
//
// It behaves like a remote gateway for the NAT engine: rule mutations return
// tasks that advance through scripted statuses, the services configuration
// can be marked busy, and every request is recorded. It backs unit tests and
// the "memory" provider used for dry runs. A gateway lives as long as the
// process that created it.
package memory

import (
	"context"
	"net/netip"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/imamik/edgefip/internal/gateway"
)

// Call records one request made to a Gateway.
type Call struct {
	Op      string // "add", "del", "save", "allocate" or "deallocate"
	Rule    gateway.NATRule
	Address string
}

// Gateway is an in-memory gateway.Gateway. The zero value is not usable; use
// NewGateway.
type Gateway struct {
	mu    sync.Mutex
	name  string
	pool     []string
	spare    []string
	networks map[string][]netip.Prefix
	rules    []gateway.NATRule
	calls    []Call

	rejects    map[string]string
	taskScript []gateway.TaskStatus
	taskReason string
	busy       bool
	saveReject string
	saveScript []gateway.TaskStatus
	readErr    error
}

// NewGateway creates a gateway with the given public address pool.
func NewGateway(name string, publicIPs ...string) *Gateway {
	return &Gateway{
		name:     name,
		pool:     slices.Clone(publicIPs),
		networks: make(map[string][]netip.Prefix),
		rejects:  make(map[string]string),
	}
}

// WithNetwork attaches network to the gateway with the given subnets in
// CIDR notation. It panics on a malformed subnet.
func (g *Gateway) WithNetwork(network string, subnets ...string) *Gateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, s := range subnets {
		g.networks[network] = append(g.networks[network], netip.MustParsePrefix(s).Masked())
	}
	return g
}

// WithSpareIPs sets the addresses AllocatePublicIP hands out, in order.
func (g *Gateway) WithSpareIPs(addresses ...string) *Gateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.spare = append(g.spare, addresses...)
	return g
}

// WithRules seeds the NAT table.
func (g *Gateway) WithRules(rules ...gateway.NATRule) *Gateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = append(g.rules, rules...)
	return g
}

// Reject makes op ("add" or "del") requests for direction t fail with reason.
// For "allocate" and "deallocate" t is ignored. An empty reason clears the
// rejection.
func (g *Gateway) Reject(op string, t gateway.RuleType, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := op + "/" + string(t)
	if op == "allocate" || op == "deallocate" {
		key = op + "/"
	}
	if reason == "" {
		delete(g.rejects, key)
		return
	}
	g.rejects[key] = reason
}

// ScriptTasks sets the statuses reported by tasks created for rule
// mutations. The last status repeats. A rule change is applied only when the
// script ends in success. The default script is a single success.
func (g *Gateway) ScriptTasks(reason string, statuses ...gateway.TaskStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.taskScript = slices.Clone(statuses)
	g.taskReason = reason
}

// SetBusy marks the services configuration as being updated by someone else.
func (g *Gateway) SetBusy(busy bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.busy = busy
}

// RejectSave makes SaveServicesConfiguration decline with reason.
func (g *Gateway) RejectSave(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.saveReject = reason
}

// ScriptSave sets the statuses of tasks created by SaveServicesConfiguration.
func (g *Gateway) ScriptSave(statuses ...gateway.TaskStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.saveScript = slices.Clone(statuses)
}

// FailReads makes NATRules and PublicIPs return err.
func (g *Gateway) FailReads(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.readErr = err
}

// Rules returns a copy of the NAT table.
func (g *Gateway) Rules() []gateway.NATRule {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.rules)
}

// Calls returns the recorded requests.
func (g *Gateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.calls)
}

// MutationCount returns how many add and del requests were made.
func (g *Gateway) MutationCount() int {
	n := 0
	for _, c := range g.Calls() {
		if c.Op == "add" || c.Op == "del" {
			n++
		}
	}
	return n
}

// Name implements gateway.Gateway.
func (g *Gateway) Name() string { return g.name }

// NATRules implements gateway.Gateway.
func (g *Gateway) NATRules(_ context.Context) ([]gateway.NATRule, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.readErr != nil {
		return nil, g.readErr
	}
	return slices.Clone(g.rules), nil
}

// PublicIPs implements gateway.Gateway.
func (g *Gateway) PublicIPs(_ context.Context) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.readErr != nil {
		return nil, g.readErr
	}
	return slices.Clone(g.pool), nil
}

// NetworkSubnets implements gateway.Gateway.
func (g *Gateway) NetworkSubnets(_ context.Context, network string) ([]netip.Prefix, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.readErr != nil {
		return nil, g.readErr
	}
	return slices.Clone(g.networks[network]), nil
}

// AllocatePublicIP implements gateway.Gateway. The request is declined when
// no spare address is left.
func (g *Gateway) AllocatePublicIP(_ context.Context) (bool, gateway.Task, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, Call{Op: "allocate"})

	if _, rejected := g.rejects["allocate/"]; rejected || len(g.spare) == 0 {
		return false, nil, nil
	}
	t := g.newTask(g.taskScript, g.taskReason)
	if t.succeeds() {
		g.pool = append(g.pool, g.spare[0])
		g.spare = g.spare[1:]
	}
	return true, t, nil
}

// DeallocatePublicIP implements gateway.Gateway. The request is declined
// when address is not in the pool.
func (g *Gateway) DeallocatePublicIP(_ context.Context, address string) (bool, gateway.Task, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, Call{Op: "deallocate", Address: address})

	i := slices.Index(g.pool, address)
	if _, rejected := g.rejects["deallocate/"]; rejected || i < 0 {
		return false, nil, nil
	}
	t := g.newTask(g.taskScript, g.taskReason)
	if t.succeeds() {
		g.pool = slices.Delete(g.pool, i, i+1)
		g.spare = append(g.spare, address)
	}
	return true, t, nil
}

// AddNATRule implements gateway.Gateway.
func (g *Gateway) AddNATRule(_ context.Context, rule gateway.NATRule) (bool, gateway.Task, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, Call{Op: "add", Rule: rule})

	if _, rejected := g.rejects["add/"+string(rule.Type)]; rejected {
		return false, nil, nil
	}
	if slices.ContainsFunc(g.rules, rule.Matches) {
		return false, nil, nil
	}
	t := g.newTask(g.taskScript, g.taskReason)
	if t.succeeds() {
		g.rules = append(g.rules, rule)
	}
	return true, t, nil
}

// DelNATRule implements gateway.Gateway.
func (g *Gateway) DelNATRule(_ context.Context, rule gateway.NATRule) (bool, gateway.Task, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, Call{Op: "del", Rule: rule})

	if _, rejected := g.rejects["del/"+string(rule.Type)]; rejected {
		return false, nil, nil
	}
	i := slices.IndexFunc(g.rules, rule.Matches)
	if i < 0 {
		return false, nil, nil
	}
	t := g.newTask(g.taskScript, g.taskReason)
	if t.succeeds() {
		g.rules = slices.Delete(g.rules, i, i+1)
	}
	return true, t, nil
}

// SaveServicesConfiguration implements gateway.Gateway.
func (g *Gateway) SaveServicesConfiguration(_ context.Context) (bool, gateway.Task, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, Call{Op: "save"})

	if g.busy {
		return false, nil, true, nil
	}
	if g.saveReject != "" {
		return false, nil, false, nil
	}
	return true, g.newTask(g.saveScript, "configuration rejected"), false, nil
}

func (g *Gateway) newTask(script []gateway.TaskStatus, reason string) *Task {
	if len(script) == 0 {
		script = []gateway.TaskStatus{gateway.TaskSuccess}
	}
	return &Task{id: uuid.NewString(), script: slices.Clone(script), reason: reason}
}

// Client is an in-memory gateway.Client.
type Client struct {
	mu       sync.Mutex
	gateways map[string]*Gateway
}

// NewClient returns a client serving the given gateways by name.
func NewClient(gateways ...*Gateway) *Client {
	c := &Client{gateways: make(map[string]*Gateway, len(gateways))}
	for _, g := range gateways {
		c.gateways[g.name] = g
	}
	return c
}

// GetGateway implements gateway.Client.
func (c *Client) GetGateway(_ context.Context, name string) (gateway.Gateway, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.gateways[name]
	if !ok {
		return nil, nil
	}
	return g, nil
}
