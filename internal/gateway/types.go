package gateway

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
)

// RuleType is the direction of a NAT rule.
type RuleType string

const (
	// SNAT rewrites an internal source address to an external one.
	SNAT RuleType = "SNAT"
	// DNAT rewrites an external destination address to an internal one.
	DNAT RuleType = "DNAT"
)

// Any is the wildcard used for ports and protocols.
const Any = "any"

// Port is a NAT rule port: a number in 1..65535 or the wildcard "any".
type Port string

// AnyPort matches every port.
const AnyPort Port = Any

// IsAny reports whether the port is the wildcard.
func (p Port) IsAny() bool {
	return strings.EqualFold(string(p), Any)
}

// NATRule is a single address translation rule on a gateway.
type NATRule struct {
	Type           RuleType
	OriginalIP     string
	OriginalPort   Port
	TranslatedIP   string
	TranslatedPort Port
	Protocol       string
	// Interface is the gateway interface (network) the rule is bound to.
	Interface string
}

// String renders the rule for logs and error messages.
func (r NATRule) String() string {
	return fmt.Sprintf("%s %s:%s -> %s:%s/%s", r.Type, r.OriginalIP, r.OriginalPort,
		r.TranslatedIP, r.TranslatedPort, r.Protocol)
}

// Matches reports whether two rules describe the same translation. Port and
// protocol wildcards compare case-insensitively; the interface is ignored.
func (r NATRule) Matches(o NATRule) bool {
	return r.Type == o.Type &&
		r.OriginalIP == o.OriginalIP &&
		r.TranslatedIP == o.TranslatedIP &&
		strings.EqualFold(string(r.OriginalPort), string(o.OriginalPort)) &&
		strings.EqualFold(string(r.TranslatedPort), string(o.TranslatedPort)) &&
		strings.EqualFold(r.Protocol, o.Protocol)
}

// AssignedIPs is the external/internal address pair a NAT rule maps.
// Two values are equal iff both addresses match, whichever rule produced them.
type AssignedIPs struct {
	External string
	Internal string
}

// TaskStatus is the state of a remote asynchronous operation.
type TaskStatus string

const (
	TaskRunning TaskStatus = "running"
	TaskSuccess TaskStatus = "success"
	TaskError   TaskStatus = "error"
)

// Terminal reports whether no further transition is expected.
func (s TaskStatus) Terminal() bool {
	return s == TaskSuccess || s == TaskError
}

// Task is a handle on an in-flight remote operation. A handle must not be
// polled again once it reported a terminal status.
type Task interface {
	ID() string
	// Status reads the current status. Reason is set for TaskError.
	Status(ctx context.Context) (status TaskStatus, reason string, err error)
}

// Gateway is a remote edge gateway holding a NAT table and a public address pool.
type Gateway interface {
	Name() string

	// NATRules returns the rules currently configured, in gateway order.
	NATRules(ctx context.Context) ([]NATRule, error)

	// PublicIPs returns the external address pool in gateway order.
	PublicIPs(ctx context.Context) ([]string, error)

	// NetworkSubnets returns the subnets of the gateway interface attached
	// to network, or none when the gateway has no such interface.
	NetworkSubnets(ctx context.Context, network string) ([]netip.Prefix, error)

	// AllocatePublicIP requests one more address for the public pool.
	// accepted is false when the gateway declined the request.
	AllocatePublicIP(ctx context.Context) (accepted bool, task Task, err error)

	// DeallocatePublicIP returns address to the provider, with
	// AllocatePublicIP's semantics.
	DeallocatePublicIP(ctx context.Context, address string) (accepted bool, task Task, err error)

	// AddNATRule requests creation of a rule. accepted is false when the
	// gateway declined the request; task is set only when accepted.
	AddNATRule(ctx context.Context, rule NATRule) (accepted bool, task Task, err error)

	// DelNATRule requests removal of a rule, with AddNATRule's semantics.
	DelNATRule(ctx context.Context, rule NATRule) (accepted bool, task Task, err error)

	// SaveServicesConfiguration commits pending service changes. busy is true
	// when another configuration change is in flight on the gateway.
	SaveServicesConfiguration(ctx context.Context) (accepted bool, task Task, busy bool, err error)
}

// Client resolves gateways by name.
type Client interface {
	// GetGateway returns nil and no error when the gateway does not exist.
	GetGateway(ctx context.Context, name string) (Gateway, error)
}
