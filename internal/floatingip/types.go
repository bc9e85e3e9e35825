package floatingip

import (
	"fmt"
	"strings"
	"time"

	"github.com/imamik/edgefip/internal/gateway"
	"github.com/imamik/edgefip/internal/nat"
)

// WorkloadIDKey is the runtime property under which the lifecycle layer
// records the identifier of a provisioned workload.
const WorkloadIDKey = "vcloud_vapp_name"

// PublicIPKey is the runtime property holding the associated public address.
const PublicIPKey = "public_ip"

// Config is the per-interface floating IP configuration.
type Config struct {
	// Gateway is the edge gateway name.
	Gateway string `yaml:"gateway"`
	// PublicIP is the external address to bind. Empty picks the first free
	// address of the gateway pool.
	PublicIP string `yaml:"public_ip,omitempty"`
	// Network restricts internal address resolution to connections on this
	// network.
	Network string `yaml:"network,omitempty"`
	// Protocol and Port shape the SNAT rule. Both default to "any".
	Protocol string `yaml:"protocol,omitempty"`
	Port     string `yaml:"port,omitempty"`
	// Interface binds the rules to a gateway interface.
	Interface string `yaml:"interface,omitempty"`
	// Commit saves the gateway services configuration after rule changes.
	Commit bool `yaml:"commit,omitempty"`
	// OnDemand allocates a public address from the provider when the pool
	// has no free one, and releases it on disconnect.
	OnDemand bool `yaml:"ondemand,omitempty"`
}

var protocols = []string{gateway.Any, "tcp", "udp", "tcpudp", "icmp"}

// Validate checks the configuration once, before any remote call.
func (c Config) Validate() error {
	if c.Gateway == "" {
		return fmt.Errorf("floating ip gateway is required")
	}
	if c.PublicIP != "" {
		if _, err := gateway.CheckIP(c.PublicIP); err != nil {
			return fmt.Errorf("floating ip public_ip: %w", err)
		}
	}
	if c.Port != "" {
		if _, err := gateway.CheckPort(c.Port); err != nil {
			return fmt.Errorf("floating ip port: %w", err)
		}
	}
	if c.Protocol != "" && !containsFold(protocols, c.Protocol) {
		return fmt.Errorf("floating ip protocol %q is not one of %s", c.Protocol, strings.Join(protocols, ", "))
	}
	return nil
}

func (c Config) ruleOptions() nat.RuleOptions {
	opts := nat.RuleOptions{Protocol: strings.ToLower(c.Protocol), Interface: c.Interface}
	if c.Port != "" {
		port, _ := gateway.CheckPort(c.Port)
		opts.OriginalPort = port
		opts.TranslatedPort = port
	}
	return opts
}

// Relationship is a declared relationship of the interface to another
// resource. WorkloadID is set when the target recorded a provisioned workload.
type Relationship struct {
	Target     string
	WorkloadID string
}

// RelationshipFromProperties builds a Relationship from a target's runtime
// properties as stored by the orchestration engine.
func RelationshipFromProperties(target string, props map[string]string) Relationship {
	return Relationship{Target: target, WorkloadID: props[WorkloadIDKey]}
}

// Operation names a floating IP operation.
type Operation string

const (
	OpCreate Operation = "create"
	OpDelete Operation = "delete"
)

// RuntimeState is the association stored in the interface's runtime record.
// PublicIP is empty when no floating IP is associated.
type RuntimeState struct {
	PublicIP string `yaml:"public_ip,omitempty" json:"public_ip,omitempty"`
	// Pending is set when rule changes were applied but the configuration
	// commit was deferred because the gateway was busy.
	Pending Operation `yaml:"pending,omitempty" json:"pending,omitempty"`
	// OnDemand is set when PublicIP was allocated for this interface and
	// must be released on disconnect.
	OnDemand bool `yaml:"ondemand,omitempty" json:"ondemand,omitempty"`
}

// Associated reports whether a floating IP is bound.
func (s *RuntimeState) Associated() bool {
	return s != nil && s.PublicIP != ""
}

// InterfaceContext carries everything one operation needs about a network
// interface.
type InterfaceContext struct {
	ID            string
	Config        Config
	Relationships []Relationship
	Runtime       *RuntimeState
}

// Result of an operation. A zero RetryAfter means the operation completed.
type Result struct {
	RetryAfter time.Duration
}

// Done reports whether the operation completed.
func (r Result) Done() bool {
	return r.RetryAfter <= 0
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
