package vcd

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/go-logr/logr"

	"github.com/imamik/edgefip/internal/gateway"
)

// maxRangeAddresses bounds the expansion of one public address range.
const maxRangeAddresses = 1 << 16

// GetGateway implements gateway.Client. It returns nil, nil when the VDC
// has no edge gateway with that name.
func (c *Client) GetGateway(ctx context.Context, name string) (gateway.Gateway, error) {
	href, err := c.findInVDC(ctx, "edgeGateway", name)
	if err != nil {
		return nil, err
	}
	if href == "" {
		return nil, nil
	}
	return &Gateway{client: c, name: name, href: href}, nil
}

// Gateway is an edge gateway. Every read fetches the current configuration.
type Gateway struct {
	client *Client
	name   string
	href   string
}

// Name implements gateway.Gateway.
func (g *Gateway) Name() string { return g.name }

func (g *Gateway) load(ctx context.Context) (*edgeGateway, error) {
	var eg edgeGateway
	if err := g.client.request(ctx, http.MethodGet, g.href, "", nil, &eg); err != nil {
		return nil, fmt.Errorf("failed to read gateway %s: %w", g.name, err)
	}
	return &eg, nil
}

// NATRules implements gateway.Gateway.
func (g *Gateway) NATRules(ctx context.Context) ([]gateway.NATRule, error) {
	eg, err := g.load(ctx)
	if err != nil {
		return nil, err
	}
	services := eg.Configuration.Services
	if services == nil || services.Nat == nil {
		return nil, nil
	}

	rules := make([]gateway.NATRule, 0, len(services.Nat.Rules))
	for _, r := range services.Nat.Rules {
		if r.Gateway == nil {
			continue
		}
		rules = append(rules, toNATRule(r))
	}
	return rules, nil
}

func toNATRule(r natRule) gateway.NATRule {
	rule := gateway.NATRule{
		Type:           gateway.RuleType(strings.ToUpper(r.RuleType)),
		OriginalIP:     r.Gateway.OriginalIP,
		OriginalPort:   gateway.Port(orAny(r.Gateway.OriginalPort)),
		TranslatedIP:   r.Gateway.TranslatedIP,
		TranslatedPort: gateway.Port(orAny(r.Gateway.TranslatedPort)),
		Protocol:       strings.ToLower(orAny(r.Gateway.Protocol)),
	}
	if r.Gateway.Interface != nil {
		rule.Interface = r.Gateway.Interface.Name
	}
	return rule
}

func orAny(v string) string {
	if v == "" {
		return gateway.Any
	}
	return v
}

// PublicIPs implements gateway.Gateway. The pool is every address of the
// IP ranges suballocated on the uplink interfaces, in order.
func (g *Gateway) PublicIPs(ctx context.Context) ([]string, error) {
	eg, err := g.load(ctx)
	if err != nil {
		return nil, err
	}

	var out []string
	seen := make(map[string]bool)
	for _, iface := range eg.Configuration.Interfaces {
		if !strings.EqualFold(iface.InterfaceType, "uplink") {
			continue
		}
		for _, sp := range iface.Subnets {
			for _, r := range sp.IPRanges {
				addrs, err := expandRange(r)
				if err != nil {
					return nil, fmt.Errorf("gateway %s: %w", g.name, err)
				}
				for _, a := range addrs {
					if !seen[a] {
						seen[a] = true
						out = append(out, a)
					}
				}
			}
		}
	}
	return out, nil
}

// NetworkSubnets implements gateway.Gateway. network matches the interface
// name or the name of the network behind it.
func (g *Gateway) NetworkSubnets(ctx context.Context, network string) ([]netip.Prefix, error) {
	eg, err := g.load(ctx)
	if err != nil {
		return nil, err
	}
	var out []netip.Prefix
	for _, iface := range eg.Configuration.Interfaces {
		if iface.Name != network && iface.Network.Name != network {
			continue
		}
		for _, sp := range iface.Subnets {
			prefix, err := subnetPrefix(sp)
			if err != nil {
				return nil, fmt.Errorf("gateway %s interface %s: %w", g.name, iface.Name, err)
			}
			out = append(out, prefix)
		}
	}
	return out, nil
}

func subnetPrefix(sp subnetParticipation) (netip.Prefix, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(sp.Gateway))
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid subnet gateway %q", sp.Gateway)
	}
	mask, err := netip.ParseAddr(strings.TrimSpace(sp.Netmask))
	if err != nil || mask.BitLen() != addr.BitLen() {
		return netip.Prefix{}, fmt.Errorf("invalid netmask %q", sp.Netmask)
	}
	ones, bits := net.IPMask(mask.AsSlice()).Size()
	if bits == 0 {
		return netip.Prefix{}, fmt.Errorf("non-contiguous netmask %q", sp.Netmask)
	}
	return netip.PrefixFrom(addr, ones).Masked(), nil
}

func expandRange(r ipRange) ([]string, error) {
	start, err := netip.ParseAddr(strings.TrimSpace(r.Start))
	if err != nil {
		return nil, fmt.Errorf("invalid range start %q", r.Start)
	}
	end := start
	if r.End != "" {
		if end, err = netip.ParseAddr(strings.TrimSpace(r.End)); err != nil {
			return nil, fmt.Errorf("invalid range end %q", r.End)
		}
	}
	if end.Less(start) || start.Is4() != end.Is4() {
		return nil, fmt.Errorf("invalid range %s-%s", r.Start, r.End)
	}

	var out []string
	for a := start; a.IsValid() && !end.Less(a); a = a.Next() {
		if len(out) == maxRangeAddresses {
			return nil, fmt.Errorf("range %s-%s has more than %d addresses", r.Start, r.End, maxRangeAddresses)
		}
		out = append(out, a.String())
	}
	return out, nil
}

// AllocatePublicIP implements gateway.Gateway for on-demand organizations.
func (g *Gateway) AllocatePublicIP(ctx context.Context) (bool, gateway.Task, error) {
	return g.manageExternalIPs(ctx, externalIPActions{Allocation: &externalIPAllocation{Count: 1}})
}

// DeallocatePublicIP implements gateway.Gateway for on-demand organizations.
func (g *Gateway) DeallocatePublicIP(ctx context.Context, address string) (bool, gateway.Task, error) {
	return g.manageExternalIPs(ctx, externalIPActions{Release: &externalIPRelease{Address: address}})
}

func (g *Gateway) manageExternalIPs(ctx context.Context, actions externalIPActions) (bool, gateway.Task, error) {
	eg, err := g.load(ctx)
	if err != nil {
		return false, nil, err
	}
	action := linkOr(eg, relManageExternalIPs, "/action/manageExternalIpAddresses", g.href)

	actions.Xmlns = xmlnsCompute
	body, err := xml.Marshal(actions)
	if err != nil {
		return false, nil, fmt.Errorf("failed to encode external ip actions: %w", err)
	}

	var t taskRecord
	err = g.client.request(ctx, http.MethodPost, action, mediaExternalIPActions, append([]byte(xml.Header), body...), &t)
	switch {
	case err == nil:
		return true, g.client.newTask(t), nil
	case IsBusy(err), isDeclined(err):
		logr.FromContextOrDiscard(ctx).Info("gateway declined external ip request", "gateway", g.name, "error", err.Error())
		return false, nil, nil
	default:
		return false, nil, fmt.Errorf("failed to manage external ips of %s: %w", g.name, err)
	}
}

// linkOr returns the href of the rel link of eg, or href+suffix.
func linkOr(eg *edgeGateway, rel, suffix, href string) string {
	for _, l := range eg.Links {
		if l.Rel == rel {
			return l.HREF
		}
	}
	return strings.TrimSuffix(href, "/") + suffix
}

// AddNATRule implements gateway.Gateway.
func (g *Gateway) AddNATRule(ctx context.Context, rule gateway.NATRule) (bool, gateway.Task, error) {
	return g.mutate(ctx, "add", func(eg *edgeGateway, nat *natService) (bool, error) {
		iface, err := uplinkReference(eg, rule.Interface)
		if err != nil {
			return false, err
		}
		nat.Rules = append(nat.Rules, natRule{
			RuleType:  string(rule.Type),
			IsEnabled: true,
			Gateway: &gatewayNatRule{
				Interface:      iface,
				OriginalIP:     rule.OriginalIP,
				OriginalPort:   string(rule.OriginalPort),
				TranslatedIP:   rule.TranslatedIP,
				TranslatedPort: string(rule.TranslatedPort),
				Protocol:       rule.Protocol,
			},
		})
		return true, nil
	})
}

// DelNATRule implements gateway.Gateway. The request is declined when no
// rule matches.
func (g *Gateway) DelNATRule(ctx context.Context, rule gateway.NATRule) (bool, gateway.Task, error) {
	return g.mutate(ctx, "del", func(_ *edgeGateway, nat *natService) (bool, error) {
		kept := nat.Rules[:0]
		for _, r := range nat.Rules {
			if r.Gateway != nil && toNATRule(r).Matches(rule) {
				continue
			}
			kept = append(kept, r)
		}
		removed := len(kept) != len(nat.Rules)
		nat.Rules = kept
		return removed, nil
	})
}

// mutate edits the NAT service of a fresh copy of the configuration and
// posts it. edit returns false to decline without a request.
func (g *Gateway) mutate(ctx context.Context, op string, edit func(*edgeGateway, *natService) (bool, error)) (bool, gateway.Task, error) {
	logger := logr.FromContextOrDiscard(ctx).WithValues("gateway", g.name, "op", op)

	eg, err := g.load(ctx)
	if err != nil {
		return false, nil, err
	}
	services := eg.Configuration.Services
	if services == nil {
		services = &serviceConfiguration{}
	}
	if services.Nat == nil {
		services.Nat = &natService{IsEnabled: true}
	}

	ok, err := edit(eg, services.Nat)
	if err != nil {
		return false, nil, err
	}
	if !ok {
		logger.Info("nat rule request declined", "reason", "no matching rule")
		return false, nil, nil
	}

	t, busy, err := g.configure(ctx, eg, services)
	if err != nil {
		return false, nil, err
	}
	if t == nil {
		logger.Info("nat rule request declined", "busy", busy)
		return false, nil, nil
	}
	return true, t, nil
}

// SaveServicesConfiguration implements gateway.Gateway by posting the
// current service configuration unchanged.
func (g *Gateway) SaveServicesConfiguration(ctx context.Context) (bool, gateway.Task, bool, error) {
	eg, err := g.load(ctx)
	if err != nil {
		return false, nil, false, err
	}
	services := eg.Configuration.Services
	if services == nil {
		services = &serviceConfiguration{}
	}

	t, busy, err := g.configure(ctx, eg, services)
	if err != nil {
		return false, nil, false, err
	}
	if t == nil {
		return false, nil, busy, nil
	}
	return true, t, false, nil
}

// configure posts services to the configureServices action. It returns a
// nil task when the API declined the request; busy is set when the gateway
// was applying another change.
func (g *Gateway) configure(ctx context.Context, eg *edgeGateway, services *serviceConfiguration) (*Task, bool, error) {
	action := linkOr(eg, relConfigureServices, "/action/configureServices", g.href)

	services.XMLName = xml.Name{Space: xmlns, Local: "EdgeGatewayServiceConfiguration"}
	for i := range services.Other {
		services.Other[i].XMLName.Space = ""
	}
	body, err := xml.Marshal(services)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode service configuration: %w", err)
	}

	var t taskRecord
	err = g.client.request(ctx, http.MethodPost, action, mediaServiceConfiguration, append([]byte(xml.Header), body...), &t)
	switch {
	case err == nil:
		return g.client.newTask(t), false, nil
	case IsBusy(err):
		return nil, true, nil
	case isDeclined(err):
		logr.FromContextOrDiscard(ctx).Info("gateway declined configuration", "gateway", g.name, "error", err.Error())
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("failed to configure services of %s: %w", g.name, err)
	}
}

// isDeclined reports a 4xx answer other than authentication failures.
func isDeclined(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 &&
		apiErr.StatusCode != http.StatusUnauthorized && apiErr.StatusCode != http.StatusForbidden
}

// uplinkReference returns the network reference rules are bound to: the
// interface named name, or the first uplink when name is empty.
func uplinkReference(eg *edgeGateway, name string) (*reference, error) {
	for _, iface := range eg.Configuration.Interfaces {
		if name == "" && strings.EqualFold(iface.InterfaceType, "uplink") {
			ref := iface.Network
			return &ref, nil
		}
		if name != "" && (iface.Name == name || iface.Network.Name == name) {
			ref := iface.Network
			return &ref, nil
		}
	}
	if name == "" {
		return nil, fmt.Errorf("gateway %s has no uplink interface", eg.Name)
	}
	return nil, fmt.Errorf("gateway %s has no interface %q", eg.Name, name)
}
