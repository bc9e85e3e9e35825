package nat

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/imamik/edgefip/internal/gateway"
)

// PairSet is a set of assigned address pairs.
type PairSet map[gateway.AssignedIPs]struct{}

// Has reports whether p is in the set.
func (s PairSet) Has(p gateway.AssignedIPs) bool {
	_, ok := s[p]
	return ok
}

// HasExternal reports whether any pair uses address as its external side.
func (s PairSet) HasExternal(address string) bool {
	for p := range s {
		if p.External == address {
			return true
		}
	}
	return false
}

// HasInternal reports whether any pair uses address as its internal side.
func (s PairSet) HasInternal(address string) bool {
	for p := range s {
		if p.Internal == address {
			return true
		}
	}
	return false
}

// ExternalFor returns the lowest external address paired with internal.
func (s PairSet) ExternalFor(internal string) (string, bool) {
	found := ""
	for p := range s {
		if p.Internal == internal && (found == "" || p.External < found) {
			found = p.External
		}
	}
	return found, found != ""
}

// PairOf returns the address pair a rule maps. SNAT rewrites an internal
// source to an external one, DNAT the reverse, so the slots are swapped
// between the two rule types.
func PairOf(rule gateway.NATRule) (gateway.AssignedIPs, bool) {
	switch rule.Type {
	case gateway.SNAT:
		return gateway.AssignedIPs{External: rule.TranslatedIP, Internal: rule.OriginalIP}, true
	case gateway.DNAT:
		return gateway.AssignedIPs{External: rule.OriginalIP, Internal: rule.TranslatedIP}, true
	default:
		return gateway.AssignedIPs{}, false
	}
}

// ListAssignedPairs reads the NAT table and returns the address pairs it maps.
// A nil gateway has no pairs.
func ListAssignedPairs(ctx context.Context, gw gateway.Gateway) (PairSet, error) {
	pairs := make(PairSet)
	if gw == nil {
		return pairs, nil
	}
	rules, err := gw.NATRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read nat rules of gateway %q: %w", gw.Name(), err)
	}
	for _, rule := range rules {
		if p, ok := PairOf(rule); ok {
			pairs[p] = struct{}{}
		}
	}
	return pairs, nil
}

// FreeExternalAddress returns the first public address, in pool order, that
// no NAT rule uses as its external side.
func FreeExternalAddress(ctx context.Context, gw gateway.Gateway) (string, error) {
	if gw == nil {
		return "", &gateway.NoFreeAddressError{}
	}
	pool, err := gw.PublicIPs(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read public ips of gateway %q: %w", gw.Name(), err)
	}
	pairs, err := ListAssignedPairs(ctx, gw)
	if err != nil {
		return "", err
	}
	for _, address := range pool {
		if !pairs.HasExternal(address) {
			return address, nil
		}
	}
	return "", &gateway.NoFreeAddressError{Gateway: gw.Name()}
}

// IsExternalAssigned reports whether address is the external side of a pair.
func IsExternalAssigned(ctx context.Context, address string, gw gateway.Gateway) (bool, error) {
	pairs, err := ListAssignedPairs(ctx, gw)
	if err != nil {
		return false, err
	}
	return pairs.HasExternal(address), nil
}

// IsInternalAssigned reports whether address is the internal side of a pair.
func IsInternalAssigned(ctx context.Context, address string, gw gateway.Gateway) (bool, error) {
	pairs, err := ListAssignedPairs(ctx, gw)
	if err != nil {
		return false, err
	}
	return pairs.HasInternal(address), nil
}

// CheckExternalFree fails with an AddressAssignedError when address is
// already used as an external address.
func CheckExternalFree(ctx context.Context, address string, gw gateway.Gateway) error {
	assigned, err := IsExternalAssigned(ctx, address, gw)
	if err != nil {
		return err
	}
	if assigned {
		return &gateway.AddressAssignedError{Address: address, Slot: "external", Gateway: gw.Name()}
	}
	return nil
}

// CheckInternalFree fails with an AddressAssignedError when address is
// already used as an internal address.
func CheckInternalFree(ctx context.Context, address string, gw gateway.Gateway) error {
	assigned, err := IsInternalAssigned(ctx, address, gw)
	if err != nil {
		return err
	}
	if assigned {
		return &gateway.AddressAssignedError{Address: address, Slot: "internal", Gateway: gw.Name()}
	}
	return nil
}

// IsRoutedToNetwork reports whether any NAT rule pair translates to an
// internal address inside one of network's subnets on the gateway.
func IsRoutedToNetwork(ctx context.Context, gw gateway.Gateway, network string) (bool, error) {
	if gw == nil || network == "" {
		return false, nil
	}
	subnets, err := gw.NetworkSubnets(ctx, network)
	if err != nil {
		return false, fmt.Errorf("failed to read subnets of network %q on gateway %q: %w", network, gw.Name(), err)
	}
	if len(subnets) == 0 {
		return false, nil
	}
	pairs, err := ListAssignedPairs(ctx, gw)
	if err != nil {
		return false, err
	}
	for p := range pairs {
		addr, err := netip.ParseAddr(p.Internal)
		if err != nil {
			continue
		}
		for _, subnet := range subnets {
			if subnet.Contains(addr) {
				return true, nil
			}
		}
	}
	return false, nil
}
