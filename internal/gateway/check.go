package gateway

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// CheckIP validates an address and returns its canonical form.
func CheckIP(address string) (string, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(address))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return addr.String(), nil
}

// CheckPort validates a port, accepting the "any" wildcard in any case.
func CheckPort(port string) (Port, error) {
	if strings.EqualFold(port, Any) {
		return AnyPort, nil
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return "", fmt.Errorf("%w: %q (must be 1-65535 or %q)", ErrInvalidPort, port, Any)
	}
	return Port(strconv.Itoa(n)), nil
}
