package gateway

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is. Every typed error below unwraps to one of them.
var (
	ErrGatewayNotFound        = errors.New("gateway not found")
	ErrVMIPUnavailable        = errors.New("vm ip unavailable")
	ErrNATRuleRequestRejected = errors.New("nat rule request rejected")
	ErrNATRuleCommitFailed    = errors.New("nat rule commit failed")
	ErrGatewayConfiguration   = errors.New("gateway configuration error")
	ErrNoFreeAddress          = errors.New("no free public address")
	ErrRemoteOperationFailed  = errors.New("remote operation failed")
	ErrAddressAssigned        = errors.New("address already assigned")
	ErrInvalidAddress         = errors.New("invalid ip address")
	ErrInvalidPort            = errors.New("invalid port")
	ErrPublicIPRequest        = errors.New("public ip request failed")
)

// GatewayNotFoundError is returned when a gateway name cannot be resolved.
type GatewayNotFoundError struct {
	Gateway string
}

func (e *GatewayNotFoundError) Error() string {
	return fmt.Sprintf("gateway %q not found", e.Gateway)
}

func (e *GatewayNotFoundError) Unwrap() error { return ErrGatewayNotFound }

// VMIPUnavailableError is returned when the internal address of a workload
// cannot be determined.
type VMIPUnavailableError struct {
	Workload string
	Reason   string
}

func (e *VMIPUnavailableError) Error() string {
	if e.Workload == "" {
		return fmt.Sprintf("could not get vm ip address: %s", e.Reason)
	}
	return fmt.Sprintf("could not get vm ip address of %q: %s", e.Workload, e.Reason)
}

func (e *VMIPUnavailableError) Unwrap() error { return ErrVMIPUnavailable }

// NATRuleRequestRejectedError is returned when the gateway declines a rule
// create or delete request.
type NATRuleRequestRejectedError struct {
	Direction    RuleType
	Action       string
	Gateway      string
	OriginalIP   string
	TranslatedIP string
	Reason       string
}

func (e *NATRuleRequestRejectedError) Error() string {
	return fmt.Sprintf("could not %s %s rule %s -> %s on gateway %q: %s",
		e.Action, e.Direction, e.OriginalIP, e.TranslatedIP, e.Gateway, e.Reason)
}

func (e *NATRuleRequestRejectedError) Unwrap() error { return ErrNATRuleRequestRejected }

// PublicIPRequestError is returned when the gateway declines or fails an
// on-demand public address allocation or release.
type PublicIPRequestError struct {
	Action  string // "allocate" or "deallocate"
	Gateway string
	Address string
	Reason  string
	Err     error
}

func (e *PublicIPRequestError) Error() string {
	target := "a public ip"
	if e.Address != "" {
		target = "public ip " + e.Address
	}
	if e.Err != nil {
		return fmt.Sprintf("could not %s %s on gateway %q: %v", e.Action, target, e.Gateway, e.Err)
	}
	return fmt.Sprintf("could not %s %s on gateway %q: %s", e.Action, target, e.Gateway, e.Reason)
}

func (e *PublicIPRequestError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrPublicIPRequest, e.Err}
	}
	return []error{ErrPublicIPRequest}
}

// NATRuleCommitFailedError is returned when an accepted rule request ends in
// error or times out.
type NATRuleCommitFailedError struct {
	Direction RuleType
	Action    string
	Gateway   string
	Err       error
}

func (e *NATRuleCommitFailedError) Error() string {
	return fmt.Sprintf("%s %s rule on gateway %q did not complete: %v", e.Action, e.Direction, e.Gateway, e.Err)
}

func (e *NATRuleCommitFailedError) Unwrap() []error { return []error{ErrNATRuleCommitFailed, e.Err} }

// ConfigurationError is returned when saving the gateway services
// configuration fails for a reason other than the gateway being busy.
type ConfigurationError struct {
	Gateway string
	Reason  string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("could not save configuration of gateway %q: %v", e.Gateway, e.Err)
	}
	return fmt.Sprintf("could not save configuration of gateway %q: %s", e.Gateway, e.Reason)
}

func (e *ConfigurationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrGatewayConfiguration, e.Err}
	}
	return []error{ErrGatewayConfiguration}
}

// NoFreeAddressError is returned when every public address of a gateway is
// already used by a NAT rule.
type NoFreeAddressError struct {
	Gateway string
}

func (e *NoFreeAddressError) Error() string {
	return fmt.Sprintf("no free public ip on gateway %q", e.Gateway)
}

func (e *NoFreeAddressError) Unwrap() error { return ErrNoFreeAddress }

// RemoteOperationFailedError is returned by the task waiter.
type RemoteOperationFailedError struct {
	TaskID  string
	Reason  string
	Timeout bool
}

func (e *RemoteOperationFailedError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("task %s timed out: %s", e.TaskID, e.Reason)
	}
	return fmt.Sprintf("task %s failed: %s", e.TaskID, e.Reason)
}

func (e *RemoteOperationFailedError) Unwrap() error { return ErrRemoteOperationFailed }

// AddressAssignedError is returned when an address is already part of a NAT
// pair this call did not expect.
type AddressAssignedError struct {
	Address string
	Slot    string // "external" or "internal"
	Gateway string
}

func (e *AddressAssignedError) Error() string {
	return fmt.Sprintf("%s ip %s is already assigned on gateway %q", e.Slot, e.Address, e.Gateway)
}

func (e *AddressAssignedError) Unwrap() error { return ErrAddressAssigned }

// IsTimeout reports whether err is a task wait that ran out of time.
func IsTimeout(err error) bool {
	var opErr *RemoteOperationFailedError
	return errors.As(err, &opErr) && opErr.Timeout
}

// IsNonRecoverable reports whether err belongs to the taxonomy above. Such
// errors abort the calling workflow step.
func IsNonRecoverable(err error) bool {
	for _, target := range []error{
		ErrGatewayNotFound,
		ErrVMIPUnavailable,
		ErrNATRuleRequestRejected,
		ErrNATRuleCommitFailed,
		ErrGatewayConfiguration,
		ErrNoFreeAddress,
		ErrRemoteOperationFailed,
		ErrAddressAssigned,
		ErrInvalidAddress,
		ErrInvalidPort,
		ErrPublicIPRequest,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
