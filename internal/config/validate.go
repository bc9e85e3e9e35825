package config

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"slices"
	"strings"
)

// ValidationError represents a configuration validation error or warning.
type ValidationError struct {
	Field    string // Configuration field that failed validation
	Message  string // Human-readable error message
	Severity string // "error" or "warning"
}

// Error implements the error interface.
func (ve ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", ve.Severity, ve.Field, ve.Message)
}

// IsError returns true if this is an error (not a warning).
func (ve ValidationError) IsError() bool {
	return ve.Severity == "error"
}

func fieldError(field, format string, args ...any) ValidationError {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Severity: "error"}
}

func fieldWarning(field, format string, args ...any) ValidationError {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Severity: "warning"}
}

// Validate returns all validation errors joined, or nil.
func (c *Config) Validate() error {
	var errs []error
	for _, ve := range c.Check() {
		if ve.IsError() {
			errs = append(errs, ve)
		}
	}
	return errors.Join(errs...)
}

// Warnings returns the non-fatal findings of Check.
func (c *Config) Warnings() []ValidationError {
	var out []ValidationError
	for _, ve := range c.Check() {
		if !ve.IsError() {
			out = append(out, ve)
		}
	}
	return out
}

// Check runs all validation checks and returns any errors or warnings.
func (c *Config) Check() []ValidationError {
	var out []ValidationError

	switch c.Provider {
	case ProviderVCD:
		out = append(out, c.checkVCD()...)
	case ProviderMemory:
		out = append(out, c.checkMemory()...)
	default:
		out = append(out, fieldError("provider", "must be one of %s", strings.Join([]string{ProviderVCD, ProviderMemory}, ", ")))
	}

	switch c.WorkloadBackend() {
	case WorkloadsVCD:
		if c.Provider != ProviderVCD {
			out = append(out, fieldError("workloads", "vcd workload lookup requires the vcd provider"))
		}
	case WorkloadsHCloud:
		if c.HCloud.Token == "" {
			out = append(out, fieldError("hcloud.token", "required for hcloud workload lookup (or set HCLOUD_TOKEN)"))
		}
	case WorkloadsMemory:
	default:
		out = append(out, fieldError("workloads", "must be one of %s", strings.Join([]string{WorkloadsVCD, WorkloadsHCloud, WorkloadsMemory}, ", ")))
	}

	if err := c.FloatingIP.Validate(); err != nil {
		out = append(out, fieldError("floating_ip", "%s", err.Error()))
	}

	out = append(out, c.checkState()...)
	return out
}

func (c *Config) checkVCD() []ValidationError {
	var out []ValidationError
	if c.VCD.URL == "" {
		out = append(out, fieldError("vcd.url", "is required"))
	} else if u, err := url.Parse(c.VCD.URL); err != nil || u.Host == "" || !slices.Contains([]string{"http", "https"}, u.Scheme) {
		out = append(out, fieldError("vcd.url", "must be an absolute http(s) URL"))
	}
	if c.VCD.Org == "" {
		out = append(out, fieldError("vcd.org", "is required"))
	}
	if c.VCD.VDC == "" {
		out = append(out, fieldError("vcd.vdc", "is required"))
	}
	if c.VCD.User == "" {
		out = append(out, fieldError("vcd.user", "is required"))
	}
	if c.VCD.Password == "" {
		out = append(out, fieldError("vcd.password", "is required (or set VCD_PASSWORD)"))
	}
	if c.VCD.Insecure {
		out = append(out, fieldWarning("vcd.insecure", "TLS certificate verification is disabled"))
	}
	return out
}

func (c *Config) checkMemory() []ValidationError {
	var out []ValidationError
	if len(c.Memory.PublicIPs) == 0 && len(c.Memory.SpareIPs) == 0 {
		out = append(out, fieldWarning("memory.public_ips", "no public addresses, connect will fail"))
	}
	for name, subnets := range c.Memory.Networks {
		for _, s := range subnets {
			if _, err := netip.ParsePrefix(s); err != nil {
				out = append(out, fieldError("memory.networks."+name, "invalid subnet %q", s))
			}
		}
	}
	for i, p := range c.Memory.Pairs {
		for _, a := range []string{p.External, p.Internal} {
			if _, err := netip.ParseAddr(a); err != nil {
				out = append(out, fieldError(fmt.Sprintf("memory.pairs[%d]", i), "invalid address %q", a))
			}
		}
	}
	return out
}

func (c *Config) checkState() []ValidationError {
	var out []ValidationError
	switch c.State.Backend {
	case StateFile:
		if c.State.Path == "" {
			out = append(out, fieldError("state.path", "is required for the file backend"))
		}
	case StateS3:
		if c.State.Bucket == "" {
			out = append(out, fieldError("state.bucket", "is required for the s3 backend"))
		}
		if c.State.Endpoint == "" {
			out = append(out, fieldError("state.endpoint", "is required for the s3 backend"))
		}
		if c.State.AccessKey == "" || c.State.SecretKey == "" {
			out = append(out, fieldError("state.access_key", "S3 credentials are required (or set S3_ACCESS_KEY and S3_SECRET_KEY)"))
		}
	default:
		out = append(out, fieldError("state.backend", "must be %s or %s", StateFile, StateS3))
	}
	return out
}
