package config

import (
	"github.com/imamik/edgefip/internal/floatingip"
)

// DefaultConfigFilename is the default configuration filename.
const DefaultConfigFilename = "edgefip.yaml"

// Gateway providers.
const (
	ProviderVCD    = "vcd"
	ProviderMemory = "memory"
)

// Workload lookup backends.
const (
	WorkloadsVCD    = "vcd"
	WorkloadsHCloud = "hcloud"
	WorkloadsMemory = "memory"
)

// State backends.
const (
	StateFile = "file"
	StateS3   = "s3"
)

// Config is the edgefip configuration file.
type Config struct {
	// Provider selects the gateway backend: "vcd" or "memory".
	Provider string `yaml:"provider"`
	// Workloads selects the workload lookup backend. Defaults to Provider.
	Workloads string `yaml:"workloads,omitempty"`

	VCD        VCDConfig        `yaml:"vcd,omitempty"`
	HCloud     HCloudConfig     `yaml:"hcloud,omitempty"`
	Memory     MemoryConfig     `yaml:"memory,omitempty"`
	FloatingIP FloatingIPConfig `yaml:"floating_ip"`
	State      StateConfig      `yaml:"state,omitempty"`
}

// VCDConfig holds the vCloud Director connection settings.
type VCDConfig struct {
	URL        string `yaml:"url"`
	Org        string `yaml:"org"`
	VDC        string `yaml:"vdc"`
	User       string `yaml:"user"`
	Password   string `yaml:"password,omitempty"` // or VCD_PASSWORD
	APIVersion string `yaml:"api_version,omitempty"`
	Insecure   bool   `yaml:"insecure,omitempty"`
}

// HCloudConfig holds the Hetzner Cloud settings used for workload lookup.
type HCloudConfig struct {
	Token string `yaml:"token,omitempty"` // or HCLOUD_TOKEN
}

// MemoryConfig seeds the in-memory provider used for dry runs. The gateway
// is rebuilt from this section on every run; nothing a run changes on it is
// kept, so existing rule pairs must be listed under pairs.
type MemoryConfig struct {
	Gateway   string                    `yaml:"gateway,omitempty"`
	PublicIPs []string                  `yaml:"public_ips,omitempty"`
	SpareIPs  []string                  `yaml:"spare_ips,omitempty"`
	Networks  map[string][]string       `yaml:"networks,omitempty"`
	Pairs     []MemoryPair              `yaml:"pairs,omitempty"`
	Workloads map[string]MemoryWorkload `yaml:"workloads,omitempty"`
}

// MemoryPair is a SNAT/DNAT rule pair present on the in-memory gateway.
type MemoryPair struct {
	External string `yaml:"external"`
	Internal string `yaml:"internal"`
}

// MemoryWorkload is a workload of the in-memory lookup.
type MemoryWorkload struct {
	IP      string `yaml:"ip"`
	Network string `yaml:"network,omitempty"`
}

// FloatingIPConfig is the per-interface floating IP configuration plus
// controller settings.
type FloatingIPConfig struct {
	floatingip.Config `yaml:",inline"`
	// RollbackPartial removes the SNAT rule of a pair whose DNAT rule failed.
	RollbackPartial bool `yaml:"rollback_partial,omitempty"`
}

// StateConfig selects where interface runtime state is kept.
type StateConfig struct {
	Backend   string `yaml:"backend,omitempty"` // "file" (default) or "s3"
	Path      string `yaml:"path,omitempty"`
	Bucket    string `yaml:"bucket,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	Region    string `yaml:"region,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"` // or S3_ACCESS_KEY
	SecretKey string `yaml:"secret_key,omitempty"` // or S3_SECRET_KEY
}

// WorkloadBackend returns the effective workload lookup backend.
func (c *Config) WorkloadBackend() string {
	if c.Workloads != "" {
		return c.Workloads
	}
	return c.Provider
}
