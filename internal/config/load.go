package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads, completes and validates the configuration at path.
func LoadFile(path string) (*Config, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses, completes and validates a configuration.
func LoadFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// applyEnv fills unset secrets from the environment.
func (c *Config) applyEnv() {
	setFromEnv(&c.VCD.Password, "VCD_PASSWORD")
	setFromEnv(&c.HCloud.Token, "HCLOUD_TOKEN")
	setFromEnv(&c.State.AccessKey, "S3_ACCESS_KEY")
	setFromEnv(&c.State.SecretKey, "S3_SECRET_KEY")
}

func (c *Config) applyDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderVCD
	}
	if c.State.Backend == "" {
		c.State.Backend = StateFile
	}
	if c.State.Backend == StateFile && c.State.Path == "" {
		c.State.Path = "edgefip-state.yaml"
	}
	if c.State.Backend == StateS3 && c.State.Prefix == "" {
		c.State.Prefix = "edgefip/"
	}
	if c.Provider == ProviderMemory && c.Memory.Gateway == "" {
		c.Memory.Gateway = c.FloatingIP.Gateway
	}
}

func setFromEnv(dst *string, envVar string) {
	if *dst != "" {
		return
	}
	*dst = os.Getenv(envVar)
}
