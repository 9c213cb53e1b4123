package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the structure of the optional policy file.
// Per-kind share policy is easier to manage in YAML than env vars.
type YAMLConfig struct {
	Policies []SharePolicyConfig `yaml:"policies"`
	Defaults PolicyDefaults      `yaml:"defaults"`
}

// SharePolicyConfig defines expiry and access-limit policy for one share kind.
type SharePolicyConfig struct {
	Kind          string `yaml:"kind"`                     // "proof" or "file_bundle"
	DefaultTTL    string `yaml:"default_ttl,omitempty"`    // applied when the caller omits expiry
	MaxTTL        string `yaml:"max_ttl,omitempty"`        // hard cap, longer requests are clamped
	DefaultAccess int    `yaml:"default_access,omitempty"` // applied when the caller omits the limit
}

// PolicyDefaults defines fallbacks when a kind has no explicit policy.
type PolicyDefaults struct {
	RevokedReason string `yaml:"revoked_reason"` // default reason for manual revokes with no reason given
}

// LoadYAMLConfig loads the YAML policy file.
// Path is determined by CONFIG_FILE env var, defaulting to "config.yaml".
// Returns nil without error if the file doesn't exist.
func LoadYAMLConfig() (*YAMLConfig, error) {
	path := getEnv("CONFIG_FILE", "config.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Policy file is optional
			return nil, nil
		}
		return nil, err
	}

	var cfg YAMLConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Defaults.RevokedReason == "" {
		cfg.Defaults.RevokedReason = "revoked by owner"
	}

	return &cfg, nil
}

// GetPolicyByKind finds the policy for a share kind.
func (c *YAMLConfig) GetPolicyByKind(kind string) *SharePolicyConfig {
	if c == nil {
		return nil
	}
	for i := range c.Policies {
		if c.Policies[i].Kind == kind {
			return &c.Policies[i]
		}
	}
	return nil
}

// ApplyPolicy overlays the policy file onto the env-derived config. Only the
// file_bundle knobs exist in env form; a proof policy in the file is carried
// through GetPolicyByKind by callers that need it.
func (c *Config) ApplyPolicy(y *YAMLConfig) {
	p := y.GetPolicyByKind("file_bundle")
	if p == nil {
		return
	}
	if d, err := time.ParseDuration(p.DefaultTTL); err == nil && p.DefaultTTL != "" {
		c.BundleDefaultTTL = d
	}
	if d, err := time.ParseDuration(p.MaxTTL); err == nil && p.MaxTTL != "" {
		c.BundleMaxTTL = d
	}
	if p.DefaultAccess > 0 {
		c.BundleDefaultAccess = p.DefaultAccess
	}
}
