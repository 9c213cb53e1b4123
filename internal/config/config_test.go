package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.ServerAddr != ":3000" {
		t.Errorf("ServerAddr = %q, want %q", cfg.ServerAddr, ":3000")
	}
	if cfg.OwnerIDHeader != "X-Owner-ID" {
		t.Errorf("OwnerIDHeader = %q, want %q", cfg.OwnerIDHeader, "X-Owner-ID")
	}
	if cfg.SweepInterval != time.Minute {
		t.Errorf("SweepInterval = %v, want %v", cfg.SweepInterval, time.Minute)
	}
	if cfg.SweepBatchSize != 100 {
		t.Errorf("SweepBatchSize = %d, want 100", cfg.SweepBatchSize)
	}
	if cfg.LockTimeout != 2*time.Second {
		t.Errorf("LockTimeout = %v, want %v", cfg.LockTimeout, 2*time.Second)
	}
	if cfg.BundleDefaultTTL != 7*24*time.Hour {
		t.Errorf("BundleDefaultTTL = %v, want %v", cfg.BundleDefaultTTL, 7*24*time.Hour)
	}
	if cfg.BundleMaxTTL != 30*24*time.Hour {
		t.Errorf("BundleMaxTTL = %v, want %v", cfg.BundleMaxTTL, 30*24*time.Hour)
	}
	if cfg.BundleDefaultAccess != 5 {
		t.Errorf("BundleDefaultAccess = %d, want 5", cfg.BundleDefaultAccess)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":8080")
	t.Setenv("SWEEP_INTERVAL", "30s")
	t.Setenv("BUNDLE_DEFAULT_ACCESS_LIMIT", "3")
	t.Setenv("OWNER_ID_HEADER", "X-Portal-User")

	cfg := Load()

	if cfg.ServerAddr != ":8080" {
		t.Errorf("ServerAddr = %q, want %q", cfg.ServerAddr, ":8080")
	}
	if cfg.SweepInterval != 30*time.Second {
		t.Errorf("SweepInterval = %v, want 30s", cfg.SweepInterval)
	}
	if cfg.BundleDefaultAccess != 3 {
		t.Errorf("BundleDefaultAccess = %d, want 3", cfg.BundleDefaultAccess)
	}
	if cfg.OwnerIDHeader != "X-Portal-User" {
		t.Errorf("OwnerIDHeader = %q, want %q", cfg.OwnerIDHeader, "X-Portal-User")
	}
}

func TestLoadIgnoresMalformedEnv(t *testing.T) {
	t.Setenv("SWEEP_INTERVAL", "not-a-duration")
	t.Setenv("SWEEP_BATCH_SIZE", "many")

	cfg := Load()

	if cfg.SweepInterval != time.Minute {
		t.Errorf("SweepInterval = %v, want fallback %v", cfg.SweepInterval, time.Minute)
	}
	if cfg.SweepBatchSize != 100 {
		t.Errorf("SweepBatchSize = %d, want fallback 100", cfg.SweepBatchSize)
	}
}

func TestLoadYAMLConfigMissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))

	cfg, err := LoadYAMLConfig()
	if err != nil {
		t.Fatalf("LoadYAMLConfig() error = %v", err)
	}
	if cfg != nil {
		t.Errorf("LoadYAMLConfig() = %+v, want nil for missing file", cfg)
	}
}

func TestLoadYAMLConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
policies:
  - kind: file_bundle
    default_ttl: 72h
    max_ttl: 240h
    default_access: 2
  - kind: proof
defaults:
  revoked_reason: revoked by patient
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := LoadYAMLConfig()
	if err != nil {
		t.Fatalf("LoadYAMLConfig() error = %v", err)
	}
	if cfg == nil {
		t.Fatal("LoadYAMLConfig() = nil, want config")
	}

	p := cfg.GetPolicyByKind("file_bundle")
	if p == nil {
		t.Fatal("GetPolicyByKind(file_bundle) = nil")
	}
	if p.DefaultAccess != 2 {
		t.Errorf("DefaultAccess = %d, want 2", p.DefaultAccess)
	}
	if cfg.GetPolicyByKind("unknown") != nil {
		t.Error("GetPolicyByKind(unknown) should be nil")
	}
	if cfg.Defaults.RevokedReason != "revoked by patient" {
		t.Errorf("RevokedReason = %q, want %q", cfg.Defaults.RevokedReason, "revoked by patient")
	}
}

func TestApplyPolicy(t *testing.T) {
	base := Load()
	y := &YAMLConfig{
		Policies: []SharePolicyConfig{
			{Kind: "file_bundle", DefaultTTL: "48h", MaxTTL: "96h", DefaultAccess: 9},
		},
	}

	base.ApplyPolicy(y)

	if base.BundleDefaultTTL != 48*time.Hour {
		t.Errorf("BundleDefaultTTL = %v, want 48h", base.BundleDefaultTTL)
	}
	if base.BundleMaxTTL != 96*time.Hour {
		t.Errorf("BundleMaxTTL = %v, want 96h", base.BundleMaxTTL)
	}
	if base.BundleDefaultAccess != 9 {
		t.Errorf("BundleDefaultAccess = %d, want 9", base.BundleDefaultAccess)
	}
}

func TestApplyPolicyWithoutBundleEntry(t *testing.T) {
	base := Load()
	before := base.BundleDefaultTTL

	base.ApplyPolicy(&YAMLConfig{Policies: []SharePolicyConfig{{Kind: "proof"}}})

	if base.BundleDefaultTTL != before {
		t.Errorf("BundleDefaultTTL changed to %v, want unchanged %v", base.BundleDefaultTTL, before)
	}
}
