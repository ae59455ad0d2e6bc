package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/fleetctl/internal/fleet"
	"github.com/danmuck/fleetctl/internal/lifecycle"
)

func TestLoadRuntimeConfigDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "fleetctl.toml")
	content := `
provision_timeout = "90s"
poll_interval = "500ms"
settle_delay = "1s"
jvm_opts = "-Xmx512m"
serialize_per_container = false
profiles_path = "catalog.yaml"
agent_provision_delay = "3s"
agent_fail_profiles = ["broken"]
log_level = "debug"
metrics_addr = "127.0.0.1:9464"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadRuntimeConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Lifecycle.ProvisionTimeout != 90*time.Second {
		t.Fatalf("unexpected provision timeout: %s", cfg.Lifecycle.ProvisionTimeout)
	}
	if cfg.Lifecycle.PollInterval != 500*time.Millisecond {
		t.Fatalf("unexpected poll interval: %s", cfg.Lifecycle.PollInterval)
	}
	if cfg.Lifecycle.SettleDelay != time.Second {
		t.Fatalf("unexpected settle delay: %s", cfg.Lifecycle.SettleDelay)
	}
	if got := cfg.Lifecycle.LaunchOptions[fleet.LaunchOptionJVMOpts]; got != "-Xmx512m" {
		t.Fatalf("unexpected jvm opts: %q", got)
	}
	if !cfg.Lifecycle.DisableSerialization {
		t.Fatalf("expected serialization disabled")
	}
	if cfg.ProfilesPath != filepath.Join(dir, "catalog.yaml") {
		t.Fatalf("profiles path must resolve against config dir: %q", cfg.ProfilesPath)
	}
	if cfg.Agent.ProvisionDelay != 3*time.Second {
		t.Fatalf("unexpected agent delay: %s", cfg.Agent.ProvisionDelay)
	}
	if len(cfg.Agent.FailProfiles) != 1 || cfg.Agent.FailProfiles[0] != "broken" {
		t.Fatalf("unexpected fail profiles: %v", cfg.Agent.FailProfiles)
	}
	if cfg.LogLevel != "debug" || cfg.MetricsAddr != "127.0.0.1:9464" {
		t.Fatalf("unexpected log level or metrics addr: %q %q", cfg.LogLevel, cfg.MetricsAddr)
	}
}

func TestLoadRuntimeConfigKeepsDefaultsForUndefinedKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fleetctl.toml")
	if err := os.WriteFile(path, []byte("poll_interval = \"1s\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadRuntimeConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	def := lifecycle.DefaultConfig()
	if cfg.Lifecycle.ProvisionTimeout != def.ProvisionTimeout {
		t.Fatalf("expected default timeout, got %s", cfg.Lifecycle.ProvisionTimeout)
	}
	if cfg.Lifecycle.LaunchOptions[fleet.LaunchOptionJVMOpts] != lifecycle.DefaultJVMOpts {
		t.Fatalf("expected default jvm opts, got %v", cfg.Lifecycle.LaunchOptions)
	}
	if cfg.Lifecycle.DisableSerialization {
		t.Fatalf("serialization must default on")
	}
	if cfg.Agent.ProvisionDelay != 4*time.Second {
		t.Fatalf("expected default agent delay, got %s", cfg.Agent.ProvisionDelay)
	}

	empty, err := loadRuntimeConfig("")
	if err != nil {
		t.Fatalf("empty path: %v", err)
	}
	if empty.Lifecycle.PollInterval != def.PollInterval {
		t.Fatalf("empty path must yield defaults")
	}
}

func TestLoadRuntimeConfigRejectsBadDurations(t *testing.T) {
	dir := t.TempDir()
	for _, content := range []string{`poll_interval = "soon"`, `settle_delay = "-1s"`} {
		path := filepath.Join(dir, "bad.toml")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		_, err := loadRuntimeConfig(path)
		if err == nil || !strings.Contains(err.Error(), "load fleetctl config") {
			t.Fatalf("expected config error for %q, got %v", content, err)
		}
	}
}
