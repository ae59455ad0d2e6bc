package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/fleetctl/internal/fleet"
	"github.com/danmuck/fleetctl/internal/lifecycle"
	"github.com/danmuck/fleetctl/internal/registry"
)

// fleetctl config.toml key mapping to orchestrator and agent settings.
type fileConfig struct {
	ProvisionTimeout      string   `toml:"provision_timeout"`
	PollInterval          string   `toml:"poll_interval"`
	SettleDelay           string   `toml:"settle_delay"`
	JVMOpts               string   `toml:"jvm_opts"`
	SerializePerContainer bool     `toml:"serialize_per_container"`
	ProfilesPath          string   `toml:"profiles_path"`
	AgentProvisionDelay   string   `toml:"agent_provision_delay"`
	AgentFailProfiles     []string `toml:"agent_fail_profiles"`
	LogLevel              string   `toml:"log_level"`
	MetricsAddr           string   `toml:"metrics_addr"`
}

type runtimeConfig struct {
	Lifecycle    lifecycle.Config
	Agent        registry.AgentConfig
	ProfilesPath string
	LogLevel     string
	MetricsAddr  string
}

func defaultRuntimeConfig() runtimeConfig {
	return runtimeConfig{
		Lifecycle: lifecycle.DefaultConfig(),
		Agent:     registry.DefaultConfig().Agent,
	}
}

// loadRuntimeConfig overlays the keys defined in path onto the defaults. An
// empty path yields the defaults.
func loadRuntimeConfig(path string) (runtimeConfig, error) {
	cfg := defaultRuntimeConfig()
	path = strings.TrimSpace(path)
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return runtimeConfig{}, fmt.Errorf("load fleetctl config: %w", err)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"provision_timeout", raw.ProvisionTimeout, &cfg.Lifecycle.ProvisionTimeout},
		{"poll_interval", raw.PollInterval, &cfg.Lifecycle.PollInterval},
		{"settle_delay", raw.SettleDelay, &cfg.Lifecycle.SettleDelay},
		{"agent_provision_delay", raw.AgentProvisionDelay, &cfg.Agent.ProvisionDelay},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return runtimeConfig{}, fmt.Errorf("load fleetctl config: %s: %w", d.key, err)
		}
		if v < 0 {
			return runtimeConfig{}, fmt.Errorf("load fleetctl config: %s must not be negative", d.key)
		}
		*d.dst = v
	}

	if meta.IsDefined("jvm_opts") {
		cfg.Lifecycle.LaunchOptions = map[string]string{fleet.LaunchOptionJVMOpts: strings.TrimSpace(raw.JVMOpts)}
	}
	if meta.IsDefined("serialize_per_container") {
		cfg.Lifecycle.DisableSerialization = !raw.SerializePerContainer
	}
	if meta.IsDefined("profiles_path") {
		cfg.ProfilesPath = resolveRelative(path, raw.ProfilesPath)
	}
	if meta.IsDefined("agent_fail_profiles") {
		cfg.Agent.FailProfiles = append([]string(nil), raw.AgentFailProfiles...)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	return cfg, nil
}

// resolveRelative anchors target to the directory of configPath.
func resolveRelative(configPath string, target string) string {
	resolved := strings.TrimSpace(target)
	if resolved == "" || filepath.IsAbs(resolved) {
		return resolved
	}
	return filepath.Join(filepath.Dir(configPath), resolved)
}
