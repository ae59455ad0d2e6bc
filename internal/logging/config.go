package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel     = "FLEETCTL_LOG_LEVEL"
	EnvLogTimestamp = "FLEETCTL_LOG_TIMESTAMP"
	EnvLogNoColor   = "FLEETCTL_LOG_NOCOLOR"
	EnvLogBypass    = "FLEETCTL_LOG_BYPASS"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config selects level and console formatting for the process logger.
// Bypass writes raw JSON lines instead of the console writer.
type Config struct {
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
	Bypass    bool
	Out       io.Writer
}

var configureOnce sync.Once

func ConfigureRuntime() {
	Configure(ProfileRuntime)
}

func ConfigureTests() {
	Configure(ProfileTest)
}

func Configure(profile Profile) {
	configureOnce.Do(func() {
		cfg := defaultConfig(profile)
		applyEnvOverrides(&cfg)
		Apply(cfg)
	})
}

// Apply installs cfg as the global zerolog logger.
func Apply(cfg Config) {
	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}
	if !cfg.Bypass {
		out = zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    cfg.NoColor,
			TimeFormat: time.RFC3339,
		}
	}
	zerolog.SetGlobalLevel(cfg.Level)
	ctx := zerolog.New(out).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	log.Logger = ctx.Logger()
}

// Component returns the global logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}

func defaultConfig(profile Profile) Config {
	switch profile {
	case ProfileTest:
		return Config{Level: zerolog.DebugLevel, Timestamp: false}
	default:
		return Config{Level: zerolog.InfoLevel, Timestamp: true}
	}
}

func applyEnvOverrides(cfg *Config) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogBypass)); ok {
		cfg.Bypass = v
	}
}

// levelNames lists the accepted spellings for each level.
var levelNames = map[string]zerolog.Level{
	"trace":       zerolog.TraceLevel,
	"diagnostics": zerolog.TraceLevel,
	"debug":       zerolog.DebugLevel,
	"info":        zerolog.InfoLevel,
	"warn":        zerolog.WarnLevel,
	"warning":     zerolog.WarnLevel,
	"error":       zerolog.ErrorLevel,
	"off":         zerolog.Disabled,
	"none":        zerolog.Disabled,
	"disabled":    zerolog.Disabled,
}

// ParseLevel resolves a level name; unknown or empty names report false.
func ParseLevel(raw string) (zerolog.Level, bool) {
	lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return zerolog.InfoLevel, false
	}
	return lvl, true
}

func parseBool(raw string) (bool, bool) {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return v, err == nil
}
