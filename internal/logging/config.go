package logging

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel     = "NETSPEED_LOG_LEVEL"
	EnvLogTimestamp = "NETSPEED_LOG_TIMESTAMP"
	EnvLogNoColor   = "NETSPEED_LOG_NOCOLOR"
	EnvLogBypass    = "NETSPEED_LOG_BYPASS"
)

// Profile selects the default level and timestamp behavior.
type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config controls the process-wide logger.
type Config struct {
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
	// Bypass writes plain JSON lines instead of the console format.
	Bypass bool
}

var configureOnce sync.Once

// ConfigureRuntime installs the runtime profile once per process.
func ConfigureRuntime() {
	Configure(ProfileRuntime)
}

// ConfigureTests installs the test profile once per process.
func ConfigureTests() {
	Configure(ProfileTest)
}

// ConfigureVerbosity configures the runtime profile with a CLI verbosity count:
// 0 info, 1 debug, 2 or more trace. The environment still wins.
func ConfigureVerbosity(verbose int) {
	configureOnce.Do(func() {
		cfg := defaultConfig(ProfileRuntime)
		cfg.Level = LevelForVerbosity(verbose)
		applyEnvOverrides(&cfg)
		Apply(cfg)
	})
}

// Configure installs profile plus environment overrides. Only the first call in a process applies.
func Configure(profile Profile) {
	configureOnce.Do(func() {
		cfg := defaultConfig(profile)
		applyEnvOverrides(&cfg)
		Apply(cfg)
	})
}

// LevelForVerbosity maps a -v count to a level.
func LevelForVerbosity(verbose int) zerolog.Level {
	switch {
	case verbose <= 0:
		return zerolog.InfoLevel
	case verbose == 1:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

func defaultConfig(profile Profile) Config {
	cfg := Config{NoColor: !stdoutIsTerminal()}
	switch profile {
	case ProfileTest:
		cfg.Level = zerolog.DebugLevel
		cfg.Timestamp = false
	default:
		cfg.Level = zerolog.InfoLevel
		cfg.Timestamp = true
	}
	return cfg
}

// levelAliases are accepted on top of the names zerolog.ParseLevel knows.
var levelAliases = map[string]zerolog.Level{
	"diagnostics": zerolog.TraceLevel,
	"warning":     zerolog.WarnLevel,
	"disabled":    zerolog.Disabled,
	"off":         zerolog.Disabled,
	"none":        zerolog.Disabled,
}

func applyEnvOverrides(cfg *Config) {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	flags := map[string]*bool{
		EnvLogTimestamp: &cfg.Timestamp,
		EnvLogNoColor:   &cfg.NoColor,
		EnvLogBypass:    &cfg.Bypass,
	}
	for env, dst := range flags {
		raw, set := os.LookupEnv(env)
		if !set {
			continue
		}
		// unparseable values leave the profile default in place
		if v, err := strconv.ParseBool(strings.TrimSpace(raw)); err == nil {
			*dst = v
		}
	}
}

// parseLevel resolves NETSPEED_LOG_LEVEL. Empty and unknown values report
// false so the profile level stays.
func parseLevel(raw string) (zerolog.Level, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return zerolog.NoLevel, false
	}
	if lvl, ok := levelAliases[raw]; ok {
		return lvl, true
	}
	lvl, err := zerolog.ParseLevel(raw)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.NoLevel, false
	}
	return lvl, true
}
