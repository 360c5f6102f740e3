package config

import (
	"errors"
	"log/slog"
	"strings"
)

// ErrInvalid wraps every semantic validation failure.
var ErrInvalid = errors.New("invalid config")

const (
	SourceCommand = "command"
	SourceProcfs  = "procfs"

	OutputInherit  = "inherit"
	OutputPrefixed = "prefixed"

	LogFormatText = "text"
	LogFormatJSON = "json"
)

var (
	defaultListerCommand   = []string{"frida-ps"}
	defaultLauncherCommand = []string{"frida"}
	defaultScripts         = []string{"config.js", "native-connect-hook.js"}
)

const (
	defaultPIDFlag    = "-p"
	defaultScriptFlag = "-l"
	defaultLogLevel   = "info"
	defaultLogBuffer  = 256
)

// Config mirrors the hookall.yaml document.
type Config struct {
	Version  string       `yaml:"version"`
	Lister   ListerSpec   `yaml:"lister"`
	Launcher LauncherSpec `yaml:"launcher"`
	Output   string       `yaml:"output"`
	Logging  LoggingSpec  `yaml:"logging"`
	Metrics  MetricsSpec  `yaml:"metrics"`

	// Source is the absolute path the config was loaded from, if any.
	Source string `yaml:"-"`
}

// ListerSpec selects where the process listing comes from.
type ListerSpec struct {
	Source  string   `yaml:"source"`
	Command []string `yaml:"command"`
}

// LauncherSpec describes the instrumentation command started per target.
type LauncherSpec struct {
	Command     []string          `yaml:"command"`
	PIDFlag     *string           `yaml:"pidFlag"`
	ScriptFlag  *string           `yaml:"scriptFlag"`
	Scripts     []string          `yaml:"scripts"`
	Env         map[string]string `yaml:"env"`
	EnvFromFile string            `yaml:"envFromFile"`
	Workdir     string            `yaml:"workdir"`
}

// LoggingSpec configures diagnostic logging and child log buffering.
type LoggingSpec struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
	Buffer int    `yaml:"buffer"`
}

// MetricsSpec configures the metrics and status endpoint.
type MetricsSpec struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file is supplied. It attaches
// frida to each target with config.js and native-connect-hook.js.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.Lister.Source == "" {
		c.Lister.Source = SourceCommand
	}
	if len(c.Lister.Command) == 0 && c.Lister.Source == SourceCommand {
		c.Lister.Command = append([]string(nil), defaultListerCommand...)
	}
	if len(c.Launcher.Command) == 0 {
		c.Launcher.Command = append([]string(nil), defaultLauncherCommand...)
	}
	if c.Launcher.PIDFlag == nil {
		flag := defaultPIDFlag
		c.Launcher.PIDFlag = &flag
	}
	if c.Launcher.ScriptFlag == nil {
		flag := defaultScriptFlag
		c.Launcher.ScriptFlag = &flag
	}
	if c.Launcher.Scripts == nil {
		c.Launcher.Scripts = append([]string(nil), defaultScripts...)
	}
	if c.Output == "" {
		c.Output = OutputInherit
	}
	if c.Logging.Format == "" {
		c.Logging.Format = LogFormatText
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Buffer <= 0 {
		c.Logging.Buffer = defaultLogBuffer
	}
}

// PIDFlagValue returns the pid flag, or the default when unset.
func (l LauncherSpec) PIDFlagValue() string {
	if l.PIDFlag == nil {
		return defaultPIDFlag
	}
	return *l.PIDFlag
}

// ScriptFlagValue returns the script flag, or the default when unset.
func (l LauncherSpec) ScriptFlagValue() string {
	if l.ScriptFlag == nil {
		return defaultScriptFlag
	}
	return *l.ScriptFlag
}

// SlogLevel converts the configured level name.
func (l LoggingSpec) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
