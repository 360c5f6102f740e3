package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate reports every semantic problem in the configuration. Returned
// errors wrap ErrInvalid.
func (c *Config) Validate() error {
	var errs []error

	switch c.Lister.Source {
	case SourceCommand:
		if len(c.Lister.Command) == 0 || strings.TrimSpace(c.Lister.Command[0]) == "" {
			errs = append(errs, errors.New("lister.command: must name a listing command"))
		}
	case SourceProcfs:
	default:
		errs = append(errs, fmt.Errorf("lister.source: unknown source %q (want %s or %s)", c.Lister.Source, SourceCommand, SourceProcfs))
	}

	if len(c.Launcher.Command) == 0 || strings.TrimSpace(c.Launcher.Command[0]) == "" {
		errs = append(errs, errors.New("launcher.command: must name an instrumentation command"))
	}
	for i, script := range c.Launcher.Scripts {
		if strings.TrimSpace(script) == "" {
			errs = append(errs, fmt.Errorf("launcher.scripts[%d]: must not be empty", i))
		}
	}
	for key := range c.Launcher.Env {
		if key == "" || strings.ContainsAny(key, "= ") {
			errs = append(errs, fmt.Errorf("launcher.env: invalid variable name %q", key))
		}
	}

	switch c.Output {
	case OutputInherit, OutputPrefixed:
	default:
		errs = append(errs, fmt.Errorf("output: unknown mode %q (want %s or %s)", c.Output, OutputInherit, OutputPrefixed))
	}

	switch c.Logging.Format {
	case LogFormatText, LogFormatJSON:
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q (want %s or %s)", c.Logging.Format, LogFormatText, LogFormatJSON))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}

	if c.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			errs = append(errs, fmt.Errorf("metrics.addr: %w", err))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}
