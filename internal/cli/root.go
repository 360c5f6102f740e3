package cli

import (
	stdcontext "context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/hookall/internal/config"
	"github.com/Paintersrp/hookall/internal/keys"
	"github.com/Paintersrp/hookall/internal/locator"
	"github.com/Paintersrp/hookall/internal/runtime"
	"github.com/Paintersrp/hookall/internal/runtime/process"
)

// keySource is the subset of keys.Reader the attach command needs.
type keySource interface {
	Keys() <-chan rune
	Close() error
}

// dependencies are the process-facing collaborators of the attach command.
type dependencies struct {
	newSource  func(config.ListerSpec) (locator.Source, error)
	newRuntime func(stdout, stderr io.Writer) runtime.Runtime
	openKeys   func() (keySource, error)
}

func defaultDependencies() dependencies {
	return dependencies{
		newSource: newListingSource,
		newRuntime: func(stdout, stderr io.Writer) runtime.Runtime {
			return process.New(process.WithOutput(stdout, stderr))
		},
		openKeys: func() (keySource, error) {
			return keys.Open(os.Stdin)
		},
	}
}

func newListingSource(spec config.ListerSpec) (locator.Source, error) {
	switch spec.Source {
	case config.SourceProcfs:
		return locator.NewProcSource(), nil
	case config.SourceCommand, "":
		return locator.CommandSource{Command: spec.Command}, nil
	default:
		return nil, fmt.Errorf("%w: unknown lister source %q", config.ErrInvalid, spec.Source)
	}
}

// options holds the raw flag values. Only flags that were set override the
// configuration file.
type options struct {
	configPath  string
	source      string
	lister      string
	launcher    string
	scripts     []string
	output      string
	logFormat   string
	logLevel    string
	metricsAddr string
	tui         bool
}

func NewRootCmd() *cobra.Command {
	return newRootCommand(defaultDependencies())
}

func newRootCommand(deps dependencies) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "hookall [flags] <filter>",
		Short: "Attach an instrumentation process to every matching running process",
		Long: `hookall lists running processes, keeps those whose listing line contains
<filter> (case-insensitive), and starts one instrumentation child per match:

  frida -p <pid> -l config.js -l native-connect-hook.js

Press q to kill every child and exit.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return runAttach(cmd, deps, cfg, opts.tui, locator.FilterFromArgs(args))
		},
	}

	flags := root.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to a hookall.yaml configuration file")
	flags.StringVar(&opts.source, "source", config.SourceCommand, "Process listing source (command|procfs)")
	flags.StringVar(&opts.lister, "lister", "frida-ps", "Listing command, split on whitespace")
	flags.StringVar(&opts.launcher, "launcher", "frida", "Instrumentation command, split on whitespace")
	flags.StringArrayVarP(&opts.scripts, "script", "l", nil, "Script passed to every child; repeatable, replaces configured scripts")
	flags.StringVar(&opts.output, "output", config.OutputInherit, "Child output handling (inherit|prefixed)")
	flags.StringVar(&opts.logFormat, "log-format", config.LogFormatText, "Diagnostic and prefixed output format (text|json)")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Diagnostic log level (debug|info|warn|error)")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve /metrics and /api/v1/status on this address")
	flags.BoolVar(&opts.tui, "tui", false, "Show the interactive dashboard instead of reading keys from stdin")

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root
}

func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("source") {
		cfg.Lister.Source = opts.source
		if cfg.Lister.Source == config.SourceCommand && len(cfg.Lister.Command) == 0 {
			cfg.ApplyDefaults()
		}
	}
	if changed("lister") {
		cfg.Lister.Command = strings.Fields(opts.lister)
	}
	if changed("launcher") {
		cfg.Launcher.Command = strings.Fields(opts.launcher)
	}
	if changed("script") {
		cfg.Launcher.Scripts = append([]string(nil), opts.scripts...)
	}
	if changed("output") {
		cfg.Output = opts.output
	}
	if changed("log-format") {
		cfg.Logging.Format = opts.logFormat
	}
	if changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if changed("metrics-addr") {
		cfg.Metrics.Addr = opts.metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Execute runs the CLI entrypoint.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	root.SetContext(ctx)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
