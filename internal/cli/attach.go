package cli

import (
	"bytes"
	stdcontext "context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	apihttp "github.com/Paintersrp/hookall/internal/api/http"
	"github.com/Paintersrp/hookall/internal/config"
	"github.com/Paintersrp/hookall/internal/engine"
	"github.com/Paintersrp/hookall/internal/locator"
	"github.com/Paintersrp/hookall/internal/metrics"
	"github.com/Paintersrp/hookall/internal/runtime"
	"github.com/Paintersrp/hookall/internal/tui"
)

func runAttach(cmd *cobra.Command, deps dependencies, cfg *config.Config, useTUI bool, filter locator.Filter) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = stdcontext.Background()
	}
	out := &syncWriter{w: cmd.OutOrStdout()}
	errOut := &syncWriter{w: cmd.ErrOrStderr()}

	if useTUI {
		if !supportsInteractiveOutput(cmd) {
			return errors.New("--tui requires an interactive terminal")
		}
		// The dashboard owns the terminal, so child output must be captured.
		cfg.Output = config.OutputPrefixed
	}

	// While the dashboard owns the terminal, diagnostics are held back and
	// written out once it stops.
	diagnostics := &deferredWriter{}
	if !useTUI {
		diagnostics.release(errOut)
	}
	defer diagnostics.release(errOut)
	logger := newLogger(diagnostics, cfg.Logging)
	slog.SetDefault(logger)
	if cfg.Source != "" {
		logger.Debug("configuration loaded", "path", cfg.Source)
	}

	plan, err := launchPlan(cfg)
	if err != nil {
		return err
	}
	source, err := deps.newSource(cfg.Lister)
	if err != nil {
		return err
	}
	pids, err := locator.New(source).Find(ctx, filter)
	switch {
	case err != nil:
		fmt.Fprintf(errOut, "Error getting PIDs: %v\n", err)
		pids = nil
	case len(pids) == 0:
		fmt.Fprintln(out, "No processes found")
	default:
		fmt.Fprintf(out, "Found %d process(es): %s\n", len(pids), locator.FormatPIDs(pids))
	}
	metrics.SetProcessesMatched(len(pids))

	rt := deps.newRuntime(cmd.OutOrStdout(), cmd.ErrOrStderr())

	events := make(chan engine.Event, 64)
	sup := engine.NewSupervisor(rt, plan, engine.WithEvents(events))

	if len(pids) == 0 {
		rep := newReporter(out, errOut, cfg, nil)
		repDone := rep.start(events)
		_, err := sup.Run(ctx, nil, nil)
		close(events)
		<-repDone
		return err
	}

	input := make(chan rune, 8)
	var wg sync.WaitGroup
	defer wg.Wait()

	runCtx, cancel := stdcontext.WithCancel(ctx)
	defer cancel()

	var ui *tui.UI
	uiErr := make(chan error, 1)
	if useTUI {
		ui = tui.New(tui.WithFilter(filter.String()), tui.WithMaxLogs(cfg.Logging.Buffer))
		go func() {
			uiErr <- ui.Run(runCtx)
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			forwardKeys(runCtx, ui.Keys(), input)
		}()
	}

	_, stopServer, err := startStatusServer(runCtx, cfg.Metrics.Addr, &controller{
		supervisor: sup,
		filter:     filter.String(),
		matched:    pids,
		quit:       input,
	})
	if err != nil {
		if ui != nil {
			ui.CloseEvents()
			ui.Stop()
			<-uiErr
		}
		return err
	}

	var sink chan<- engine.Event
	if ui != nil {
		sink = ui.EventSink()
	}
	rep := newReporter(out, errOut, cfg, sink)

	// The terminal leaves line mode only once every child has been launched.
	var (
		reader  keySource
		keysErr error
	)
	defer func() {
		if reader != nil {
			reader.Close()
		}
	}()
	if ui == nil {
		rep.onListening = func() {
			r, err := deps.openKeys()
			if err != nil {
				keysErr = fmt.Errorf("open key input: %w", err)
				cancel()
				return
			}
			reader = r
			wg.Add(1)
			go func() {
				defer wg.Done()
				forwardKeys(runCtx, r.Keys(), input)
			}()
		}
	}
	repDone := rep.start(events)

	res, runErr := sup.Run(runCtx, pids, input)
	close(events)
	<-repDone
	if runErr == nil {
		runErr = keysErr
	}

	if ui != nil {
		ui.CloseEvents()
		ui.Stop()
		if err := <-uiErr; err != nil {
			logger.Warn("dashboard stopped with error", "error", err)
		}
		diagnostics.release(errOut)
		// The dashboard swallowed the lifecycle lines; repeat the outcome.
		if runErr == nil {
			fmt.Fprintln(out, "Quitting all attached processes...")
		}
	}

	cancel()
	if err := stopServer(); err != nil {
		logger.Warn("status server stopped with error", "error", err)
	}

	logger.Debug("supervisor finished", "state", res.State, "launched", res.Launched, "reason", res.Reason)
	return runErr
}

func launchPlan(cfg *config.Config) (engine.LaunchPlan, error) {
	output, err := runtime.ParseOutputMode(cfg.Output)
	if err != nil {
		return engine.LaunchPlan{}, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	plan := engine.LaunchPlan{
		Command:    cfg.Launcher.Command,
		PIDFlag:    cfg.Launcher.PIDFlagValue(),
		ScriptFlag: cfg.Launcher.ScriptFlagValue(),
		Scripts:    cfg.Launcher.Scripts,
		Env:        cfg.Launcher.Env,
		Workdir:    cfg.Launcher.Workdir,
		Output:     output,
	}
	if err := plan.Validate(); err != nil {
		return engine.LaunchPlan{}, err
	}
	return plan, nil
}

// forwardKeys copies keystrokes from src to dst until src closes or ctx ends.
// dst is never closed, so an exhausted input leaves the supervisor listening.
func forwardKeys(ctx stdcontext.Context, src <-chan rune, dst chan<- rune) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-src:
			if !ok {
				slog.With("component", "cli").Debug("key input closed")
				return
			}
			select {
			case dst <- r:
			case <-ctx.Done():
				return
			}
		}
	}
}

// startStatusServer binds addr before any child is launched so an unusable
// address fails the command early. It returns the bound address and a func
// that stops the server.
func startStatusServer(ctx stdcontext.Context, addr string, ctrl *controller) (string, func() error, error) {
	if addr == "" {
		return "", func() error { return nil }, nil
	}
	ln, err := apihttp.Listen(addr)
	if err != nil {
		return "", nil, fmt.Errorf("status server: %w", err)
	}
	server, err := apihttp.NewServer(apihttp.Config{Controller: ctrl, Listener: ln})
	if err != nil {
		ln.Close()
		return "", nil, err
	}

	serverCtx, cancel := stdcontext.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(serverCtx)
	}()
	slog.With("component", "cli").Info("status server listening", "addr", server.Addr())

	return server.Addr(), func() error {
		cancel()
		return <-errCh
	}, nil
}

func supportsInteractiveOutput(cmd *cobra.Command) bool {
	f, ok := cmd.OutOrStdout().(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// deferredWriter buffers writes until release sets a destination.
type deferredWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
	dst io.Writer
}

func (d *deferredWriter) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dst != nil {
		return d.dst.Write(p)
	}
	return d.buf.Write(p)
}

// release flushes anything buffered to dst and sends later writes straight
// through. Only the first call has an effect.
func (d *deferredWriter) release(dst io.Writer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dst != nil {
		return
	}
	_, _ = d.buf.WriteTo(dst)
	d.dst = dst
}

// syncWriter serialises writes from the reporter and log relay goroutines.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
