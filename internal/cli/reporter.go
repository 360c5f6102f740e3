package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/Paintersrp/hookall/internal/cliutil"
	"github.com/Paintersrp/hookall/internal/config"
	"github.com/Paintersrp/hookall/internal/engine"
	"github.com/Paintersrp/hookall/internal/logmux"
	"github.com/Paintersrp/hookall/internal/metrics"
)

// reporter turns supervisor events into operator output, metrics, and
// dashboard updates. Child output lines pass through a log mux so a slow
// terminal drops lines instead of stalling the supervisor.
type reporter struct {
	out    io.Writer
	errOut io.Writer
	json   bool
	sink   chan<- engine.Event
	mux    *logmux.Mux
	log    *slog.Logger

	// onListening, if set, runs once the supervisor waits for the quit key.
	onListening func()
}

func newReporter(out, errOut io.Writer, cfg *config.Config, sink chan<- engine.Event) *reporter {
	return &reporter{
		out:    out,
		errOut: errOut,
		json:   cfg.Logging.Format == config.LogFormatJSON,
		sink:   sink,
		mux:    logmux.New(cfg.Logging.Buffer),
		log:    slog.With("component", "cli.reporter"),
	}
}

// start consumes events until the channel is closed. The returned channel is
// closed once every event and relayed log line has been written.
func (r *reporter) start(events <-chan engine.Event) <-chan struct{} {
	relayed := make(chan struct{})
	go func() {
		defer close(relayed)
		r.relayLogs()
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range events {
			r.handle(evt)
		}
		r.mux.Close()
		<-relayed
	}()
	return done
}

func (r *reporter) handle(evt engine.Event) {
	switch evt.Type {
	case engine.EventTypeAttached:
		metrics.ChildAttached()
	case engine.EventTypeExited:
		metrics.ChildExited(evt.ExitCode)
	case engine.EventTypeKilled:
		metrics.ChildKilled()
	case engine.EventTypeError:
		if evt.Reason == engine.ReasonLaunchFailure {
			metrics.LaunchFailed()
		}
	case engine.EventTypeLog:
		r.mux.Publish(evt)
		return
	}

	r.log.Debug("supervisor event",
		"type", evt.Type,
		"target", evt.Target,
		"child_pid", evt.ChildPID,
		"reason", evt.Reason,
	)

	if evt.Type == engine.EventTypeListening && r.onListening != nil {
		defer r.onListening()
	}

	if r.sink != nil {
		r.sink <- evt
		return
	}

	switch evt.Type {
	case engine.EventTypeAttaching, engine.EventTypeListening, engine.EventTypeExited,
		engine.EventTypeQuitting, engine.EventTypeNoProcesses:
		fmt.Fprintln(r.out, evt.Message)
	case engine.EventTypeError:
		// Launch failures are returned from Run and reported by Execute.
		if evt.Reason != engine.ReasonLaunchFailure {
			fmt.Fprintf(r.errOut, "Error: %s\n", evt.Message)
		}
	}
}

func (r *reporter) relayLogs() {
	var enc *json.Encoder
	if r.json {
		enc = json.NewEncoder(r.out)
	}
	for evt := range r.mux.Output() {
		metrics.ObserveLogLine(evt.Source)
		if r.sink != nil {
			r.sink <- evt
			continue
		}
		if enc != nil {
			cliutil.EncodeLogEvent(enc, r.errOut, evt)
			continue
		}
		cliutil.WriteLogLine(r.out, evt)
	}
}
