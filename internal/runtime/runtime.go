package runtime

import (
	"context"
	"fmt"
)

const (
	LogSourceStdout = "stdout"
	LogSourceStderr = "stderr"
	LogSourceSystem = "hookall"
)

// OutputMode selects how a child's stdout and stderr reach the operator.
type OutputMode string

const (
	// OutputInherit connects the child's streams directly to ours.
	OutputInherit OutputMode = "inherit"
	// OutputPrefixed pipes the child's streams through Instance.Logs.
	OutputPrefixed OutputMode = "prefixed"
)

// ParseOutputMode validates a textual output mode. The empty string selects
// OutputInherit.
func ParseOutputMode(s string) (OutputMode, error) {
	switch OutputMode(s) {
	case "", OutputInherit:
		return OutputInherit, nil
	case OutputPrefixed:
		return OutputPrefixed, nil
	default:
		return "", fmt.Errorf("unknown output mode %q (want %s or %s)", s, OutputInherit, OutputPrefixed)
	}
}

// StartSpec describes a child process to launch.
type StartSpec struct {
	Name    string
	Command []string
	Env     map[string]string
	Workdir string
	Output  OutputMode
}

// LogEntry is a single line of child output.
type LogEntry struct {
	Message string
	Source  string
	Level   string
}

// ExitStatus describes how a child finished.
type ExitStatus struct {
	// Code is the exit code, or -1 when the child was terminated by a signal.
	Code int
	// Signal names the terminating signal, if any.
	Signal string
	// Err is the error reported by wait, if any.
	Err error
}

// Instance represents a single launched child process.
type Instance interface {
	// PID returns the operating-system identifier of the child.
	PID() int

	// Done delivers the exit status once and is then closed.
	Done() <-chan ExitStatus

	// Logs returns child output lines. It is nil when output is inherited and
	// is closed once both streams reach EOF.
	Logs() <-chan LogEntry

	// Kill forcibly terminates the child and waits for it to be reaped.
	// Implementations must be idempotent.
	Kill(ctx context.Context) error
}

// Runtime describes a backend capable of launching child processes.
type Runtime interface {
	Start(ctx context.Context, spec StartSpec) (Instance, error)
}
