package locator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// Source produces line-oriented process listing text whose first token on each
// line is a PID.
type Source interface {
	Listing(ctx context.Context) (string, error)
}

// CommandSource runs an external listing command and captures its stdout.
type CommandSource struct {
	Command []string
}

// Listing executes the command synchronously. A command that cannot start or
// exits non-zero yields an error carrying the exit code and trimmed stderr.
func (s CommandSource) Listing(ctx context.Context) (string, error) {
	if len(s.Command) == 0 {
		return "", errors.New("listing command is empty")
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.Command[0], s.Command[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		detail := strings.TrimSpace(stderr.String())
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if detail != "" {
				return "", fmt.Errorf("%s: exit %d: %s", s.Command[0], exitErr.ExitCode(), detail)
			}
			return "", fmt.Errorf("%s: exit %d", s.Command[0], exitErr.ExitCode())
		}
		return "", fmt.Errorf("%s: %w", s.Command[0], err)
	}
	return stdout.String(), nil
}

// ProcSource lists local processes through gopsutil and renders them as
// "<pid> <name> <cmdline>" lines.
type ProcSource struct {
	// listProcesses is swapped out in tests.
	listProcesses func(ctx context.Context) ([]*process.Process, error)
}

// NewProcSource constructs a source backed by the host process table.
func NewProcSource() *ProcSource {
	return &ProcSource{listProcesses: process.ProcessesWithContext}
}

func (s *ProcSource) Listing(ctx context.Context) (string, error) {
	list := s.listProcesses
	if list == nil {
		list = process.ProcessesWithContext
	}
	procs, err := list(ctx)
	if err != nil {
		return "", fmt.Errorf("enumerate processes: %w", err)
	}

	var b strings.Builder
	for _, proc := range procs {
		if proc == nil || proc.Pid <= 0 {
			continue
		}
		// Processes can exit between enumeration and inspection; keep whatever
		// metadata is still readable.
		name, _ := proc.NameWithContext(ctx)
		cmdline, _ := proc.CmdlineWithContext(ctx)
		fmt.Fprintf(&b, "%d %s %s\n", proc.Pid, name, cmdline)
	}
	return b.String(), nil
}
