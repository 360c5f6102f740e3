package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/Paintersrp/hookall/internal/runtime"
)

// Option configures the process runtime.
type Option func(*runtimeImpl)

// WithOutput overrides the writers used for inherited child output.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *runtimeImpl) {
		if stdout != nil {
			r.stdout = stdout
		}
		if stderr != nil {
			r.stderr = stderr
		}
	}
}

type runtimeImpl struct {
	stdout io.Writer
	stderr io.Writer
}

// New constructs a runtime that launches children as local processes.
func New(opts ...Option) runtime.Runtime {
	r := &runtimeImpl{stdout: os.Stdout, stderr: os.Stderr}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *runtimeImpl) Start(ctx context.Context, spec runtime.StartSpec) (runtime.Instance, error) {
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("process runtime for %s requires a command", spec.Name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The child is not bound to ctx: its lifetime is controlled by Kill.
	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	if spec.Workdir != "" {
		cmd.Dir = spec.Workdir
	}
	if len(spec.Env) > 0 {
		env := os.Environ()
		for k, v := range spec.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}
	// A nil Stdin reads from the null device, detaching the child from our
	// terminal input.
	cmd.Stdin = nil

	inst := &processInstance{
		name:     spec.Name,
		cmd:      cmd,
		done:     make(chan runtime.ExitStatus, 1),
		waitDone: make(chan struct{}),
	}

	var stdout, stderr io.ReadCloser
	if spec.Output == runtime.OutputPrefixed {
		var err error
		stdout, err = cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("%s stdout: %w", spec.Name, err)
		}
		stderr, err = cmd.StderrPipe()
		if err != nil {
			return nil, fmt.Errorf("%s stderr: %w", spec.Name, err)
		}
		inst.logs = make(chan runtime.LogEntry, 64)
	} else {
		cmd.Stdout = r.stdout
		cmd.Stderr = r.stderr
	}

	configureCmdSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Name, err)
	}
	inst.pid = cmd.Process.Pid

	var streams sync.WaitGroup
	if inst.logs != nil {
		streams.Add(2)
		go inst.streamLogs(stdout, runtime.LogSourceStdout, &streams)
		go inst.streamLogs(stderr, runtime.LogSourceStderr, &streams)
		go func() {
			streams.Wait()
			close(inst.logs)
		}()
	}

	go func() {
		// Pipes must be drained before Wait closes them.
		streams.Wait()
		err := cmd.Wait()
		inst.status = exitStatus(cmd.ProcessState, err)
		close(inst.waitDone)
		inst.done <- inst.status
		close(inst.done)
	}()

	return inst, nil
}

type processInstance struct {
	name string
	cmd  *exec.Cmd
	pid  int
	logs chan runtime.LogEntry

	done     chan runtime.ExitStatus
	waitDone chan struct{}
	status   runtime.ExitStatus
}

func (p *processInstance) PID() int {
	return p.pid
}

func (p *processInstance) Done() <-chan runtime.ExitStatus {
	return p.done
}

func (p *processInstance) Logs() <-chan runtime.LogEntry {
	if p.logs == nil {
		return nil
	}
	return p.logs
}

func (p *processInstance) streamLogs(r io.Reader, source string, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		entry := runtime.LogEntry{Message: line, Source: source, Level: "info"}
		if source == runtime.LogSourceStderr {
			entry.Level = "warn"
		}
		p.logs <- entry
	}
	// Keep draining so the child never blocks on a full pipe after a scan error.
	_, _ = io.Copy(io.Discard, r)
}

func (p *processInstance) exited() bool {
	select {
	case <-p.waitDone:
		return true
	default:
		return false
	}
}

func (p *processInstance) awaitExit(ctx context.Context) error {
	select {
	case <-p.waitDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func exitStatus(state *os.ProcessState, err error) runtime.ExitStatus {
	status := runtime.ExitStatus{Code: -1}
	if state != nil {
		status.Code = state.ExitCode()
		status.Signal = exitSignal(state)
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		status.Err = err
	}
	return status
}
