//go:build !windows

package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// Kill sends SIGKILL to the child's process group and waits for it to be
// reaped. Calling Kill on an exited child is a no-op.
func (p *processInstance) Kill(ctx context.Context) error {
	if p.cmd.Process == nil || p.exited() {
		return nil
	}
	if err := unix.Kill(-p.pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("kill process group %s: %w", p.name, err)
	}
	return p.awaitExit(ctx)
}

func exitSignal(state *os.ProcessState) string {
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return ""
	}
	return unix.SignalName(ws.Signal())
}
