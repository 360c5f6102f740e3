//go:build windows

package process

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Kill terminates the direct child and waits for it to be reaped.
func (p *processInstance) Kill(ctx context.Context) error {
	if p.cmd.Process == nil || p.exited() {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill process %s: %w", p.name, err)
	}
	return p.awaitExit(ctx)
}

func exitSignal(*os.ProcessState) string {
	return ""
}
