//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// configureCmdSysProcAttr places the child in its own process group so Kill
// reaches anything it forks.
func configureCmdSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
