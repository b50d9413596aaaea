//go:build unix

package proc

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup puts the child in its own process group so that a
// timeout kills the script and everything it spawned, not just the shell.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
