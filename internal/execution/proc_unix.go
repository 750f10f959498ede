//go:build unix

package execution

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup runs the shell in its own process group so that a
// cancelled command takes its children down with it.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
