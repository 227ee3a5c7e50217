//go:build !windows

package pmd

import (
	"os"
	"os/exec"
	"syscall"
)

// terminateGroup starts the launcher in its own process group and kills the
// whole group on cancellation. The PMD launcher is a shell script which forks
// a JVM; killing only the direct child would leave that JVM running and
// holding the output pipe until it exits on its own.
func terminateGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		if err == syscall.ESRCH {
			return os.ErrProcessDone
		}
		return err
	}
}
