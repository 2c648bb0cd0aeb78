//go:build !windows

package process

import (
	"os"
	"os/exec"
	"syscall"
)

// configureSysProcAttr places the child in its own process group so the
// whole group can be signaled on stop.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminate(pid int) error {
	if pid == 0 {
		return nil
	}
	return syscall.Kill(-pid, syscall.SIGTERM)
}

func kill(pid int) error {
	if pid == 0 {
		return nil
	}
	return syscall.Kill(-pid, syscall.SIGKILL)
}

func exitStatus(ps *os.ProcessState, err error) ExitStatus {
	if ps == nil {
		if err != nil {
			return ExitStatus{Code: -1}
		}
		return ExitStatus{}
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		sig := ws.Signal()
		return ExitStatus{Code: 128 + int(sig), Signaled: true, Signal: sig.String()}
	}
	return ExitStatus{Code: ps.ExitCode()}
}
