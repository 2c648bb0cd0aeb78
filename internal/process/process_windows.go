//go:build windows

package process

import (
	"os"
	"os/exec"
)

func configureSysProcAttr(_ *exec.Cmd) {}

// Windows has no SIGTERM for arbitrary processes; both paths kill.
func terminate(pid int) error { return kill(pid) }

func kill(pid int) error {
	if pid == 0 {
		return nil
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

func exitStatus(ps *os.ProcessState, err error) ExitStatus {
	if ps == nil {
		if err != nil {
			return ExitStatus{Code: -1}
		}
		return ExitStatus{}
	}
	return ExitStatus{Code: ps.ExitCode()}
}
