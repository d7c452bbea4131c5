//go:build windows

package process

import (
	"os"
	"os/exec"
	"syscall"
)

func setProcessGroup(cmd *exec.Cmd) {}

// SignalGroup has no process-group equivalent on windows; any signal
// terminates the single process.
func SignalGroup(pid int, _ syscall.Signal) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

func Terminate(pid int) error { return SignalGroup(pid, syscall.SIGTERM) }

func Kill(pid int) error { return SignalGroup(pid, syscall.SIGKILL) }

func SignalFromCode(code uint8) syscall.Signal {
	if code == 0 {
		return syscall.SIGTERM
	}
	return syscall.Signal(code)
}
