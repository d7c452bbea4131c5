//go:build unix

package process

import (
	"os/exec"
	"syscall"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// SignalGroup delivers sig to the process group led by pid. Signalling the
// group rather than the single pid ensures shell-wrapped and forking
// children are reached too.
func SignalGroup(pid int, sig syscall.Signal) error {
	return syscall.Kill(-pid, sig)
}

// Terminate sends the default graceful termination signal.
func Terminate(pid int) error { return SignalGroup(pid, syscall.SIGTERM) }

// Kill forcefully terminates the process group.
func Kill(pid int) error { return SignalGroup(pid, syscall.SIGKILL) }

// SignalFromCode maps a wire-level signal number to a syscall signal.
// Zero selects the default graceful signal.
func SignalFromCode(code uint8) syscall.Signal {
	if code == 0 {
		return syscall.SIGTERM
	}
	return syscall.Signal(code)
}
