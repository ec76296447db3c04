//go:build !windows

package vpn

import (
	"os/exec"
	"syscall"
)

// detachProcAttr returns the SysProcAttr that forks the daemon child into
// its own session, detached from the parent's controlling terminal.
func detachProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

func applyDetachAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = detachProcAttr()
}

// killProcess sends SIGTERM to pid, the platform-native signal for a
// graceful shutdown request disconnect command.
func killProcess(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}
