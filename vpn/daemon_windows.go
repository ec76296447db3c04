//go:build windows

package vpn

import (
	"os"
	"os/exec"
	"syscall"
)

// Windows constants for detached, console-less process creation: no
// console, new process group.
const (
	createNewProcessGroup = 0x00000200
	detachedProcess       = 0x00000008
)

func applyDetachAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: createNewProcessGroup | detachedProcess,
	}
}

// killProcess terminates pid, the platform-native kill for the
// disconnect command's "signal the pid" step; Windows has no
// graceful-termination signal equivalent to SIGTERM for an arbitrary
// process, so Process.Kill is the native mechanism here.
func killProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
