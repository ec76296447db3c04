//go:build !windows

package cli

import "os"

// privilegeHintForPlatform names the elevation command for Unix-likes.
func privilegeHintForPlatform() string {
	return "re-run with sudo"
}

// requirePrivilege reports whether the process has the elevated rights
// route/name-table installation requires (CAP_NET_ADMIN in practice;
// approximated here as root).
func requirePrivilege() bool {
	return os.Geteuid() == 0
}
