//go:build darwin

package vpn

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// scopeToInterfaceControl returns a net.Dialer.Control function that
// additionally scopes the socket to ifIndex via IP_BOUND_IF, the BSD
// analogue of Linux's SO_BINDTODEVICE.
func scopeToInterfaceControl(ifIndex uint32) func(network, address string, c syscall.RawConn) error {
	if ifIndex == 0 {
		return nil
	}
	return func(network, address string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_BOUND_IF, int(ifIndex))
		})
		if err != nil {
			return err
		}
		return sockErr
	}
}
