//go:build linux

package vpn

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// scopeToInterfaceControl returns a net.Dialer.Control function that
// additionally binds the socket to the given interface index via
// SO_BINDTODEVICE, the Linux mechanism for scoping a socket to an
// interface by index rather than by source address alone.
func scopeToInterfaceControl(ifIndex uint32) func(network, address string, c syscall.RawConn) error {
	if ifIndex == 0 {
		return nil
	}
	iface, err := net.InterfaceByIndex(int(ifIndex))
	if err != nil {
		return nil
	}
	name := iface.Name
	return func(network, address string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			sockErr = unix.BindToDevice(int(fd), name)
		})
		if err != nil {
			return err
		}
		return sockErr
	}
}
