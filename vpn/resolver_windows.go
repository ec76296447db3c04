//go:build windows

package vpn

import "syscall"

// scopeToInterfaceControl has no portable per-socket interface-scoping
// hook on Windows through net.Dialer.Control; the resolver relies on
// net.Dialer.LocalAddr (the tunnel's own assigned address) to route the
// query through the virtual interface instead.
func scopeToInterfaceControl(ifIndex uint32) func(network, address string, c syscall.RawConn) error {
	return nil
}
