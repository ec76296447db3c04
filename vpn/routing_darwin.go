//go:build darwin

package vpn

import (
	"fmt"
	"net"
	"os/exec"
	"strings"

	"github.com/drivaslab/pmacs-vpn/vpn/internal/ifnamemap"
)

// darwinRouter shells out to route(8), the native BSD routing utility;
// there is no netlink-equivalent kernel IPC on this platform.
type darwinRouter struct{}

// NewRouter returns the macOS Router implementation.
func NewRouter() (Router, error) {
	return &darwinRouter{}, nil
}

func (r *darwinRouter) InterfaceIndex(name string) (uint32, error) {
	// Fast path: the net package's cached interface table.
	if iface, err := net.InterfaceByName(name); err == nil {
		return uint32(iface.Index), nil
	}
	// Slow path: shell-based name matching, for the window immediately
	// after device creation where the OS interface table may lag.
	return ifnamemap.ResolveIndexByShell(name)
}

func (r *darwinRouter) AddHostRoute(ip net.IP, ifIndex uint32) error {
	iface, err := net.InterfaceByIndex(int(ifIndex))
	if err != nil {
		return fmt.Errorf("resolve interface %d: %w", ifIndex, err)
	}
	out, err := exec.Command("route", "-n", "add", "-host", ip.String(), "-interface", iface.Name).CombinedOutput()
	if err != nil {
		return fmt.Errorf("route add: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (r *darwinRouter) RemoveHostRoute(ip net.IP) error {
	out, err := exec.Command("route", "-n", "delete", "-host", ip.String()).CombinedOutput()
	if err != nil && !strings.Contains(string(out), "not in table") {
		return fmt.Errorf("route delete: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (r *darwinRouter) Close() error {
	return nil
}
