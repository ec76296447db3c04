//go:build darwin

package vpn

import (
	"fmt"
	"net"
	"os/exec"

	"github.com/songgao/water"
)

func configurePlatform(cfg *water.Config) {
	// songgao/water allocates a utunN device on macOS; the kernel chooses N.
}

// configureAddress assigns the point-to-point address and MTU using
// ifconfig, the traditional BSD tool for utun devices.
func configureAddress(name string, addr net.IP, prefixLen int, mtu int) error {
	if err := exec.Command("ifconfig", name, addr.String(), addr.String(), "mtu", fmt.Sprintf("%d", mtu), "up").Run(); err != nil {
		return fmt.Errorf("ifconfig: %w", err)
	}
	return nil
}
