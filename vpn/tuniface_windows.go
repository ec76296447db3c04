//go:build windows

package vpn

import (
	"fmt"
	"net"
	"os/exec"

	"github.com/songgao/water"

	"github.com/drivaslab/pmacs-vpn/vpn/internal/windriver"
)

func configurePlatform(cfg *water.Config) {
	if dir, err := windriver.Ensure(); err == nil {
		cfg.PlatformSpecificParams.ComponentID = "pmacs-vpn"
		cfg.PlatformSpecificParams.InterfaceName = "pmacs-vpn"
		_ = dir // the driver DLL must be discoverable on PATH or beside the exe; nothing further to pass through water.Config
	}
}

// configureAddress assigns the point-to-point address and MTU using netsh,
// the native Windows interface configuration utility.
func configureAddress(name string, addr net.IP, prefixLen int, mtu int) error {
	if err := exec.Command("netsh", "interface", "ip", "set", "address", name, "static", addr.String(), fmt.Sprintf("255.255.255.255")).Run(); err != nil {
		return fmt.Errorf("netsh set address: %w", err)
	}
	if err := exec.Command("netsh", "interface", "ipv4", "set", "subinterface", name, fmt.Sprintf("mtu=%d", mtu), "store=persistent").Run(); err != nil {
		return fmt.Errorf("netsh set mtu: %w", err)
	}
	return nil
}
