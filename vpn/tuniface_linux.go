//go:build linux

package vpn

import (
	"fmt"
	"net"
	"os/exec"

	"github.com/songgao/water"
)

func configurePlatform(cfg *water.Config) {
	// songgao/water picks a free "tunN" name on Linux when Name is left blank.
}

// configureAddress assigns the tunnel's internal address and MTU to the
// freshly created device and brings it up. This is shell-exec'd rather
// than pushed through internal/nlroute: address/link-up handling is a
// one-shot setup step, not the repeated route churn that the routing
// layer owns, so the netlink fast path is reserved for that repeated
// work rather than this one-time bring-up.
func configureAddress(name string, addr net.IP, prefixLen, mtu int) error {
	cidr := fmt.Sprintf("%s/%d", addr.String(), prefixLen)
	if err := exec.Command("ip", "addr", "add", cidr, "dev", name).Run(); err != nil {
		return fmt.Errorf("ip addr add: %w", err)
	}
	if err := exec.Command("ip", "link", "set", "dev", name, "mtu", fmt.Sprintf("%d", mtu), "up").Run(); err != nil {
		return fmt.Errorf("ip link set up: %w", err)
	}
	return nil
}
