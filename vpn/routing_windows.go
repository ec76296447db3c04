//go:build windows

package vpn

import (
	"fmt"
	"net"
	"os/exec"
	"strings"

	"github.com/drivaslab/pmacs-vpn/vpn/internal/ifnamemap"
)

// windowsRouter shells out to the "route" utility, using 0.0.0.0 as the
// gateway argument to request on-link semantics through the
// point-to-point virtual interface. Using the tunnel's own IP there is
// the documented misrouting bug this implementation must not
// reintroduce.
type windowsRouter struct{}

const onLinkGateway = "0.0.0.0"

// NewRouter returns the Windows Router implementation.
func NewRouter() (Router, error) {
	return &windowsRouter{}, nil
}

func (r *windowsRouter) InterfaceIndex(name string) (uint32, error) {
	if iface, err := net.InterfaceByName(name); err == nil {
		return uint32(iface.Index), nil
	}
	return ifnamemap.ResolveIndexByShell(name)
}

func (r *windowsRouter) AddHostRoute(ip net.IP, ifIndex uint32) error {
	out, err := exec.Command("route", buildAddRouteArgs(ip, ifIndex)...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("route add: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// buildAddRouteArgs constructs the "route add" argument list. The gateway
// argument is always the unspecified address: on a platform whose route
// command requires a gateway argument alongside an interface index, that
// argument must denote on-link, not the tunnel's own address.
func buildAddRouteArgs(ip net.IP, ifIndex uint32) []string {
	return []string{"add", ip.String(), "mask", "255.255.255.255",
		onLinkGateway, "if", fmt.Sprintf("%d", ifIndex)}
}

func (r *windowsRouter) RemoveHostRoute(ip net.IP) error {
	out, err := exec.Command("route", "delete", ip.String()).CombinedOutput()
	if err != nil && !strings.Contains(strings.ToLower(string(out)), "not found") {
		return fmt.Errorf("route delete: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (r *windowsRouter) Close() error {
	return nil
}
