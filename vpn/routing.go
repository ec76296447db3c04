package vpn

import "net"

// Router installs and removes host routes bound to the tunnel interface.
// Implementations are platform-specific; NewRouter picks the right one
// for the running OS.
type Router interface {
	// InterfaceIndex resolves the numeric OS interface index for name.
	InterfaceIndex(name string) (uint32, error)

	// AddHostRoute installs a /32 route for ip directed out of ifIndex.
	AddHostRoute(ip net.IP, ifIndex uint32) error

	// RemoveHostRoute idempotently removes the /32 route for ip.
	RemoveHostRoute(ip net.IP) error

	// Close releases any resources held by the router.
	Close() error
}

// installedRoute records one successfully installed route, kept by the
// connection supervisor so it can reverse-teardown on partial failure:
// any add failure aborts the connect and triggers full teardown of
// routes already added.
type installedRoute struct {
	Host net.IP
}

// RouteInstaller drives Router to add a set of host routes, rolling back
// everything it added if any single add fails.
type RouteInstaller struct {
	router    Router
	ifIndex   uint32
	installed []installedRoute
}

// NewRouteInstaller wraps router for a batch of host-route installs
// against the given interface index.
func NewRouteInstaller(router Router, ifIndex uint32) *RouteInstaller {
	return &RouteInstaller{router: router, ifIndex: ifIndex}
}

// Add installs a single host route, tracking it for rollback.
func (ri *RouteInstaller) Add(ip net.IP) error {
	if err := ri.router.AddHostRoute(ip, ri.ifIndex); err != nil {
		return newErr(ErrTunnelRoute, ip.String(), err)
	}
	ri.installed = append(ri.installed, installedRoute{Host: ip})
	return nil
}

// Rollback removes every route Add has installed so far, in reverse
// order, best-effort (errors are swallowed -- teardown is never allowed
// to fail loudly).
func (ri *RouteInstaller) Rollback() {
	for i := len(ri.installed) - 1; i >= 0; i-- {
		_ = ri.router.RemoveHostRoute(ri.installed[i].Host)
	}
	ri.installed = nil
}

// Installed returns the hosts successfully routed so far.
func (ri *RouteInstaller) Installed() []net.IP {
	out := make([]net.IP, len(ri.installed))
	for i, r := range ri.installed {
		out[i] = r.Host
	}
	return out
}
