//go:build linux

package vpn

import (
	"net"

	"github.com/drivaslab/pmacs-vpn/vpn/internal/nlroute"
)

// linuxRouter implements Router using rtnetlink via internal/nlroute,
// the native fast path for route installation.
type linuxRouter struct {
	conn *nlroute.Conn
}

// NewRouter opens the rtnetlink connection used for the lifetime of one
// tunnel's route installs and removals.
func NewRouter() (Router, error) {
	conn, err := nlroute.Dial()
	if err != nil {
		return nil, newErr(ErrTunnelRoute, "open rtnetlink", err)
	}
	return &linuxRouter{conn: conn}, nil
}

func (r *linuxRouter) InterfaceIndex(name string) (uint32, error) {
	return r.conn.InterfaceIndex(name)
}

func (r *linuxRouter) AddHostRoute(ip net.IP, ifIndex uint32) error {
	return r.conn.AddHostRoute(ip, ifIndex)
}

func (r *linuxRouter) RemoveHostRoute(ip net.IP) error {
	return r.conn.RemoveHostRoute(ip)
}

func (r *linuxRouter) Close() error {
	r.conn.Close()
	return nil
}
