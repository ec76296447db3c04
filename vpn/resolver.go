package vpn

import (
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// dnsQueryTimeout bounds each individual DNS server query.
const dnsQueryTimeout = 5 * time.Second

// Resolver sends A-record queries to the VPN-supplied DNS servers,
// sourcing them from the tunnel's assigned address or interface so the
// point-to-point driver actually routes them.
type Resolver struct {
	servers   []net.IP
	localAddr net.IP
	ifIndex   uint32
}

// NewResolver constructs a resolver bound to localAddr (and, on
// platforms that support it, scoped to ifIndex). Both are required: an
// unbound socket on the unspecified address is not routed through a
// point-to-point virtual interface even when the destination route
// exists.
func NewResolver(servers []net.IP, localAddr net.IP, ifIndex uint32) (*Resolver, error) {
	if localAddr == nil || localAddr.IsUnspecified() {
		return nil, newErr(ErrNetworkResolve, "resolver must bind to the tunnel address, not 0.0.0.0", nil)
	}
	if len(servers) == 0 {
		return nil, newErr(ErrNetworkResolve, "no DNS servers configured", nil)
	}
	return &Resolver{servers: servers, localAddr: localAddr, ifIndex: ifIndex}, nil
}

// Resolve queries each configured DNS server in order, with a 5-second
// timeout per server, until one answers with an A record. It returns the
// first IPv4 answer found.
func (r *Resolver) Resolve(host string) (net.IP, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range r.servers {
		ip, err := r.queryOne(msg, server)
		if err == nil {
			return ip, nil
		}
		lastErr = err
	}
	return nil, newErr(ErrNetworkResolve, fmt.Sprintf("all %d VPN DNS servers failed for %s", len(r.servers), host), lastErr)
}

func (r *Resolver) queryOne(msg *dns.Msg, server net.IP) (net.IP, error) {
	conn, err := r.dialScoped(server)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	dnsConn := &dns.Conn{Conn: conn}
	dnsConn.SetWriteDeadline(time.Now().Add(dnsQueryTimeout))
	if err := dnsConn.WriteMsg(msg); err != nil {
		return nil, fmt.Errorf("write query to %s: %w", server, err)
	}

	dnsConn.SetReadDeadline(time.Now().Add(dnsQueryTimeout))
	resp, err := dnsConn.ReadMsg()
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", server, err)
	}

	for _, ans := range resp.Answer {
		if a, ok := ans.(*dns.A); ok {
			return a.A, nil
		}
	}
	return nil, fmt.Errorf("no A record in response from %s", server)
}

// dialScoped opens a UDP socket bound to the tunnel's address (and
// interface index where the platform supports scoping), then connects
// it to the server's port 53. The source address must route through
// the virtual interface.
func (r *Resolver) dialScoped(server net.IP) (net.Conn, error) {
	localAddr := &net.UDPAddr{IP: r.localAddr, Port: 0}
	remoteAddr := &net.UDPAddr{IP: server, Port: 53}

	dialer := net.Dialer{
		LocalAddr: localAddr,
		Control:   scopeToInterfaceControl(r.ifIndex),
		Timeout:   dnsQueryTimeout,
	}

	conn, err := dialer.Dial("udp4", remoteAddr.String())
	if err != nil {
		return nil, fmt.Errorf("dial %s bound to %s: %w", server, r.localAddr, err)
	}
	return conn, nil
}
