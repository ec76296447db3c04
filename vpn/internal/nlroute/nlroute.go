// Package nlroute wraps the Linux rtnetlink family for the operations
// platform routing needs: resolving an interface index by name and
// installing/removing host routes. A single background goroutine
// serialises request/response pairs over channels.
package nlroute

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

const (
	rtTableMain   = unix.RT_TABLE_MAIN
	rtProtoBoot   = unix.RTPROT_BOOT
	rtScopeLink   = unix.RT_SCOPE_LINK
	rtTypeUnicast = unix.RTN_UNICAST
)

type msgRequest struct {
	msg   netlink.Message
	flags netlink.HeaderFlags
}

type msgResponse struct {
	msgs []netlink.Message
	err  error
}

// Conn is a netlink rtnetlink connection dedicated to route and link
// queries, serialised through a single worker goroutine (runConn).
type Conn struct {
	c       *netlink.Conn
	reqChan chan *msgRequest
	rspChan chan *msgResponse
	wg      sync.WaitGroup
}

// Dial opens a new rtnetlink connection.
func Dial() (*Conn, error) {
	c, err := netlink.Dial(unix.NETLINK_ROUTE, nil)
	if err != nil {
		return nil, err
	}

	conn := &Conn{
		c:       c,
		reqChan: make(chan *msgRequest),
		rspChan: make(chan *msgResponse),
	}
	conn.wg.Add(1)
	go runConn(conn, &conn.wg)
	return conn, nil
}

// Close releases the connection's resources.
func (c *Conn) Close() {
	close(c.reqChan)
	c.wg.Wait()
	c.c.Close()
}

func runConn(c *Conn, wg *sync.WaitGroup) {
	defer wg.Done()
	for req := range c.reqChan {
		msgs, err := c.c.Execute(req.msg, req.msg.Header.Type, req.flags)
		c.rspChan <- &msgResponse{msgs: msgs, err: err}
	}
}

func (c *Conn) execute(msg netlink.Message, flags netlink.HeaderFlags) ([]netlink.Message, error) {
	c.reqChan <- &msgRequest{msg: msg, flags: flags}
	rsp, ok := <-c.rspChan
	if !ok {
		return nil, errors.New("nlroute: connection closed")
	}
	return rsp.msgs, rsp.err
}

// InterfaceIndex resolves the numeric OS interface index for name,
// trying net.InterfaceByName first and falling back to an RTM_GETLINK
// dump matched by name.
func (c *Conn) InterfaceIndex(name string) (uint32, error) {
	if idx, err := net.InterfaceByName(name); err == nil {
		return uint32(idx.Index), nil
	}

	// Fall back to an explicit RTM_GETLINK dump and name match, for
	// platforms/namespaces where net.InterfaceByName's cache is stale.
	req := netlink.Message{
		Header: netlink.Header{
			Type:  unix.RTM_GETLINK,
			Flags: netlink.Request | netlink.Dump,
		},
		Data: make([]byte, ifInfomsgLen),
	}
	msgs, err := c.execute(req, netlink.Request|netlink.Dump)
	if err != nil {
		return 0, fmt.Errorf("nlroute: RTM_GETLINK: %w", err)
	}
	for _, m := range msgs {
		idx, linkName, ok := parseLinkMessage(m.Data)
		if ok && linkName == name {
			return idx, nil
		}
	}
	return 0, fmt.Errorf("nlroute: interface %q not found", name)
}

// AddHostRoute installs a /32 unicast route for ip directed out of the
// interface identified by ifIndex. The gateway attribute is deliberately
// omitted: the point-to-point virtual interface needs on-link
// (RT_SCOPE_LINK) semantics, not a next-hop -- using the tunnel's own
// local IP as a gateway silently misroutes.
func (c *Conn) AddHostRoute(ip net.IP, ifIndex uint32) error {
	ip4 := ip.To4()
	if ip4 == nil {
		return fmt.Errorf("nlroute: only IPv4 host routes are supported")
	}

	attrs, err := netlink.MarshalAttributes([]netlink.Attribute{
		{Type: unix.RTA_DST, Data: ip4},
		{Type: unix.RTA_OIF, Data: uint32Bytes(ifIndex)},
	})
	if err != nil {
		return err
	}

	data := append(rtMsgHeader(32, rtScopeLink), attrs...)
	req := netlink.Message{
		Header: netlink.Header{Type: unix.RTM_NEWROUTE},
		Data:   data,
	}

	_, err = c.execute(req, netlink.Request|netlink.Create|netlink.Acknowledge|netlink.Excl)
	if err != nil {
		return fmt.Errorf("nlroute: add route for %s via if%d: %w", ip, ifIndex, err)
	}
	return nil
}

// RemoveHostRoute idempotently removes the /32 route for ip. "Not found"
// is treated as success.
func (c *Conn) RemoveHostRoute(ip net.IP) error {
	ip4 := ip.To4()
	if ip4 == nil {
		return fmt.Errorf("nlroute: only IPv4 host routes are supported")
	}

	attrs, err := netlink.MarshalAttributes([]netlink.Attribute{
		{Type: unix.RTA_DST, Data: ip4},
	})
	if err != nil {
		return err
	}

	data := append(rtMsgHeader(32, rtScopeLink), attrs...)
	req := netlink.Message{
		Header: netlink.Header{Type: unix.RTM_DELROUTE},
		Data:   data,
	}

	_, err = c.execute(req, netlink.Request|netlink.Acknowledge)
	if err != nil && !errors.Is(err, unix.ESRCH) && !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("nlroute: remove route for %s: %w", ip, err)
	}
	return nil
}

// --- rtnetlink message body encoding -------------------------------------

// rtmsg fields we care about, RFC: struct rtmsg { family, dst_len, src_len,
// tos, table, protocol, scope, type, flags }.
const rtMsgLen = 12
const ifInfomsgLen = 16

func rtMsgHeader(dstLen uint8, scope uint8) []byte {
	buf := make([]byte, rtMsgLen)
	buf[0] = unix.AF_INET
	buf[1] = dstLen
	buf[2] = 0 // src_len
	buf[3] = 0 // tos
	buf[4] = rtTableMain
	buf[5] = rtProtoBoot
	buf[6] = scope
	buf[7] = rtTypeUnicast
	binary.LittleEndian.PutUint32(buf[8:12], 0) // flags
	return buf
}

func uint32Bytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// parseLinkMessage extracts the interface index and IFLA_IFNAME attribute
// from an RTM_NEWLINK/RTM_GETLINK response body.
func parseLinkMessage(data []byte) (index uint32, name string, ok bool) {
	if len(data) < ifInfomsgLen {
		return 0, "", false
	}
	index = binary.LittleEndian.Uint32(data[4:8])

	ad, err := netlink.NewAttributeDecoder(data[ifInfomsgLen:])
	if err != nil {
		return 0, "", false
	}
	for ad.Next() {
		if ad.Type() == unix.IFLA_IFNAME {
			name = ad.String()
		}
	}
	if ad.Err() != nil {
		return 0, "", false
	}
	return index, name, name != ""
}
