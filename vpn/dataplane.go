package vpn

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// startTunnelMarker delimits the end of the HTTP-ish connect reply and
// the start of the framed packet stream.
const startTunnelMarker = "START_TUNNEL"

const (
	defaultKeepaliveInterval    = 30 * time.Second
	aggressiveKeepaliveInterval = 10 * time.Second
	defaultInboundTimeout       = 45 * time.Second
	sessionClockTick            = 5 * time.Minute
	sessionWarningWindow        = 1 * time.Hour
	sessionWarningRepeat        = 15 * time.Minute
	tlsConnectTimeout           = 15 * time.Second
	maxDatagram                 = 65535
)

// PumpResult is the outcome a DataPlane run reports to the connection
// supervisor.
type PumpResult int

const (
	PumpStopped PumpResult = iota
	PumpDead
	PumpSessionExpired
)

func (r PumpResult) String() string {
	switch r {
	case PumpDead:
		return "dead"
	case PumpSessionExpired:
		return "session-expired"
	default:
		return "stopped"
	}
}

// DataPlane establishes the TLS tunnel connection and runs the
// bidirectional pump.
type DataPlane struct {
	gateway        GatewayEndpoint
	cookie         *AuthCookie
	iface          *VirtualInterface
	keepaliveEvery time.Duration
	inboundTimeout time.Duration
	lifetime       time.Duration
	logger         log.Logger

	loopWG sync.WaitGroup // tracks readOutboundLoop/readInboundLoop, see Run
}

// DataPlaneOptions configures one DataPlane.Run.
type DataPlaneOptions struct {
	Aggressive     bool // 10s keepalive instead of the 30s default
	InboundTimeout time.Duration
	Lifetime       time.Duration // session absolute deadline; zero disables the session clock
}

// NewDataPlane constructs a DataPlane for one connect attempt.
func NewDataPlane(gateway GatewayEndpoint, cookie *AuthCookie, iface *VirtualInterface, opts DataPlaneOptions, logger log.Logger) *DataPlane {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	keepalive := defaultKeepaliveInterval
	if opts.Aggressive {
		keepalive = aggressiveKeepaliveInterval
	}
	inboundTimeout := opts.InboundTimeout
	if inboundTimeout <= 0 {
		inboundTimeout = defaultInboundTimeout
	}
	return &DataPlane{
		gateway:        gateway,
		cookie:         cookie,
		iface:          iface,
		keepaliveEvery: keepalive,
		inboundTimeout: inboundTimeout,
		lifetime:       opts.Lifetime,
		logger:         NewRedactingLogger(logger),
	}
}

// Run establishes the TLS connection and the tunnel handshake, then
// mounts the virtual interface and runs the pump until cancellation,
// death, or session expiry. cancel is closed to request graceful
// shutdown; Run completes its current TLS write, then closes the TLS
// stream and the virtual interface in that order, and does not return
// until the outbound/inbound reader goroutines it started have actually
// exited -- a caller that observes Run returning after a closed cancel
// is guaranteed the virtual interface is no longer in use.
func (dp *DataPlane) Run(cancel <-chan struct{}) (PumpResult, error) {
	conn, err := dp.connect()
	if err != nil {
		return PumpStopped, err
	}

	level.Info(dp.logger).Log("message", "tunnel established", "gateway", dp.gateway.Host)
	result, pumpErr := dp.pump(conn, cancel)

	conn.Close()
	if isClosed(cancel) {
		// Closing the interface unblocks readOutboundLoop if it is
		// parked in a blocking Read with no traffic pending; only the
		// cancel-driven shutdown path does this, since the interface
		// is reused across reconnect attempts on the other results.
		if err := dp.iface.Close(); err != nil {
			level.Warn(dp.logger).Log("message", "close virtual interface during shutdown failed", "error", err)
		}
		dp.loopWG.Wait()
	}
	return result, pumpErr
}

// isClosed reports whether ch has been closed, without blocking.
func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// connect performs the TCP-connect, TLS handshake against the system
// root store, the connect request, and consuming the server's preamble
// up to the START_TUNNEL marker.
func (dp *DataPlane) connect() (*tls.Conn, error) {
	dialer := &net.Dialer{Timeout: tlsConnectTimeout}
	rawConn, err := dialer.Dial("tcp", net.JoinHostPort(dp.gateway.Host, "443"))
	if err != nil {
		return nil, newErr(ErrNetworkConnect, "dial gateway", err)
	}

	conn := tls.Client(rawConn, &tls.Config{ServerName: dp.gateway.Host})
	conn.SetDeadline(time.Now().Add(tlsConnectTimeout))
	if err := conn.Handshake(); err != nil {
		rawConn.Close()
		return nil, newErr(ErrNetworkTLS, "tls handshake", err)
	}
	conn.SetDeadline(time.Time{})

	if dp.cookie.Username == "" {
		conn.Close()
		return nil, newErr(ErrNetworkConnect, "invalid user name", nil)
	}

	query := url.Values{
		"user":       {dp.cookie.Username},
		"authcookie": {dp.cookie.Value},
	}
	req := fmt.Sprintf("GET /ssl-tunnel-connect.sslvpn?%s HTTP/1.1\r\nHost: %s\r\n\r\n", query.Encode(), dp.gateway.Host)
	if _, err := conn.Write([]byte(req)); err != nil {
		conn.Close()
		return nil, newErr(ErrNetworkConnect, "send tunnel-connect request", err)
	}

	if err := consumeUntilMarker(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// consumeUntilMarker reads from conn byte by byte until the literal
// START_TUNNEL token has been seen; everything after it is already
// framed packet stream and must not be consumed.
func consumeUntilMarker(conn net.Conn) error {
	marker := []byte(startTunnelMarker)
	matched := 0
	buf := make([]byte, 1)
	for matched < len(marker) {
		n, err := conn.Read(buf)
		if n == 0 && err != nil {
			return newErr(ErrProtocolBadResponse, "connection closed before START_TUNNEL", err)
		}
		if n == 0 {
			continue
		}
		if buf[0] == marker[matched] {
			matched++
		} else {
			matched = 0
			if buf[0] == marker[0] {
				matched = 1
			}
		}
	}
	return nil
}

// pump is the cooperative select over the three ready sources:
// virtual-interface reads (outbound), TLS reads (inbound), and the
// keepalive tick. Outbound must be served immediately -- never deferred
// to the keepalive tick, which was observed to stall outbound traffic
// by up to a full keepalive interval.
func (dp *DataPlane) pump(conn *tls.Conn, cancel <-chan struct{}) (PumpResult, error) {
	outboundCh := make(chan []byte, 1)
	outboundErrCh := make(chan error, 1)
	dp.loopWG.Add(1)
	go func() {
		defer dp.loopWG.Done()
		dp.readOutboundLoop(outboundCh, outboundErrCh, cancel)
	}()

	inboundCh := make(chan *Record, 1)
	inboundErrCh := make(chan error, 1)
	dp.loopWG.Add(1)
	go func() {
		defer dp.loopWG.Done()
		dp.readInboundLoop(conn, inboundCh, inboundErrCh)
	}()

	keepaliveTicker := time.NewTicker(dp.keepaliveEvery)
	defer keepaliveTicker.Stop()

	var sessionTicker *time.Ticker
	var sessionTickCh <-chan time.Time
	established := time.Now()
	absoluteDeadline := time.Time{}
	if dp.lifetime > 0 {
		absoluteDeadline = established.Add(dp.lifetime)
		sessionTicker = time.NewTicker(sessionClockTick)
		sessionTickCh = sessionTicker.C
		defer sessionTicker.Stop()
	}

	lastInboundAt := time.Now()
	lastWarningAt := time.Time{}
	livenessTicker := time.NewTicker(5 * time.Second)
	defer livenessTicker.Stop()

	for {
		select {
		case <-cancel:
			level.Info(dp.logger).Log("message", "pump cancelled, closing")
			return PumpStopped, nil

		case datagram, ok := <-outboundCh:
			if !ok {
				continue
			}
			framed, err := Encode(datagram)
			if err != nil {
				level.Warn(dp.logger).Log("message", "drop unencodable outbound datagram", "error", err)
				continue
			}
			if _, err := conn.Write(framed); err != nil {
				return PumpStopped, newErr(ErrNetworkTLS, "write outbound frame", err)
			}

		case err := <-outboundErrCh:
			return PumpStopped, newErr(ErrTunnelInterface, "read virtual interface", err)

		case rec, ok := <-inboundCh:
			if !ok {
				continue
			}
			lastInboundAt = time.Now()
			if rec.IsKeepalive() {
				continue
			}
			if _, err := dp.iface.Write(rec.Payload); err != nil {
				return PumpStopped, newErr(ErrTunnelInterface, "write inbound datagram", err)
			}

		case err := <-inboundErrCh:
			return PumpStopped, newErr(ErrNetworkTLS, "read inbound frame", err)

		case <-keepaliveTicker.C:
			if _, err := conn.Write(EncodeKeepalive()); err != nil {
				return PumpStopped, newErr(ErrNetworkTLS, "write keepalive", err)
			}

		case <-livenessTicker.C:
			if time.Since(lastInboundAt) > dp.inboundTimeout {
				level.Warn(dp.logger).Log("message", "tunnel declared dead", "since_last_inbound", time.Since(lastInboundAt))
				return PumpDead, nil
			}

		case <-sessionTickCh:
			if !absoluteDeadline.IsZero() && time.Now().After(absoluteDeadline) {
				level.Warn(dp.logger).Log("message", "session lifetime expired")
				return PumpSessionExpired, nil
			}
			if !absoluteDeadline.IsZero() {
				remaining := time.Until(absoluteDeadline)
				if remaining <= sessionWarningWindow && time.Since(lastWarningAt) >= sessionWarningRepeat {
					level.Warn(dp.logger).Log("message", "session expiring soon", "remaining", remaining.Round(time.Minute))
					lastWarningAt = time.Now()
				}
			}
		}
	}
}

// readOutboundLoop continuously reads IP datagrams from the virtual
// interface and forwards them on ch, stopping when cancel closes.
func (dp *DataPlane) readOutboundLoop(ch chan<- []byte, errCh chan<- error, cancel <-chan struct{}) {
	buf := make([]byte, maxDatagram)
	for {
		select {
		case <-cancel:
			return
		default:
		}
		n, err := dp.iface.Read(buf)
		if err != nil {
			select {
			case errCh <- err:
			case <-cancel:
			}
			return
		}
		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		select {
		case ch <- datagram:
		case <-cancel:
			return
		}
	}
}

// readInboundLoop reads framed records off the TLS stream and forwards
// them on ch, one at a time: the 16-byte header first, then the payload,
// streaming contract.
func (dp *DataPlane) readInboundLoop(conn *tls.Conn, ch chan<- *Record, errCh chan<- error) {
	r := bufio.NewReaderSize(conn, maxDatagram+frameHeaderLen)
	header := make([]byte, frameHeaderLen)
	for {
		if _, err := readFull(r, header); err != nil {
			errCh <- err
			return
		}
		ethertype, length, err := ParseHeader(header)
		if err != nil {
			errCh <- err
			return
		}
		payload := make([]byte, length)
		if length > 0 {
			if _, err := readFull(r, payload); err != nil {
				errCh <- err
				return
			}
		}
		ch <- &Record{Ethertype: ethertype, Payload: payload}
	}
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
