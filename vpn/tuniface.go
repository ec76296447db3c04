package vpn

import (
	"fmt"
	"net"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/songgao/water"
)

// VirtualInterface wraps a user-space layer-3 OS tunnel interface. It
// must be created exactly once per tunnel and destroyed when the handle
// is dropped: the OS-level interface must not outlive it. Read, Write,
// and Close may be called concurrently -- Read/Write run on the pump's
// reader goroutines while Close may be driven independently by teardown,
// so the iface field is guarded by mu rather than accessed bare.
type VirtualInterface struct {
	mu     sync.RWMutex
	iface  *water.Interface
	name   string
	addr   net.IP
	mtu    int
	logger log.Logger
}

// tunDeviceParams is the narrow view of TunnelConfig (see auth.go) that a
// virtual interface is created from.
type tunDeviceParams struct {
	InternalIPv4 net.IP
	PrefixLen    int
	MTU          int
}

// NewVirtualInterface creates an OS tun device configured with the
// tunnel's assigned IPv4 address, prefix, and MTU. An MTU of zero is
// never passed in -- TunnelConfig.EffectiveMTU() already substitutes 1400.
func NewVirtualInterface(params tunDeviceParams, logger log.Logger) (*VirtualInterface, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if params.InternalIPv4 == nil {
		return nil, newErr(ErrTunnelInterface, "missing internal IPv4 address", nil)
	}
	if params.MTU <= 0 {
		return nil, newErr(ErrTunnelInterface, "MTU must be resolved before interface creation", nil)
	}

	cfg := water.Config{DeviceType: water.TUN}
	configurePlatform(&cfg)

	iface, err := water.New(cfg)
	if err != nil {
		return nil, newErr(ErrTunnelInterface, "create tun device", err)
	}

	vi := &VirtualInterface{
		iface:  iface,
		name:   iface.Name(),
		addr:   params.InternalIPv4,
		mtu:    params.MTU,
		logger: logger,
	}

	if err := configureAddress(vi.name, params.InternalIPv4, params.PrefixLen, params.MTU); err != nil {
		iface.Close()
		return nil, newErr(ErrTunnelInterface, "configure tun device", err)
	}

	level.Info(logger).Log("message", "virtual interface created", "name", vi.name, "address", params.InternalIPv4, "mtu", params.MTU)
	return vi, nil
}

// Name returns the OS-assigned interface name (e.g. "utun3", "tun0").
func (vi *VirtualInterface) Name() string {
	return vi.name
}

// Address returns the internal IPv4 address assigned to the interface.
func (vi *VirtualInterface) Address() net.IP {
	return vi.addr
}

// Read yields the next IP datagram available from the interface. It is
// an asynchronous suspension point usable directly as a pump ready source.
// A concurrent Close unblocks an in-flight Read with an error rather than
// racing on the interface handle.
func (vi *VirtualInterface) Read(buf []byte) (int, error) {
	vi.mu.RLock()
	f := vi.iface
	vi.mu.RUnlock()
	if f == nil {
		return 0, fmt.Errorf("read tun device %s: already closed", vi.name)
	}
	return f.Read(buf)
}

// Write delivers an IP datagram to the interface for local delivery.
func (vi *VirtualInterface) Write(buf []byte) (int, error) {
	vi.mu.RLock()
	f := vi.iface
	vi.mu.RUnlock()
	if f == nil {
		return 0, fmt.Errorf("write tun device %s: already closed", vi.name)
	}
	return f.Write(buf)
}

// Close destroys the OS-level interface. Per the component's invariant,
// the interface must not outlive this call. Safe to call more than once
// and safe to call concurrently with Read/Write.
func (vi *VirtualInterface) Close() error {
	vi.mu.Lock()
	f := vi.iface
	vi.iface = nil
	vi.mu.Unlock()
	if f == nil {
		return nil
	}
	level.Info(vi.logger).Log("message", "destroying virtual interface", "name", vi.name)
	if err := f.Close(); err != nil {
		return fmt.Errorf("close tun device %s: %w", vi.name, err)
	}
	return nil
}
