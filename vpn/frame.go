package vpn

import (
	"encoding/binary"
	"errors"
)

// Frame header layout:
//
//	offset  size  field
//	0       4     magic
//	4       2     ethertype (0x0800 IPv4, 0x86dd IPv6)
//	6       2     payload length, big-endian
//	8       8     type/flags -- all zero for data and keepalive
//	16      N     raw IP datagram
const (
	frameHeaderLen = 16
	ethertypeIPv4  = 0x0800
	ethertypeIPv6  = 0x86dd
)

var frameMagic = [4]byte{0x1a, 0x2b, 0x3c, 0x4d}

// ErrBadMagic is returned by Parse when the header's magic bytes mismatch.
var ErrBadMagic = errors.New("frame: bad magic")

// ErrShortHeader is returned by Parse when fewer than 16 bytes are available.
var ErrShortHeader = errors.New("frame: short header")

// ErrShortPayload is returned by Parse when fewer than 16+length bytes are available.
var ErrShortPayload = errors.New("frame: short payload")

// Record is a parsed frame: either a data record carrying an IP datagram,
// or a keepalive record (Payload is empty).
type Record struct {
	Ethertype uint16
	Payload   []byte
}

// IsKeepalive reports whether r is a zero-length keepalive record.
func (r *Record) IsKeepalive() bool {
	return len(r.Payload) == 0
}

// Encode produces a framed data record wrapping the supplied IP datagram.
// The ethertype is derived from the IP version nibble of the datagram's
// first byte.
func Encode(datagram []byte) ([]byte, error) {
	if len(datagram) == 0 {
		return nil, errors.New("frame: empty datagram")
	}
	if len(datagram) > 0xffff {
		return nil, errors.New("frame: datagram too large")
	}

	ethertype, err := ethertypeOf(datagram)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, frameHeaderLen+len(datagram))
	writeHeader(buf, ethertype, len(datagram))
	copy(buf[frameHeaderLen:], datagram)
	return buf, nil
}

// EncodeKeepalive produces a 16-byte keepalive record (zero-length payload).
func EncodeKeepalive() []byte {
	buf := make([]byte, frameHeaderLen)
	writeHeader(buf, ethertypeIPv4, 0)
	return buf
}

func writeHeader(buf []byte, ethertype uint16, length int) {
	copy(buf[0:4], frameMagic[:])
	binary.BigEndian.PutUint16(buf[4:6], ethertype)
	binary.BigEndian.PutUint16(buf[6:8], uint16(length))
	// bytes 8:16 (type/flags) are left zero
}

func ethertypeOf(datagram []byte) (uint16, error) {
	switch datagram[0] >> 4 {
	case 4:
		return ethertypeIPv4, nil
	case 6:
		return ethertypeIPv6, nil
	default:
		return 0, errors.New("frame: unrecognised IP version")
	}
}

// ParseHeader decodes the fixed 16-byte header, returning the ethertype
// and the payload length the caller should read next.
func ParseHeader(header []byte) (ethertype uint16, length int, err error) {
	if len(header) < frameHeaderLen {
		return 0, 0, ErrShortHeader
	}
	if header[0] != frameMagic[0] || header[1] != frameMagic[1] ||
		header[2] != frameMagic[2] || header[3] != frameMagic[3] {
		return 0, 0, ErrBadMagic
	}
	ethertype = binary.BigEndian.Uint16(header[4:6])
	length = int(binary.BigEndian.Uint16(header[6:8]))
	return ethertype, length, nil
}

// Parse decodes a complete in-memory buffer into a Record. It is a
// convenience wrapper over ParseHeader for callers (notably tests) that
// already have the whole frame in hand; the streaming data-plane pump
// instead reads the header and payload in two steps directly off the
// TLS connection
func Parse(buf []byte) (*Record, error) {
	ethertype, length, err := ParseHeader(buf)
	if err != nil {
		return nil, err
	}
	if len(buf) < frameHeaderLen+length {
		return nil, ErrShortPayload
	}
	payload := make([]byte, length)
	copy(payload, buf[frameHeaderLen:frameHeaderLen+length])
	return &Record{Ethertype: ethertype, Payload: payload}, nil
}
