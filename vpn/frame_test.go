package vpn

import (
	"bytes"
	"testing"
)

func TestEncodeEthertype(t *testing.T) {
	cases := []struct {
		name      string
		datagram  []byte
		ethertype uint16
	}{
		{"ipv4", []byte{0x45, 0x00, 0x00, 0x14}, ethertypeIPv4},
		{"ipv6", []byte{0x60, 0x00, 0x00, 0x00}, ethertypeIPv6},
	}
	for _, c := range cases {
		got, err := Encode(c.datagram)
		if err != nil {
			t.Fatalf("Encode(%s) failed: %v", c.name, err)
		}
		ethertype, length, err := ParseHeader(got)
		if err != nil {
			t.Fatalf("ParseHeader(%s) failed: %v", c.name, err)
		}
		if ethertype != c.ethertype {
			t.Errorf("%s: ethertype = %#x, want %#x", c.name, ethertype, c.ethertype)
		}
		if length != len(c.datagram) {
			t.Errorf("%s: length = %d, want %d", c.name, length, len(c.datagram))
		}
	}
}

func TestEncodeUnrecognisedVersion(t *testing.T) {
	if _, err := Encode([]byte{0x00}); err == nil {
		t.Fatalf("Encode() with bad IP version succeeded")
	}
}

func TestEncodeKeepaliveIsSixteenBytes(t *testing.T) {
	ka := EncodeKeepalive()
	if len(ka) != frameHeaderLen {
		t.Fatalf("EncodeKeepalive() length = %d, want %d", len(ka), frameHeaderLen)
	}
	rec, err := Parse(ka)
	if err != nil {
		t.Fatalf("Parse(keepalive) failed: %v", err)
	}
	if !rec.IsKeepalive() {
		t.Fatalf("Parse(keepalive).IsKeepalive() = false")
	}
}

func TestParseBadMagic(t *testing.T) {
	buf := EncodeKeepalive()
	buf[0] ^= 0xff
	if _, err := Parse(buf); err != ErrBadMagic {
		t.Fatalf("Parse() with corrupt magic = %v, want ErrBadMagic", err)
	}
}

func TestParseShortHeader(t *testing.T) {
	if _, err := Parse(make([]byte, 15)); err != ErrShortHeader {
		t.Fatalf("Parse() with 15-byte buffer = %v, want ErrShortHeader", err)
	}
}

func TestParseShortPayload(t *testing.T) {
	full, err := Encode([]byte{0x45, 0x00, 0x00, 0x14, 0x00, 0x00})
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	if _, err := Parse(full[:len(full)-1]); err != ErrShortPayload {
		t.Fatalf("Parse() with truncated payload = %v, want ErrShortPayload", err)
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{0x45, 0x00, 0x00, 0x14, 0xde, 0xad, 0xbe, 0xef},
		append([]byte{0x45}, make([]byte, 1499)...),
	}
	for i, p := range payloads {
		encoded, err := Encode(p)
		if err != nil {
			t.Fatalf("case %d: Encode() failed: %v", i, err)
		}
		rec, err := Parse(encoded)
		if err != nil {
			t.Fatalf("case %d: Parse() failed: %v", i, err)
		}
		if !bytes.Equal(rec.Payload, p) {
			t.Errorf("case %d: round trip payload mismatch", i)
		}
	}
}
