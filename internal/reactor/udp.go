package reactor

import (
	"encoding/binary"
	"fmt"
	"net"
)

// udpProtocol tags which address family a UDP peer address encodes,
// matching the original's protocol_type enum.
type udpProtocol uint8

const (
	udpProtoV4 udpProtocol = 4
	udpProtoV6 udpProtocol = 6
)

// EncodeUDPAddress renders addr as the wire form spec.md section 4.3
// describes: one protocol byte, two big-endian port bytes, then four
// (IPv4) or sixteen (IPv6) address bytes — 7 or 19 bytes total.
func EncodeUDPAddress(addr *net.UDPAddr) []byte {
	if ip4 := addr.IP.To4(); ip4 != nil {
		buf := make([]byte, 1+2+4)
		buf[0] = byte(udpProtoV4)
		binary.BigEndian.PutUint16(buf[1:3], uint16(addr.Port))
		copy(buf[3:], ip4)
		return buf
	}
	ip6 := addr.IP.To16()
	buf := make([]byte, 1+2+16)
	buf[0] = byte(udpProtoV6)
	binary.BigEndian.PutUint16(buf[1:3], uint16(addr.Port))
	copy(buf[3:], ip6)
	return buf
}

// DecodeUDPAddress parses the wire form EncodeUDPAddress produces.
func DecodeUDPAddress(b []byte) (*net.UDPAddr, error) {
	if len(b) < 3 {
		return nil, fmt.Errorf("reactor: udp address too short: %d bytes", len(b))
	}
	proto := udpProtocol(b[0])
	port := int(binary.BigEndian.Uint16(b[1:3]))
	switch proto {
	case udpProtoV4:
		if len(b) != 7 {
			return nil, fmt.Errorf("reactor: udp v4 address must be 7 bytes, got %d", len(b))
		}
		return &net.UDPAddr{IP: net.IP(b[3:7]), Port: port}, nil
	case udpProtoV6:
		if len(b) != 19 {
			return nil, fmt.Errorf("reactor: udp v6 address must be 19 bytes, got %d", len(b))
		}
		return &net.UDPAddr{IP: net.IP(b[3:19]), Port: port}, nil
	default:
		return nil, fmt.Errorf("reactor: unknown udp address protocol byte %d", b[0])
	}
}
