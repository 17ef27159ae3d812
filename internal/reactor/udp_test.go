package reactor

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeUDPAddressV4RoundTrips(t *testing.T) {
	addr := &net.UDPAddr{IP: net.ParseIP("203.0.113.7").To4(), Port: 53211}

	wire := EncodeUDPAddress(addr)
	require.Len(t, wire, 7)
	require.EqualValues(t, udpProtoV4, wire[0])

	got, err := DecodeUDPAddress(wire)
	require.NoError(t, err)
	require.True(t, got.IP.Equal(addr.IP))
	require.Equal(t, addr.Port, got.Port)
}

func TestEncodeDecodeUDPAddressV6RoundTrips(t *testing.T) {
	addr := &net.UDPAddr{IP: net.ParseIP("2001:db8::1"), Port: 9}

	wire := EncodeUDPAddress(addr)
	require.Len(t, wire, 19)
	require.EqualValues(t, udpProtoV6, wire[0])

	got, err := DecodeUDPAddress(wire)
	require.NoError(t, err)
	require.True(t, got.IP.Equal(addr.IP))
	require.Equal(t, addr.Port, got.Port)
}

func TestDecodeUDPAddressRejectsTooShort(t *testing.T) {
	_, err := DecodeUDPAddress([]byte{4, 0})
	require.Error(t, err)
}

func TestDecodeUDPAddressRejectsWrongLengthForProtocol(t *testing.T) {
	// protocol byte says v4 (7 bytes expected) but only a v6-length body follows
	buf := make([]byte, 19)
	buf[0] = 4
	_, err := DecodeUDPAddress(buf)
	require.Error(t, err)
}

func TestDecodeUDPAddressRejectsUnknownProtocolByte(t *testing.T) {
	buf := []byte{1, 0, 0, 1, 2, 3, 4}
	_, err := DecodeUDPAddress(buf)
	require.Error(t, err)
}

func TestUDPProtocolBytesMatchWireFormat(t *testing.T) {
	// spec.md section 6: 1 byte protocol, 4=UDPv4, 6=UDPv6.
	require.EqualValues(t, 4, udpProtoV4)
	require.EqualValues(t, 6, udpProtoV6)
}
