package sockaddr

import (
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddrPortRoundTrip(t *testing.T) {
	for _, s := range []string{"10.0.0.7:27015", "127.0.0.1:0", "[2001:db8::1]:443", "[::1]:27005"} {
		t.Run(s, func(t *testing.T) {
			ap := netip.MustParseAddrPort(s)
			a := FromAddrPort(ap)

			got, err := a.AddrPort()
			require.NoError(t, err)
			require.Equal(t, ap, got)
			require.Equal(t, ap.String(), a.String())
		})
	}
}

func TestLinuxLayout(t *testing.T) {
	a := FromAddrPort(netip.MustParseAddrPort("1.2.3.4:258"))
	b := a.Bytes()

	require.Len(t, b, 16)
	require.Equal(t, []byte{0x01, 0x02}, b[2:4])
	require.Equal(t, []byte{1, 2, 3, 4}, b[4:8])

	require.Len(t, FromAddrPort(netip.MustParseAddrPort("[::1]:1")).Bytes(), 28)
}

func TestOpaqueAddrIsComparable(t *testing.T) {
	raw := []byte{0xde, 0xad, 0xbe, 0xef}
	a := FromBytes(raw)
	raw[0] = 0

	require.Equal(t, FromBytes([]byte{0xde, 0xad, 0xbe, 0xef}), a)
	require.Equal(t, 4, a.Len())
	require.Equal(t, "raw:deadbeef", a.String())

	_, err := a.AddrPort()
	require.ErrorIs(t, err, ErrUnsupportedFamily)
}

func TestZeroAddr(t *testing.T) {
	var a Addr
	require.True(t, a.IsZero())
	require.Equal(t, "<nil>", a.String())
	require.True(t, FromUDPAddr(nil).IsZero())

	_, err := a.UDPAddr()
	require.ErrorIs(t, err, ErrShortAddr)
}

func TestFromUDPAddr(t *testing.T) {
	u := &net.UDPAddr{IP: net.IPv4(192, 168, 1, 20), Port: 27015}
	a := FromUDPAddr(u)

	back, err := a.UDPAddr()
	require.NoError(t, err)
	require.Equal(t, "192.168.1.20:27015", back.String())
}

func TestParse(t *testing.T) {
	a, err := Parse("10.0.0.2:27015")
	require.NoError(t, err)
	require.Equal(t, "10.0.0.2:27015", a.String())

	_, err = Parse("10.0.0.2")
	require.Error(t, err)
}
