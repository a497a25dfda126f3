package rtc

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/1ureka/netshim/internal/sockaddr"
	"github.com/1ureka/netshim/internal/transport"
)

func newTestAPI(t *testing.T) *API {
	t.Helper()
	api, err := NewAPI(Options{STUNServers: []string{}})
	require.NoError(t, err)
	t.Cleanup(func() { api.Close() })
	return api
}

func TestVirtualAddr(t *testing.T) {
	a := VirtualAddr("192.168.1.20:51234", 27015)
	require.Equal(t, a, VirtualAddr("192.168.1.20:51234", 27015), "derivation is stable")
	require.NotEqual(t, a, VirtualAddr("192.168.1.20:51235", 27015))

	for _, key := range []string{"", "a", "b", "peer-1", "peer-2", "[::1]:9"} {
		ap := VirtualAddr(key, 27015)
		ip := ap.Addr().As4()
		require.Equal(t, byte(10), ip[0])
		require.NotContains(t, []byte{0, 255}, ip[3])
		require.Equal(t, uint16(27015), ap.Port())
	}
}

func TestHubBindsAndReleasesPeers(t *testing.T) {
	api := newTestAPI(t)
	hub := NewHub(context.Background(), netip.MustParseAddrPort("10.0.0.1:27015"))
	defer hub.Close()

	var left []sockaddr.Addr
	gone := make(chan struct{}, 1)
	hub.OnPeerGone(func(a sockaddr.Addr) {
		left = append(left, a)
		gone <- struct{}{}
	})

	p, err := NewPeer(context.Background(), api)
	require.NoError(t, err)

	addr, err := hub.Add(p, "client-1")
	require.NoError(t, err)
	require.Equal(t, sockaddr.FromAddrPort(VirtualAddr("client-1", 27015)), addr)
	require.Equal(t, 1, hub.Peers())

	require.ErrorIs(t, hub.AddAt(p, addr), ErrAddrInUse)
	require.ErrorIs(t, hub.AddAt(p, hub.LocalAddr()), ErrAddrInUse)

	// Not connected yet: writes are worth retrying.
	err = hub.WriteFrame(context.Background(), []byte{1}, addr)
	require.True(t, transport.IsTemporary(err))

	require.NoError(t, p.Close())
	select {
	case <-gone:
	case <-time.After(2 * time.Second):
		t.Fatal("peer not released")
	}
	require.Equal(t, []sockaddr.Addr{addr}, left)
	require.Zero(t, hub.Peers())

	err = hub.WriteFrame(context.Background(), []byte{1}, addr)
	require.ErrorIs(t, err, transport.ErrUnknownPeer)
}

func TestHubClose(t *testing.T) {
	api := newTestAPI(t)
	hub := NewHub(context.Background(), netip.MustParseAddrPort("10.0.0.1:27015"))

	p, err := NewPeer(context.Background(), api)
	require.NoError(t, err)
	_, err = hub.Add(p, "client-1")
	require.NoError(t, err)

	require.NoError(t, hub.Close())
	require.NoError(t, hub.Close())

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("peer not closed with hub")
	}

	_, err = hub.Add(p, "client-2")
	require.ErrorIs(t, err, transport.ErrClosed)
	require.ErrorIs(t, hub.WriteFrame(context.Background(), nil, hub.LocalAddr()), transport.ErrClosed)
}

func TestLoggerFactoryScopes(t *testing.T) {
	l := loggerFactory{}.NewLogger("ice")
	require.Equal(t, "pion/ice: hello", l.(*scopedLogger).line("hello"))
	l.Debugf("candidate %d", 1)
	l.Infof("state %s", "checking")
}
