package registry

import (
	"net/netip"
	"sync"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/1ureka/netshim/internal/sockaddr"
)

var peer = sockaddr.FromAddrPort(netip.MustParseAddrPort("10.0.0.2:27015"))

func recvOne(fd int, buf []byte, flags int) (int, sockaddr.Addr, syscall.Errno) {
	return copy(buf, "x"), peer, 0
}

func sendNone(fd int, packets [][]byte, sizes []int, seq int, to sockaddr.Addr) (int, syscall.Errno) {
	return -1, syscall.EIO
}

func TestRegisterAndDispatch(t *testing.T) {
	r := &Registry{}
	require.Nil(t, r.RecvFrom())
	require.Nil(t, r.SendTo())

	require.NoError(t, r.RegisterRecvFromCallback(recvOne))
	require.NoError(t, r.RegisterSendToCallback(sendNone))

	buf := make([]byte, 4)
	n, src, errno := r.RecvFrom()(0, buf, 0)
	require.Equal(t, 1, n)
	require.Equal(t, peer, src)
	require.Zero(t, errno)

	n, errno = r.SendTo()(0, nil, nil, 0, peer)
	require.Equal(t, -1, n)
	require.Equal(t, syscall.EIO, errno)
}

func TestRegisterNilUnregisters(t *testing.T) {
	r := &Registry{}
	require.NoError(t, r.RegisterRecvFromCallback(recvOne))
	require.NoError(t, r.RegisterSendToCallback(sendNone))

	require.NoError(t, r.RegisterRecvFromCallback(nil))
	require.NoError(t, r.RegisterSendToCallback(nil))
	require.Nil(t, r.RecvFrom())
	require.Nil(t, r.SendTo())
}

func TestSealRejectsRegistration(t *testing.T) {
	r := &Registry{}
	require.NoError(t, r.RegisterRecvFromCallback(recvOne))
	r.Seal()
	require.True(t, r.Sealed())

	require.ErrorIs(t, r.RegisterRecvFromCallback(nil), ErrSealed)
	require.ErrorIs(t, r.RegisterSendToCallback(sendNone), ErrSealed)
	require.NotNil(t, r.RecvFrom(), "sealed callbacks stay active")
	require.Nil(t, r.SendTo())

	r.Reset()
	require.False(t, r.Sealed())
	require.Nil(t, r.RecvFrom())
	require.NoError(t, r.RegisterSendToCallback(sendNone))
}

func TestReadFromOtherThreads(t *testing.T) {
	r := &Registry{}
	require.NoError(t, r.RegisterRecvFromCallback(recvOne))
	r.Seal()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := make([]byte, 1)
			for i := 0; i < 1000; i++ {
				n, _, _ := r.RecvFrom()(0, buf, 0)
				if n != 1 {
					t.Error("unexpected length")
					return
				}
			}
		}()
	}
	wg.Wait()
}
