package engine

import (
	"net/netip"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/1ureka/netshim/internal/registry"
	"github.com/1ureka/netshim/internal/sockaddr"
)

var src = sockaddr.FromAddrPort(netip.MustParseAddrPort("10.1.2.3:27015"))

func TestDispatchUnregistered(t *testing.T) {
	r := &registry.Registry{}

	n, _, errno := dispatchRecv(r, 3, make([]byte, 8), 0, make([]byte, 16))
	require.Equal(t, -1, n)
	require.Equal(t, syscall.ENOTCONN, errno)

	n, errno = dispatchSend(r, 3, [][]byte{{1}}, []int{1}, 1, src.Bytes())
	require.Equal(t, -1, n)
	require.Equal(t, syscall.ENOTCONN, errno)
}

func TestDispatchRecvFillsAddr(t *testing.T) {
	r := &registry.Registry{}
	require.NoError(t, r.RegisterRecvFromCallback(func(fd int, buf []byte, flags int) (int, sockaddr.Addr, syscall.Errno) {
		return copy(buf, "hello"), src, 0
	}))

	buf := make([]byte, 8)
	addr := make([]byte, 128)
	n, alen, errno := dispatchRecv(r, 3, buf, 0, addr)
	require.Zero(t, errno)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(buf[:n]))
	require.Equal(t, src.Len(), alen)
	require.Equal(t, src, sockaddr.FromBytes(addr[:alen]))
}

func TestDispatchRecvShortAddrBuffer(t *testing.T) {
	r := &registry.Registry{}
	require.NoError(t, r.RegisterRecvFromCallback(func(fd int, buf []byte, flags int) (int, sockaddr.Addr, syscall.Errno) {
		return 0, src, 0
	}))

	addr := make([]byte, 4)
	n, alen, errno := dispatchRecv(r, 3, nil, 0, addr)
	require.Zero(t, errno)
	require.Zero(t, n)
	require.Equal(t, src.Len(), alen)
	require.Equal(t, src.Bytes()[:4], addr)
}

func TestDispatchRecvError(t *testing.T) {
	r := &registry.Registry{}
	require.NoError(t, r.RegisterRecvFromCallback(func(fd int, buf []byte, flags int) (int, sockaddr.Addr, syscall.Errno) {
		return -1, sockaddr.Addr{}, syscall.EAGAIN
	}))

	n, _, errno := dispatchRecv(r, 3, make([]byte, 8), 0, nil)
	require.Equal(t, -1, n)
	require.Equal(t, syscall.EAGAIN, errno)
}

func TestDispatchSendTrimsStorage(t *testing.T) {
	r := &registry.Registry{}

	var got sockaddr.Addr
	var gotSeq int
	require.NoError(t, r.RegisterSendToCallback(func(fd int, packets [][]byte, sizes []int, seq int, to sockaddr.Addr) (int, syscall.Errno) {
		got, gotSeq = to, seq
		total := 0
		for _, s := range sizes {
			total += s
		}
		return total, 0
	}))

	storage := make([]byte, 128)
	copy(storage, src.Bytes())
	storage[100] = 0xff

	n, errno := dispatchSend(r, 3, [][]byte{{1, 2}, {3}}, []int{2, 1}, 42, storage)
	require.Zero(t, errno)
	require.Equal(t, 3, n)
	require.Equal(t, 42, gotSeq)
	require.Equal(t, src, got)
}

func TestDispatchSendNoDestination(t *testing.T) {
	r := &registry.Registry{}
	require.NoError(t, r.RegisterSendToCallback(func(fd int, packets [][]byte, sizes []int, seq int, to sockaddr.Addr) (int, syscall.Errno) {
		return 0, 0
	}))

	n, errno := dispatchSend(r, 3, [][]byte{{1}}, []int{1}, 1, nil)
	require.Equal(t, -1, n)
	require.Equal(t, syscall.EDESTADDRREQ, errno)
}

func TestDispatchSendError(t *testing.T) {
	r := &registry.Registry{}
	require.NoError(t, r.RegisterSendToCallback(func(fd int, packets [][]byte, sizes []int, seq int, to sockaddr.Addr) (int, syscall.Errno) {
		return -1, syscall.EMSGSIZE
	}))

	n, errno := dispatchSend(r, 3, [][]byte{{1}}, []int{1}, 1, src.Bytes())
	require.Equal(t, -1, n)
	require.Equal(t, syscall.EMSGSIZE, errno)
}

func TestNativeWithoutEngine(t *testing.T) {
	e, err := Native()
	if err == nil {
		t.Skip("built with the native engine")
	}
	require.ErrorIs(t, err, ErrUnavailable)
	require.Nil(t, e)
}
