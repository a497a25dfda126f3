//go:build xash && cgo

package engine

/*
#include <errno.h>
#include <stddef.h>
#include <sys/types.h>
#include <sys/socket.h>

void netshim_set_errno(int err);
*/
import "C"

import (
	"unsafe"

	"github.com/1ureka/netshim/internal/registry"
)

//export Recvfrom
func Recvfrom(sockfd C.int, buf unsafe.Pointer, length C.int, flags C.int, srcAddr *C.struct_sockaddr, addrlen *C.socklen_t) C.int {
	var goBuf []byte
	if buf != nil && length > 0 {
		goBuf = unsafe.Slice((*byte)(buf), int(length))
	}

	var addr []byte
	if srcAddr != nil && addrlen != nil && *addrlen > 0 {
		addr = unsafe.Slice((*byte)(unsafe.Pointer(srcAddr)), int(*addrlen))
	}

	n, alen, errno := dispatchRecv(registry.Default, int(sockfd), goBuf, int(flags), addr)
	if n < 0 {
		C.netshim_set_errno(C.int(errno))
		return -1
	}
	if addrlen != nil {
		*addrlen = C.socklen_t(alen)
	}
	return C.int(n)
}

//export Sendto
func Sendto(sockfd C.int, packets **C.char, sizes *C.size_t, packetCount C.int, seqNum C.int, to *C.struct_sockaddr_storage, toLen C.size_t) C.int {
	count := int(packetCount)
	if count < 0 || (count > 0 && (packets == nil || sizes == nil)) {
		C.netshim_set_errno(C.EINVAL)
		return -1
	}

	var (
		goPackets = make([][]byte, count)
		goSizes   = make([]int, count)
	)
	if count > 0 {
		ptrs := unsafe.Slice(packets, count)
		szs := unsafe.Slice(sizes, count)
		for i := 0; i < count; i++ {
			goSizes[i] = int(szs[i])
			if ptrs[i] != nil && szs[i] > 0 {
				goPackets[i] = unsafe.Slice((*byte)(unsafe.Pointer(ptrs[i])), int(szs[i]))
			} else {
				goPackets[i] = []byte{}
			}
		}
	}

	var dst []byte
	if to != nil && toLen > 0 {
		dst = unsafe.Slice((*byte)(unsafe.Pointer(to)), int(toLen))
	}

	n, errno := dispatchSend(registry.Default, int(sockfd), goPackets, goSizes, int(seqNum), dst)
	if n < 0 {
		C.netshim_set_errno(C.int(errno))
		return -1
	}
	return C.int(n)
}
