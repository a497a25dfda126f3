//go:build !linux

package sockaddr

// The engine is built against the Linux socket ABI; keep the same layout
// elsewhere so frames and virtual addresses stay portable.
const (
	afInet  = 2
	afInet6 = 10

	sizeofSockaddrInet4 = 16
	sizeofSockaddrInet6 = 28
)
