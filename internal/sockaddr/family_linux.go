package sockaddr

import "golang.org/x/sys/unix"

const (
	afInet  = unix.AF_INET
	afInet6 = unix.AF_INET6

	sizeofSockaddrInet4 = unix.SizeofSockaddrInet4
	sizeofSockaddrInet6 = unix.SizeofSockaddrInet6
)
