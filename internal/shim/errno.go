package shim

import (
	"errors"
	"syscall"

	"github.com/1ureka/netshim/internal/protocol"
	"github.com/1ureka/netshim/internal/transport"
)

// Errno maps an error from Send or Recvfrom to the errno a native socket call
// would have set. A nil error and ErrTruncated map to 0.
func Errno(err error) syscall.Errno {
	switch {
	case err == nil, errors.Is(err, ErrTruncated):
		return 0
	case errors.Is(err, ErrWouldBlock):
		return syscall.EAGAIN
	case errors.Is(err, ErrClosed):
		return syscall.EBADF
	case errors.Is(err, protocol.ErrTooManyPackets),
		errors.Is(err, protocol.ErrPacketTooLarge),
		errors.Is(err, transport.ErrFrameTooLarge):
		return syscall.EMSGSIZE
	case errors.Is(err, protocol.ErrEmptyBatch),
		errors.Is(err, protocol.ErrSizeMismatch),
		errors.Is(err, ErrInvalidAddr):
		return syscall.EINVAL
	case errors.Is(err, transport.ErrPeerClosed):
		return syscall.ECONNREFUSED
	}
	return syscall.EIO
}
