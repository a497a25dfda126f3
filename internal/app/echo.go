package app

import (
	"context"
	"errors"

	"github.com/1ureka/netshim/internal/shim"
	"github.com/1ureka/netshim/internal/util"
)

// Echo sends every received datagram back to its source as a one-packet
// batch until ctx is done. It needs a blocking shim with a receive timeout so
// that cancellation is noticed.
func (r *Runtime) Echo(ctx context.Context) error {
	if err := r.Register(); err != nil {
		return err
	}
	util.StartStatsReporter(ctx, r.cfg.StatsInterval)
	util.LogSuccess("echoing on %s", r.LocalAddr())

	buf := make([]byte, 65535)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		n, src, err := r.shim.Recvfrom(0, buf, 0)
		switch {
		case errors.Is(err, shim.ErrWouldBlock):
			continue
		case errors.Is(err, shim.ErrClosed):
			return nil
		case err != nil && !errors.Is(err, shim.ErrTruncated):
			return err
		}

		if _, err := r.shim.Send(ctx, [][]byte{buf[:n]}, []int{n}, src); err != nil {
			util.LogWarning("[%s] echo failed: %v", src, err)
		}
	}
}
