package app

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/1ureka/netshim/internal/shim"
	"github.com/1ureka/netshim/internal/sockaddr"
)

// probeHeader is the batch index and the send time in unix nanoseconds.
const probeHeader = 16

// ProbeOptions shapes a probe run.
type ProbeOptions struct {
	Count    int           // batches to send
	Batch    int           // packets per batch
	Size     int           // bytes per packet, at least probeHeader
	Interval time.Duration // pause between batches
	Wait     time.Duration // how long to wait for echoes after the last send
}

// ProbeResult summarises a probe run.
type ProbeResult struct {
	Sent      int
	Received  int
	Reordered int
	MinRTT    time.Duration
	MaxRTT    time.Duration
	AvgRTT    time.Duration
}

// Lost is the number of datagrams that never came back.
func (p ProbeResult) Lost() int { return p.Sent - p.Received }

func (p ProbeResult) String() string {
	return fmt.Sprintf("sent %d, received %d, lost %d, reordered %d, rtt min/avg/max %s/%s/%s",
		p.Sent, p.Received, p.Lost(), p.Reordered,
		p.MinRTT.Round(time.Microsecond), p.AvgRTT.Round(time.Microsecond), p.MaxRTT.Round(time.Microsecond))
}

// Probe sends batches of stamped packets to dst and collects the echoes an
// echo peer sends back. The shim must be blocking with a receive timeout.
func (r *Runtime) Probe(ctx context.Context, dst sockaddr.Addr, opts ProbeOptions) (ProbeResult, error) {
	if dst.IsZero() {
		return ProbeResult{}, shim.ErrInvalidAddr
	}
	if opts.Count <= 0 || opts.Batch <= 0 {
		return ProbeResult{}, fmt.Errorf("probe needs a positive count and batch")
	}
	if opts.Size < probeHeader {
		opts.Size = probeHeader
	}

	expected := opts.Count * opts.Batch
	recvCtx, stopRecv := context.WithCancel(ctx)
	defer stopRecv()

	var (
		mu     sync.Mutex
		result ProbeResult
		total  time.Duration
		last   uint64
		wg     sync.WaitGroup
		done   = make(chan struct{})
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		buf := make([]byte, opts.Size)
		for recvCtx.Err() == nil {
			n, _, err := r.shim.Recvfrom(0, buf, 0)
			if errors.Is(err, shim.ErrWouldBlock) {
				continue
			}
			if err != nil && !errors.Is(err, shim.ErrTruncated) {
				return
			}
			if n < probeHeader {
				continue
			}

			idx := binary.BigEndian.Uint64(buf[0:8])
			rtt := time.Since(time.Unix(0, int64(binary.BigEndian.Uint64(buf[8:16]))))

			mu.Lock()
			result.Received++
			if idx < last {
				result.Reordered++
			}
			last = idx
			total += rtt
			if result.MinRTT == 0 || rtt < result.MinRTT {
				result.MinRTT = rtt
			}
			if rtt > result.MaxRTT {
				result.MaxRTT = rtt
			}
			finished := result.Received >= expected
			mu.Unlock()

			if finished {
				close(done)
				return
			}
		}
	}()

	var seq uint64
	for i := 0; i < opts.Count; i++ {
		packets := make([][]byte, opts.Batch)
		sizes := make([]int, opts.Batch)
		now := uint64(time.Now().UnixNano())
		for j := range packets {
			p := make([]byte, opts.Size)
			binary.BigEndian.PutUint64(p[0:8], seq)
			binary.BigEndian.PutUint64(p[8:16], now)
			packets[j], sizes[j] = p, opts.Size
			seq++
		}

		if _, err := r.shim.Send(ctx, packets, sizes, dst); err != nil {
			stopRecv()
			wg.Wait()
			return result, fmt.Errorf("probe batch %d: %w", i, err)
		}

		mu.Lock()
		result.Sent += opts.Batch
		mu.Unlock()

		if opts.Interval > 0 && i < opts.Count-1 {
			select {
			case <-time.After(opts.Interval):
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil {
			break
		}
	}

	select {
	case <-done:
	case <-time.After(opts.Wait):
	case <-ctx.Done():
	}
	stopRecv()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if result.Received > 0 {
		result.AvgRTT = total / time.Duration(result.Received)
	}
	return result, nil
}
