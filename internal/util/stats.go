package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide traffic counter for the interception layer.
var Stats = &stats{}

type stats struct {
	FramesSent  atomic.Int64 // batches handed to the transport
	FramesRecv  atomic.Int64 // raw frames taken from the transport
	BytesSent   atomic.Int64 // encoded frame bytes written
	BytesRecv   atomic.Int64 // encoded frame bytes received
	Datagrams   atomic.Int64 // logical datagrams returned to the engine
	Malformed   atomic.Int64 // frames dropped by the codec
	Duplicates  atomic.Int64 // frames discarded as stale or repeated
	SkippedSeqs atomic.Int64 // sequence numbers given up on after a gap
	Overflows   atomic.Int64 // frames or datagrams dropped because a queue was full
	Retries     atomic.Int64 // transmit attempts after a transient failure
	SendErrors  atomic.Int64 // batches that failed for good
}

func (s *stats) AddSent(n int) {
	s.FramesSent.Add(1)
	s.BytesSent.Add(int64(n))
}

func (s *stats) AddRecv(n int) {
	s.FramesRecv.Add(1)
	s.BytesRecv.Add(int64(n))
}

func (s *stats) AddDatagram()        { s.Datagrams.Add(1) }
func (s *stats) AddMalformed()       { s.Malformed.Add(1) }
func (s *stats) AddDuplicate()       { s.Duplicates.Add(1) }
func (s *stats) AddSkipped(n uint32) { s.SkippedSeqs.Add(int64(n)) }
func (s *stats) AddOverflow()        { s.Overflows.Add(1) }
func (s *stats) AddRetry()           { s.Retries.Add(1) }
func (s *stats) AddSendError()       { s.SendErrors.Add(1) }

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	FramesSent, FramesRecv, BytesSent, BytesRecv int64
	Datagrams, Malformed, Duplicates, SkippedSeqs int64
	Overflows, Retries, SendErrors               int64
}

// Snapshot reads every counter.
func (s *stats) Snapshot() Snapshot {
	return Snapshot{
		FramesSent:  s.FramesSent.Load(),
		FramesRecv:  s.FramesRecv.Load(),
		BytesSent:   s.BytesSent.Load(),
		BytesRecv:   s.BytesRecv.Load(),
		Datagrams:   s.Datagrams.Load(),
		Malformed:   s.Malformed.Load(),
		Duplicates:  s.Duplicates.Load(),
		SkippedSeqs: s.SkippedSeqs.Load(),
		Overflows:   s.Overflows.Load(),
		Retries:     s.Retries.Load(),
		SendErrors:  s.SendErrors.Load(),
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs traffic statistics every
// interval. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		prev := Stats.Snapshot()
		for {
			select {
			case <-ticker.C:
				cur := Stats.Snapshot()
				secs := interval.Seconds()

				outS := float64(cur.BytesSent-prev.BytesSent) / secs
				inS := float64(cur.BytesRecv-prev.BytesRecv) / secs
				lost := cur.SkippedSeqs - prev.SkippedSeqs
				bad := cur.Malformed - prev.Malformed + cur.SendErrors - prev.SendErrors

				if cur.FramesSent != prev.FramesSent || cur.FramesRecv != prev.FramesRecv || lost > 0 || bad > 0 {
					pterm.DefaultLogger.Info(formatStats(inS, outS, lost, bad))
				}
				prev = cur

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(inS, outS float64, lost, bad int64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | Lost seq: %d | Errors: %d",
		formatBytes(inS),
		formatBytes(outS),
		lost,
		bad,
	)
}
