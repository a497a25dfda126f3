package sequencer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/1ureka/netshim/internal/protocol"
)

func frame(seq uint32) *protocol.Frame {
	return &protocol.Frame{SeqNum: seq, Packets: [][]byte{{byte(seq)}}}
}

func seqs(frames []*protocol.Frame) []uint32 {
	out := make([]uint32, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.SeqNum)
	}
	return out
}

func TestReassemblerInOrder(t *testing.T) {
	r := NewReassembler(time.Second, 8)
	now := time.Now()

	for seq := uint32(1); seq <= 5; seq++ {
		ready, skipped, v := r.Feed(frame(seq), now)
		require.Equal(t, Delivered, v)
		require.Zero(t, skipped)
		require.Equal(t, []uint32{seq}, seqs(ready))
	}
	require.Equal(t, uint32(5), r.Last())
}

func TestReassemblerReordersWithinWindow(t *testing.T) {
	r := NewReassembler(time.Second, 8)
	now := time.Now()

	for seq := uint32(1); seq <= 4; seq++ {
		r.Feed(frame(seq), now)
	}

	// 6 arrives before 5, then 7.
	ready, _, v := r.Feed(frame(6), now)
	require.Equal(t, Buffered, v)
	require.Empty(t, ready)

	ready, _, v = r.Feed(frame(5), now)
	require.Equal(t, Delivered, v)
	require.Equal(t, []uint32{5, 6}, seqs(ready))

	ready, _, v = r.Feed(frame(7), now)
	require.Equal(t, Delivered, v)
	require.Equal(t, []uint32{7}, seqs(ready))
	require.Zero(t, r.Pending())
}

func TestReassemblerDropsStaleAndDuplicates(t *testing.T) {
	r := NewReassembler(time.Second, 8)
	now := time.Now()

	r.Feed(frame(1), now)
	r.Feed(frame(2), now)

	_, _, v := r.Feed(frame(2), now)
	require.Equal(t, Duplicate, v)
	_, _, v = r.Feed(frame(1), now)
	require.Equal(t, Duplicate, v)

	_, _, v = r.Feed(frame(9), now)
	require.Equal(t, Buffered, v)
	_, _, v = r.Feed(frame(9), now)
	require.Equal(t, Duplicate, v)
	require.Equal(t, 1, r.Pending())
}

func TestReassemblerSkipsForwardAfterTimeout(t *testing.T) {
	r := NewReassembler(50*time.Millisecond, 8)
	start := time.Now()

	r.Feed(frame(1), start)
	r.Feed(frame(4), start)
	r.Feed(frame(5), start.Add(10*time.Millisecond))

	deadline, ok := r.Deadline()
	require.True(t, ok)
	require.Equal(t, start.Add(50*time.Millisecond), deadline)

	ready, skipped := r.Expire(start.Add(49 * time.Millisecond))
	require.Empty(t, ready)
	require.Zero(t, skipped)

	ready, skipped = r.Expire(start.Add(50 * time.Millisecond))
	require.Equal(t, []uint32{4, 5}, seqs(ready))
	require.Equal(t, uint32(2), skipped)
	require.Equal(t, uint32(5), r.Last())

	// The lost numbers are stale now.
	_, _, v := r.Feed(frame(3), start.Add(time.Second))
	require.Equal(t, Duplicate, v)

	_, ok = r.Deadline()
	require.False(t, ok)
}

func TestReassemblerBoundedBuffer(t *testing.T) {
	r := NewReassembler(time.Hour, 4)
	now := time.Now()

	// 1 never arrives; 2..5 fill the buffer.
	for seq := uint32(2); seq <= 5; seq++ {
		ready, _, v := r.Feed(frame(seq), now)
		require.Equal(t, Buffered, v)
		require.Empty(t, ready)
	}
	require.Equal(t, 4, r.Pending())

	// The fifth buffered frame overflows the bound and forces a skip.
	ready, skipped, v := r.Feed(frame(7), now)
	require.Equal(t, Buffered, v)
	require.Equal(t, uint32(1), skipped)
	require.Equal(t, []uint32{2, 3, 4, 5}, seqs(ready))
	require.Equal(t, 1, r.Pending())
	require.Equal(t, uint32(5), r.Last())
}
