package sequencer

import (
	"container/heap"
	"time"

	"github.com/1ureka/netshim/internal/protocol"
)

// Verdict tells what Feed did with a frame.
type Verdict int

const (
	Delivered Verdict = iota // released in order, possibly with buffered successors
	Buffered                 // held until the gap before it fills or times out
	Duplicate                // at or below the delivery point, or already buffered
)

func (v Verdict) String() string {
	switch v {
	case Delivered:
		return "delivered"
	case Buffered:
		return "buffered"
	case Duplicate:
		return "duplicate"
	}
	return "unknown"
}

// Reassembler reorders out-of-order frames from a single source.
// It is not safe for concurrent use; Sequencer serializes access.
//
// Gap policy: a missing sequence number is waited on for gapTimeout, counted
// from the arrival of the oldest buffered frame, or until more than maxPending
// frames are buffered. Then the gap is declared lost and delivery skips forward
// to the lowest buffered frame.
type Reassembler struct {
	last       uint32 // highest sequence number already delivered
	buffer     frameHeap
	gapTimeout time.Duration
	maxPending int
}

// NewReassembler creates a reassembler expecting sequence numbers starting at 1.
func NewReassembler(gapTimeout time.Duration, maxPending int) *Reassembler {
	return &Reassembler{gapTimeout: gapTimeout, maxPending: maxPending}
}

// Last returns the highest delivered sequence number.
func (r *Reassembler) Last() uint32 { return r.last }

// Pending returns the number of buffered frames.
func (r *Reassembler) Pending() int { return r.buffer.Len() }

// Feed processes an incoming frame and returns every frame that can now be
// delivered in sequence order, plus how many sequence numbers were skipped
// over as lost while doing so.
func (r *Reassembler) Feed(f *protocol.Frame, now time.Time) (ready []*protocol.Frame, skipped uint32, v Verdict) {
	if f.SeqNum <= r.last {
		return nil, 0, Duplicate
	}

	if f.SeqNum > r.last+1 {
		if r.buffer.contains(f.SeqNum) {
			return nil, 0, Duplicate
		}
		heap.Push(&r.buffer, pending{frame: f, arrived: now})
		ready, skipped = r.Expire(now)
		return ready, skipped, Buffered
	}

	// f.SeqNum == r.last+1: deliver it and drain any consecutive buffered frames.
	ready = []*protocol.Frame{f}
	r.last = f.SeqNum
	ready = r.drain(ready)
	return ready, 0, Delivered
}

// Expire applies the gap policy at time now without a new frame.
func (r *Reassembler) Expire(now time.Time) (ready []*protocol.Frame, skipped uint32) {
	for r.buffer.Len() > 0 {
		overflow := r.buffer.Len() > r.maxPending
		timedOut := now.Sub(r.buffer.oldestArrival()) >= r.gapTimeout
		if !overflow && !timedOut {
			break
		}

		lowest := r.buffer[0].frame.SeqNum
		skipped += lowest - r.last - 1
		r.last = lowest - 1
		ready = r.drain(ready)
	}
	return ready, skipped
}

// Deadline returns when Expire will next release something, if anything is buffered.
func (r *Reassembler) Deadline() (time.Time, bool) {
	if r.buffer.Len() == 0 {
		return time.Time{}, false
	}
	return r.buffer.oldestArrival().Add(r.gapTimeout), true
}

func (r *Reassembler) drain(ready []*protocol.Frame) []*protocol.Frame {
	for r.buffer.Len() > 0 && r.buffer[0].frame.SeqNum == r.last+1 {
		p := heap.Pop(&r.buffer).(pending)
		ready = append(ready, p.frame)
		r.last++
	}
	return ready
}

// ---------------------------------------------------------------------------
// frameHeap implements a min-heap sorted by SeqNum.
// ---------------------------------------------------------------------------

type pending struct {
	frame   *protocol.Frame
	arrived time.Time
}

type frameHeap []pending

func (h frameHeap) Len() int            { return len(h) }
func (h frameHeap) Less(i, j int) bool  { return h[i].frame.SeqNum < h[j].frame.SeqNum }
func (h frameHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *frameHeap) Push(x interface{}) { *h = append(*h, x.(pending)) }

func (h *frameHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = pending{} // avoid memory leak
	*h = old[:n-1]
	return item
}

func (h frameHeap) contains(seq uint32) bool {
	for _, p := range h {
		if p.frame.SeqNum == seq {
			return true
		}
	}
	return false
}

func (h frameHeap) oldestArrival() time.Time {
	oldest := h[0].arrived
	for _, p := range h[1:] {
		if p.arrived.Before(oldest) {
			oldest = p.arrived
		}
	}
	return oldest
}
