// Package sequencer stamps outbound batches with per-destination sequence
// numbers and restores per-source order on the inbound side.
package sequencer

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/1ureka/netshim/internal/protocol"
	"github.com/1ureka/netshim/internal/sockaddr"
	"github.com/1ureka/netshim/internal/util"
)

// Defaults for the inbound gap policy.
const (
	DefaultGapTimeout = 50 * time.Millisecond
	DefaultMaxPending = 64
)

// ErrSequenceGapTimeout is logged when a gap is given up on. It never leaves
// this package as a return value.
var ErrSequenceGapTimeout = errors.New("sequencer: sequence gap timed out")

// Options tunes the inbound gap policy. Zero values take the defaults.
type Options struct {
	GapTimeout time.Duration
	MaxPending int
}

// Datagram is one logical engine datagram released in order.
type Datagram struct {
	Source  sockaddr.Addr
	SeqNum  uint32
	Payload []byte
}

// Sequencer holds the send counters and the reassembly buffers of every peer.
// All methods are safe for concurrent use; the lock is never held across I/O.
type Sequencer struct {
	opts Options

	mu   sync.Mutex
	send map[string]*atomic.Uint32
	recv map[string]*Reassembler
}

// New creates an empty Sequencer.
func New(opts Options) *Sequencer {
	if opts.GapTimeout <= 0 {
		opts.GapTimeout = DefaultGapTimeout
	}
	if opts.MaxPending <= 0 {
		opts.MaxPending = DefaultMaxPending
	}
	return &Sequencer{
		opts: opts,
		send: make(map[string]*atomic.Uint32),
		recv: make(map[string]*Reassembler),
	}
}

// Next stamps the next outbound sequence number for dst. Numbers start at 1
// and concurrent callers never get the same one.
func (s *Sequencer) Next(dst sockaddr.Addr) uint32 {
	s.mu.Lock()
	counter, ok := s.send[dst.Key()]
	if !ok {
		counter = new(atomic.Uint32)
		s.send[dst.Key()] = counter
	}
	s.mu.Unlock()

	return counter.Add(1)
}

// Tracking reports whether any send or reassembly state exists for addr.
func (s *Sequencer) Tracking(addr sockaddr.Addr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, sending := s.send[addr.Key()]
	_, receiving := s.recv[addr.Key()]
	return sending || receiving
}

// Accept feeds an inbound frame from src and returns the datagrams that are
// now deliverable, in order.
func (s *Sequencer) Accept(src sockaddr.Addr, f *protocol.Frame, now time.Time) ([]Datagram, Verdict) {
	s.mu.Lock()
	r, ok := s.recv[src.Key()]
	if !ok {
		r = NewReassembler(s.opts.GapTimeout, s.opts.MaxPending)
		s.recv[src.Key()] = r
	}
	frames, skipped, v := r.Feed(f, now)
	last := r.Last()
	s.mu.Unlock()

	switch v {
	case Duplicate:
		util.Stats.AddDuplicate()
		util.LogDebug("[%s] stale frame seq %d (delivered up to %d), dropping", src, f.SeqNum, last)
	case Buffered:
		util.LogTrace("[%s] frame seq %d buffered (delivered up to %d)", src, f.SeqNum, last)
	}
	s.noteSkipped(src, skipped)

	return flatten(src, frames), v
}

// Expire applies the gap policy to every source at time now.
func (s *Sequencer) Expire(now time.Time) []Datagram {
	type released struct {
		src     sockaddr.Addr
		frames  []*protocol.Frame
		skipped uint32
	}
	var batch []released

	s.mu.Lock()
	for key, r := range s.recv {
		frames, skipped := r.Expire(now)
		if len(frames) > 0 || skipped > 0 {
			batch = append(batch, released{sockaddr.FromBytes([]byte(key)), frames, skipped})
		}
	}
	s.mu.Unlock()

	var out []Datagram
	for _, b := range batch {
		s.noteSkipped(b.src, b.skipped)
		out = append(out, flatten(b.src, b.frames)...)
	}
	return out
}

// NextDeadline returns the earliest moment Expire will release a stalled
// frame, if any source has a gap.
func (s *Sequencer) NextDeadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		earliest time.Time
		found    bool
	)
	for _, r := range s.recv {
		if d, ok := r.Deadline(); ok && (!found || d.Before(earliest)) {
			earliest, found = d, true
		}
	}
	return earliest, found
}

// Forget discards all state of addr in both directions.
func (s *Sequencer) Forget(addr sockaddr.Addr) {
	s.mu.Lock()
	delete(s.send, addr.Key())
	delete(s.recv, addr.Key())
	s.mu.Unlock()
}

// Reset discards the state of every peer.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	s.send = make(map[string]*atomic.Uint32)
	s.recv = make(map[string]*Reassembler)
	s.mu.Unlock()
}

func (s *Sequencer) noteSkipped(src sockaddr.Addr, skipped uint32) {
	if skipped == 0 {
		return
	}
	util.Stats.AddSkipped(skipped)
	util.LogDebug("[%s] %v, skipped %d sequence numbers", src, ErrSequenceGapTimeout, skipped)
}

func flatten(src sockaddr.Addr, frames []*protocol.Frame) []Datagram {
	if len(frames) == 0 {
		return nil
	}
	var out []Datagram
	for _, f := range frames {
		for _, p := range f.Packets {
			out = append(out, Datagram{Source: src, SeqNum: f.SeqNum, Payload: p})
		}
	}
	return out
}
