// Package shim implements the two socket calls the engine makes: Sendto hands
// over a batch of datagrams for one destination, Recvfrom returns one datagram
// per call. Between them sit the sequencer, the batch codec and the delivery
// engine.
package shim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/1ureka/netshim/internal/protocol"
	"github.com/1ureka/netshim/internal/sequencer"
	"github.com/1ureka/netshim/internal/sockaddr"
	"github.com/1ureka/netshim/internal/transport"
	"github.com/1ureka/netshim/internal/util"
)

// Defaults for Options.
const (
	DefaultMaxReady    = 1024
	DefaultSendTimeout = time.Second
)

var (
	ErrWouldBlock  = errors.New("shim: no datagram ready")
	ErrTruncated   = errors.New("shim: datagram truncated")
	ErrClosed      = errors.New("shim: closed")
	ErrInvalidAddr = errors.New("shim: missing destination address")
)

// Options tunes the receive path.
type Options struct {
	// NonBlocking makes every Recvfrom behave as if MsgDontWait was passed.
	NonBlocking bool
	// RecvTimeout bounds a blocking Recvfrom. Zero waits until a datagram
	// arrives or the shim closes.
	RecvTimeout time.Duration
	// MaxReady bounds delivered datagrams not yet picked up. When full the
	// oldest is dropped.
	MaxReady int
	// SendTimeout bounds one Sendto including retries.
	SendTimeout time.Duration
}

// Shim is the engine-facing surface. Sendto and Recvfrom may be called from
// any thread, but calls in the same direction are expected to be serial, as
// the engine's network loop makes them.
type Shim struct {
	d    *transport.Delivery
	seq  *sequencer.Sequencer
	opts Options

	mu    sync.Mutex
	ready []sequencer.Datagram

	closed    chan struct{}
	closeOnce sync.Once
}

// New builds a shim over d. Peers closed by the transport have their
// sequencing state dropped.
func New(d *transport.Delivery, seq *sequencer.Sequencer, opts Options) *Shim {
	if opts.MaxReady <= 0 {
		opts.MaxReady = DefaultMaxReady
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}

	s := &Shim{
		d:      d,
		seq:    seq,
		opts:   opts,
		closed: make(chan struct{}),
	}
	d.OnPeerClosed(s.forget)
	return s
}

// forget drops every trace of a closed peer: its sequencing state and the
// datagrams from it that were not picked up yet. Holding s.mu orders it
// against pump, so a frame polled before the close cannot rebuild state
// afterwards.
func (s *Shim) forget(addr sockaddr.Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq.Forget(addr)
	kept := s.ready[:0]
	for _, dg := range s.ready {
		if dg.Source != addr {
			kept = append(kept, dg)
		}
	}
	clear(s.ready[len(kept):])
	s.ready = kept
}

// ---------------------------------------------------------------------------
// Send
// ---------------------------------------------------------------------------

// Send frames packets into one batch for to and transmits it. It returns the
// sum of sizes, which is what the engine believes it sent. The destination's
// sequence counter only advances for a batch that passed validation.
func (s *Shim) Send(ctx context.Context, packets [][]byte, sizes []int, to sockaddr.Addr) (int, error) {
	if s.isClosed() {
		return 0, ErrClosed
	}
	if to.IsZero() {
		return 0, ErrInvalidAddr
	}
	if s.d.State(to) == transport.Closed {
		return 0, fmt.Errorf("%w: %s", transport.ErrPeerClosed, to)
	}

	frame, err := protocol.NewFrame(0, packets, sizes)
	if err != nil {
		return 0, err
	}
	frame.SeqNum = s.seq.Next(to)

	data, err := protocol.Encode(frame)
	if err != nil {
		return 0, err
	}

	if err := s.d.Transmit(ctx, data, to); err != nil {
		if errors.Is(err, transport.ErrPeerClosed) {
			s.forget(to)
		}
		return 0, err
	}

	util.LogTrace("[%s] sent seq %d with %d packets (%d bytes)", to, frame.SeqNum, len(packets), len(data))
	return frame.PayloadBytes(), nil
}

// Sendto is Send with native socket conventions: it returns the byte count,
// or -1 and the errno. engineSeq is the engine's own counter; ordering uses
// the per-destination sequencer instead.
func (s *Shim) Sendto(fd int, packets [][]byte, sizes []int, engineSeq int, to sockaddr.Addr) (int, syscall.Errno) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.SendTimeout)
	defer cancel()

	util.LogTrace("sendto fd=%d engine seq %d, %d packets to %s", fd, engineSeq, len(packets), to)

	n, err := s.Send(ctx, packets, sizes, to)
	if err != nil {
		util.LogDebug("sendto %s failed: %v", to, err)
		return -1, Errno(err)
	}
	return n, 0
}

// ---------------------------------------------------------------------------
// Receive
// ---------------------------------------------------------------------------

// Recvfrom copies one datagram into buf and reports its source.
//
// With flags&MsgDontWait or Options.NonBlocking set it returns ErrWouldBlock
// at once when nothing is ready. Otherwise it waits up to RecvTimeout and
// returns ErrWouldBlock on expiry. A datagram larger than buf is cut to
// len(buf) and returned together with ErrTruncated; the bytes are delivered.
func (s *Shim) Recvfrom(fd int, buf []byte, flags int) (int, sockaddr.Addr, error) {
	nonBlocking := flags&MsgDontWait != 0 || s.opts.NonBlocking

	var timeout <-chan time.Time
	if !nonBlocking && s.opts.RecvTimeout > 0 {
		t := time.NewTimer(s.opts.RecvTimeout)
		defer t.Stop()
		timeout = t.C
	}

	for {
		if s.isClosed() {
			return 0, sockaddr.Addr{}, ErrClosed
		}

		if dg, ok := s.next(time.Now()); ok {
			util.Stats.AddDatagram()
			n := copy(buf, dg.Payload)
			if n < len(dg.Payload) {
				return n, dg.Source, fmt.Errorf("%w: %d of %d bytes", ErrTruncated, n, len(dg.Payload))
			}
			return n, dg.Source, nil
		}

		if nonBlocking {
			return 0, sockaddr.Addr{}, ErrWouldBlock
		}

		if err := s.wait(timeout); err != nil {
			return 0, sockaddr.Addr{}, err
		}
	}
}

// wait blocks until new frames arrive, a stalled gap is due to be given up,
// or timeout fires.
func (s *Shim) wait(timeout <-chan time.Time) error {
	var gap <-chan time.Time
	if deadline, ok := s.seq.NextDeadline(); ok {
		t := time.NewTimer(time.Until(deadline))
		defer t.Stop()
		gap = t.C
	}

	select {
	case <-s.d.Wait():
	case <-gap:
	case <-timeout:
		return ErrWouldBlock
	case <-s.closed:
		return ErrClosed
	case <-s.d.Done():
		if s.isClosed() {
			return ErrClosed
		}
		if dg, ok := s.next(time.Now()); ok {
			s.pushFront(dg)
			return nil
		}
		return fmt.Errorf("%w: %w", transport.ErrTransportFailure, transport.ErrClosed)
	}
	return nil
}

// RecvfromNative is Recvfrom with native conventions: it returns the number
// of bytes stored in buf, or -1 and the errno. A truncated datagram counts as
// success.
func (s *Shim) RecvfromNative(fd int, buf []byte, flags int) (int, sockaddr.Addr, syscall.Errno) {
	n, src, err := s.Recvfrom(fd, buf, flags)
	if err != nil && !errors.Is(err, ErrTruncated) {
		return -1, sockaddr.Addr{}, Errno(err)
	}
	return n, src, 0
}

// Close shuts the shim and its delivery engine down. Blocked and later calls
// fail with ErrClosed.
func (s *Shim) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.d.Close()
		s.seq.Reset()

		s.mu.Lock()
		s.ready = nil
		s.mu.Unlock()
	})
	return err
}

func (s *Shim) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// next pops the oldest ready datagram, first pulling whatever the delivery
// engine has buffered through the codec and the sequencer.
func (s *Shim) next(now time.Time) (sequencer.Datagram, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.ready) == 0 {
		s.pump(now)
	}
	if len(s.ready) == 0 {
		return sequencer.Datagram{}, false
	}

	dg := s.ready[0]
	s.ready[0] = sequencer.Datagram{}
	s.ready = s.ready[1:]
	return dg, true
}

func (s *Shim) pushFront(dg sequencer.Datagram) {
	s.mu.Lock()
	s.ready = append([]sequencer.Datagram{dg}, s.ready...)
	s.mu.Unlock()
}

// pump must be called with s.mu held. None of the calls below block.
func (s *Shim) pump(now time.Time) {
	for {
		raw, ok := s.d.PollReceive()
		if !ok {
			break
		}
		if s.d.State(raw.Source) == transport.Closed {
			util.LogTrace("[%s] dropping queued frame from closed peer", raw.Source)
			continue
		}

		frame, err := protocol.Decode(raw.Data)
		if err != nil {
			util.Stats.AddMalformed()
			util.LogWarning("[%s] dropping frame: %v", raw.Source, err)
			continue
		}

		out, _ := s.seq.Accept(raw.Source, frame, now)
		s.enqueue(out)
	}

	s.enqueue(s.seq.Expire(now))
}

func (s *Shim) enqueue(dgs []sequencer.Datagram) {
	for _, dg := range dgs {
		if len(s.ready) >= s.opts.MaxReady {
			util.Stats.AddOverflow()
			util.LogWarning("[%s] ready queue full, dropping oldest datagram", s.ready[0].Source)
			s.ready[0] = sequencer.Datagram{}
			s.ready = s.ready[1:]
		}
		s.ready = append(s.ready, dg)
	}
}
