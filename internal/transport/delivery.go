package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/1ureka/netshim/internal/sockaddr"
	"github.com/1ureka/netshim/internal/util"
)

// Delivery defaults.
const (
	DefaultMaxRetries  = 3
	DefaultBackoffBase = 2 * time.Millisecond
	DefaultBackoffMax  = 50 * time.Millisecond
	DefaultInboxSize   = 256
)

// PeerState is the lifecycle of one logical connection.
type PeerState int

const (
	Uninitialized PeerState = iota
	Active
	Closed
)

func (s PeerState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Active:
		return "active"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// RawFrame is one frame as it came off the transport.
type RawFrame struct {
	Data   []byte
	Source sockaddr.Addr
}

// DeliveryOptions tunes retry and buffering. Zero values take the defaults.
type DeliveryOptions struct {
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	InboxSize   int
}

func (o *DeliveryOptions) setDefaults() {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	} else if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = DefaultBackoffBase
	}
	if o.BackoffMax < o.BackoffBase {
		o.BackoffMax = max(DefaultBackoffMax, o.BackoffBase)
	}
	if o.InboxSize <= 0 {
		o.InboxSize = DefaultInboxSize
	}
}

// Delivery performs the actual frame I/O over a Transport.
//
// Inbound frames are pushed by the transport goroutine into a bounded inbox
// and popped by the engine thread with PollReceive. When the inbox is full the
// new frame is dropped, like a full socket receive buffer would.
type Delivery struct {
	t    Transport
	opts DeliveryOptions

	inbox  chan RawFrame
	notify chan struct{}

	mu    sync.Mutex
	peers map[string]PeerState
	hooks []func(sockaddr.Addr)

	closeOnce sync.Once
}

// NewDelivery takes ownership of t.
func NewDelivery(t Transport, opts DeliveryOptions) *Delivery {
	opts.setDefaults()

	d := &Delivery{
		t:      t,
		opts:   opts,
		inbox:  make(chan RawFrame, opts.InboxSize),
		notify: make(chan struct{}, 1),
		peers:  make(map[string]PeerState),
	}

	t.OnFrame(d.deliver)
	if pn, ok := t.(PeerNotifier); ok {
		pn.OnPeerGone(d.ClosePeer)
	}

	return d
}

// Transmit sends frame to dst. Transient failures are retried up to
// MaxRetries times with exponential backoff; anything else, or running out of
// retries, yields an error wrapping ErrTransportFailure.
func (d *Delivery) Transmit(ctx context.Context, frame []byte, dst sockaddr.Addr) error {
	select {
	case <-d.t.Done():
		return fmt.Errorf("%w: %w", ErrTransportFailure, ErrClosed)
	default:
	}

	if d.State(dst) == Closed {
		return fmt.Errorf("%w: %s", ErrPeerClosed, dst)
	}

	b := newBackoff(d.opts.BackoffBase, d.opts.BackoffMax)
	for attempt := 0; ; attempt++ {
		err := d.t.WriteFrame(ctx, frame, dst)
		if err == nil {
			d.activate(dst)
			util.Stats.AddSent(len(frame))
			return nil
		}

		if !IsTemporary(err) || attempt >= d.opts.MaxRetries {
			util.Stats.AddSendError()
			return fmt.Errorf("%w: send to %s after %d attempts: %w", ErrTransportFailure, dst, attempt+1, err)
		}

		util.Stats.AddRetry()
		util.LogDebug("[%s] transient send error (attempt %d): %v", dst, attempt+1, err)

		if werr := b.Wait(ctx); werr != nil {
			util.Stats.AddSendError()
			return fmt.Errorf("%w: %w", ErrTransportFailure, werr)
		}
	}
}

// PollReceive pops one arrived frame without blocking.
func (d *Delivery) PollReceive() (RawFrame, bool) {
	select {
	case f := <-d.inbox:
		return f, true
	default:
		return RawFrame{}, false
	}
}

// Wait returns a channel that receives a value after new frames arrive.
// Several arrivals may coalesce into one notification.
func (d *Delivery) Wait() <-chan struct{} { return d.notify }

// Done is closed when the transport is gone.
func (d *Delivery) Done() <-chan struct{} { return d.t.Done() }

// State reports the lifecycle state of addr.
func (d *Delivery) State(addr sockaddr.Addr) PeerState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.peers[addr.Key()]
}

// OnPeerClosed registers fn to be called once for every peer that closes.
func (d *Delivery) OnPeerClosed(fn func(sockaddr.Addr)) {
	d.mu.Lock()
	d.hooks = append(d.hooks, fn)
	d.mu.Unlock()
}

// ClosePeer moves addr to Closed. Later frames from it are dropped and sends
// to it fail with ErrPeerClosed. There is no way back to Active.
func (d *Delivery) ClosePeer(addr sockaddr.Addr) {
	d.mu.Lock()
	if d.peers[addr.Key()] == Closed {
		d.mu.Unlock()
		return
	}
	d.peers[addr.Key()] = Closed
	hooks := append([]func(sockaddr.Addr){}, d.hooks...)
	d.mu.Unlock()

	util.LogInfo("[%s] peer closed", addr)
	for _, fn := range hooks {
		fn(addr)
	}
}

// Close shuts the transport down. Frames still in the inbox stay pollable.
func (d *Delivery) Close() error {
	var err error
	d.closeOnce.Do(func() {
		err = d.t.Close()
	})
	return err
}

// activate moves addr from Uninitialized to Active. It reports false when the
// peer is already Closed.
func (d *Delivery) activate(addr sockaddr.Addr) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.peers[addr.Key()] {
	case Closed:
		return false
	case Uninitialized:
		d.peers[addr.Key()] = Active
		util.LogDebug("[%s] peer active", addr)
	}
	return true
}

// deliver runs on the transport goroutine.
func (d *Delivery) deliver(frame []byte, src sockaddr.Addr) {
	if !d.activate(src) {
		util.LogTrace("[%s] frame from closed peer, dropping", src)
		return
	}

	util.Stats.AddRecv(len(frame))

	select {
	case d.inbox <- RawFrame{Data: frame, Source: src}:
	default:
		util.Stats.AddOverflow()
		util.LogWarning("[%s] receive inbox full, dropping %d byte frame", src, len(frame))
		return
	}

	select {
	case d.notify <- struct{}{}:
	default:
	}
}
