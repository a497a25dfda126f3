package rtc

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/netshim/internal/util"
)

const (
	highWaterMark  = 256 * 1024 // pause sending when bufferedAmount exceeds this
	lowWaterMark   = 64 * 1024  // resume sending when bufferedAmount drops below this
	sendBufferSize = 64         // outgoing frame channel capacity
)

// sender is a goroutine-based frame writer that serializes all writes to a
// single DataChannel, adding open-gate and backpressure control.
type sender struct {
	inbox       chan []byte
	drainSignal chan struct{}
}

// newSender creates a sender, wires the backpressure callbacks on dc, and
// starts the background loop. The loop exits when ctx is cancelled; a failed
// write calls fail so the owning peer shuts down.
func newSender(ctx context.Context, fail context.CancelFunc, dc *webrtc.DataChannel, openSignal <-chan struct{}) *sender {
	s := &sender{
		inbox:       make(chan []byte, sendBufferSize),
		drainSignal: make(chan struct{}, 1),
	}

	dc.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	dc.OnBufferedAmountLow(func() {
		select {
		case s.drainSignal <- struct{}{}:
		default:
		}
	})

	go func() {
		s.loop(ctx, dc, openSignal)
		fail()
	}()

	return s
}

// loop is the single-writer goroutine. It waits for the DataChannel to open,
// then drains the inbox with backpressure awareness.
func (s *sender) loop(ctx context.Context, dc *webrtc.DataChannel, openSignal <-chan struct{}) {
	// Phase 1: wait for DC to be open.
	select {
	case <-openSignal:
	case <-ctx.Done():
		return
	}

	// Phase 2: send frames with backpressure.
	for {
		select {
		case frame := <-s.inbox:
			if dc.BufferedAmount() > uint64(highWaterMark) {
				select {
				case <-s.drainSignal:
				case <-ctx.Done():
					return
				}
			}

			if err := dc.Send(frame); err != nil {
				util.Stats.AddSendError()
				util.LogError("failed to send %d byte frame on DataChannel %q: %v", len(frame), dc.Label(), err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// send enqueues a frame. It blocks if the internal buffer is full and fails
// when either the caller's ctx or the peer's ctx is done.
func (s *sender) send(ctx, peerCtx context.Context, frame []byte) error {
	select {
	case <-peerCtx.Done():
		return ErrPeerClosed
	default:
	}

	select {
	case s.inbox <- frame:
		return nil
	case <-peerCtx.Done():
		return ErrPeerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
