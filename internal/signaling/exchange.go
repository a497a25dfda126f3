package signaling

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/netshim/internal/transport/rtc"
	"github.com/1ureka/netshim/internal/util"
)

// HandshakeTimeout bounds one SDP/ICE exchange.
const HandshakeTimeout = 30 * time.Second

// exchange performs the SDP/ICE exchange over conn until the peer's
// DataChannel opens. The offering side (host) sends the offer first; the other
// side answers it from the receive loop. The caller closes conn afterwards,
// which also ends the receive loop.
func exchange(ctx context.Context, conn *websocket.Conn, peer *rtc.Peer, offer bool) error {
	ctx, cancel := context.WithTimeout(ctx, HandshakeTimeout)
	defer cancel()

	s := &sender{peer: peer, conn: conn}
	r := &receiver{peer: peer, conn: conn, sender: s}

	// Trickle ICE candidates; best-effort.
	peer.OnICECandidate(func(c *webrtc.ICECandidate) {
		if err := s.sendCandidate(c); err != nil {
			select {
			case <-peer.Ready():
			default:
				util.LogDebug("failed to send ICE candidate: %v", err)
			}
		}
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.watch()
	}()

	if offer {
		if err := s.sendOffer(); err != nil {
			return fmt.Errorf("send offer: %w", err)
		}
	}

	select {
	case <-peer.Ready():
		return nil

	case err := <-errCh:
		// The WS may drop right after the channel opened.
		select {
		case <-peer.Ready():
			return nil
		default:
			return fmt.Errorf("signaling failed: %w", err)
		}

	case <-peer.Done():
		return rtc.ErrPeerClosed

	case <-ctx.Done():
		return ctx.Err()
	}
}
