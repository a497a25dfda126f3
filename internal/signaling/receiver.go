package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/netshim/internal/transport/rtc"
)

// receiver applies inbound signaling messages to the peer.
type receiver struct {
	peer   *rtc.Peer
	conn   *websocket.Conn
	sender *sender
}

// watch reads messages until the WebSocket fails or a message cannot be
// applied. The client answers an offer; the host applies the answer.
func (r *receiver) watch() error {
	for {
		var msg message
		if err := r.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read signaling message: %w", err)
		}

		switch msg.Type {
		case msgTypeOffer:
			if err := r.peer.SetRemoteDescription(webrtc.SessionDescription{
				Type: webrtc.SDPTypeOffer, SDP: msg.SDP,
			}); err != nil {
				return fmt.Errorf("apply offer: %w", err)
			}
			if err := r.sender.sendAnswer(); err != nil {
				return fmt.Errorf("send answer: %w", err)
			}

		case msgTypeAnswer:
			if err := r.peer.SetRemoteDescription(webrtc.SessionDescription{
				Type: webrtc.SDPTypeAnswer, SDP: msg.SDP,
			}); err != nil {
				return fmt.Errorf("apply answer: %w", err)
			}

		case msgTypeCandidate:
			var init webrtc.ICECandidateInit
			if err := json.Unmarshal([]byte(msg.Candidate), &init); err != nil {
				return fmt.Errorf("parse ICE candidate: %w", err)
			}
			if err := r.peer.AddICECandidate(init); err != nil {
				return fmt.Errorf("add ICE candidate: %w", err)
			}

		default:
			return fmt.Errorf("unexpected signaling message %q", msg.Type)
		}
	}
}
