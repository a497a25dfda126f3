package signaling

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/netshim/internal/transport/rtc"
)

// sender serializes outgoing signaling messages to the WebSocket.
type sender struct {
	peer *rtc.Peer
	conn *websocket.Conn
	mu   sync.Mutex
}

// send writes a signaling message to the WebSocket, guarded by a mutex.
func (s *sender) send(msg message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(msg)
}

// sendOffer creates an SDP offer, sets it as local description, and sends it.
func (s *sender) sendOffer() error {
	offer, err := s.peer.CreateOffer()
	if err != nil {
		return err
	}

	if err := s.peer.SetLocalDescription(offer); err != nil {
		return err
	}

	return s.send(message{Type: msgTypeOffer, SDP: offer.SDP})
}

// sendAnswer creates an SDP answer, sets it as local description, and sends it.
func (s *sender) sendAnswer() error {
	answer, err := s.peer.CreateAnswer()
	if err != nil {
		return err
	}

	if err := s.peer.SetLocalDescription(answer); err != nil {
		return err
	}

	return s.send(message{Type: msgTypeAnswer, SDP: answer.SDP})
}

// sendCandidate sends a gathered ICE candidate. A nil candidate (end of
// gathering) is not forwarded.
func (s *sender) sendCandidate(c *webrtc.ICECandidate) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(c.ToJSON())
	if err != nil {
		return err
	}
	return s.send(message{Type: msgTypeCandidate, Candidate: string(data)})
}
