// Package signaling exchanges SDP offers/answers and ICE candidates over a
// WebSocket so that two sides end up with a connected rtc.Peer. The host runs
// a Server that accepts any number of clients; a client calls Dial.
package signaling

// messageType identifies the kind of signaling message.
type messageType string

const (
	msgTypeOffer     messageType = "offer"
	msgTypeAnswer    messageType = "answer"
	msgTypeCandidate messageType = "candidate"
)

// message is the JSON structure exchanged over the WebSocket during signaling.
type message struct {
	Type      messageType `json:"type"`
	SDP       string      `json:"sdp,omitempty"`
	Candidate string      `json:"candidate,omitempty"` // JSON-encoded ICECandidateInit
}
