package signaling

// messageType identifies the kind of signaling message.
type messageType string

const (
	msgTypeWelcome   messageType = "welcome"
	msgTypeOffer     messageType = "offer"
	msgTypeAnswer    messageType = "answer"
	msgTypeCandidate messageType = "candidate"
)

// message is the JSON structure exchanged over the WebSocket during signaling.
type message struct {
	Type      messageType `json:"type"`
	ID        string      `json:"id,omitempty"`        // welcome: host device id
	Name      string      `json:"name,omitempty"`      // welcome: host display name
	Transport string      `json:"transport,omitempty"` // welcome: accepted stream carrier
	SDP       string      `json:"sdp,omitempty"`
	Candidate string      `json:"candidate,omitempty"` // JSON-encoded ICECandidateInit
}

// Query parameters a player sends when dialing the host.
const (
	paramPIN       = "pin"
	paramID        = "id"
	paramName      = "name"
	paramTransport = "transport"
)
