package hub

import (
	"github.com/google/uuid"

	"github.com/1ureka/starbus/internal/util"
)

// EventType identifies what a listener is being told about.
type EventType string

const (
	EventMessage      EventType = "message"      // a frame was delivered locally
	EventConnected    EventType = "connected"    // a connection was registered
	EventDisconnected EventType = "disconnected" // a connection's read loop failed
	EventStreamError  EventType = "stream_error" // a stream could not be set up
)

// HostLabel is the peer name reported when a player loses its host link.
const HostLabel = "the host"

// Event is what listeners receive. Only the fields relevant to Type are set.
type Event struct {
	Type EventType

	// EventMessage
	AppCode int
	Payload []byte // shared between listeners; do not modify
	Source  string // sender device id, "" when absent
	Target  string // "" for global messages
	Global  bool

	// Connection events
	Peer   string // display name, or HostLabel
	PeerID string
	Err    error
}

// Listener is an application callback. Listeners run on the hub's dispatch
// goroutine and must return quickly. They may send and query (Role, Peers,
// Lookup, HostAddress, HostName) but must not call Clear or SetRole, which
// wait for that same goroutine.
type Listener func(Event)

// ListenerID identifies a registered listener for later removal.
type ListenerID uuid.UUID

func (id ListenerID) String() string { return uuid.UUID(id).String() }

// listenerSet is owned by the dispatch goroutine.
type listenerSet map[ListenerID]Listener

// notify invokes every listener with ev. A panicking listener is logged and
// skipped so it cannot take the dispatch goroutine down.
func (s listenerSet) notify(ev Event) {
	for id, l := range s {
		safeCall(id, l, ev)
	}
}

func safeCall(id ListenerID, l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			util.LogError("listener %s panicked on %s event: %v", id, ev.Type, r)
		}
	}()
	l(ev)
}
