package hub

import (
	"fmt"
	"slices"
	"strings"

	"github.com/1ureka/starbus/internal/config"
	"github.com/1ureka/starbus/internal/conn"
	"github.com/1ureka/starbus/internal/util"
)

// Everything in this file runs on the dispatch goroutine.

// open creates the connection and registers it before its first read can be
// dispatched.
func (h *Hub) open(e openEvent) error {
	if e.role == conn.HostLink && h.role == config.RoleHost {
		closeStream(e.stream)
		return fmt.Errorf("open %s: %w", e.id, ErrRoleMismatch)
	}

	c, err := conn.Open(e.stream, e.id, e.name, e.role, reporter{h}, conn.WithReadBufferSize(h.cfg.ReadBufferSize))
	if err != nil {
		util.LogError("[%s] cannot open connection to %q: %v", e.id, e.name, err)
		h.listeners.notify(Event{Type: EventStreamError, Peer: e.name, PeerID: e.id, Err: err})
		return fmt.Errorf("open %s: %w", e.id, err)
	}

	h.register(c)
	util.LogInfo("[%s] %q connected as %s (%d live)", c.ID(), c.Name(), c.Role(), len(h.conns))
	h.listeners.notify(Event{Type: EventConnected, Peer: c.Name(), PeerID: c.ID()})
	return nil
}

// register inserts c into both indexes. A live connection with the same id,
// or a previous host link, is cancelled and replaced.
func (h *Hub) register(c *conn.Conn) {
	if old, ok := h.conns[c.ID()]; ok {
		util.LogWarning("[%s] replacing live connection to %q", old.ID(), old.Name())
		h.unregister(old)
		old.Cancel()
	}
	if c.Role() == conn.HostLink && h.hostLink != nil {
		old := h.hostLink
		util.LogWarning("[%s] replacing host link", old.ID())
		h.unregister(old)
		old.Cancel()
	}

	h.conns[c.ID()] = c
	h.names[c.Name()] = append(h.names[c.Name()], c.ID())
	if c.Role() == conn.HostLink {
		h.hostLink = c
	}
	util.Stats.AddConn()
	h.publish()
}

// unregister removes c from both indexes together.
func (h *Hub) unregister(c *conn.Conn) {
	if h.conns[c.ID()] != c {
		return
	}
	delete(h.conns, c.ID())

	ids := slices.DeleteFunc(h.names[c.Name()], func(id string) bool { return id == c.ID() })
	if len(ids) == 0 {
		delete(h.names, c.Name())
	} else {
		h.names[c.Name()] = ids
	}

	if h.hostLink == c {
		h.hostLink = nil
	}
	delete(h.oversized, c)
	h.publish()
}

// disconnected handles a read-loop failure report. Reports from connections
// that were already replaced or cleared are ignored.
func (h *Hub) disconnected(c *conn.Conn) {
	if h.conns[c.ID()] != c {
		util.LogDebug("[%s] ignoring disconnect of a stale connection", c.ID())
		return
	}
	h.unregister(c)
	c.Cancel()

	who := c.Name()
	if c.Role() == conn.HostLink {
		who = HostLabel
	}
	util.LogWarning("[%s] %s disconnected (%d live)", c.ID(), who, len(h.conns))
	h.listeners.notify(Event{Type: EventDisconnected, Peer: who, PeerID: c.ID()})
}

// clear cancels every connection and empties both indexes and the host slot.
func (h *Hub) clear() {
	for _, c := range h.conns {
		c.Cancel()
	}
	if n := len(h.conns); n > 0 {
		util.LogInfo("session cleared, %d connection(s) closed", n)
	}
	clear(h.conns)
	clear(h.names)
	clear(h.oversized)
	h.hostLink = nil
	h.publish()
}

// resolve maps a relay target to a connection. The target may be a
// connection id or a display name; a name shared by several peers is
// rejected.
func (h *Hub) resolve(target string) (*conn.Conn, error) {
	if c, ok := h.conns[target]; ok {
		return c, nil
	}
	switch ids := h.names[target]; len(ids) {
	case 0:
		return nil, fmt.Errorf("%w %q", ErrUnknownTarget, target)
	case 1:
		return h.conns[ids[0]], nil
	default:
		return nil, fmt.Errorf("%w %q (%s)", ErrAmbiguousTarget, target, strings.Join(ids, ", "))
	}
}

// isSelf reports whether a target addresses this device.
func (h *Hub) isSelf(target string) bool {
	if target == "" {
		return false
	}
	return target == h.cfg.SelfID || (h.cfg.SelfName != "" && target == h.cfg.SelfName)
}

// view is an immutable copy of the registry. Queries read the latest one
// without going through the dispatch queue, so listeners may call them.
type view struct {
	role     config.Role
	peers    []Peer            // ordered by id
	unique   map[string]string // display name → id, for names held by one peer
	hostID   string
	hostName string
}

func (h *Hub) publish() {
	v := &view{
		role:   h.role,
		peers:  make([]Peer, 0, len(h.conns)),
		unique: make(map[string]string, len(h.names)),
	}
	for _, c := range h.conns {
		v.peers = append(v.peers, Peer{ID: c.ID(), Name: c.Name(), HostLink: c == h.hostLink})
	}
	slices.SortFunc(v.peers, func(a, b Peer) int { return strings.Compare(a.ID, b.ID) })
	for name, ids := range h.names {
		if len(ids) == 1 {
			v.unique[name] = ids[0]
		}
	}
	if h.hostLink != nil {
		v.hostID, v.hostName = h.hostLink.ID(), h.hostLink.Name()
	}
	h.current.Store(v)
}
