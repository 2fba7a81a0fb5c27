// Package hub is the relay engine of the bus. A Hub owns every live
// connection of one session, decodes what they read, delivers frames to
// local listeners and, on the host, relays them to other players.
//
// All session state is owned by a single dispatch goroutine. Connection read
// loops, application sends, listener (un)registration and queries are all
// turned into events on one queue, so relay decisions never interleave.
package hub

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/1ureka/starbus/internal/config"
	"github.com/1ureka/starbus/internal/conn"
	"github.com/1ureka/starbus/internal/util"
)

var (
	// ErrClosed is returned by operations on a hub that has been closed.
	ErrClosed = errors.New("hub closed")

	// ErrRoleLocked is returned by SetRole while connections are live.
	ErrRoleLocked = errors.New("role cannot change while connections are live")

	// ErrRoleMismatch is returned when a host is handed a host link.
	ErrRoleMismatch = errors.New("a host cannot have a host link")

	// ErrFrameTooLarge is returned by the send methods when the encoded frame
	// would not fit in a single read on the receiving side.
	ErrFrameTooLarge = errors.New("frame does not fit in one read")

	// ErrUnknownTarget and ErrAmbiguousTarget describe unresolvable relay
	// targets. They are only logged: unicast delivery is unacknowledged.
	ErrUnknownTarget   = errors.New("unknown target")
	ErrAmbiguousTarget = errors.New("ambiguous target name")
)

// Hub is one relay session. Create it with New and release it with Close.
type Hub struct {
	cfg   config.HubConfig
	pacer *rate.Limiter

	ctx       context.Context
	cancel    context.CancelFunc
	events    chan event
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the dispatch goroutine.
	role      config.Role
	conns     map[string]*conn.Conn // connection id → link
	names     map[string][]string   // display name → connection ids
	hostLink  *conn.Conn
	oversized map[*conn.Conn]bool // inside a frame that overflowed the read buffer
	listeners listenerSet

	// Published by the dispatch goroutine after every registry change.
	current atomic.Pointer[view]
}

// New creates a hub and starts its dispatch goroutine. The hub stops when
// ctx is cancelled or Close is called.
func New(ctx context.Context, cfg config.HubConfig) *Hub {
	def := config.DefaultHubConfig()
	if cfg.Role == "" {
		cfg.Role = def.Role
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = def.ReadBufferSize
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}

	hCtx, hCancel := context.WithCancel(ctx)
	h := &Hub{
		cfg:       cfg,
		pacer:     newPacer(cfg.PacingDelay),
		ctx:       hCtx,
		cancel:    hCancel,
		events:    make(chan event, cfg.QueueSize),
		done:      make(chan struct{}),
		role:      cfg.Role,
		conns:     make(map[string]*conn.Conn),
		names:     make(map[string][]string),
		oversized: make(map[*conn.Conn]bool),
		listeners: make(listenerSet),
	}
	h.publish()

	go h.run()
	return h
}

// newPacer allows one send per delay, measured from the previous send.
func newPacer(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// Close tears down every connection and stops the dispatch goroutine.
func (h *Hub) Close() error {
	h.closeOnce.Do(h.cancel)
	<-h.done
	return nil
}

// Done is closed once the dispatch goroutine has exited.
func (h *Hub) Done() <-chan struct{} { return h.done }

// SelfID returns this device's identifier.
func (h *Hub) SelfID() string { return h.cfg.SelfID }

// SelfName returns this device's display name.
func (h *Hub) SelfName() string { return h.cfg.SelfName }

// ---------------------------------------------------------------------------
// Event loop
// ---------------------------------------------------------------------------

type event interface{}

type (
	openEvent struct {
		stream   io.ReadWriteCloser
		id, name string
		role     conn.LinkRole
		reply    chan error
	}
	readEvent struct {
		c    *conn.Conn
		data []byte
	}
	disconnectEvent struct{ c *conn.Conn }
	sendEvent       struct {
		global bool
		target string
		raw    []byte
	}
	addListenerEvent struct {
		id ListenerID
		l  Listener
	}
	removeListenerEvent struct{ id ListenerID }
	clearEvent          struct{}
	queryEvent          struct{ fn func() }
)

// run is the single dispatch goroutine.
func (h *Hub) run() {
	defer close(h.done)
	defer h.clear()

	for {
		select {
		case ev := <-h.events:
			h.handle(ev)
		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) handle(ev event) {
	switch e := ev.(type) {
	case openEvent:
		e.reply <- h.open(e)
	case readEvent:
		if h.conns[e.c.ID()] != e.c {
			util.LogDebug("[%s] dropping %d bytes from an unregistered connection", e.c.ID(), len(e.data))
			return
		}
		if h.truncated(e.c, e.data) {
			return
		}
		h.dispatch(e.data)
	case disconnectEvent:
		h.disconnected(e.c)
	case sendEvent:
		h.send(e)
	case addListenerEvent:
		h.listeners[e.id] = e.l
	case removeListenerEvent:
		delete(h.listeners, e.id)
	case clearEvent:
		h.clear()
	case queryEvent:
		e.fn()
	}
}

// enqueue hands ev to the dispatch goroutine. It blocks while the queue is
// full and fails once the hub is closed.
func (h *Hub) enqueue(ev event) error {
	select {
	case h.events <- ev:
		return nil
	case <-h.ctx.Done():
		return ErrClosed
	}
}

// query runs fn on the dispatch goroutine and waits for it to finish.
func (h *Hub) query(fn func()) error {
	finished := make(chan struct{})
	if err := h.enqueue(queryEvent{fn: func() {
		fn()
		close(finished)
	}}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-h.done:
		return ErrClosed
	}
}

// ---------------------------------------------------------------------------
// conn.Reporter
// ---------------------------------------------------------------------------

// reporter adapts the hub to conn.Reporter without exporting the callbacks.
type reporter struct{ h *Hub }

func (r reporter) OnRead(c *conn.Conn, data []byte) {
	_ = r.h.enqueue(readEvent{c: c, data: data})
}

func (r reporter) OnDisconnect(c *conn.Conn) {
	_ = r.h.enqueue(disconnectEvent{c: c})
}

// ---------------------------------------------------------------------------
// Public API
// ---------------------------------------------------------------------------

// OpenConnection wraps an established stream to the device id/name and
// registers it. isHostLink marks the stream as the player's link to its host.
// A live connection with the same id is replaced. A stream that cannot be
// set up is reported to listeners as EventStreamError.
func (h *Hub) OpenConnection(stream io.ReadWriteCloser, id, name string, isHostLink bool) error {
	role := conn.PlayerLink
	if isHostLink {
		role = conn.HostLink
	}

	reply := make(chan error, 1)
	if err := h.enqueue(openEvent{stream: stream, id: id, name: name, role: role, reply: reply}); err != nil {
		closeStream(stream)
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-h.done:
		select {
		case err := <-reply:
			return err
		default:
			closeStream(stream)
			return ErrClosed
		}
	}
}

func closeStream(stream io.ReadWriteCloser) {
	if stream != nil {
		_ = stream.Close()
	}
}

// RegisterListener adds l to the set of application callbacks. The
// registration takes effect before any event queued after this call.
func (h *Hub) RegisterListener(l Listener) ListenerID {
	id := ListenerID(uuid.New())
	_ = h.enqueue(addListenerEvent{id: id, l: l})
	return id
}

// UnregisterListener removes a listener. Unknown ids are ignored.
func (h *Hub) UnregisterListener(id ListenerID) {
	_ = h.enqueue(removeListenerEvent{id: id})
}

// Clear cancels every connection and forgets them, ending the session.
// The role may be changed afterwards.
func (h *Hub) Clear() {
	if err := h.enqueue(clearEvent{}); err != nil {
		return
	}
	_ = h.query(func() {})
}

// Role returns the current session role. After Close it keeps returning
// the last role of the session.
func (h *Hub) Role() config.Role {
	return h.current.Load().role
}

// SetRole changes the session role. It fails with ErrRoleLocked while any
// connection is live.
func (h *Hub) SetRole(role config.Role) error {
	var err error
	if qErr := h.query(func() {
		if len(h.conns) > 0 {
			err = ErrRoleLocked
			return
		}
		h.role = role
		h.publish()
	}); qErr != nil {
		return qErr
	}
	return err
}

// Peer is a read-only view of one live connection.
type Peer struct {
	ID       string
	Name     string
	HostLink bool
}

// Peers returns a snapshot of the live connections ordered by id.
func (h *Hub) Peers() []Peer {
	return slices.Clone(h.current.Load().peers)
}

// Lookup resolves a display name to a connection id. It fails when the name
// is unknown or shared by several peers.
func (h *Hub) Lookup(name string) (string, bool) {
	id, ok := h.current.Load().unique[name]
	return id, ok
}

// HostAddress returns the id of the host link, or "" when there is none.
func (h *Hub) HostAddress() string { return h.current.Load().hostID }

// HostName returns the display name of the host link, or "" when there is none.
func (h *Hub) HostName() string { return h.current.Load().hostName }
