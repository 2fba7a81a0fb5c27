// Package conn owns one open byte stream to a peer: a dedicated read loop
// that hands raw chunks to its owner, and a serialized write path.
package conn

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/1ureka/starbus/internal/config"
	"github.com/1ureka/starbus/internal/util"
)

var (
	// ErrStreamSetup is returned by Open when no usable stream was supplied.
	ErrStreamSetup = errors.New("stream setup failed")

	// ErrClosed is returned by Write after the connection has been torn down.
	ErrClosed = errors.New("connection closed")
)

// LinkRole tells whether a connection leads to the host or to a player.
type LinkRole int

const (
	PlayerLink LinkRole = iota // seen from the host: one of many players
	HostLink                   // seen from a player: the single hub
)

func (r LinkRole) String() string {
	if r == HostLink {
		return "host-link"
	}
	return "player-link"
}

// Reporter receives the output of a connection's read loop. Both methods are
// called from the read loop goroutine.
type Reporter interface {
	// OnRead receives one chunk as read from the stream. data is owned by
	// the callee.
	OnRead(c *Conn, data []byte)

	// OnDisconnect is called exactly once when a read fails, after the
	// stream has been closed. It is not called after an explicit Cancel.
	OnDisconnect(c *Conn)
}

// Option customises a Conn.
type Option func(*Conn)

// WithReadBufferSize sets the size of the per-read buffer.
func WithReadBufferSize(n int) Option {
	return func(c *Conn) {
		if n > 0 {
			c.bufSize = n
		}
	}
}

// Conn is one live link to a remote device. A Conn is never reused after it
// has been torn down.
type Conn struct {
	// Identity
	id   string
	name string
	role LinkRole

	stream  io.ReadWriteCloser
	rep     Reporter
	bufSize int

	// Lifecycle
	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
	cancelled atomic.Bool
	done      chan struct{}
}

// Open wraps an established stream and starts its read loop immediately.
// A nil stream is reported as ErrStreamSetup and no loop is started.
func Open(stream io.ReadWriteCloser, id, name string, role LinkRole, rep Reporter, opts ...Option) (*Conn, error) {
	if stream == nil {
		return nil, ErrStreamSetup
	}
	if rep == nil {
		return nil, errors.New("conn: nil reporter")
	}

	c := &Conn{
		id:      id,
		name:    name,
		role:    role,
		stream:  stream,
		rep:     rep,
		bufSize: config.DefaultReadBufferSize,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.readLoop()
	return c, nil
}

// ID returns the remote peer's identifier.
func (c *Conn) ID() string { return c.id }

// Name returns the remote peer's display name.
func (c *Conn) Name() string { return c.name }

// Role returns whether this is the host link or a player link.
func (c *Conn) Role() LinkRole { return c.role }

// Done is closed once the read loop has exited.
func (c *Conn) Done() <-chan struct{} { return c.done }

// ---------------------------------------------------------------------------
// Read loop
// ---------------------------------------------------------------------------

// readLoop performs blocking reads until the stream fails. Zero-byte reads
// are retried. The first read error tears the connection down and is
// reported once, unless the connection was cancelled on purpose.
func (c *Conn) readLoop() {
	defer close(c.done)

	buf := make([]byte, c.bufSize)
	for {
		n, err := c.stream.Read(buf)

		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			util.Stats.AddRecv(n)
			c.rep.OnRead(c, data)
		}

		if err != nil {
			if c.cancelled.Load() {
				// Cancelled on purpose, nothing to report.
				return
			}
			util.LogDebug("[%s] read failed: %v", c.id, err)
			c.teardown()
			c.rep.OnDisconnect(c)
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Write / Cancel
// ---------------------------------------------------------------------------

// Write sends p as one uninterrupted write. Concurrent callers are
// serialized. I/O failures are logged and swallowed: the read loop is the
// authoritative disconnect signal.
func (c *Conn) Write(p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}

	n, err := c.stream.Write(p)
	util.Stats.AddSent(n)
	if err != nil {
		util.LogWarning("[%s] write failed: %v", c.id, err)
	}
	return nil
}

// Cancel tears the connection down. It is idempotent and safe to call from
// any goroutine, including from inside the reporter callbacks.
func (c *Conn) Cancel() {
	c.cancelled.Store(true)
	c.teardown()
}

// teardown closes both stream halves and the stream itself exactly once,
// ignoring individual errors so the link is never left half-open. Closing
// the stream unblocks a pending Read.
func (c *Conn) teardown() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		if h, ok := c.stream.(interface{ CloseRead() error }); ok {
			_ = h.CloseRead()
		}
		if h, ok := c.stream.(interface{ CloseWrite() error }); ok {
			_ = h.CloseWrite()
		}
		_ = c.stream.Close()

		util.Stats.RemoveConn()
		util.LogDebug("[%s] connection to %q closed", c.id, c.name)
	})
}
