package hub

import (
	"github.com/1ureka/starbus/internal/config"
	"github.com/1ureka/starbus/internal/conn"
	"github.com/1ureka/starbus/internal/frame"
	"github.com/1ureka/starbus/internal/util"
)

// dispatch is the single entry point for every received frame, including a
// host's own broadcasts looped back by send. raw is kept undecoded so relays
// re-emit exactly the bytes that arrived.
func (h *Hub) dispatch(raw []byte) {
	f, err := frame.Decode(raw)
	if err != nil {
		util.LogDrop("undecodable", "bytes", len(raw), "error", err)
		return
	}

	if h.consumes(f) {
		h.deliver(f)
	}

	// Only the host relays.
	if h.role != config.RoleHost {
		return
	}

	switch {
	case f.Global && f.SourceID() != h.cfg.SelfID:
		// Every device must see it, the sender included: a player does
		// not loop its own broadcasts back.
		if !h.pace() {
			return
		}
		h.writeAll(raw)
		util.Stats.AddRelayed()

	case !f.Global && !h.isSelf(f.TargetID()):
		c, err := h.resolve(f.TargetID())
		if err != nil {
			util.LogDrop("no route", "source", f.SourceID(), "target", f.TargetID(), "error", err)
			return
		}
		if !h.pace() {
			return
		}
		h.writeTo(c.ID(), raw)
		util.Stats.AddRelayed()
	}
}

// consumes is the local delivery test: a player consumes everything it
// receives, a host consumes broadcasts and frames addressed to itself.
func (h *Hub) consumes(f *frame.Frame) bool {
	if h.role != config.RoleHost {
		return true
	}
	return f.Global || h.isSelf(f.TargetID())
}

func (h *Hub) deliver(f *frame.Frame) {
	util.Stats.AddDelivered()
	h.listeners.notify(Event{
		Type:    EventMessage,
		AppCode: f.AppCode,
		Payload: f.Content,
		Source:  f.SourceID(),
		Target:  f.TargetID(),
		Global:  f.Global,
	})
}

// truncated filters the pieces of a frame that did not fit in one read.
// Senders keep every frame below the read buffer size, so a read that fills
// the buffer is the head of an oversized frame. It and every following piece
// up to the next short read are dropped.
func (h *Hub) truncated(c *conn.Conn, data []byte) bool {
	if len(data) >= h.cfg.ReadBufferSize {
		if !h.oversized[c] {
			util.LogDrop("oversized", "peer", c.ID(), "limit", h.cfg.ReadBufferSize-1)
			h.oversized[c] = true
		}
		return true
	}
	if h.oversized[c] {
		delete(h.oversized, c)
		return true
	}
	return false
}
