package hub

import (
	"fmt"

	"github.com/1ureka/starbus/internal/config"
	"github.com/1ureka/starbus/internal/frame"
	"github.com/1ureka/starbus/internal/util"
)

// SendGlobal broadcasts payload to every device of the session. On the host
// the broadcast is also delivered to its own listeners. Encoding violations
// and frames that do not fit in one read are returned; delivery itself is
// fire-and-forget.
func (h *Hub) SendGlobal(payload []byte, appCode int) error {
	raw, err := h.encode(frame.NewGlobal(h.cfg.SelfID, appCode, payload))
	if err != nil {
		return err
	}
	return h.enqueue(sendEvent{global: true, raw: raw})
}

// SendPrivate sends payload to a single device, named either by display name
// or by connection id. A player always hands the frame to its host, which
// resolves the target. Encoding violations are returned; an unresolvable
// target is silently dropped.
func (h *Hub) SendPrivate(payload []byte, target string, appCode int) error {
	raw, err := h.encode(frame.NewPrivate(h.cfg.SelfID, target, appCode, payload))
	if err != nil {
		return err
	}
	return h.enqueue(sendEvent{target: target, raw: raw})
}

// encode rejects frames a receiver could not read in one piece. The limit is
// one byte below the read buffer, since a full read marks an overflow.
func (h *Hub) encode(f *frame.Frame) ([]byte, error) {
	raw, err := frame.Encode(f)
	if err != nil {
		return nil, err
	}
	if len(raw) >= h.cfg.ReadBufferSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFrameTooLarge, len(raw), h.cfg.ReadBufferSize-1)
	}
	return raw, nil
}

// send runs on the dispatch goroutine.
func (h *Hub) send(e sendEvent) {
	if !h.pace() {
		return
	}

	if e.global {
		h.writeAll(e.raw)
		if h.role == config.RoleHost {
			// The host has no host link to hear its own broadcast from.
			h.dispatch(e.raw)
		}
		return
	}

	if h.role != config.RoleHost {
		if h.hostLink == nil {
			util.LogDrop("no host link", "target", e.target)
			return
		}
		h.writeTo(h.hostLink.ID(), e.raw)
		return
	}

	if h.isSelf(e.target) {
		h.dispatch(e.raw)
		return
	}
	c, err := h.resolve(e.target)
	if err != nil {
		util.LogDrop("no route", "target", e.target, "error", err)
		return
	}
	h.writeTo(c.ID(), e.raw)
}

// pace blocks until the pacing limiter grants the next send, keeping
// back-to-back frames apart on the underlying transport. It returns false
// when the hub is shutting down.
func (h *Hub) pace() bool {
	return h.pacer.Wait(h.ctx) == nil
}

// writeAll writes raw to every live connection in map order.
func (h *Hub) writeAll(raw []byte) {
	for _, c := range h.conns {
		_ = c.Write(raw)
	}
}

func (h *Hub) writeTo(id string, raw []byte) {
	if c, ok := h.conns[id]; ok {
		_ = c.Write(raw)
	}
}
