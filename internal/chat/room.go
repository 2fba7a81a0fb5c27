package chat

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/1ureka/starbus/internal/hub"
	"github.com/1ureka/starbus/internal/util"
)

const lineQueueSize = 64

// Bus is the part of a hub the room needs.
type Bus interface {
	SendGlobal(payload []byte, appCode int) error
	SendPrivate(payload []byte, target string, appCode int) error
	RegisterListener(l hub.Listener) hub.ListenerID
	UnregisterListener(id hub.ListenerID)
	Lookup(name string) (string, bool)
}

// Room joins a device to the chat. Incoming lines are decoded on the hub's
// dispatch goroutine and handed to a room goroutine, which persists and
// renders them.
type Room struct {
	bus     Bus
	name    string
	history *History // nil disables persistence
	render  func(Line)

	listener hub.ListenerID
	lines    chan Line
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewRoom registers the room on bus. name is this device's display name,
// sent with every line. history may be nil. render is called for every line
// on the room goroutine.
func NewRoom(bus Bus, name string, history *History, render func(Line)) *Room {
	r := &Room{
		bus:     bus,
		name:    name,
		history: history,
		render:  render,
		lines:   make(chan Line, lineQueueSize),
		done:    make(chan struct{}),
	}

	r.wg.Add(1)
	go r.run()
	r.listener = bus.RegisterListener(r.onEvent)
	return r
}

// Close leaves the room. Lines still queued are dropped.
func (r *Room) Close() {
	r.once.Do(func() {
		r.bus.UnregisterListener(r.listener)
		close(r.done)
		r.wg.Wait()
	})
}

// Say broadcasts text to everyone in the session.
func (r *Room) Say(text string) error {
	if text == "" {
		return ErrEmpty
	}
	payload, err := EncodeText(r.name, text)
	if err != nil {
		return err
	}
	return r.bus.SendGlobal(payload, AppGlobal)
}

// Whisper sends text to one device, named by display name or id. A name the
// local hub can resolve is sent by id; otherwise the host resolves it.
func (r *Room) Whisper(target, text string) error {
	if target == "" || text == "" {
		return ErrEmpty
	}
	payload, err := EncodeText(r.name, text)
	if err != nil {
		return err
	}

	to := target
	if id, ok := r.bus.Lookup(target); ok {
		to = id
	}
	if err := r.bus.SendPrivate(payload, to, AppPrivate); err != nil {
		return err
	}

	r.queue(Line{At: time.Now(), Kind: KindWhisperTo, From: r.name, To: target, Text: text})
	return nil
}

// Handle interprets one line of user input. `/w name text` or
// `/w "long name" text` whispers; anything else is said to everyone.
func (r *Room) Handle(input string) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return ErrEmpty
	}
	target, text, ok, err := parseWhisper(input)
	if err != nil {
		return err
	}
	if ok {
		return r.Whisper(target, text)
	}
	return r.Say(input)
}

// ErrBadCommand is returned for a malformed whisper command.
var ErrBadCommand = errors.New(`usage: /w name text  or  /w "long name" text`)

func parseWhisper(input string) (target, text string, ok bool, err error) {
	rest, found := strings.CutPrefix(input, "/w ")
	if !found {
		return "", "", false, nil
	}
	rest = strings.TrimSpace(rest)

	if quoted, found := strings.CutPrefix(rest, `"`); found {
		name, after, closed := strings.Cut(quoted, `"`)
		if !closed || name == "" {
			return "", "", false, ErrBadCommand
		}
		target, text = name, strings.TrimSpace(after)
	} else {
		target, text, _ = strings.Cut(rest, " ")
		text = strings.TrimSpace(text)
	}

	if target == "" || text == "" {
		return "", "", false, ErrBadCommand
	}
	return target, text, true, nil
}

// ---------------------------------------------------------------------------
// Incoming
// ---------------------------------------------------------------------------

// onEvent runs on the hub's dispatch goroutine.
func (r *Room) onEvent(e hub.Event) {
	now := time.Now()

	switch e.Type {
	case hub.EventMessage:
		if e.AppCode != AppGlobal && e.AppCode != AppPrivate {
			return
		}
		from, text, err := DecodeText(e.Payload)
		if err != nil {
			util.LogWarning("dropping chat line from %s: %v", e.Source, err)
			return
		}
		l := Line{At: now, From: from, Text: text, Kind: KindWhisperFrom}
		if e.AppCode == AppGlobal {
			l.Kind = KindGlobal
			if from == r.name {
				l.From = SelfLabel
			}
		}
		r.queue(l)

	case hub.EventConnected:
		r.queue(Line{At: now, Kind: KindSystem, Text: fmt.Sprintf("%s joined", e.Peer)})

	case hub.EventDisconnected:
		r.queue(Line{At: now, Kind: KindSystem, Text: fmt.Sprintf("%s left", e.Peer)})
	}
}

// queue never blocks the caller for long: once the room is closed lines are
// dropped.
func (r *Room) queue(l Line) {
	select {
	case r.lines <- l:
	case <-r.done:
	}
}

func (r *Room) run() {
	defer r.wg.Done()
	for {
		select {
		case l := <-r.lines:
			r.record(l)
		case <-r.done:
			return
		}
	}
}

func (r *Room) record(l Line) {
	if r.history != nil && l.Kind != KindSystem {
		stored, err := r.history.Append(l)
		if err != nil {
			util.LogError("cannot store chat line: %v", err)
		} else {
			l = stored
		}
	}
	if r.render != nil {
		r.render(l)
	}
}

// Replay renders up to n lines from history, oldest first, on the caller's
// goroutine. Call it before the session starts.
func (r *Room) Replay(n int) error {
	if r.history == nil {
		return nil
	}
	lines, err := r.history.Recent(n)
	if err != nil {
		return err
	}
	for _, l := range lines {
		if r.render != nil {
			r.render(l)
		}
	}
	return nil
}
