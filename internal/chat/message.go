// Package chat is a text chat room running on the bus. Every device of the
// session sees global lines; whispers go to one player by name or id.
// Received lines can be persisted to a bbolt history file and replayed.
package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/1ureka/starbus/internal/frame"
)

// Application codes of chat frames.
const (
	AppGlobal  = 4
	AppPrivate = 5
)

// SelfLabel replaces the sender name on global lines sent by this device.
const SelfLabel = "You"

// ErrEmpty is returned when there is nothing to send.
var ErrEmpty = errors.New("empty message")

// Kind tells how a line reached the room.
type Kind string

const (
	KindGlobal      Kind = "global"       // broadcast from anyone, including us
	KindWhisperFrom Kind = "whisper_from" // private line received
	KindWhisperTo   Kind = "whisper_to"   // private line we sent
	KindSystem      Kind = "system"       // join/leave notices
)

// Line is one entry of the conversation.
type Line struct {
	Seq  uint64    `json:"seq,omitempty"` // assigned by History
	At   time.Time `json:"at"`
	Kind Kind      `json:"kind"`
	From string    `json:"from,omitempty"`
	To   string    `json:"to,omitempty"`
	Text string    `json:"text"`
}

func (l Line) String() string {
	switch l.Kind {
	case KindWhisperFrom:
		return fmt.Sprintf("whisperFrom(%s): %s", l.From, l.Text)
	case KindWhisperTo:
		return fmt.Sprintf("whisperTo(%s): %s", l.To, l.Text)
	case KindSystem:
		return "* " + l.Text
	default:
		return fmt.Sprintf("%s: %s", l.From, l.Text)
	}
}

// EncodeText builds a chat payload: the sender's display name as one
// length-prefixed field, followed by the raw text.
func EncodeText(sender, text string) ([]byte, error) {
	field, err := frame.EncodeField(sender)
	if err != nil {
		return nil, fmt.Errorf("sender name: %w", err)
	}
	return append(field, text...), nil
}

// DecodeText splits a chat payload into sender name and text.
func DecodeText(payload []byte) (sender, text string, err error) {
	n, next, err := frame.DecodeField(payload, 0)
	if err != nil {
		return "", "", fmt.Errorf("sender name: %w", err)
	}
	return string(payload[next : next+n]), string(payload[next+n:]), nil
}
