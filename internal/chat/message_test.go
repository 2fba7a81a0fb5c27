package chat

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/1ureka/starbus/internal/frame"
)

func TestEncodeText(t *testing.T) {
	got, err := EncodeText("Bob", "hi there")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "003Bobhi there" {
		t.Errorf("EncodeText = %q", got)
	}

	if _, err := EncodeText(strings.Repeat("x", frame.MaxFieldLen+1), "hi"); !errors.Is(err, frame.ErrFieldTooLarge) {
		t.Errorf("oversized name: err = %v, want ErrFieldTooLarge", err)
	}
}

func TestDecodeText(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		sender  string
		text    string
		wantErr bool
	}{
		{name: "plain", payload: "003Bobhi", sender: "Bob", text: "hi"},
		{name: "empty text", payload: "005Alice", sender: "Alice", text: ""},
		{name: "text looks like a prefix", payload: "003Bob004abcd", sender: "Bob", text: "004abcd"},
		{name: "byte length of a unicode name", payload: "004Zoëhey", sender: "Zoë", text: "hey"},
		{name: "short prefix", payload: "03", wantErr: true},
		{name: "overrun", payload: "010Bob", wantErr: true},
		{name: "not digits", payload: "abcBob", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender, text, err := DecodeText([]byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, frame.ErrDecode) {
					t.Fatalf("err = %v, want ErrDecode", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if sender != tt.sender || text != tt.text {
				t.Errorf("DecodeText = %q, %q; want %q, %q", sender, text, tt.sender, tt.text)
			}
		})
	}
}

func TestLineString(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		line Line
		want string
	}{
		{Line{At: at, Kind: KindGlobal, From: "Bob", Text: "hi"}, "Bob: hi"},
		{Line{At: at, Kind: KindWhisperFrom, From: "Bob", Text: "psst"}, "whisperFrom(Bob): psst"},
		{Line{At: at, Kind: KindWhisperTo, To: "Carol", Text: "psst"}, "whisperTo(Carol): psst"},
		{Line{At: at, Kind: KindSystem, Text: "Bob joined"}, "* Bob joined"},
	}
	for _, tt := range tests {
		if got := tt.line.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestParseWhisper(t *testing.T) {
	tests := []struct {
		input   string
		target  string
		text    string
		ok      bool
		wantErr bool
	}{
		{input: "hello everyone", ok: false},
		{input: "/w Bob hi there", target: "Bob", text: "hi there", ok: true},
		{input: `/w "Big Bob" hi`, target: "Big Bob", text: "hi", ok: true},
		{input: "/w AA:BB:CC:DD:EE:FF yo", target: "AA:BB:CC:DD:EE:FF", text: "yo", ok: true},
		{input: "/w Bob", wantErr: true},
		{input: `/w "Bob hi`, wantErr: true},
		{input: `/w "" hi`, wantErr: true},
		{input: "/whatever", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			target, text, ok, err := parseWhisper(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrBadCommand) {
					t.Fatalf("err = %v, want ErrBadCommand", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if ok != tt.ok || target != tt.target || text != tt.text {
				t.Errorf("parseWhisper = %q, %q, %v; want %q, %q, %v", target, text, ok, tt.target, tt.text, tt.ok)
			}
		})
	}
}
