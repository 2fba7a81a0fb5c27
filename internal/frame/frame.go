// Package frame defines the length-prefixed wire format of a bus message.
//
// A frame is four prefixed text fields followed by the raw content:
//
//	L3(isGlobal) isGlobal L3(target) target L3(source) source L3(appCode) appCode content
//
// where L3(x) is the 3-digit zero-padded decimal byte length of x. Absent
// target/source fields travel as the literal "null".
package frame

import (
	"errors"
	"fmt"
	"strings"
)

const (
	PrefixLen    = 3      // digits in a length prefix
	MaxFieldLen  = 999    // largest encodable field
	NullSentinel = "null" // wire form of an absent target/source
)

var (
	// ErrFieldTooLarge is returned when a prefixed field exceeds MaxFieldLen bytes.
	ErrFieldTooLarge = errors.New("field too large")

	// ErrDecode is wrapped by every decoding failure.
	ErrDecode = errors.New("frame decode")

	ErrMalformedPrefix = fmt.Errorf("%w: malformed length prefix", ErrDecode)
	ErrBadGlobal       = fmt.Errorf("%w: invalid isGlobal value", ErrDecode)
	ErrBadAppCode      = fmt.Errorf("%w: invalid appCode value", ErrDecode)
)

// Frame is a single application message.
type Frame struct {
	Global  bool    // broadcast (true) or unicast (false)
	Target  *string // recipient display name or connection id; nil when global
	Source  *string // sender device id; nil is allowed but discouraged
	AppCode int     // owning application subsystem
	Content []byte  // opaque payload, always last on the wire
}

// NewGlobal builds a broadcast frame from source.
func NewGlobal(source string, appCode int, content []byte) *Frame {
	return &Frame{
		Global:  true,
		Source:  &source,
		AppCode: appCode,
		Content: content,
	}
}

// NewPrivate builds a unicast frame from source to target.
func NewPrivate(source, target string, appCode int, content []byte) *Frame {
	return &Frame{
		Global:  false,
		Target:  &target,
		Source:  &source,
		AppCode: appCode,
		Content: content,
	}
}

// TargetID returns the target or "" when absent.
func (f *Frame) TargetID() string { return deref(f.Target) }

// SourceID returns the source or "" when absent.
func (f *Frame) SourceID() string { return deref(f.Source) }

// String renders a human-readable overview of the frame for debug logs.
func (f *Frame) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "isGlobal: %t\n", f.Global)
	fmt.Fprintf(&b, "target: %s\n", orNull(f.Target))
	fmt.Fprintf(&b, "source: %s\n", orNull(f.Source))
	fmt.Fprintf(&b, "appCode: %d\n", f.AppCode)
	fmt.Fprintf(&b, "content: %q", f.Content)
	return b.String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orNull(s *string) string {
	if s == nil {
		return NullSentinel
	}
	return *s
}
