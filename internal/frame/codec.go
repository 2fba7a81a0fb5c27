package frame

import (
	"fmt"
	"strconv"
)

// EncodeField serializes s as a 3-digit byte-length prefix followed by s.
// A field longer than MaxFieldLen fails with ErrFieldTooLarge and no output.
func EncodeField(s string) ([]byte, error) {
	return appendField(nil, s)
}

func appendField(dst []byte, s string) ([]byte, error) {
	if len(s) > MaxFieldLen {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFieldTooLarge, len(s), MaxFieldLen)
	}
	dst = append(dst, byte('0'+len(s)/100), byte('0'+len(s)/10%10), byte('0'+len(s)%10))
	return append(dst, s...), nil
}

// DecodeField reads the length prefix at off. The field occupies
// buf[next : next+length].
func DecodeField(buf []byte, off int) (length, next int, err error) {
	if off < 0 || off+PrefixLen > len(buf) {
		return 0, 0, fmt.Errorf("%w at offset %d: need %d bytes, have %d", ErrMalformedPrefix, off, PrefixLen, len(buf)-off)
	}
	for _, c := range buf[off : off+PrefixLen] {
		if c < '0' || c > '9' {
			return 0, 0, fmt.Errorf("%w at offset %d: %q", ErrMalformedPrefix, off, buf[off:off+PrefixLen])
		}
		length = length*10 + int(c-'0')
	}
	next = off + PrefixLen
	if next+length > len(buf) {
		return 0, 0, fmt.Errorf("%w at offset %d: field of %d bytes overruns frame", ErrMalformedPrefix, off, length)
	}
	return length, next, nil
}

// Encode serializes a Frame for transmission. Absent target/source fields are
// written as NullSentinel.
func Encode(f *Frame) ([]byte, error) {
	fields := [...]string{
		strconv.FormatBool(f.Global),
		orNull(f.Target),
		orNull(f.Source),
		strconv.Itoa(f.AppCode),
	}

	size := len(f.Content)
	for _, s := range fields {
		size += PrefixLen + len(s)
	}

	buf := make([]byte, 0, size)
	var err error
	for _, s := range fields {
		if buf, err = appendField(buf, s); err != nil {
			return nil, err
		}
	}
	return append(buf, f.Content...), nil
}

// Decode deserializes a byte slice into a Frame. Everything after the fourth
// field is content. The returned content does not alias data.
func Decode(data []byte) (*Frame, error) {
	var fields [4]string
	off := 0
	for i := range fields {
		length, next, err := DecodeField(data, off)
		if err != nil {
			return nil, err
		}
		fields[i] = string(data[next : next+length])
		off = next + length
	}

	f := &Frame{}

	switch fields[0] {
	case "true":
		f.Global = true
	case "false", NullSentinel:
		// An unspecified scope is treated as unicast; with no resolvable
		// target it is never relayed.
		f.Global = false
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadGlobal, fields[0])
	}

	if fields[1] != NullSentinel {
		t := fields[1]
		f.Target = &t
	}
	if fields[2] != NullSentinel {
		s := fields[2]
		f.Source = &s
	}

	code, err := strconv.Atoi(fields[3])
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBadAppCode, fields[3])
	}
	f.AppCode = code

	f.Content = make([]byte, len(data)-off)
	copy(f.Content, data[off:])
	return f, nil
}
