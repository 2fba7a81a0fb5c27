package util

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/google/uuid"
)

// NewDeviceID returns a random MAC-like identifier ("AB:CD:EF:01:23:45")
// for a device that has no hardware address to offer.
func NewDeviceID() string {
	u := uuid.New()
	return formatMAC(u[:6])
}

// DeviceIDFromAddr derives a stable MAC-like identifier from a network
// address string. It is used when a peer connects without announcing its own
// identifier. The hash is used solely for identification and does not need to
// be reversible.
func DeviceIDFromAddr(addr string) string {
	h := fnv.New64a()
	h.Write([]byte(addr))
	sum := h.Sum(nil)
	return formatMAC(sum[:6])
}

func formatMAC(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(parts, ":")
}
