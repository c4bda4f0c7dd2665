// Package idgen generates random identifiers for requests and stream events.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

// Hex returns numBytes of randomness as lowercase hex. If the system random
// source fails it falls back to the current time in nanoseconds.
func Hex(numBytes int) string {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(b)
}

// RequestID identifies one HTTP request in logs and the X-Request-ID header.
func RequestID() string { return Hex(16) }

// WithPrefix returns prefix followed by 24 hex chars, e.g. "evt_3f9a...".
func WithPrefix(prefix string) string { return prefix + Hex(12) }
