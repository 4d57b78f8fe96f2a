// Package idgen mints random identifiers for request tracing, WebSocket
// clients, and webhook credentials.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// randBytes fills n bytes from the OS entropy source. Entropy failure is
// unrecoverable, so it panics the same way uuid generation does.
func randBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("idgen: entropy source failed: " + err.Error())
	}
	return b
}

// WithPrefix returns prefix followed by 24 hex characters, e.g.
// "wh_1f8a..." for webhook subscriptions or "ws_..." for WebSocket clients.
func WithPrefix(prefix string) string {
	return prefix + hex.EncodeToString(randBytes(12))
}

// Hex returns numBytes random bytes hex-encoded. Request ids use 16
// bytes, webhook signing secrets 32.
func Hex(numBytes int) string {
	return hex.EncodeToString(randBytes(numBytes))
}
