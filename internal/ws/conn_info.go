package ws

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// ConnInfo captures handshake metadata for lifecycle events and audit.
type ConnInfo struct {
	ConnID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
