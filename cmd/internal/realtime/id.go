package realtime

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/haontuhcmut/chat-app/cmd/identity/ids"
)

// sidBytes is the entropy of a handshake session id.
const sidBytes = 32

// NewConnID returns a ULID identifying one socket in logs and in the Registry.
func NewConnID(now time.Time) (string, error) {
	return ids.NewULID(now)
}

// NewSessionID returns an opaque, URL-safe handshake session id.
func NewSessionID() (string, error) {
	b := make([]byte, sidBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// validSessionID rejects ids that could not have come from NewSessionID
// before any store round trip.
func validSessionID(sid string) bool {
	if len(sid) != base64.RawURLEncoding.EncodedLen(sidBytes) {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(sid)
	return err == nil
}
