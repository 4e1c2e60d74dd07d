// Package ids provides the id primitives used across the service:
// UUIDs for users and ULIDs for token and connection identifiers.
package ids

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewULID returns a new ULID string (26 chars).
// ULIDs are lexicographically sortable, which keeps jti values readable in logs.
func NewULID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewUserID returns a random (v4) UUID string for a new user.
func NewUserID() string {
	return uuid.NewString()
}

// ValidUserID reports whether s parses as a UUID.
func ValidUserID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
