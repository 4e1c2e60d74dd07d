package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidHandshake is returned when a session id is absent, unknown,
// expired or already consumed.
var ErrInvalidHandshake = errors.New("invalid handshake")

// HandshakeStore persists session id -> user id with a TTL.
//
// Take must read and delete in one atomic step: of N concurrent Take calls
// for the same sid, at most one may return ok=true.
type HandshakeStore interface {
	Put(ctx context.Context, sid, userID string, ttl time.Duration) error
	Take(ctx context.Context, sid string) (userID string, ok bool, err error)
}

// HandshakeBroker exchanges an authenticated identity for a one-time socket session id.
type HandshakeBroker struct {
	store   HandshakeStore
	ttl     time.Duration
	metrics *Metrics
}

// NewHandshakeBroker constructs a broker. ttl <= 0 selects the 5 minute default.
func NewHandshakeBroker(store HandshakeStore, ttl time.Duration, m *Metrics) *HandshakeBroker {
	if ttl <= 0 {
		ttl = defaultHandshakeTTL
	}
	return &HandshakeBroker{store: store, ttl: ttl, metrics: m.orNop()}
}

// TTL returns the lifetime of issued session ids.
func (b *HandshakeBroker) TTL() time.Duration { return b.ttl }

// Issue stores a fresh session id bound to userID.
func (b *HandshakeBroker) Issue(ctx context.Context, userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("realtime: empty user id")
	}
	sid, err := NewSessionID()
	if err != nil {
		return "", fmt.Errorf("realtime: session id: %w", err)
	}
	if err := b.store.Put(ctx, sid, userID, b.ttl); err != nil {
		return "", fmt.Errorf("realtime: handshake put: %w", err)
	}
	b.metrics.HandshakesIssued.Inc()
	return sid, nil
}

// Consume atomically takes sid and returns its user id. A second Consume of the
// same sid fails with ErrInvalidHandshake. Store failures are returned as-is.
func (b *HandshakeBroker) Consume(ctx context.Context, sid string) (string, error) {
	sid = strings.TrimSpace(sid)
	if !validSessionID(sid) {
		b.metrics.HandshakesRejected.Inc()
		return "", ErrInvalidHandshake
	}

	userID, ok, err := b.store.Take(ctx, sid)
	if err != nil {
		return "", fmt.Errorf("realtime: handshake take: %w", err)
	}
	if !ok || userID == "" {
		b.metrics.HandshakesRejected.Inc()
		return "", ErrInvalidHandshake
	}
	b.metrics.HandshakesConsumed.Inc()
	return userID, nil
}
