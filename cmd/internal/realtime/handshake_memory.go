package realtime

import (
	"context"
	"sync"
	"time"
)

// MemoryHandshakeStore is an in-process HandshakeStore for single-instance
// deployments and tests. Take deletes under the same lock it reads with.
type MemoryHandshakeStore struct {
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memHandshake
}

type memHandshake struct {
	userID string
	exp    time.Time
}

var _ HandshakeStore = (*MemoryHandshakeStore)(nil)

// NewMemoryHandshakeStore constructs an empty store. now may be nil.
func NewMemoryHandshakeStore(now func() time.Time) *MemoryHandshakeStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryHandshakeStore{now: now, entries: make(map[string]memHandshake)}
}

func (s *MemoryHandshakeStore) Put(ctx context.Context, sid, userID string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, e := range s.entries {
		if !now.Before(e.exp) {
			delete(s.entries, k)
		}
	}
	s.entries[sid] = memHandshake{userID: userID, exp: now.Add(ttl)}
	return nil
}

func (s *MemoryHandshakeStore) Take(ctx context.Context, sid string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[sid]
	if !ok {
		return "", false, nil
	}
	delete(s.entries, sid)
	if !s.now().Before(e.exp) {
		return "", false, nil
	}
	return e.userID, true, nil
}
