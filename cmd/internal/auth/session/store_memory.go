package session

import (
	"context"
	"sync"
	"time"
)

// MemoryDenylist is an in-process Denylist for single-instance deployments and tests.
type MemoryDenylist struct {
	now func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time // jti -> expiry
}

var _ Denylist = (*MemoryDenylist)(nil)

// NewMemoryDenylist constructs an empty MemoryDenylist. now may be nil.
func NewMemoryDenylist(now func() time.Time) *MemoryDenylist {
	if now == nil {
		now = time.Now
	}
	return &MemoryDenylist{now: now, entries: make(map[string]time.Time)}
}

func (d *MemoryDenylist) Add(ctx context.Context, jti string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if jti == "" || ttl <= 0 {
		return nil
	}

	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.pruneLocked(now)
	if exp, ok := d.entries[jti]; !ok || exp.Before(now.Add(ttl)) {
		d.entries[jti] = now.Add(ttl)
	}
	return nil
}

func (d *MemoryDenylist) Contains(ctx context.Context, jti string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	exp, ok := d.entries[jti]
	if !ok {
		return false, nil
	}
	if !d.now().Before(exp) {
		delete(d.entries, jti)
		return false, nil
	}
	return true, nil
}

// Len returns the number of unexpired entries.
func (d *MemoryDenylist) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pruneLocked(d.now())
	return len(d.entries)
}

func (d *MemoryDenylist) pruneLocked(now time.Time) {
	for jti, exp := range d.entries {
		if !now.Before(exp) {
			delete(d.entries, jti)
		}
	}
}
