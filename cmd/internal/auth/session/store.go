package session

import (
	"context"
	"time"
)

// Store holds the revocation state consulted by Service.
//
// Implementations must be safe under concurrent use from many processes;
// SetCurrentRefreshJTI is an atomic overwrite (last writer wins).
type Store interface {
	// DenylistAdd records jti as revoked for ttl. Idempotent.
	DenylistAdd(ctx context.Context, jti string, ttl time.Duration) error
	IsDenylisted(ctx context.Context, jti string) (bool, error)

	// SetCurrentRefreshJTI overwrites the user's refresh pointer; "" clears it.
	SetCurrentRefreshJTI(ctx context.Context, userID, jti string) error
	// ClearCurrentRefreshJTI clears the pointer only while it still equals jti.
	ClearCurrentRefreshJTI(ctx context.Context, userID, jti string) (cleared bool, err error)
	CurrentRefreshJTI(ctx context.Context, userID string) (jti string, ok bool, err error)
}

// Denylist is a TTL-bounded set of revoked access-token ids.
type Denylist interface {
	Add(ctx context.Context, jti string, ttl time.Duration) error
	Contains(ctx context.Context, jti string) (bool, error)
}

// RefreshPointers stores the current refresh jti alongside user state.
// identity.Store implementations satisfy it.
type RefreshPointers interface {
	SetRefreshJTI(ctx context.Context, userID, jti string) error
	ClearRefreshJTI(ctx context.Context, userID, jti string) (bool, error)
	RefreshJTI(ctx context.Context, userID string) (string, bool, error)
}

// CompositeStore joins a Denylist with the user store's refresh pointers.
type CompositeStore struct {
	deny Denylist
	ptrs RefreshPointers
}

var _ Store = (*CompositeStore)(nil)

// NewStore constructs a Store from its two halves.
func NewStore(deny Denylist, ptrs RefreshPointers) *CompositeStore {
	return &CompositeStore{deny: deny, ptrs: ptrs}
}

func (s *CompositeStore) DenylistAdd(ctx context.Context, jti string, ttl time.Duration) error {
	return s.deny.Add(ctx, jti, ttl)
}

func (s *CompositeStore) IsDenylisted(ctx context.Context, jti string) (bool, error) {
	return s.deny.Contains(ctx, jti)
}

func (s *CompositeStore) SetCurrentRefreshJTI(ctx context.Context, userID, jti string) error {
	return s.ptrs.SetRefreshJTI(ctx, userID, jti)
}

func (s *CompositeStore) ClearCurrentRefreshJTI(ctx context.Context, userID, jti string) (bool, error) {
	return s.ptrs.ClearRefreshJTI(ctx, userID, jti)
}

func (s *CompositeStore) CurrentRefreshJTI(ctx context.Context, userID string) (string, bool, error) {
	return s.ptrs.RefreshJTI(ctx, userID)
}
