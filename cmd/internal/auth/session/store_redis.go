package session

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const denylistKeyPrefix = "denylist:jti:"

// RedisDenylist stores revoked jtis as expiring Redis keys.
// Entries are never deleted explicitly; Redis expiry cleans them up.
type RedisDenylist struct {
	rdb redis.UniversalClient
}

var _ Denylist = (*RedisDenylist)(nil)

// NewRedisDenylist constructs a RedisDenylist over a caller-owned client.
func NewRedisDenylist(rdb redis.UniversalClient) *RedisDenylist {
	return &RedisDenylist{rdb: rdb}
}

func (d *RedisDenylist) Add(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		// Nothing to revoke: an expired token is already unusable.
		return nil
	}
	// Redis rejects sub-millisecond expirations.
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	return d.rdb.Set(ctx, denylistKeyPrefix+jti, "1", ttl).Err()
}

func (d *RedisDenylist) Contains(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	n, err := d.rdb.Exists(ctx, denylistKeyPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
