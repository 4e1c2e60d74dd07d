package realtime

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const handshakeKeyPrefix = "ws_session:"

// RedisHandshakeStore keeps session ids as expiring Redis keys and consumes
// them with GETDEL.
type RedisHandshakeStore struct {
	rdb redis.UniversalClient
}

var _ HandshakeStore = (*RedisHandshakeStore)(nil)

func NewRedisHandshakeStore(rdb redis.UniversalClient) *RedisHandshakeStore {
	return &RedisHandshakeStore{rdb: rdb}
}

func (s *RedisHandshakeStore) Put(ctx context.Context, sid, userID string, ttl time.Duration) error {
	return s.rdb.Set(ctx, handshakeKeyPrefix+sid, userID, ttl).Err()
}

func (s *RedisHandshakeStore) Take(ctx context.Context, sid string) (string, bool, error) {
	userID, err := s.rdb.GetDel(ctx, handshakeKeyPrefix+sid).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return userID, true, nil
}
