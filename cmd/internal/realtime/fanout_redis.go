package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	v1 "github.com/haontuhcmut/chat-app/contracts/realtime/v1"

	"github.com/redis/go-redis/v9"
)

// RedisBus carries envelopes over a Redis pub/sub channel.
type RedisBus struct {
	rdb     redis.UniversalClient
	channel string
}

var _ Bus = (*RedisBus)(nil)

// NewRedisBus constructs a RedisBus. An empty channel selects v1.Channel.
func NewRedisBus(rdb redis.UniversalClient, channel string) *RedisBus {
	if channel == "" {
		channel = v1.Channel
	}
	return &RedisBus{rdb: rdb, channel: channel}
}

// Channel returns the pub/sub channel name.
func (b *RedisBus) Channel() string { return b.channel }

func (b *RedisBus) Publish(ctx context.Context, env v1.Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// Subscribe returns once Redis has confirmed the subscription, so messages
// published after it returns are not missed.
func (b *RedisBus) Subscribe(ctx context.Context) (Subscription, error) {
	ps := b.rdb.Subscribe(ctx, b.channel)
	sub := &redisSubscription{ps: ps}

	// go-redis blocks on the socket until a deadline; cancellation alone
	// does not unblock it, so closing the PubSub does.
	stop := context.AfterFunc(ctx, func() { _ = sub.Close() })
	_, err := ps.Receive(ctx)
	stop()
	if err != nil {
		_ = sub.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("realtime: subscribe %q: %w", b.channel, err)
	}
	return sub, nil
}

type redisSubscription struct {
	ps *redis.PubSub

	closeOnce sync.Once
	closeErr  error
}

func (s *redisSubscription) Receive(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	msg, err := s.ps.ReceiveMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return []byte(msg.Payload), nil
}

// Close releases the subscription. It is safe to call more than once.
func (s *redisSubscription) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.ps.Close() })
	return s.closeErr
}
