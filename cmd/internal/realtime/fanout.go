package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	v1 "github.com/haontuhcmut/chat-app/contracts/realtime/v1"
)

// ErrSubscriptionClosed is returned by Receive after Close.
var ErrSubscriptionClosed = errors.New("realtime: subscription closed")

// Bus is the publish/subscribe channel shared by every backend process.
// Publish is fire-and-forget: no subscriber acknowledges delivery.
type Bus interface {
	Publish(ctx context.Context, env v1.Envelope) error
	Subscribe(ctx context.Context) (Subscription, error)
}

// Subscription yields raw bus messages. Receive blocks until a message
// arrives, the subscription fails, or ctx ends.
type Subscription interface {
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// MemoryBus is a single-process Bus. Slow subscribers drop messages rather
// than block publishers.
type MemoryBus struct {
	buffer int

	mu   sync.RWMutex
	subs map[*memorySubscription]struct{}
}

var _ Bus = (*MemoryBus)(nil)

// NewMemoryBus constructs a MemoryBus whose subscriptions buffer up to buffer messages.
func NewMemoryBus(buffer int) *MemoryBus {
	if buffer <= 0 {
		buffer = 1024
	}
	return &MemoryBus{buffer: buffer, subs: make(map[*memorySubscription]struct{})}
}

func (b *MemoryBus) Publish(ctx context.Context, env v1.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.PublishRaw(ctx, raw)
}

// PublishRaw puts raw bytes on the bus unchanged.
func (b *MemoryBus) PublishRaw(ctx context.Context, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s.ch <- raw:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &memorySubscription{bus: b, ch: make(chan []byte, b.buffer), done: make(chan struct{})}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s, nil
}

type memorySubscription struct {
	bus  *MemoryBus
	ch   chan []byte
	done chan struct{}
	once sync.Once
}

func (s *memorySubscription) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrSubscriptionClosed
	case raw := <-s.ch:
		return raw, nil
	}
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		close(s.done)
	})
	return nil
}
