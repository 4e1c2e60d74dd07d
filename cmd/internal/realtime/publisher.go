package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	v1 "github.com/haontuhcmut/chat-app/contracts/realtime/v1"
)

// Publisher serializes domain events and puts them on the Bus.
// Business code uses it instead of touching sockets.
type Publisher struct {
	bus     Bus
	log     *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewPublisher constructs a Publisher.
func NewPublisher(bus Bus, log *slog.Logger, m *Metrics) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{bus: bus, log: log, metrics: m.orNop(), now: time.Now}
}

// Publish sends data to every socket registered under key, on any process.
// data must marshal to a JSON object with a non-empty "event" field.
func (p *Publisher) Publish(ctx context.Context, key string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("realtime: marshal event: %w", err)
	}

	env := v1.Envelope{Key: key, Data: raw}
	if err := env.Validate(); err != nil {
		return fmt.Errorf("realtime: %w", err)
	}
	var head struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(raw, &head); err != nil || head.Event == "" {
		return errors.New("realtime: event payload requires an \"event\" field")
	}

	if err := p.bus.Publish(ctx, env); err != nil {
		return fmt.Errorf("realtime: publish: %w", err)
	}
	p.metrics.EnvelopesPublished.Inc()
	return nil
}

// PublishToUser publishes data to the user's recipient key.
func (p *Publisher) PublishToUser(ctx context.Context, userID string, data any) error {
	return p.Publish(ctx, v1.RecipientKey(userID), data)
}

// NewMessage notifies recipientID about a new message.
func (p *Publisher) NewMessage(ctx context.Context, recipientID string, ev v1.NewMessageEvent) error {
	ev.Event = v1.EventNewMessage
	return p.PublishToUser(ctx, recipientID, ev)
}

// ReadReceipt notifies recipientID that a conversation was read.
func (p *Publisher) ReadReceipt(ctx context.Context, recipientID string, ev v1.ReadReceiptEvent) error {
	ev.Event = v1.EventReadReceipt
	if ev.ReadAt.IsZero() {
		ev.ReadAt = p.now().UTC()
	}
	return p.PublishToUser(ctx, recipientID, ev)
}

// Presence publishes the user's online state to the user's own key.
func (p *Publisher) Presence(ctx context.Context, userID string, online bool) error {
	return p.PublishToUser(ctx, userID, v1.PresenceEvent{
		Event:  v1.EventPresence,
		UserID: userID,
		Online: online,
		At:     p.now().UTC(),
	})
}

// PresenceHook adapts Presence to a Registry hook. Publishing is bounded by
// timeout and failures are logged.
func (p *Publisher) PresenceHook(timeout time.Duration) PresenceFunc {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return func(key string, online bool) {
		userID, ok := v1.UserIDFromKey(key)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := p.Presence(ctx, userID, online); err != nil {
			p.log.Warn("presence.publish.fail", "user_id", userID, "online", online, "err", err)
		}
	}
}
