package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	v1 "github.com/haontuhcmut/chat-app/contracts/realtime/v1"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveOne(t *testing.T, sub Subscription) v1.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	raw, err := sub.Receive(ctx)
	require.NoError(t, err)
	env, err := v1.Decode(raw)
	require.NoError(t, err)
	return env
}

func TestPublisher_EventShapes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	bus := NewMemoryBus(8)
	sub, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	p := NewPublisher(bus, nil, nil)
	p.now = func() time.Time { return time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC) }

	require.NoError(t, p.NewMessage(ctx, "B", v1.NewMessageEvent{Content: "hi"}))
	env := receiveOne(t, sub)
	assert.Equal(t, "user:B", env.Key)
	assert.JSONEq(t, `{"event":"new_message","content":"hi"}`, string(env.Data))

	require.NoError(t, p.ReadReceipt(ctx, "A", v1.ReadReceiptEvent{ConversationID: "c1", ReaderID: "B", LastReadID: "m9"}))
	env = receiveOne(t, sub)
	assert.Equal(t, "user:A", env.Key)
	assert.JSONEq(t, `{"event":"read_receipt","conversation_id":"c1","reader_id":"B","last_read_message_id":"m9","read_at":"2026-02-03T04:05:06Z"}`, string(env.Data))

	require.NoError(t, p.Presence(ctx, "A", true))
	env = receiveOne(t, sub)
	assert.JSONEq(t, `{"event":"presence","user_id":"A","online":true,"at":"2026-02-03T04:05:06Z"}`, string(env.Data))
}

func TestPublisher_RejectsPayloadWithoutEvent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := NewPublisher(NewMemoryBus(1), nil, nil)

	assert.Error(t, p.Publish(ctx, "user:x", map[string]string{"content": "hi"}))
	assert.Error(t, p.Publish(ctx, "user:x", []int{1, 2}))
	assert.Error(t, p.Publish(ctx, "", map[string]string{"event": "x"}))
	assert.Error(t, p.Publish(ctx, "user:x", func() {}))
	assert.NoError(t, p.Publish(ctx, "user:x", json.RawMessage(`{"event":"custom","n":1}`)))
}

func TestPublisher_PresenceHookFromRegistry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	bus := NewMemoryBus(8)
	sub, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	p := NewPublisher(bus, nil, nil)
	reg := NewRegistry(nil, nil, WithPresence(p.PresenceHook(time.Second)))

	h := newFakeHandle("h")
	_, err = reg.Connect("user:A", h)
	require.NoError(t, err)

	var ev v1.PresenceEvent
	require.NoError(t, json.Unmarshal(receiveOne(t, sub).Data, &ev))
	assert.Equal(t, "A", ev.UserID)
	assert.True(t, ev.Online)

	reg.Disconnect("user:A", h)
	require.NoError(t, json.Unmarshal(receiveOne(t, sub).Data, &ev))
	assert.False(t, ev.Online)
}
