package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	id string

	mu     sync.Mutex
	got    []json.RawMessage
	fail   bool
	closed bool
}

func newFakeHandle(id string) *fakeHandle { return &fakeHandle{id: id} }

func (h *fakeHandle) ID() string { return h.id }

func (h *fakeHandle) Deliver(p json.RawMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail || h.closed {
		return errors.New("broken pipe")
	}
	h.got = append(h.got, p)
	return nil
}

func (h *fakeHandle) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
}

func (h *fakeHandle) received() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.got))
	for i, p := range h.got {
		out[i] = string(p)
	}
	return out
}

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func TestRegistry_SendReachesOnlyMatchingKey(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil, nil)

	a1, a2, b1 := newFakeHandle("a1"), newFakeHandle("a2"), newFakeHandle("b1")
	first, err := r.Connect("user:a", a1)
	require.NoError(t, err)
	assert.True(t, first)
	first, err = r.Connect("user:a", a2)
	require.NoError(t, err)
	assert.False(t, first)
	_, err = r.Connect("user:b", b1)
	require.NoError(t, err)

	n := r.Send("user:a", json.RawMessage(`{"event":"x"}`))
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{`{"event":"x"}`}, a1.received())
	assert.Equal(t, []string{`{"event":"x"}`}, a2.received())
	assert.Empty(t, b1.received())

	assert.Zero(t, r.Send("user:nobody", json.RawMessage(`{}`)))
}

func TestRegistry_DisconnectPrunesEmptyKey(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil, nil)

	h1, h2 := newFakeHandle("1"), newFakeHandle("2")
	_, _ = r.Connect("user:a", h1)
	_, _ = r.Connect("user:a", h2)
	assert.Equal(t, []string{"user:a"}, r.Keys())

	assert.False(t, r.Disconnect("user:a", h1))
	assert.Equal(t, 1, r.Count("user:a"))
	assert.True(t, r.Disconnect("user:a", h2))
	assert.Empty(t, r.Keys())
	assert.Zero(t, r.Count("user:a"))

	// Unknown and repeated disconnects are no-ops.
	assert.False(t, r.Disconnect("user:a", h2))
	assert.False(t, r.Disconnect("user:zzz", h1))
}

func TestRegistry_FailingHandleDoesNotBlockSiblings(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil, nil)

	good, bad := newFakeHandle("good"), newFakeHandle("bad")
	bad.fail = true
	_, _ = r.Connect("user:a", good)
	_, _ = r.Connect("user:a", bad)

	n := r.Send("user:a", json.RawMessage(`{"event":"x"}`))
	assert.Equal(t, 1, n)
	assert.Len(t, good.received(), 1)
	assert.True(t, bad.isClosed())
	assert.Equal(t, 1, r.Count("user:a"))

	// Once the only handle fails the key disappears.
	good.fail = true
	assert.Zero(t, r.Send("user:a", json.RawMessage(`{"event":"y"}`)))
	assert.Empty(t, r.Keys())
}

func TestRegistry_HandleBoundToOneKey(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil, nil)

	h := newFakeHandle("h")
	_, err := r.Connect("user:a", h)
	require.NoError(t, err)
	_, err = r.Connect("user:b", h)
	assert.ErrorIs(t, err, ErrHandleBound)

	r.Disconnect("user:a", h)
	_, err = r.Connect("user:b", h)
	assert.NoError(t, err)
}

func TestRegistry_PresenceHook(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		events []string
	)
	r := NewRegistry(nil, nil, WithPresence(func(key string, online bool) {
		mu.Lock()
		events = append(events, fmt.Sprintf("%s:%v", key, online))
		mu.Unlock()
	}))

	h1, h2 := newFakeHandle("1"), newFakeHandle("2")
	_, _ = r.Connect("user:a", h1)
	_, _ = r.Connect("user:a", h2)
	r.Disconnect("user:a", h1)
	r.Disconnect("user:a", h2)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"user:a:true", "user:a:false"}, events)
}

// A reconnect that races the previous socket's offline announcement must not
// be overtaken by it.
func TestRegistry_PresenceReconnectDuringOfflineHook(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		events  []string
		holding = make(chan struct{})
		release = make(chan struct{})
	)
	r := NewRegistry(nil, nil, WithPresence(func(key string, online bool) {
		if !online {
			close(holding)
			<-release
		}
		mu.Lock()
		events = append(events, fmt.Sprintf("%s:%v", key, online))
		mu.Unlock()
	}))

	h1, h2 := newFakeHandle("1"), newFakeHandle("2")
	_, err := r.Connect("user:a", h1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.Disconnect("user:a", h1)
	}()
	<-holding
	go func() {
		defer wg.Done()
		first, err := r.Connect("user:a", h2)
		assert.NoError(t, err)
		assert.True(t, first)
	}()

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"user:a:true", "user:a:false", "user:a:true"}, events)
	assert.Equal(t, 1, r.Count("user:a"))
}

func TestRegistry_PresenceSettlesUnderFlapping(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		last = make(map[string]bool)
		bad  []string
	)
	r := NewRegistry(nil, nil, WithPresence(func(key string, online bool) {
		mu.Lock()
		defer mu.Unlock()
		if prev, ok := last[key]; (ok && prev == online) || (!ok && !online) {
			bad = append(bad, fmt.Sprintf("%s:%v", key, online))
		}
		last[key] = online
	}))

	const (
		keys    = 4
		workers = 16
		rounds  = 200
	)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				key := fmt.Sprintf("user:%d", (w+i)%keys)
				h := newFakeHandle(fmt.Sprintf("w%d-%d", w, i))
				if _, err := r.Connect(key, h); err != nil {
					t.Errorf("connect: %v", err)
					return
				}
				r.Disconnect(key, h)
			}
		}(w)
	}
	// One handle stays on user:0 for the whole run.
	keep := newFakeHandle("keeper")
	_, err := r.Connect("user:0", keep)
	require.NoError(t, err)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, bad, "presence must alternate per key")
	assert.True(t, last["user:0"])
	for k := 1; k < keys; k++ {
		key := fmt.Sprintf("user:%d", k)
		assert.False(t, last[key], key)
		assert.Zero(t, r.Count(key))
	}

	r.laneMu.Lock()
	defer r.laneMu.Unlock()
	assert.Len(t, r.lanes, 1)
}

func TestRegistry_ConcurrentConnectDisconnect(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil, nil)

	const (
		keys    = 8
		workers = 16
		rounds  = 200
	)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				key := fmt.Sprintf("user:%d", (w+i)%keys)
				h := newFakeHandle(fmt.Sprintf("w%d-%d", w, i))
				_, err := r.Connect(key, h)
				if err != nil {
					t.Errorf("connect: %v", err)
					return
				}
				r.Send(key, json.RawMessage(`{"event":"tick"}`))
				r.Disconnect(key, h)
			}
		}(w)
	}
	wg.Wait()

	assert.Empty(t, r.Keys())
}

func TestRegistry_CloseAll(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil, nil)

	hs := []*fakeHandle{newFakeHandle("1"), newFakeHandle("2"), newFakeHandle("3")}
	_, _ = r.Connect("user:a", hs[0])
	_, _ = r.Connect("user:a", hs[1])
	_, _ = r.Connect("user:b", hs[2])

	r.CloseAll()
	for _, h := range hs {
		assert.True(t, h.isClosed())
	}
}
