package realtime

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
)

// Handle is one live socket as seen by the Registry.
type Handle interface {
	ID() string
	// Deliver queues payload for the socket. It must not block; an error means
	// the socket can no longer accept writes.
	Deliver(payload json.RawMessage) error
	Close()
}

// ErrHandleBound is returned when a handle is already registered under another key.
var ErrHandleBound = errors.New("realtime: handle already bound to a different key")

// PresenceFunc is invoked after a key gains its first handle (online=true)
// or loses its last one (online=false). Calls for one key are serialized and
// alternate, and the last call always matches the key's current state. It runs
// outside the registry and bucket locks but must not call back into the Registry.
type PresenceFunc func(key string, online bool)

// Registry maps recipient keys to the live handles this process holds.
//
// Locking: the registry lock guards the key -> bucket map and handle ownership
// only. Every mutation and snapshot of a key's handle set happens under that
// key's bucket lock, so one key never blocks another. Presence announcements
// run under a per-key lane that is taken after those locks are released.
type Registry struct {
	log      *slog.Logger
	metrics  *Metrics
	presence PresenceFunc

	mu      sync.RWMutex
	buckets map[string]*bucket
	owners  map[string]string // handle id -> key

	laneMu sync.Mutex
	lanes  map[string]*presenceLane
}

// presenceLane serializes presence announcements for one key.
type presenceLane struct {
	mu     sync.Mutex
	online bool // last announced state, guarded by mu
	refs   int  // guarded by Registry.laneMu
}

type bucket struct {
	mu      sync.Mutex
	dead    bool // set when emptied; a dead bucket is never reused
	handles map[string]Handle
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithPresence sets the hook called on first connect / last disconnect of a key.
func WithPresence(fn PresenceFunc) RegistryOption {
	return func(r *Registry) { r.presence = fn }
}

// NewRegistry constructs an empty Registry.
func NewRegistry(log *slog.Logger, m *Metrics, opts ...RegistryOption) *Registry {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{
		log:     log,
		metrics: m.orNop(),
		buckets: make(map[string]*bucket),
		owners:  make(map[string]string),
		lanes:   make(map[string]*presenceLane),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Connect registers h under key. It reports whether h is the key's first handle.
func (r *Registry) Connect(key string, h Handle) (bool, error) {
	id := h.ID()
	for {
		b, err := r.bucketFor(key, id)
		if err != nil {
			return false, err
		}

		b.mu.Lock()
		if b.dead {
			b.mu.Unlock()
			r.prune(key, b)
			continue
		}
		_, dup := b.handles[id]
		first := len(b.handles) == 0
		b.handles[id] = h
		b.mu.Unlock()

		if !dup {
			r.metrics.ActiveSockets.Inc()
		}
		if first {
			r.metrics.RegistryKeys.Inc()
			r.announce(key)
		}
		return first, nil
	}
}

// Disconnect removes h from key. When the set becomes empty the key is pruned.
// It reports whether h was the key's last handle. Unknown handles are ignored.
func (r *Registry) Disconnect(key string, h Handle) bool {
	r.mu.RLock()
	b := r.buckets[key]
	r.mu.RUnlock()
	if b == nil {
		return false
	}

	id := h.ID()

	b.mu.Lock()
	cur, ok := b.handles[id]
	if !ok || cur != h {
		b.mu.Unlock()
		return false
	}
	delete(b.handles, id)
	last := len(b.handles) == 0
	if last {
		b.dead = true
	}
	b.mu.Unlock()

	r.mu.Lock()
	if r.owners[id] == key {
		delete(r.owners, id)
	}
	if last && r.buckets[key] == b {
		delete(r.buckets, key)
	}
	r.mu.Unlock()

	r.metrics.ActiveSockets.Dec()
	if last {
		r.metrics.RegistryKeys.Dec()
		r.announce(key)
	}
	return last
}

// Send delivers payload to every handle registered under key when the call
// starts. Handles that fail are disconnected and closed; the rest still receive
// the payload. It returns the number of successful deliveries.
func (r *Registry) Send(key string, payload json.RawMessage) int {
	r.mu.RLock()
	b := r.buckets[key]
	r.mu.RUnlock()
	if b == nil {
		return 0
	}

	b.mu.Lock()
	snapshot := make([]Handle, 0, len(b.handles))
	for _, h := range b.handles {
		snapshot = append(snapshot, h)
	}
	b.mu.Unlock()

	delivered := 0
	var failed []Handle
	for _, h := range snapshot {
		if err := h.Deliver(payload); err != nil {
			r.log.Info("registry.deliver.fail", "key", key, "conn_id", h.ID(), "err", err)
			failed = append(failed, h)
			continue
		}
		delivered++
	}

	for _, h := range failed {
		r.Disconnect(key, h)
		h.Close()
	}

	r.metrics.Deliveries.Add(float64(delivered))
	r.metrics.DeliveryFailures.Add(float64(len(failed)))
	return delivered
}

// Keys returns the keys that currently hold at least one handle, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.buckets))
	for k := range r.buckets {
		out = append(out, k)
	}
	r.mu.RUnlock()

	sort.Strings(out)
	return out
}

// Count returns the number of handles registered under key.
func (r *Registry) Count(key string) int {
	r.mu.RLock()
	b := r.buckets[key]
	r.mu.RUnlock()
	if b == nil {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handles)
}

// CloseAll closes every registered handle. Handles unregister themselves as
// their socket loops exit.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	buckets := make([]*bucket, 0, len(r.buckets))
	for _, b := range r.buckets {
		buckets = append(buckets, b)
	}
	r.mu.RUnlock()

	for _, b := range buckets {
		b.mu.Lock()
		hs := make([]Handle, 0, len(b.handles))
		for _, h := range b.handles {
			hs = append(hs, h)
		}
		b.mu.Unlock()

		for _, h := range hs {
			h.Close()
		}
	}
}

func (r *Registry) bucketFor(key, handleID string) (*bucket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.owners[handleID]; ok && owner != key {
		return nil, ErrHandleBound
	}
	b := r.buckets[key]
	if b == nil {
		b = &bucket{handles: make(map[string]Handle)}
		r.buckets[key] = b
	}
	r.owners[handleID] = key
	return b, nil
}

func (r *Registry) prune(key string, b *bucket) {
	r.mu.Lock()
	if r.buckets[key] == b {
		delete(r.buckets, key)
	}
	r.mu.Unlock()
}

// announce reconciles the announced presence of key with its handle count.
// A flap that crosses goroutines can finish its transitions out of order; the
// re-read under the lane lock keeps the announced state from going stale.
func (r *Registry) announce(key string) {
	if r.presence == nil {
		return
	}
	l := r.acquireLane(key)
	defer r.releaseLane(key, l)

	online := r.Count(key) > 0
	if online == l.online {
		return
	}
	l.online = online
	r.presence(key, online)
}

func (r *Registry) acquireLane(key string) *presenceLane {
	r.laneMu.Lock()
	l := r.lanes[key]
	if l == nil {
		l = &presenceLane{}
		r.lanes[key] = l
	}
	l.refs++
	r.laneMu.Unlock()

	l.mu.Lock()
	return l
}

// releaseLane drops an offline lane once nobody else holds or waits on it.
// Lock order is lane then laneMu; acquireLane never waits on a lane while
// holding laneMu.
func (r *Registry) releaseLane(key string, l *presenceLane) {
	r.laneMu.Lock()
	l.refs--
	if l.refs == 0 && !l.online {
		delete(r.lanes, key)
	}
	r.laneMu.Unlock()
	l.mu.Unlock()
}
