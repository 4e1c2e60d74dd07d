package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	v1 "github.com/haontuhcmut/chat-app/contracts/realtime/v1"
)

const (
	listenerMinBackoff = 100 * time.Millisecond
	listenerMaxBackoff = 10 * time.Second
)

// Listener drains the Bus and hands each envelope to the local Registry.
// One runs per process for its whole lifetime.
type Listener struct {
	bus     Bus
	reg     *Registry
	log     *slog.Logger
	metrics *Metrics

	minBackoff time.Duration
	maxBackoff time.Duration

	readyOnce sync.Once
	ready     chan struct{}
}

// NewListener constructs a Listener.
func NewListener(bus Bus, reg *Registry, log *slog.Logger, m *Metrics) *Listener {
	if log == nil {
		log = slog.Default()
	}
	return &Listener{
		bus:        bus,
		reg:        reg,
		log:        log,
		metrics:    m.orNop(),
		minBackoff: listenerMinBackoff,
		maxBackoff: listenerMaxBackoff,
		ready:      make(chan struct{}),
	}
}

// Ready is closed after the first successful subscription.
func (l *Listener) Ready() <-chan struct{} { return l.ready }

// Run subscribes and dispatches until ctx is cancelled, re-subscribing with
// capped exponential backoff after bus errors. It returns nil on cancellation.
func (l *Listener) Run(ctx context.Context) error {
	backoff := l.minBackoff

	for {
		if ctx.Err() != nil {
			return nil
		}

		sub, err := l.bus.Subscribe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.log.Warn("fanout.subscribe.fail", "err", err, "retry_in", backoff)
			if !sleepCtx(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff, l.maxBackoff)
			continue
		}

		l.log.Info("fanout.subscribed")
		l.readyOnce.Do(func() { close(l.ready) })

		n, err := l.drain(ctx, sub)
		_ = sub.Close()

		if ctx.Err() != nil {
			l.log.Info("fanout.stopped")
			return nil
		}

		if n > 0 {
			backoff = l.minBackoff
		}
		l.metrics.BusReconnects.Inc()
		l.log.Warn("fanout.receive.fail", "err", err, "retry_in", backoff)
		if !sleepCtx(ctx, backoff) {
			return nil
		}
		backoff = nextBackoff(backoff, l.maxBackoff)
	}
}

func (l *Listener) drain(ctx context.Context, sub Subscription) (int, error) {
	n := 0
	for {
		raw, err := sub.Receive(ctx)
		if err != nil {
			return n, err
		}
		n++
		l.dispatch(raw)
	}
}

func (l *Listener) dispatch(raw []byte) {
	l.metrics.EnvelopesReceived.Inc()

	env, err := v1.Decode(raw)
	if err != nil {
		l.metrics.EnvelopesMalformed.Inc()
		l.log.Warn("fanout.envelope.malformed", "err", err, "bytes", len(raw))
		return
	}

	if n := l.reg.Send(env.Key, env.Data); n > 0 {
		l.log.Debug("fanout.delivered", "key", env.Key, "sockets", n)
	}
}

func nextBackoff(cur, limit time.Duration) time.Duration {
	cur *= 2
	if cur > limit {
		return limit
	}
	return cur
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
