package authapi

import (
	"testing"
	"time"
)

func TestIPLimiter_BurstThenRetryAfter(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	l := newIPLimiter(6, 2) // one token every 10s

	for i := 0; i < 2; i++ {
		if ok, _ := l.allow("10.0.0.1", now); !ok {
			t.Fatalf("request %d should pass within burst", i)
		}
	}

	ok, retry := l.allow("10.0.0.1", now)
	if ok {
		t.Fatalf("expected third request to be limited")
	}
	if retry <= 0 || retry > 10*time.Second {
		t.Fatalf("unexpected retry=%v", retry)
	}

	// Another client is unaffected.
	if ok, _ := l.allow("10.0.0.2", now); !ok {
		t.Fatalf("expected independent bucket per key")
	}

	if ok, _ := l.allow("10.0.0.1", now.Add(10*time.Second)); !ok {
		t.Fatalf("expected a token after refill")
	}
}

func TestIPLimiter_SweepsIdleBuckets(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	l := newIPLimiter(60, 5)
	l.lastSweep = now

	_, _ = l.allow("a", now)
	_, _ = l.allow("b", now)

	_, _ = l.allow("c", now.Add(limiterSweepEvery))
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.buckets["a"]; ok {
		t.Fatalf("idle bucket a should be swept")
	}
	if _, ok := l.buckets["c"]; !ok {
		t.Fatalf("current bucket must survive the sweep")
	}
}

func TestIPLimiter_DisabledOrKeyless(t *testing.T) {
	var l *ipLimiter
	if ok, _ := l.allow("x", time.Now()); !ok {
		t.Fatalf("nil limiter must allow")
	}
	if newIPLimiter(0, 0) != nil {
		t.Fatalf("zero rate disables the limiter")
	}
	l = newIPLimiter(1, 1)
	for i := 0; i < 3; i++ {
		if ok, _ := l.allow("", time.Now()); !ok {
			t.Fatalf("keyless requests are not limited")
		}
	}
}
