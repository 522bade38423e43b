package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(rps float64, burst int) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	l := NewLimiter(Config{RequestsPerSecond: rps, BurstSize: burst, Enabled: true}).WithClock(clock.Now)
	return l, clock
}

func TestLimiter_BurstThenReject(t *testing.T) {
	l, _ := newTestLimiter(1, 3)

	for i := 0; i < 3; i++ {
		if ok, _ := l.Allow("s1"); !ok {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	ok, wait := l.Allow("s1")
	if ok {
		t.Fatal("request after burst should be rejected")
	}
	if wait != time.Second {
		t.Errorf("wait = %v, want 1s", wait)
	}
}

func TestLimiter_Refill(t *testing.T) {
	l, clock := newTestLimiter(2, 1)

	if ok, _ := l.Allow("s1"); !ok {
		t.Fatal("first request should be allowed")
	}
	if ok, wait := l.Allow("s1"); ok || wait != 500*time.Millisecond {
		t.Fatalf("second request: ok=%v wait=%v", ok, wait)
	}

	clock.Advance(500 * time.Millisecond)
	if ok, _ := l.Allow("s1"); !ok {
		t.Error("request after refill should be allowed")
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, 1)

	l.Allow("s1")
	if ok, _ := l.Allow("s1"); ok {
		t.Error("s1 should be exhausted")
	}
	if ok, _ := l.Allow("s2"); !ok {
		t.Error("s2 should have its own bucket")
	}
}

func TestLimiter_DisabledAndNil(t *testing.T) {
	l := NewLimiter(Config{RequestsPerSecond: 1, BurstSize: 1})
	for i := 0; i < 10; i++ {
		if ok, _ := l.Allow("s1"); !ok {
			t.Fatal("disabled limiter should allow everything")
		}
	}

	var nilLimiter *Limiter
	if ok, wait := nilLimiter.Allow("s1"); !ok || wait != 0 {
		t.Error("nil limiter should allow")
	}
}

func TestLimiter_Defaults(t *testing.T) {
	l := NewLimiter(Config{Enabled: true})
	if l.config.RequestsPerSecond != DefaultConfig().RequestsPerSecond || l.config.BurstSize != DefaultConfig().BurstSize {
		t.Errorf("config = %+v", l.config)
	}
}

func TestLimiter_PrunesIdleKeys(t *testing.T) {
	l, clock := newTestLimiter(10, 1)
	l.maxKeys = 3

	for i := 0; i < 3; i++ {
		l.Allow(fmt.Sprintf("k%d", i))
	}
	clock.Advance(time.Second)

	l.Allow("fresh")
	if got := l.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1 after pruning idle keys", got)
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	l, _ := newTestLimiter(1, 50)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow("s1"); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("allowed = %d, want 50", allowed)
	}
}
