package timer

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/ujianku/sesi-backend/internal/deadline"
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
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestReconciler(deadlineIn time.Duration, onExpire func()) (*Reconciler, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)}
	var dl time.Time
	if deadlineIn > 0 {
		dl = clock.now.Add(deadlineIn)
	}
	rec := New(Config{
		Deadline: dl,
		OnExpire: onExpire,
		Now:      clock.Now,
		Log:      zerolog.Nop(),
	})
	return rec, clock
}

func TestNoDeadlineStaysNoTimer(t *testing.T) {
	rec, _ := newTestReconciler(0, func() { t.Fatal("no-timer reconciler must never expire") })
	if rec.State() != StateNoTimer {
		t.Fatalf("state = %v, want StateNoTimer", rec.State())
	}
	if got := rec.Resync(); got != 0 {
		t.Fatalf("remaining = %d", got)
	}
}

func TestRemainingIsMonotonic(t *testing.T) {
	rec, clock := newTestReconciler(90*time.Second, func() {})

	prev := rec.Resync()
	for i := 0; i < 120; i++ {
		clock.Advance(time.Second)
		cur := rec.Resync()
		if cur > prev {
			t.Fatalf("remaining increased: %d -> %d at tick %d", prev, cur, i)
		}
		prev = cur
	}
	if prev != 0 {
		t.Fatalf("remaining after deadline = %d, want 0", prev)
	}
}

func TestResyncBoundsDrift(t *testing.T) {
	rec, clock := newTestReconciler(300*time.Second, func() {})

	// Simulate a backgrounded tab: 2 minutes pass with no ticks, then a
	// visibility-regain resync recomputes from the absolute deadline.
	clock.Advance(2 * time.Minute)
	if got := rec.Resync(); got != 180 {
		t.Fatalf("remaining after resync = %d, want 180", got)
	}
}

func TestExpiryFiresExactlyOnce(t *testing.T) {
	var fired atomic.Int32
	rec, clock := newTestReconciler(3*time.Second, func() { fired.Add(1) })

	clock.Advance(5 * time.Second)

	// A storm of concurrent ticks and visibility resyncs around expiry.
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				rec.Resync()
			}
		}()
	}
	wg.Wait()

	if n := fired.Load(); n != 1 {
		t.Fatalf("finish fired %d times, want exactly 1", n)
	}
	if rec.State() != StateExpiring {
		t.Fatalf("state = %v, want StateExpiring", rec.State())
	}
}

func TestStopWithoutExpiryNeverFires(t *testing.T) {
	var fired atomic.Int32
	rec, clock := newTestReconciler(10*time.Second, func() { fired.Add(1) })

	rec.Stop()
	clock.Advance(time.Minute)
	// Stop tears down the run loop; a straggling resync after the
	// deadline would still latch, so transitions tear down before the
	// deadline passes in practice. Here no resync happens at all.
	if n := fired.Load(); n != 0 {
		t.Fatalf("finish fired %d times after Stop", n)
	}
}

func TestRemainingRoundsUpPartialSeconds(t *testing.T) {
	rec, clock := newTestReconciler(2500*time.Millisecond, func() {})
	if got := rec.Resync(); got != 3 {
		t.Fatalf("remaining = %d, want 3", got)
	}
	clock.Advance(time.Second)
	if got := rec.Resync(); got != 2 {
		t.Fatalf("remaining = %d, want 2", got)
	}
}

func TestManagerKeepsLiveReconcilerPerKey(t *testing.T) {
	m := NewManager(zerolog.Nop())
	defer m.Shutdown()

	key := deadline.Key{SessionID: 9}
	dl := time.Now().Add(time.Hour)

	first := m.Ensure(key, dl, func() {})
	second := m.Ensure(key, dl, func() {})
	if first != second {
		t.Fatal("duplicate mount for the same key must share one reconciler")
	}

	m.Teardown(key)
	if got := m.Resync(key); got != -1 {
		t.Fatalf("resync after teardown = %d, want -1", got)
	}

	third := m.Ensure(key, dl, func() {})
	if third == first {
		t.Fatal("teardown must drop the old reconciler")
	}
}

func TestManagerEnsureWithElapsedDeadline(t *testing.T) {
	m := NewManager(zerolog.Nop())
	defer m.Shutdown()

	key := deadline.Key{SessionID: 7}
	fired := make(chan struct{})

	// Continuing a scope whose deadline passed while nothing was mounted
	// must return immediately and dispatch the finish.
	rec := m.Ensure(key, time.Now().Add(-time.Second), func() { close(fired) })
	if got := rec.Remaining(); got != 0 {
		t.Fatalf("remaining = %d, want 0", got)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("finish never dispatched for an elapsed deadline")
	}

	// The expired reconciler is dropped once the finish dispatch ran.
	giveUp := time.After(2 * time.Second)
	for m.Resync(key) != -1 {
		select {
		case <-giveUp:
			t.Fatal("expired reconciler was not torn down")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	// The manager stays usable for the same key afterwards.
	if again := m.Ensure(key, time.Now().Add(time.Hour), func() {}); again == rec {
		t.Fatal("a new countdown must not reuse the expired reconciler")
	}
}

func TestManagerResyncReportsRemaining(t *testing.T) {
	m := NewManager(zerolog.Nop())
	defer m.Shutdown()

	key := deadline.Key{SessionID: 4}
	m.Ensure(key, time.Now().Add(30*time.Second), func() {})

	got := m.Resync(key)
	if got < 29 || got > 30 {
		t.Fatalf("remaining = %d, want ≈30", got)
	}
}
