package deadline

import (
	"context"
	"testing"
	"time"
)

func newTestResolver(t *testing.T, base time.Time) (*Resolver, *MemoryStore, *time.Time) {
	t.Helper()
	store := NewMemoryStore()
	r := NewResolver(store, 24*time.Hour)
	now := base
	r.now = func() time.Time { return now }
	return r, store, &now
}

func TestServerRemainingAlwaysWins(t *testing.T) {
	base := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	r, store, _ := newTestResolver(t, base)
	key := Key{SessionID: 7}
	ctx := context.Background()

	// A previously persisted deadline must be overwritten.
	if err := store.Set(ctx, key, base.Add(5*time.Minute)); err != nil {
		t.Fatal(err)
	}

	res, err := r.Resolve(ctx, key, 120*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Timed {
		t.Fatal("expected timed resolution")
	}
	if want := base.Add(120 * time.Second); !res.Deadline.Equal(want) {
		t.Fatalf("deadline = %v, want now+remaining = %v", res.Deadline, want)
	}
	if res.RemainingSeconds != 120 {
		t.Fatalf("remaining = %d, want 120", res.RemainingSeconds)
	}

	persisted, err := store.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if !persisted.Equal(res.Deadline) {
		t.Fatalf("store not overwritten: %v", persisted)
	}
}

func TestPersistedDeadlineResumesAfterReload(t *testing.T) {
	base := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	r, _, now := newTestResolver(t, base)
	key := Key{SessionID: 7}
	ctx := context.Background()

	// First load: server reports 120s (total_time).
	first, err := r.Resolve(ctx, key, 120*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if first.RemainingSeconds != 120 {
		t.Fatalf("first remaining = %d", first.RemainingSeconds)
	}

	// Reload 30s later with no server-reported remaining: the countdown
	// resumes from the persisted absolute deadline, not from 120.
	*now = base.Add(30 * time.Second)
	second, err := r.Resolve(ctx, key, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Timed {
		t.Fatal("expected timed resolution from persisted deadline")
	}
	if second.RemainingSeconds != 90 {
		t.Fatalf("resumed remaining = %d, want 90", second.RemainingSeconds)
	}
}

func TestStaleDeadlinesRejected(t *testing.T) {
	base := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	ctx := context.Background()

	tests := []struct {
		name      string
		persisted time.Duration // offset from base
	}{
		{name: "already past", persisted: -time.Minute},
		{name: "exactly now", persisted: 0},
		{name: "beyond 24h window", persisted: 25 * time.Hour},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, store, _ := newTestResolver(t, base)
			key := Key{SessionID: 3}
			if err := store.Set(ctx, key, base.Add(tc.persisted)); err != nil {
				t.Fatal(err)
			}

			res, err := r.Resolve(ctx, key, 0)
			if err != nil {
				t.Fatal(err)
			}
			if res.Timed {
				t.Fatalf("stale deadline adopted: %+v", res)
			}
			// The rejected entry is discarded.
			if _, err := store.Get(ctx, key); err != ErrNotFound {
				t.Fatalf("stale entry not cleared: %v", err)
			}
		})
	}
}

func TestNoDeadlineMeansUntimed(t *testing.T) {
	base := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	r, _, _ := newTestResolver(t, base)

	res, err := r.Resolve(context.Background(), Key{SessionID: 11}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Timed {
		t.Fatal("expected untimed resolution")
	}
}

func TestCategoryKeysAreIndependent(t *testing.T) {
	base := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	r, _, _ := newTestResolver(t, base)
	ctx := context.Background()

	catA, catB := int64(1), int64(2)
	if _, err := r.Resolve(ctx, Key{SessionID: 5, CategoryID: &catA}, 60*time.Second); err != nil {
		t.Fatal(err)
	}

	res, err := r.Resolve(ctx, Key{SessionID: 5, CategoryID: &catB}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Timed {
		t.Fatal("category B must not inherit category A's deadline")
	}

	whole, err := r.Resolve(ctx, Key{SessionID: 5}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if whole.Timed {
		t.Fatal("session-wide key must not inherit a category deadline")
	}
}

func TestRemainingSecondsRoundsUp(t *testing.T) {
	now := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	if got := remainingSeconds(now.Add(1500*time.Millisecond), now); got != 2 {
		t.Fatalf("got %d, want 2", got)
	}
	if got := remainingSeconds(now.Add(-time.Second), now); got != 0 {
		t.Fatalf("got %d, want 0", got)
	}
}
