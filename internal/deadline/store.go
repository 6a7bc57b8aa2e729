// Package deadline persists and resolves absolute session deadlines.
// The stored value is always an absolute instant, never a duration:
// that is what keeps the countdown correct across reloads, duplicate
// tabs and backgrounded clients.
package deadline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Store.Get when no deadline is persisted
// under the given key.
var ErrNotFound = errors.New("deadline: not found")

// Key identifies one countdown: a session, optionally narrowed to a
// single category for per-category timing.
type Key struct {
	SessionID  int64
	CategoryID *int64
}

// String renders the composite storage key.
func (k Key) String() string {
	if k.CategoryID != nil {
		return fmt.Sprintf("deadline:session:%d:category:%d", k.SessionID, *k.CategoryID)
	}
	return fmt.Sprintf("deadline:session:%d", k.SessionID)
}

// Store is the narrow persistence contract for deadlines. Implementations
// store epoch milliseconds keyed by Key.
type Store interface {
	Get(ctx context.Context, key Key) (time.Time, error)
	Set(ctx context.Context, key Key, at time.Time) error
	Del(ctx context.Context, key Key) error
}

// Resolver applies the deadline resolution order on top of a Store.
type Resolver struct {
	store Store
	// maxAhead is the staleness window: a persisted deadline further
	// ahead than this is discarded.
	maxAhead time.Duration
	now      func() time.Time
}

// NewResolver creates a Resolver. maxAhead ≤ 0 falls back to 24 hours.
func NewResolver(store Store, maxAhead time.Duration) *Resolver {
	if maxAhead <= 0 {
		maxAhead = 24 * time.Hour
	}
	return &Resolver{store: store, maxAhead: maxAhead, now: time.Now}
}

// Resolution is the outcome of resolving a deadline for a key.
type Resolution struct {
	// Timed is false when neither the server nor the store produced a
	// usable deadline: the session runs without a countdown.
	Timed            bool
	Deadline         time.Time
	RemainingSeconds int64
}

// Resolve determines the active deadline for key.
//
// Resolution order:
//  1. A positive server-reported remaining duration always wins: the
//     deadline becomes now+remaining and overwrites whatever was
//     persisted, keeping multi-device state server-authoritative on
//     every fresh load.
//  2. Otherwise the persisted deadline is read back and accepted only
//     if it is strictly in the future and within the staleness window.
//  3. Otherwise the session is untimed.
//
// Store failures on the fallback path degrade to untimed rather than
// failing the load: a missing countdown is recoverable, a blocked page
// is not.
func (r *Resolver) Resolve(ctx context.Context, key Key, serverRemaining time.Duration) (Resolution, error) {
	now := r.now()

	if serverRemaining > 0 {
		dl := now.Add(serverRemaining)
		if err := r.store.Set(ctx, key, dl); err != nil {
			return Resolution{}, fmt.Errorf("persist deadline: %w", err)
		}
		return Resolution{Timed: true, Deadline: dl, RemainingSeconds: remainingSeconds(dl, now)}, nil
	}

	persisted, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Resolution{}, nil
		}
		// Treat a broken store like a stale entry.
		return Resolution{}, nil
	}

	if !persisted.After(now) || persisted.Sub(now) > r.maxAhead {
		_ = r.store.Del(ctx, key)
		return Resolution{}, nil
	}

	return Resolution{Timed: true, Deadline: persisted, RemainingSeconds: remainingSeconds(persisted, now)}, nil
}

// Clear removes the persisted deadline for key, typically after the
// category or session it belongs to has ended.
func (r *Resolver) Clear(ctx context.Context, key Key) error {
	return r.store.Del(ctx, key)
}

// remainingSeconds computes ceil((deadline-now)/1s) clamped to ≥ 0.
func remainingSeconds(deadline, now time.Time) int64 {
	d := deadline.Sub(now)
	if d <= 0 {
		return 0
	}
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
