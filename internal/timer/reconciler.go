// Package timer drives the per-session countdown: a small state
// machine around an absolute deadline that ticks once per second,
// accepts resync events from a second source, and fires its expiry
// callback at most once.
package timer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the reconciler lifecycle state.
type State int

const (
	// StateNoTimer is initial and terminal when no deadline resolves.
	StateNoTimer State = iota
	// StateRunning ticks once per second against the deadline.
	StateRunning
	// StateExpiring is entered the instant remaining hits zero; the
	// finish callback has been dispatched and ticking has stopped.
	StateExpiring
)

// Reconciler recomputes remaining time from an absolute deadline. Both
// the periodic tick and external resync events funnel into the same
// recompute transition, so a backgrounded client drifts by at most one
// missed interval.
type Reconciler struct {
	mu        sync.Mutex
	deadline  time.Time
	state     State
	remaining int64

	now      func() time.Time
	onExpire func()
	onTick   func(remaining int64)

	// expireOnce latches the finish dispatch: concurrent ticks and
	// resyncs cannot double-fire it.
	expireOnce sync.Once
	stopOnce   sync.Once
	stopped    chan struct{}

	log zerolog.Logger
}

// Config wires a Reconciler.
type Config struct {
	// Deadline is the absolute expiry instant. Zero means no timer.
	Deadline time.Time
	// OnExpire is invoked exactly once when remaining reaches zero.
	OnExpire func()
	// OnTick, if set, observes every recomputed remaining value.
	OnTick func(remaining int64)
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time

	Log zerolog.Logger
}

// New builds a Reconciler and performs the construction-time resync so
// the deadline write always happens-before the first read.
func New(cfg Config) *Reconciler {
	r := &Reconciler{
		deadline: cfg.Deadline,
		now:      cfg.Now,
		onExpire: cfg.OnExpire,
		onTick:   cfg.OnTick,
		stopped:  make(chan struct{}),
		log:      cfg.Log.With().Str("component", "timer_reconciler").Logger(),
	}
	if r.now == nil {
		r.now = time.Now
	}
	if cfg.Deadline.IsZero() {
		r.state = StateNoTimer
	} else {
		r.state = StateRunning
		r.Resync()
	}
	return r
}

// Run ticks once per second until the reconciler expires, is stopped,
// or ctx is done. Call in a goroutine.
func (r *Reconciler) Run(ctx context.Context) {
	if r.State() == StateNoTimer {
		return
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopped:
			return
		case <-ticker.C:
			if r.Resync() == 0 {
				return
			}
		}
	}
}

// Resync recomputes remaining immediately from the absolute deadline
// and returns it. This is the single transition both the tick and the
// visibility-regain event source feed into. Crossing zero dispatches
// the expiry exactly once.
func (r *Reconciler) Resync() int64 {
	r.mu.Lock()

	if r.state == StateNoTimer {
		r.mu.Unlock()
		return 0
	}

	d := r.deadline.Sub(r.now())
	remaining := int64(0)
	if d > 0 {
		remaining = int64(d / time.Second)
		if d%time.Second != 0 {
			remaining++
		}
	}
	r.remaining = remaining

	var expired bool
	if remaining == 0 && r.state == StateRunning {
		r.state = StateExpiring
		expired = true
	}
	onTick := r.onTick
	r.mu.Unlock()

	if onTick != nil {
		onTick(remaining)
	}

	if expired {
		r.expireOnce.Do(func() {
			r.log.Info().Time("deadline", r.deadline).Msg("Deadline reached, dispatching finish")
			if r.onExpire != nil {
				r.onExpire()
			}
		})
	}

	return remaining
}

// Remaining returns the last computed remaining seconds.
func (r *Reconciler) Remaining() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remaining
}

// State returns the current lifecycle state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Stop tears the reconciler down without firing expiry. Safe to call
// more than once.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stopped) })
}
