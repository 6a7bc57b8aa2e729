package timer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/ujianku/sesi-backend/internal/deadline"
)

// Manager owns one reconciler per active deadline key. Continuing a
// session (re)registers its reconciler; ending a category or session
// tears the matching one down, so no orphaned tickers survive a
// transition.
type Manager struct {
	mu   sync.Mutex
	recs map[string]*Reconciler
	log  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates an empty Manager.
func NewManager(log zerolog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		recs:   make(map[string]*Reconciler),
		log:    log.With().Str("component", "timer_manager").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Ensure registers a running reconciler for key against the given
// absolute deadline. An existing live reconciler for the same key is
// kept (duplicate tabs share one countdown); an expired or stopped one
// is replaced. onExpire fires at most once per registered reconciler.
func (m *Manager) Ensure(key deadline.Key, dl time.Time, onExpire func()) *Reconciler {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := key.String()
	if existing, ok := m.recs[id]; ok {
		if existing.State() == StateRunning {
			return existing
		}
		existing.Stop()
		delete(m.recs, id)
	}

	rec := New(Config{
		Deadline: dl,
		OnExpire: func() {
			// Runs on its own goroutine: an already-past deadline fires
			// during New's construction-time resync while m.mu is still
			// held, and the finish path re-enters the manager through
			// Teardown.
			go func() {
				onExpire()
				m.Teardown(key)
			}()
		},
		Log: m.log.With().Str("deadline_key", id).Logger(),
	})
	m.recs[id] = rec
	go rec.Run(m.ctx)

	m.log.Debug().Str("deadline_key", id).Time("deadline", dl).Msg("Reconciler registered")
	return rec
}

// Resync forwards a visibility-regain event to the reconciler for key,
// returning the recomputed remaining seconds. Unknown keys report -1 so
// callers can distinguish "no timer" from "zero left".
func (m *Manager) Resync(key deadline.Key) int64 {
	m.mu.Lock()
	rec, ok := m.recs[key.String()]
	m.mu.Unlock()
	if !ok {
		return -1
	}
	return rec.Resync()
}

// Teardown stops and forgets the reconciler for key, if any.
func (m *Manager) Teardown(key deadline.Key) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := key.String()
	if rec, ok := m.recs[id]; ok {
		rec.Stop()
		delete(m.recs, id)
		m.log.Debug().Str("deadline_key", id).Msg("Reconciler torn down")
	}
}

// Shutdown stops every reconciler. Used on server exit.
func (m *Manager) Shutdown() {
	m.cancel()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rec := range m.recs {
		rec.Stop()
		delete(m.recs, id)
	}
}
