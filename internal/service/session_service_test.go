package service

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/ujianku/sesi-backend/internal/deadline"
	"github.com/ujianku/sesi-backend/internal/timer"
)

func newResyncService(t *testing.T) (*SessionService, *timer.Manager) {
	t.Helper()
	timers := timer.NewManager(zerolog.Nop())
	t.Cleanup(timers.Shutdown)
	return &SessionService{timers: timers, log: zerolog.Nop()}, timers
}

func TestResyncPrefersCategoryClock(t *testing.T) {
	s, timers := newResyncService(t)

	catID := int64(3)
	timers.Ensure(deadline.Key{SessionID: 11}, time.Now().Add(300*time.Second), func() {})
	timers.Ensure(deadline.Key{SessionID: 11, CategoryID: &catID}, time.Now().Add(60*time.Second), func() {})

	got := s.Resync(11, &catID)
	if got < 59 || got > 60 {
		t.Fatalf("remaining = %d, want ≈60 from the category clock", got)
	}
}

func TestResyncFallsBackToSessionClock(t *testing.T) {
	s, timers := newResyncService(t)

	// per_test exam viewed through a category page: only the
	// session-wide countdown is registered, but the client still sends
	// its category id with the visibility event.
	timers.Ensure(deadline.Key{SessionID: 11}, time.Now().Add(30*time.Second), func() {})

	catID := int64(3)
	got := s.Resync(11, &catID)
	if got < 29 || got > 30 {
		t.Fatalf("remaining = %d, want ≈30 from the session clock", got)
	}
}

func TestResyncWithNoClockReportsNoTimer(t *testing.T) {
	s, _ := newResyncService(t)

	catID := int64(3)
	if got := s.Resync(12, &catID); got != -1 {
		t.Fatalf("remaining = %d, want -1", got)
	}
	if got := s.Resync(12, nil); got != -1 {
		t.Fatalf("remaining = %d, want -1", got)
	}
}
