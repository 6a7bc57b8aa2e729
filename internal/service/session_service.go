package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/ujianku/sesi-backend/internal/autosave"
	"github.com/ujianku/sesi-backend/internal/deadline"
	"github.com/ujianku/sesi-backend/internal/model"
	"github.com/ujianku/sesi-backend/internal/repository"
	"github.com/ujianku/sesi-backend/internal/timer"
)

// ExpiryFinisher is the transition entry point the timer drives when a
// deadline expires. Implemented by TransitionService.
type ExpiryFinisher interface {
	FinishExpired(sessionID int64, categoryID *int64)
}

// SessionService is the session loader: it normalizes "continue whole
// test" and "continue one category" into a single payload shape and
// registers the countdown for the continued scope.
type SessionService struct {
	sessionRepo  *repository.SessionRepository
	testRepo     *repository.TestRepository
	questionRepo *repository.QuestionRepository
	dispatcher   *autosave.Dispatcher
	resolver     *deadline.Resolver
	timers       *timer.Manager
	finisher     ExpiryFinisher
	log          zerolog.Logger
}

// NewSessionService creates a new SessionService. The finisher is wired
// after construction to break the loader/transition cycle.
func NewSessionService(
	sessionRepo *repository.SessionRepository,
	testRepo *repository.TestRepository,
	questionRepo *repository.QuestionRepository,
	dispatcher *autosave.Dispatcher,
	resolver *deadline.Resolver,
	timers *timer.Manager,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		sessionRepo:  sessionRepo,
		testRepo:     testRepo,
		questionRepo: questionRepo,
		dispatcher:   dispatcher,
		resolver:     resolver,
		timers:       timers,
		log:          log.With().Str("component", "session_service").Logger(),
	}
}

// SetFinisher wires the expiry finish path. Must be called before the
// first continue.
func (s *SessionService) SetFinisher(f ExpiryFinisher) {
	s.finisher = f
}

// VerifyActiveSession checks that the participant owns an in-progress
// session with the given id.
func (s *SessionService) VerifyActiveSession(ctx context.Context, sessionID, participantID int64) (*model.Session, error) {
	sess, err := s.sessionRepo.GetForParticipant(ctx, sessionID, participantID)
	if err != nil {
		return nil, fmt.Errorf("no session: %w", err)
	}
	if sess.Status == model.SessionStatusCompleted {
		return nil, repository.ErrAlreadyCompleted
	}
	return sess, nil
}

// ContinueTest loads the whole-test payload for a session and arms the
// session-wide countdown when the test is timed per_test.
func (s *SessionService) ContinueTest(ctx context.Context, sessionID, participantID int64) (*model.SessionPayload, error) {
	sess, err := s.VerifyActiveSession(ctx, sessionID, participantID)
	if err != nil {
		return nil, err
	}

	test, err := s.testRepo.GetByID(ctx, sess.TestID)
	if err != nil {
		return nil, fmt.Errorf("load test: %w", err)
	}

	categories, err := s.testRepo.ListCategories(ctx, test.ID)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}

	questions, err := s.questionRepo.ListByTest(ctx, test.ID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	payload, err := s.assemble(ctx, sess, test, categories, questions)
	if err != nil {
		return nil, err
	}

	// Per-test timing: one session-wide deadline from the session start.
	if test.TimerType == model.TimerPerTest && test.TotalTime != nil {
		key := deadline.Key{SessionID: sess.ID}
		dl := sess.StartedAt.Add(time.Duration(*test.TotalTime) * time.Second)
		payload.Timed, payload.RemainingSeconds = s.armTimer(ctx, key, dl, sess.ID, nil)
	} else {
		res, err := s.resolver.Resolve(ctx, deadline.Key{SessionID: sess.ID}, 0)
		if err == nil && res.Timed {
			payload.Timed, payload.RemainingSeconds = s.armTimer(ctx, deadline.Key{SessionID: sess.ID}, res.Deadline, sess.ID, nil)
		}
	}

	return payload, nil
}

// ContinueCategory loads the single-category payload for a session and
// arms the category countdown when the test is timed per_category.
func (s *SessionService) ContinueCategory(ctx context.Context, sessionID, categoryID, participantID int64) (*model.SessionPayload, error) {
	sess, err := s.VerifyActiveSession(ctx, sessionID, participantID)
	if err != nil {
		return nil, err
	}

	test, err := s.testRepo.GetByID(ctx, sess.TestID)
	if err != nil {
		return nil, fmt.Errorf("load test: %w", err)
	}

	category, err := s.testRepo.GetCategory(ctx, test.ID, categoryID)
	if err != nil {
		return nil, fmt.Errorf("load category: %w", err)
	}

	questions, err := s.questionRepo.ListByCategory(ctx, category.ID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	startedAt, err := s.sessionRepo.StartCategory(ctx, sess.ID, category.ID)
	if err != nil {
		return nil, fmt.Errorf("start category: %w", err)
	}

	payload, err := s.assemble(ctx, sess, test, []model.TestCategory{*category}, questions)
	if err != nil {
		return nil, err
	}

	switch {
	case test.TimerType == model.TimerPerCategory && category.DurationSeconds != nil:
		key := deadline.Key{SessionID: sess.ID, CategoryID: &category.ID}
		dl := startedAt.Add(time.Duration(*category.DurationSeconds) * time.Second)
		payload.Timed, payload.RemainingSeconds = s.armTimer(ctx, key, dl, sess.ID, &category.ID)

	case test.TimerType == model.TimerPerTest && test.TotalTime != nil:
		// A category page of a per_test exam runs on the session-wide clock.
		key := deadline.Key{SessionID: sess.ID}
		dl := sess.StartedAt.Add(time.Duration(*test.TotalTime) * time.Second)
		payload.Timed, payload.RemainingSeconds = s.armTimer(ctx, key, dl, sess.ID, nil)

	default:
		key := deadline.Key{SessionID: sess.ID, CategoryID: &category.ID}
		res, err := s.resolver.Resolve(ctx, key, 0)
		if err == nil && res.Timed {
			payload.Timed, payload.RemainingSeconds = s.armTimer(ctx, key, res.Deadline, sess.ID, &category.ID)
		}
	}

	return payload, nil
}

// Resync forwards a visibility-regain event to the countdown for the
// given scope. A category page of a per_test exam runs on the
// session-wide clock, so an unmatched category key falls back to the
// session key. Returns -1 when no timer is registered under either.
func (s *SessionService) Resync(sessionID int64, categoryID *int64) int64 {
	if categoryID != nil {
		if remaining := s.timers.Resync(deadline.Key{SessionID: sessionID, CategoryID: categoryID}); remaining >= 0 {
			return remaining
		}
	}
	return s.timers.Resync(deadline.Key{SessionID: sessionID})
}

// armTimer persists the authoritative deadline, registers the
// reconciler and returns the resolved countdown state. A deadline that
// is already past still registers so the expiry path force-finishes
// the overdue scope.
func (s *SessionService) armTimer(ctx context.Context, key deadline.Key, dl time.Time, sessionID int64, categoryID *int64) (bool, int64) {
	remaining := time.Until(dl)

	res, err := s.resolver.Resolve(ctx, key, remaining)
	if err != nil {
		s.log.Warn().Err(err).Str("deadline_key", key.String()).Msg("Deadline persist failed, countdown continues in memory")
		res = deadline.Resolution{Timed: true, Deadline: dl}
	}
	if !res.Timed {
		// Overdue scope: remaining was ≤ 0 so nothing was persisted.
		res = deadline.Resolution{Timed: true, Deadline: dl}
	}

	onExpire := func() {
		s.finisher.FinishExpired(sessionID, categoryID)
	}
	rec := s.timers.Ensure(key, res.Deadline, onExpire)

	return true, rec.Remaining()
}

// assemble builds the normalized payload: ordered groups, flattened
// question sequence, durable answers overlaid with the autosaved hot
// snapshot via the reducer.
func (s *SessionService) assemble(
	ctx context.Context,
	sess *model.Session,
	test *model.Test,
	categories []model.TestCategory,
	questions []model.Question,
) (*model.SessionPayload, error) {
	stored, err := s.questionRepo.ListAnswers(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}

	states, err := s.sessionRepo.ListCategoryStates(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("load category states: %w", err)
	}

	flat := make([]model.QuestionAnswer, 0, len(questions))
	for _, q := range questions {
		qa := model.QuestionAnswer{
			QuestionID: q.ID,
			Details:    q.Details,
		}
		if st, ok := stored[q.ID]; ok {
			qa.UserAnswer = st.UserAnswer
			qa.IsCorrect = st.IsCorrect
			qa.Point = st.Point
			qa.IsFlagged = st.IsFlagged
		}
		flat = append(flat, qa)
	}

	// The hot snapshot is newer than the durable rows: replay it as
	// intents so both paths share one patch rule.
	hot, err := s.dispatcher.Snapshot(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("load autosaved answers: %w", err)
	}
	for qid, state := range hot {
		if state.Answer != nil {
			flat = autosave.Apply(flat, autosave.SaveAnswer{ID: qid, Encoded: *state.Answer})
		} else {
			flat = autosave.Apply(flat, autosave.ResetAnswer{ID: qid})
		}
		flat = autosave.Apply(flat, autosave.SetFlag{ID: qid, Flagged: state.IsFlagged})
	}

	groups := make([]model.CategoryGroup, 0, len(categories))
	byCategory := make(map[int64][]model.QuestionAnswer, len(categories))
	for i, q := range questions {
		byCategory[q.CategoryID] = append(byCategory[q.CategoryID], flat[i])
	}
	for _, c := range categories {
		group := model.CategoryGroup{
			CategoryID:      c.ID,
			Name:            c.Name,
			DurationSeconds: c.DurationSeconds,
			Questions:       byCategory[c.ID],
		}
		if st, ok := states[c.ID]; ok {
			group.StartedAt = st.StartedAt
			group.EndedAt = st.EndedAt
		}
		groups = append(groups, group)
	}

	return &model.SessionPayload{
		Session:   *sess,
		Test:      *test,
		Groups:    groups,
		Questions: flat,
	}, nil
}
