package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/ujianku/sesi-backend/internal/autosave"
	"github.com/ujianku/sesi-backend/internal/config"
	"github.com/ujianku/sesi-backend/internal/deadline"
	"github.com/ujianku/sesi-backend/internal/grading"
	"github.com/ujianku/sesi-backend/internal/model"
	"github.com/ujianku/sesi-backend/internal/repository"
	"github.com/ujianku/sesi-backend/internal/timer"
)

// expiryFinishTimeout bounds the background finish triggered by a timer
// expiry, which runs without a request context.
const expiryFinishTimeout = 30 * time.Second

// TransitionService owns the end-category and end-session transitions.
// Every terminal path funnels through it: explicit participant action,
// category rollover and timer expiry all end up in the same
// status-guarded writes, so each transition lands at most once.
type TransitionService struct {
	sessionRepo  *repository.SessionRepository
	testRepo     *repository.TestRepository
	questionRepo *repository.QuestionRepository
	dispatcher   *autosave.Dispatcher
	resolver     *deadline.Resolver
	timers       *timer.Manager
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewTransitionService creates a new TransitionService.
func NewTransitionService(
	sessionRepo *repository.SessionRepository,
	testRepo *repository.TestRepository,
	questionRepo *repository.QuestionRepository,
	dispatcher *autosave.Dispatcher,
	resolver *deadline.Resolver,
	timers *timer.Manager,
	rdb *redis.Client,
	log zerolog.Logger,
) *TransitionService {
	return &TransitionService{
		sessionRepo:  sessionRepo,
		testRepo:     testRepo,
		questionRepo: questionRepo,
		dispatcher:   dispatcher,
		resolver:     resolver,
		timers:       timers,
		rdb:          rdb,
		log:          log.With().Str("component", "transition_service").Logger(),
	}
}

// EndCategory closes one category of a participant's session. The last
// tracked save is awaited first so a just-typed answer is never raced
// past. Returns the next open category, or the completed-test result
// when none remains.
func (s *TransitionService) EndCategory(ctx context.Context, sessionID, categoryID, participantID int64) (*model.TransitionResult, error) {
	sess, err := s.sessionRepo.GetForParticipant(ctx, sessionID, participantID)
	if err != nil {
		return nil, fmt.Errorf("no session: %w", err)
	}
	if sess.Status == model.SessionStatusCompleted {
		return nil, repository.ErrAlreadyCompleted
	}

	if err := s.dispatcher.AwaitLastSave(ctx, sessionID); err != nil {
		s.log.Warn().Int64("session_id", sessionID).Err(err).Msg("Last save did not settle cleanly before end-category")
	}

	return s.endCategory(ctx, sess, categoryID)
}

// EndSession finishes a participant's whole session: every open
// category is closed, the attempt is graded and the session becomes
// terminal.
func (s *TransitionService) EndSession(ctx context.Context, sessionID, participantID int64) (*model.TransitionResult, error) {
	sess, err := s.sessionRepo.GetForParticipant(ctx, sessionID, participantID)
	if err != nil {
		return nil, fmt.Errorf("no session: %w", err)
	}
	if sess.Status == model.SessionStatusCompleted {
		return nil, repository.ErrAlreadyCompleted
	}

	if err := s.dispatcher.AwaitLastSave(ctx, sessionID); err != nil {
		s.log.Warn().Int64("session_id", sessionID).Err(err).Msg("Last save did not settle cleanly before end-session")
	}

	return s.finish(ctx, sess)
}

// FinishExpired is the timer expiry entry point. It runs the same
// transitions as the explicit endpoints but on behalf of the clock:
// a failure is logged and surfaced through session state on the next
// load, never retried automatically.
func (s *TransitionService) FinishExpired(sessionID int64, categoryID *int64) {
	ctx, cancel := context.WithTimeout(context.Background(), expiryFinishTimeout)
	defer cancel()

	log := s.log.With().Int64("session_id", sessionID).Logger()
	if categoryID != nil {
		log = log.With().Int64("category_id", *categoryID).Logger()
	}
	log.Info().Msg("Deadline expired, forcing transition")

	sess, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Msg("Expiry finish aborted, session not loadable")
		return
	}
	if sess.Status == model.SessionStatusCompleted {
		return
	}

	if err := s.dispatcher.AwaitLastSave(ctx, sessionID); err != nil {
		log.Warn().Err(err).Msg("Last save did not settle cleanly before expiry finish")
	}

	if categoryID != nil {
		_, err = s.endCategory(ctx, sess, *categoryID)
	} else {
		_, err = s.finish(ctx, sess)
	}
	if err != nil && !repository.IsAlreadyClosed(err) {
		log.Error().Err(err).Msg("Expiry finish failed")
	}
}

// endCategory closes the category, tears down its countdown and either
// hands over the next category or finishes the whole attempt.
func (s *TransitionService) endCategory(ctx context.Context, sess *model.Session, categoryID int64) (*model.TransitionResult, error) {
	if err := s.sessionRepo.EndCategory(ctx, sess.ID, categoryID); err != nil {
		return nil, err
	}

	key := deadline.Key{SessionID: sess.ID, CategoryID: &categoryID}
	if err := s.resolver.Clear(ctx, key); err != nil {
		s.log.Warn().Str("deadline_key", key.String()).Err(err).Msg("Deadline cleanup failed")
	}
	s.timers.Teardown(key)

	next, err := s.sessionRepo.NextCategory(ctx, sess.ID)
	if err != nil {
		if repository.IsNotFound(err) {
			return s.finish(ctx, sess)
		}
		return nil, fmt.Errorf("next category: %w", err)
	}

	return &model.TransitionResult{NextCategoryID: &next.ID}, nil
}

// finish grades the session from its current answer state and marks it
// completed. The per-question grading columns are backfilled by the
// grade worker; only the final grade is written synchronously because
// the participant sees it immediately.
func (s *TransitionService) finish(ctx context.Context, sess *model.Session) (*model.TransitionResult, error) {
	if err := s.sessionRepo.CloseOpenCategories(ctx, sess.ID); err != nil {
		return nil, fmt.Errorf("close categories: %w", err)
	}

	questions, err := s.questionRepo.ListByTest(ctx, sess.TestID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	answers, err := s.currentAnswers(ctx, sess.ID, questions)
	if err != nil {
		return nil, err
	}

	answerKeys := make(map[int64]string, len(questions))
	for _, q := range questions {
		answerKeys[q.ID] = q.AnswerKey
	}

	rollup := grading.GradeSession(answers, answerKeys)

	if err := s.sessionRepo.Complete(ctx, sess.ID, rollup.FinalGrade); err != nil {
		return nil, err
	}

	s.enqueueGrades(ctx, sess.ID, rollup.Results)
	s.teardown(ctx, sess)
	s.dispatcher.Forget(sess.ID)

	return &model.TransitionResult{TestID: &sess.TestID}, nil
}

// currentAnswers merges the durable answer rows with the hot autosave
// snapshot, the same overlay the loader applies, so grading sees every
// accepted write.
func (s *TransitionService) currentAnswers(ctx context.Context, sessionID int64, questions []model.Question) ([]model.QuestionAnswer, error) {
	stored, err := s.questionRepo.ListAnswers(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}

	out := make([]model.QuestionAnswer, 0, len(questions))
	for _, q := range questions {
		qa := model.QuestionAnswer{QuestionID: q.ID, Details: q.Details}
		if st, ok := stored[q.ID]; ok {
			qa.UserAnswer = st.UserAnswer
			qa.IsFlagged = st.IsFlagged
		}
		out = append(out, qa)
	}

	hot, err := s.dispatcher.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load autosaved answers: %w", err)
	}
	for qid, state := range hot {
		if state.Answer != nil {
			out = autosave.Apply(out, autosave.SaveAnswer{ID: qid, Encoded: *state.Answer})
		} else {
			out = autosave.Apply(out, autosave.ResetAnswer{ID: qid})
		}
		out = autosave.Apply(out, autosave.SetFlag{ID: qid, Flagged: state.IsFlagged})
	}
	return out, nil
}

// enqueueGrades pushes the per-question results to the grade worker.
// Failure is logged only: the final grade is already durable and the
// per-question columns are a backfill.
func (s *TransitionService) enqueueGrades(ctx context.Context, sessionID int64, results []grading.Result) {
	payload, err := json.Marshal(grading.PersistJob{SessionID: sessionID, Results: results})
	if err != nil {
		s.log.Error().Int64("session_id", sessionID).Err(err).Msg("Grade job marshal failed")
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistGradesQueue, payload).Err(); err != nil {
		s.log.Error().Int64("session_id", sessionID).Err(err).Msg("Grade job enqueue failed")
	}
}

// teardown clears every countdown and persisted deadline of a finished
// session, the session-wide one and each category's.
func (s *TransitionService) teardown(ctx context.Context, sess *model.Session) {
	sessionKey := deadline.Key{SessionID: sess.ID}
	if err := s.resolver.Clear(ctx, sessionKey); err != nil {
		s.log.Warn().Str("deadline_key", sessionKey.String()).Err(err).Msg("Deadline cleanup failed")
	}
	s.timers.Teardown(sessionKey)

	categories, err := s.testRepo.ListCategories(ctx, sess.TestID)
	if err != nil {
		s.log.Warn().Int64("session_id", sess.ID).Err(err).Msg("Category countdown cleanup skipped")
		return
	}
	for _, c := range categories {
		cid := c.ID
		key := deadline.Key{SessionID: sess.ID, CategoryID: &cid}
		if err := s.resolver.Clear(ctx, key); err != nil {
			s.log.Warn().Str("deadline_key", key.String()).Err(err).Msg("Deadline cleanup failed")
		}
		s.timers.Teardown(key)
	}
}
