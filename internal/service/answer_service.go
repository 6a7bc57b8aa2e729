package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ujianku/sesi-backend/internal/autosave"
	"github.com/ujianku/sesi-backend/internal/codec"
	"github.com/ujianku/sesi-backend/internal/model"
	"github.com/ujianku/sesi-backend/internal/repository"
)

// Answer write errors.
var (
	ErrQuestionNotInScope = errors.New("question is not part of this session")
	ErrVariantMismatch    = errors.New("variant does not match the question")
	ErrInvalidAnswer      = errors.New("answer is not valid for this question")
)

// AnswerService validates and dispatches answer writes. Validation
// happens here, before the write reaches the hot snapshot: a malformed
// answer is rejected, never stored.
type AnswerService struct {
	sessionRepo  *repository.SessionRepository
	questionRepo *repository.QuestionRepository
	dispatcher   *autosave.Dispatcher
}

// NewAnswerService creates a new AnswerService.
func NewAnswerService(
	sessionRepo *repository.SessionRepository,
	questionRepo *repository.QuestionRepository,
	dispatcher *autosave.Dispatcher,
) *AnswerService {
	return &AnswerService{
		sessionRepo:  sessionRepo,
		questionRepo: questionRepo,
		dispatcher:   dispatcher,
	}
}

// SaveAnswer validates one answer against its question and dispatches
// the save. The stored value is the codec's normalized re-encoding,
// not the raw input.
func (s *AnswerService) SaveAnswer(ctx context.Context, sessionID, participantID, questionID int64, req model.SaveAnswerRequest) error {
	q, err := s.scopedQuestion(ctx, sessionID, participantID, questionID)
	if err != nil {
		return err
	}

	if model.Variant(req.Variant) != q.Details.Variant {
		return ErrVariantMismatch
	}

	decoded, err := codec.Decode(q.Details.Variant, req.Answer, len(q.Details.Options))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAnswer, err)
	}
	encoded, err := codec.Encode(q.Details.Variant, decoded)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAnswer, err)
	}

	return s.dispatcher.Save(ctx, sessionID, q.ID, encoded)
}

// ResetAnswer clears the answer of one question.
func (s *AnswerService) ResetAnswer(ctx context.Context, sessionID, participantID, questionID int64) error {
	q, err := s.scopedQuestion(ctx, sessionID, participantID, questionID)
	if err != nil {
		return err
	}
	return s.dispatcher.Reset(ctx, sessionID, q.ID)
}

// FlagQuestion toggles the review marker of one question.
func (s *AnswerService) FlagQuestion(ctx context.Context, sessionID, participantID, questionID int64, flagged bool) error {
	q, err := s.scopedQuestion(ctx, sessionID, participantID, questionID)
	if err != nil {
		return err
	}
	return s.dispatcher.SetFlag(ctx, sessionID, q.ID, flagged)
}

// scopedQuestion verifies session ownership and resolves the question
// within the session's test.
func (s *AnswerService) scopedQuestion(ctx context.Context, sessionID, participantID, questionID int64) (*model.Question, error) {
	sess, err := s.sessionRepo.GetForParticipant(ctx, sessionID, participantID)
	if err != nil {
		return nil, fmt.Errorf("no session: %w", err)
	}
	if sess.Status == model.SessionStatusCompleted {
		return nil, repository.ErrAlreadyCompleted
	}

	q, err := s.questionRepo.GetInTest(ctx, sess.TestID, questionID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrQuestionNotInScope
		}
		return nil, fmt.Errorf("load question: %w", err)
	}
	return q, nil
}
