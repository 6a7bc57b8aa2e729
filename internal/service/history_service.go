package service

import (
	"context"
	"fmt"

	"github.com/ujianku/sesi-backend/internal/model"
	"github.com/ujianku/sesi-backend/internal/repository"
	"github.com/ujianku/sesi-backend/internal/score"
)

// History is the participant's attempt history together with the
// aggregated view over the completed attempts.
type History struct {
	Attempts []model.HistoryAttempt `json:"attempts"`
	Groups   []score.Group          `json:"groups"`
	Summary  score.Summary          `json:"summary"`
}

// HistoryService serves the score read path.
type HistoryService struct {
	sessionRepo *repository.SessionRepository
}

// NewHistoryService creates a new HistoryService.
func NewHistoryService(sessionRepo *repository.SessionRepository) *HistoryService {
	return &HistoryService{sessionRepo: sessionRepo}
}

// GetHistory lists a participant's attempts and aggregates the
// completed ones. An optional parent test id narrows the view to one
// test family. In-progress attempts appear in the list but never count
// toward the aggregation.
func (s *HistoryService) GetHistory(ctx context.Context, participantID int64, parentTestID *int64) (*History, error) {
	attempts, err := s.sessionRepo.ListAttempts(ctx, participantID, parentTestID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	scorable := make([]score.Attempt, 0, len(attempts))
	for _, a := range attempts {
		if a.Status != model.SessionStatusCompleted || a.Grade == nil {
			continue
		}
		scorable = append(scorable, score.Attempt{
			SessionID:    a.SessionID,
			TestID:       a.TestID,
			TestTitle:    a.TestTitle,
			ParentTestID: a.ParentTestID,
			Grade:        *a.Grade,
			Divisor:      a.ScoreDivisor,
			CreatedAt:    a.CreatedAt,
		})
	}

	groups, summary := score.Aggregate(scorable)

	return &History{
		Attempts: attempts,
		Groups:   groups,
		Summary:  summary,
	}, nil
}
