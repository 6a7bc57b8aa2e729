package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ujianku/sesi-backend/internal/model"
)

// ErrAlreadyCompleted is returned when a terminal transition targets a
// session that is no longer in progress.
var ErrAlreadyCompleted = errors.New("session already completed")

// ErrCategoryAlreadyEnded is returned when end-category targets a
// category that was already closed for this session.
var ErrCategoryAlreadyEnded = errors.New("category already ended")

// SessionRepository handles session data access.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// GetForParticipant retrieves a session owned by the given participant.
func (r *SessionRepository) GetForParticipant(ctx context.Context, sessionID, participantID int64) (*model.Session, error) {
	s := &model.Session{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, test_id, participant_id, started_at, finished_at, status, final_grade
		 FROM sessions
		 WHERE id = $1 AND participant_id = $2`, sessionID, participantID,
	).Scan(&s.ID, &s.TestID, &s.ParticipantID, &s.StartedAt, &s.FinishedAt, &s.Status, &s.FinalGrade)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetByID retrieves a session regardless of owner. Used by the expiry
// path, which acts on behalf of the clock rather than a request.
func (r *SessionRepository) GetByID(ctx context.Context, sessionID int64) (*model.Session, error) {
	s := &model.Session{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, test_id, participant_id, started_at, finished_at, status, final_grade
		 FROM sessions
		 WHERE id = $1`, sessionID,
	).Scan(&s.ID, &s.TestID, &s.ParticipantID, &s.StartedAt, &s.FinishedAt, &s.Status, &s.FinalGrade)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Complete marks a session as completed with its final grade. The
// status guard makes the transition atomic and at-most-once: a second
// completion attempt finds no row to update.
func (r *SessionRepository) Complete(ctx context.Context, sessionID int64, finalGrade float64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sessions
		 SET status = $1, final_grade = $2, finished_at = NOW()
		 WHERE id = $3 AND status = $4`,
		model.SessionStatusCompleted, finalGrade, sessionID, model.SessionStatusInProgress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyCompleted
	}
	return nil
}

// CategoryState is the per-session timing state of one category.
type CategoryState struct {
	CategoryID int64
	StartedAt  *time.Time
	EndedAt    *time.Time
}

// ListCategoryStates retrieves the per-session category rows, keyed by
// category id.
func (r *SessionRepository) ListCategoryStates(ctx context.Context, sessionID int64) (map[int64]CategoryState, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT category_id, started_at, ended_at
		 FROM session_categories
		 WHERE session_id = $1`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	states := make(map[int64]CategoryState)
	for rows.Next() {
		var cs CategoryState
		if err := rows.Scan(&cs.CategoryID, &cs.StartedAt, &cs.EndedAt); err != nil {
			return nil, err
		}
		states[cs.CategoryID] = cs
	}
	return states, rows.Err()
}

// StartCategory records the first continue of a category for a session.
// Idempotent: a later continue keeps the original start instant.
func (r *SessionRepository) StartCategory(ctx context.Context, sessionID, categoryID int64) (time.Time, error) {
	var startedAt time.Time
	err := r.pool.QueryRow(ctx,
		`INSERT INTO session_categories (session_id, category_id, started_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (session_id, category_id) DO UPDATE
		 SET started_at = session_categories.started_at
		 RETURNING started_at`,
		sessionID, categoryID,
	).Scan(&startedAt)
	return startedAt, err
}

// EndCategory closes a category for a session. The ended_at guard makes
// the close atomic and at-most-once.
func (r *SessionRepository) EndCategory(ctx context.Context, sessionID, categoryID int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE session_categories
		 SET ended_at = NOW()
		 WHERE session_id = $1 AND category_id = $2 AND ended_at IS NULL`,
		sessionID, categoryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCategoryAlreadyEnded
	}
	return nil
}

// CloseOpenCategories force-ends every still-open category of a
// session. Used by end-session, which is terminal for the whole
// attempt regardless of per-category state.
func (r *SessionRepository) CloseOpenCategories(ctx context.Context, sessionID int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE session_categories
		 SET ended_at = NOW()
		 WHERE session_id = $1 AND ended_at IS NULL`, sessionID)
	return err
}

// NextCategory returns the first category of the session's test, in
// position order, that has not been ended for this session. pgx.ErrNoRows
// means the attempt is complete.
func (r *SessionRepository) NextCategory(ctx context.Context, sessionID int64) (*model.TestCategory, error) {
	c := &model.TestCategory{}
	err := r.pool.QueryRow(ctx,
		`SELECT tc.id, tc.test_id, tc.name, tc.duration_seconds, tc.position
		 FROM test_categories tc
		 JOIN sessions s ON s.test_id = tc.test_id
		 LEFT JOIN session_categories sc
		   ON sc.session_id = s.id AND sc.category_id = tc.id
		 WHERE s.id = $1 AND sc.ended_at IS NULL
		 ORDER BY tc.position ASC
		 LIMIT 1`, sessionID,
	).Scan(&c.ID, &c.TestID, &c.Name, &c.DurationSeconds, &c.Position)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListAttempts retrieves a participant's attempts with test metadata
// for the history read path. When parentTestID is set, only attempts
// whose test is the parent itself or one of its children are returned.
func (r *SessionRepository) ListAttempts(ctx context.Context, participantID int64, parentTestID *int64) ([]model.HistoryAttempt, error) {
	query := `
		SELECT s.id, t.id, t.title, t.parent_test_id, t.score_divisor,
		       s.status, s.final_grade, s.started_at, s.finished_at, s.created_at
		FROM sessions s
		JOIN tests t ON t.id = s.test_id
		WHERE s.participant_id = $1
	`
	args := []any{participantID}

	if parentTestID != nil {
		args = append(args, *parentTestID)
		query += ` AND (t.id = $2 OR t.parent_test_id = $2)`
	}
	query += ` ORDER BY s.created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.HistoryAttempt
	for rows.Next() {
		var a model.HistoryAttempt
		if err := rows.Scan(
			&a.SessionID, &a.TestID, &a.TestTitle, &a.ParentTestID, &a.ScoreDivisor,
			&a.Status, &a.Grade, &a.StartedAt, &a.FinishedAt, &a.CreatedAt,
		); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// IsNotFound reports whether err is the pgx no-rows sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsAlreadyClosed reports whether err means the transition already
// happened: a benign outcome for racing end paths.
func IsAlreadyClosed(err error) bool {
	return errors.Is(err, ErrAlreadyCompleted) || errors.Is(err, ErrCategoryAlreadyEnded)
}
