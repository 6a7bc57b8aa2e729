package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ujianku/sesi-backend/internal/model"
)

// QuestionRepository handles question and stored answer data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByTest retrieves every question of a test, ordered by category
// position then question position.
func (r *QuestionRepository) ListByTest(ctx context.Context, testID int64) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT q.id, q.category_id, q.variant, q.body, q.options, q.point_scale, q.answer_key, q.position
		 FROM questions q
		 JOIN test_categories tc ON tc.id = q.category_id
		 WHERE tc.test_id = $1
		 ORDER BY tc.position ASC, q.position ASC`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanQuestions(rows)
}

// ListByCategory retrieves the ordered questions of one category.
func (r *QuestionRepository) ListByCategory(ctx context.Context, categoryID int64) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT q.id, q.category_id, q.variant, q.body, q.options, q.point_scale, q.answer_key, q.position
		 FROM questions q
		 WHERE q.category_id = $1
		 ORDER BY q.position ASC`, categoryID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanQuestions(rows)
}

// GetInTest retrieves one question scoped to a test. The scope filter
// is what keeps answer writes from reaching across sessions.
func (r *QuestionRepository) GetInTest(ctx context.Context, testID, questionID int64) (*model.Question, error) {
	q := &model.Question{}
	var optionsRaw []byte
	err := r.pool.QueryRow(ctx,
		`SELECT q.id, q.category_id, q.variant, q.body, q.options, q.point_scale, q.answer_key, q.position
		 FROM questions q
		 JOIN test_categories tc ON tc.id = q.category_id
		 WHERE q.id = $1 AND tc.test_id = $2`, questionID, testID,
	).Scan(
		&q.ID, &q.CategoryID, &q.Details.Variant, &q.Details.Body,
		&optionsRaw, &q.Details.PointScale, &q.AnswerKey, &q.Position,
	)
	if err != nil {
		return nil, err
	}
	if len(optionsRaw) > 0 {
		if err := json.Unmarshal(optionsRaw, &q.Details.Options); err != nil {
			return nil, fmt.Errorf("decode options for question %d: %w", q.ID, err)
		}
	}
	return q, nil
}

// StoredAnswer is one durably persisted answer row.
type StoredAnswer struct {
	QuestionID int64
	UserAnswer *string
	IsCorrect  *bool
	Point      *float64
	IsFlagged  bool
}

// ListAnswers retrieves the persisted answers of a session, keyed by
// question id.
func (r *QuestionRepository) ListAnswers(ctx context.Context, sessionID int64) (map[int64]StoredAnswer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, user_answer, is_correct, point, is_flagged
		 FROM session_answers
		 WHERE session_id = $1`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	answers := make(map[int64]StoredAnswer)
	for rows.Next() {
		var a StoredAnswer
		if err := rows.Scan(&a.QuestionID, &a.UserAnswer, &a.IsCorrect, &a.Point, &a.IsFlagged); err != nil {
			return nil, err
		}
		answers[a.QuestionID] = a
	}
	return answers, rows.Err()
}

type questionRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanQuestions(rows questionRows) ([]model.Question, error) {
	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var optionsRaw []byte
		if err := rows.Scan(
			&q.ID, &q.CategoryID, &q.Details.Variant, &q.Details.Body,
			&optionsRaw, &q.Details.PointScale, &q.AnswerKey, &q.Position,
		); err != nil {
			return nil, err
		}
		if len(optionsRaw) > 0 {
			if err := json.Unmarshal(optionsRaw, &q.Details.Options); err != nil {
				return nil, fmt.Errorf("decode options for question %d: %w", q.ID, err)
			}
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
