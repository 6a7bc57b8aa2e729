package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ujianku/sesi-backend/internal/model"
)

// TestRepository handles test definition and category data access.
type TestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

// GetByID retrieves a test definition.
func (r *TestRepository) GetByID(ctx context.Context, id int64) (*model.Test, error) {
	t := &model.Test{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, parent_test_id, timer_type, total_time, score_divisor, created_at
		 FROM tests
		 WHERE id = $1`, id,
	).Scan(&t.ID, &t.Title, &t.ParentTestID, &t.TimerType, &t.TotalTime, &t.ScoreDivisor, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListCategories retrieves the ordered categories of a test.
func (r *TestRepository) ListCategories(ctx context.Context, testID int64) ([]model.TestCategory, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, test_id, name, duration_seconds, position
		 FROM test_categories
		 WHERE test_id = $1
		 ORDER BY position ASC`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []model.TestCategory
	for rows.Next() {
		var c model.TestCategory
		if err := rows.Scan(&c.ID, &c.TestID, &c.Name, &c.DurationSeconds, &c.Position); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// GetCategory retrieves one category of a test.
func (r *TestRepository) GetCategory(ctx context.Context, testID, categoryID int64) (*model.TestCategory, error) {
	c := &model.TestCategory{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, test_id, name, duration_seconds, position
		 FROM test_categories
		 WHERE id = $1 AND test_id = $2`, categoryID, testID,
	).Scan(&c.ID, &c.TestID, &c.Name, &c.DurationSeconds, &c.Position)
	if err != nil {
		return nil, err
	}
	return c, nil
}
