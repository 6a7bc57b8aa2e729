package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ujianku/sesi-backend/internal/model"
)

// ParticipantRepository handles participant data access.
type ParticipantRepository struct {
	pool *pgxpool.Pool
}

// NewParticipantRepository creates a new ParticipantRepository.
func NewParticipantRepository(pool *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{pool: pool}
}

// GetByUsername retrieves a participant by login username.
func (r *ParticipantRepository) GetByUsername(ctx context.Context, username string) (*model.Participant, error) {
	p := &model.Participant{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, username, password_hash, created_at
		 FROM participants
		 WHERE username = $1`, username,
	).Scan(&p.ID, &p.Name, &p.Username, &p.PasswordHash, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetByID retrieves a participant by id.
func (r *ParticipantRepository) GetByID(ctx context.Context, id int64) (*model.Participant, error) {
	p := &model.Participant{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, username, password_hash, created_at
		 FROM participants
		 WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Username, &p.PasswordHash, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Create inserts a new participant.
func (r *ParticipantRepository) Create(ctx context.Context, p *model.Participant) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO participants (name, username, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		p.Name, p.Username, p.PasswordHash,
	).Scan(&p.ID, &p.CreatedAt)
}
