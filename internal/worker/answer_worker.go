package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/ujianku/sesi-backend/internal/autosave"
	"github.com/ujianku/sesi-backend/internal/config"
)

// AnswerWorker consumes persist_answers_queue and UPSERTs answer state
// into PostgreSQL. The Redis hash stays authoritative during the
// session; these rows are the durable copy a reload falls back to.
type AnswerWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewAnswerWorker creates a new AnswerWorker.
func NewAnswerWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AnswerWorker {
	return &AnswerWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "answer_worker").Logger(),
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *AnswerWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AnswerWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout (1 second).
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.PersistAnswersQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var job autosave.PersistJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed job")
		return
	}

	if err := w.persist(ctx, &job); err != nil {
		w.log.Error().Err(err).
			Int64("session_id", job.SessionID).
			Int64("question_id", job.QuestionID).
			Msg("Persist error, retrying in 5s")
		// Push back to queue for retry.
		w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

// persist applies one job as an UPSERT. A save replaces the answer and
// invalidates any earlier grading of the question; a reset clears
// answer and grading together; a flag touches only the marker.
func (w *AnswerWorker) persist(ctx context.Context, job *autosave.PersistJob) error {
	var err error
	switch job.Op {
	case autosave.OpSave:
		_, err = w.pool.Exec(ctx,
			`INSERT INTO session_answers (session_id, question_id, user_answer)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (session_id, question_id) DO UPDATE
			 SET user_answer = EXCLUDED.user_answer,
			     is_correct = NULL, point = NULL, updated_at = NOW()`,
			job.SessionID, job.QuestionID, job.Answer,
		)

	case autosave.OpReset:
		_, err = w.pool.Exec(ctx,
			`INSERT INTO session_answers (session_id, question_id, user_answer)
			 VALUES ($1, $2, NULL)
			 ON CONFLICT (session_id, question_id) DO UPDATE
			 SET user_answer = NULL,
			     is_correct = NULL, point = NULL, updated_at = NOW()`,
			job.SessionID, job.QuestionID,
		)

	case autosave.OpFlag:
		_, err = w.pool.Exec(ctx,
			`INSERT INTO session_answers (session_id, question_id, is_flagged)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (session_id, question_id) DO UPDATE
			 SET is_flagged = EXCLUDED.is_flagged, updated_at = NOW()`,
			job.SessionID, job.QuestionID, job.Flagged,
		)

	default:
		w.log.Error().Str("op", string(job.Op)).Msg("Dropping job with unknown op")
	}
	return err
}

// drain processes all remaining items in the queue before shutdown.
func (w *AnswerWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PersistAnswersQueue).Result()
		if err != nil {
			break
		}

		var job autosave.PersistJob
		if err := json.Unmarshal([]byte(result), &job); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.persist(ctx, &job); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
