package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/ujianku/sesi-backend/internal/config"
	"github.com/ujianku/sesi-backend/internal/grading"
)

const (
	GradeBatchSize    = 50
	GradeBatchTimeout = 2 * time.Second
	GradePollTimeout  = 1 * time.Second
)

// GradeWorker consumes persist_grades_queue and backfills per-question
// grading columns for completed sessions. The final grade is already on
// the session row; only the question-level detail lands here. After a
// successful flush the session's hot answer hash is dropped.
type GradeWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewGradeWorker creates a new GradeWorker.
func NewGradeWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *GradeWorker {
	return &GradeWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "grade_worker").Logger(),
	}
}

// Start begins the batching worker loop. Call in a goroutine.
func (w *GradeWorker) Start(ctx context.Context) {
	w.log.Info().Msg("GradeWorker started")

	batch := make([]*grading.PersistJob, 0, GradeBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= GradeBatchSize || time.Since(lastFlush) >= GradeBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, GradePollTimeout, config.WorkerKey.PersistGradesQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var job grading.PersistJob
			if err := json.Unmarshal([]byte(item[1]), &job); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &job)
		}
	}
}

// flushSafe attempts the bulk update, falls back to per-job updates and
// requeues what still fails.
func (w *GradeWorker) flushSafe(ctx context.Context, batch []*grading.PersistJob) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkUpdate(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("Bulk grade update failed, using fallback")

		for _, job := range batch {
			if err := w.persistSingle(ctx, job); err != nil {
				w.log.Error().Err(err).Int64("session_id", job.SessionID).Msg("Fallback failed, requeueing")
				raw, _ := json.Marshal(job)
				w.rdb.RPush(ctx, config.WorkerKey.PersistGradesQueue, raw)
			}
		}
		return
	}

	// Grading is durable; the hot snapshots can go.
	w.bulkClearSnapshots(ctx, batch)
}

// bulkUpdate writes every graded question of the batch in one UNNEST
// statement. Ungraded results (essays, unanswered) are skipped: their
// columns stay NULL, which already means ungraded.
func (w *GradeWorker) bulkUpdate(ctx context.Context, batch []*grading.PersistJob) error {
	var (
		sessionIDs  []int64
		questionIDs []int64
		corrects    []bool
		points      []float64
	)
	for _, job := range batch {
		for _, res := range job.Results {
			if res.IsCorrect == nil || res.Point == nil {
				continue
			}
			sessionIDs = append(sessionIDs, job.SessionID)
			questionIDs = append(questionIDs, res.QuestionID)
			corrects = append(corrects, *res.IsCorrect)
			points = append(points, *res.Point)
		}
	}
	if len(sessionIDs) == 0 {
		return nil
	}

	query := `
		UPDATE session_answers AS a
		SET is_correct = t.is_correct,
		    point = t.point,
		    updated_at = NOW()
		FROM (
			SELECT u.session_id, u.question_id, u.is_correct, u.point
			FROM UNNEST(
				$1::bigint[],
				$2::bigint[],
				$3::bool[],
				$4::float8[]
			) AS u (session_id, question_id, is_correct, point)
		) AS t
		WHERE a.session_id = t.session_id
		  AND a.question_id = t.question_id
	`

	_, err := w.pool.Exec(ctx, query, sessionIDs, questionIDs, corrects, points)
	return err
}

// bulkClearSnapshots drops the answer hashes of the flushed sessions in
// one pipeline round trip.
func (w *GradeWorker) bulkClearSnapshots(ctx context.Context, batch []*grading.PersistJob) {
	pipe := w.rdb.Pipeline()

	for _, job := range batch {
		pipe.Del(ctx, config.CacheKey.SessionAnswersKey(job.SessionID))
	}

	_, _ = pipe.Exec(ctx)
}

// persistSingle writes one job row by row.
func (w *GradeWorker) persistSingle(ctx context.Context, job *grading.PersistJob) error {
	for _, res := range job.Results {
		if res.IsCorrect == nil || res.Point == nil {
			continue
		}
		_, err := w.pool.Exec(ctx,
			`UPDATE session_answers
			 SET is_correct = $1, point = $2, updated_at = NOW()
			 WHERE session_id = $3 AND question_id = $4`,
			*res.IsCorrect, *res.Point, job.SessionID, res.QuestionID,
		)
		if err != nil {
			return err
		}
	}

	w.rdb.Del(ctx, config.CacheKey.SessionAnswersKey(job.SessionID))
	return nil
}
