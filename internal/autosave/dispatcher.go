package autosave

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/ujianku/sesi-backend/internal/config"
	"github.com/ujianku/sesi-backend/internal/model"
)

// Op identifies a persist job type on the answers queue.
type Op string

const (
	OpSave  Op = "save"
	OpReset Op = "reset"
	OpFlag  Op = "flag"
)

// PersistJob is the queue payload consumed by the answer worker.
type PersistJob struct {
	Op         Op     `json:"op"`
	SessionID  int64  `json:"session_id"`
	QuestionID int64  `json:"question_id"`
	Answer     string `json:"answer,omitempty"`
	Flagged    bool   `json:"flagged,omitempty"`
}

// inflight tracks one save until it settles. Success and failure both
// unblock waiters.
type inflight struct {
	done chan struct{}
	err  error
}

// Dispatcher issues save/reset/flag operations: each call patches the
// Redis answer hash (the cross-reload snapshot) and enqueues durable
// persistence. Only the most recent save per session is tracked —
// last-writer only, not a queue — so a finish transition can await it.
type Dispatcher struct {
	rdb *redis.Client
	log zerolog.Logger

	mu       sync.Mutex
	lastSave map[int64]*inflight
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(rdb *redis.Client, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		rdb:      rdb,
		log:      log.With().Str("component", "autosave_dispatcher").Logger(),
		lastSave: make(map[int64]*inflight),
	}
}

// Save stores the encoded answer for one question. The hot snapshot is
// patched only after the persist job is enqueued; on failure the
// snapshot is left untouched and the error surfaces to the caller.
func (d *Dispatcher) Save(ctx context.Context, sessionID, questionID int64, encoded string) error {
	fin := d.beginSave(sessionID)
	err := d.apply(ctx, sessionID, questionID, func(state *model.AutosavedAnswer) PersistJob {
		state.Answer = &encoded
		return PersistJob{Op: OpSave, SessionID: sessionID, QuestionID: questionID, Answer: encoded}
	})
	fin.settle(err)
	return err
}

// Reset clears the answer for one question.
func (d *Dispatcher) Reset(ctx context.Context, sessionID, questionID int64) error {
	return d.apply(ctx, sessionID, questionID, func(state *model.AutosavedAnswer) PersistJob {
		state.Answer = nil
		return PersistJob{Op: OpReset, SessionID: sessionID, QuestionID: questionID}
	})
}

// SetFlag toggles the review marker for one question.
func (d *Dispatcher) SetFlag(ctx context.Context, sessionID, questionID int64, flagged bool) error {
	return d.apply(ctx, sessionID, questionID, func(state *model.AutosavedAnswer) PersistJob {
		state.IsFlagged = flagged
		return PersistJob{Op: OpFlag, SessionID: sessionID, QuestionID: questionID, Flagged: flagged}
	})
}

// AwaitLastSave blocks until the most recently tracked save for the
// session settles, or ctx is done. Both save success and save failure
// unblock the caller: the point is ordering before a finish transition,
// not retry.
func (d *Dispatcher) AwaitLastSave(ctx context.Context, sessionID int64) error {
	d.mu.Lock()
	fin := d.lastSave[sessionID]
	d.mu.Unlock()

	if fin == nil {
		return nil
	}

	select {
	case <-fin.done:
		return fin.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Forget drops tracking state for a finished session.
func (d *Dispatcher) Forget(sessionID int64) {
	d.mu.Lock()
	delete(d.lastSave, sessionID)
	d.mu.Unlock()
}

// Snapshot reads the autosaved answer hash for a session, keyed by
// question id.
func (d *Dispatcher) Snapshot(ctx context.Context, sessionID int64) (map[int64]model.AutosavedAnswer, error) {
	raw, err := d.rdb.HGetAll(ctx, config.CacheKey.SessionAnswersKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read answer hash: %w", err)
	}

	out := make(map[int64]model.AutosavedAnswer, len(raw))
	for field, val := range raw {
		qid, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			d.log.Warn().Str("field", field).Msg("Skipping malformed answer hash field")
			continue
		}
		state, err := model.DecodeAutosaved(val)
		if err != nil {
			d.log.Warn().Int64("question_id", qid).Err(err).Msg("Skipping malformed answer hash value")
			continue
		}
		out[qid] = state
	}
	return out, nil
}

// ClearSnapshot deletes the answer hash, typically after grading has
// persisted everything durably.
func (d *Dispatcher) ClearSnapshot(ctx context.Context, sessionID int64) error {
	return d.rdb.Del(ctx, config.CacheKey.SessionAnswersKey(sessionID)).Err()
}

// apply runs the shared mutate-enqueue-patch sequence: read the current
// hash entry, let mutate produce the new state and the persist job,
// enqueue the job, then write the patched entry back. Enqueue failure
// aborts before the patch so the snapshot never reflects a lost write.
func (d *Dispatcher) apply(ctx context.Context, sessionID, questionID int64, mutate func(*model.AutosavedAnswer) PersistJob) error {
	hashKey := config.CacheKey.SessionAnswersKey(sessionID)
	field := strconv.FormatInt(questionID, 10)

	var state model.AutosavedAnswer
	val, err := d.rdb.HGet(ctx, hashKey, field).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("read answer state: %w", err)
	}
	if err == nil {
		if state, err = model.DecodeAutosaved(val); err != nil {
			d.log.Warn().Int64("question_id", questionID).Err(err).Msg("Replacing malformed answer state")
			state = model.AutosavedAnswer{}
		}
	}

	job := mutate(&state)

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal persist job: %w", err)
	}
	if err := d.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload).Err(); err != nil {
		return fmt.Errorf("enqueue persist job: %w", err)
	}

	if err := d.rdb.HSet(ctx, hashKey, field, model.EncodeAutosaved(state)).Err(); err != nil {
		// The durable write is already queued, so the save is not lost.
		// A surviving old hash entry would overlay the newer durable
		// row on the next continue load, so drop it and let the load
		// read through to PostgreSQL.
		d.log.Warn().Int64("session_id", sessionID).Int64("question_id", questionID).Err(err).
			Msg("Answer hash patch failed after enqueue, dropping stale entry")
		if delErr := d.rdb.HDel(ctx, hashKey, field).Err(); delErr != nil {
			d.log.Error().Int64("session_id", sessionID).Int64("question_id", questionID).Err(delErr).
				Msg("Stale answer hash entry could not be dropped")
		}
	}

	return nil
}

func (d *Dispatcher) beginSave(sessionID int64) *inflight {
	fin := &inflight{done: make(chan struct{})}
	d.mu.Lock()
	d.lastSave[sessionID] = fin
	d.mu.Unlock()
	return fin
}

func (f *inflight) settle(err error) {
	f.err = err
	close(f.done)
}
