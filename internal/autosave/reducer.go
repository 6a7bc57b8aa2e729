// Package autosave persists answer edits without blocking the caller:
// edits patch the Redis hot snapshot and are queued for durable
// persistence, while the most recent in-flight save is tracked so a
// finish transition can wait for it.
package autosave

import "github.com/ujianku/sesi-backend/internal/model"

// Intent is one answer mutation. The reducer applies intents to a
// question-answer snapshot; every patch is keyed by question id, never
// by display position.
type Intent interface {
	QuestionID() int64
}

// SaveAnswer replaces the wire-encoded answer of one question.
type SaveAnswer struct {
	ID      int64
	Encoded string
}

// ResetAnswer clears the answer of one question. Grading fields are
// cleared with it: a reset invalidates any prior grade.
type ResetAnswer struct {
	ID int64
}

// SetFlag toggles the review marker of one question. Independent of
// answer state.
type SetFlag struct {
	ID      int64
	Flagged bool
}

func (i SaveAnswer) QuestionID() int64  { return i.ID }
func (i ResetAnswer) QuestionID() int64 { return i.ID }
func (i SetFlag) QuestionID() int64     { return i.ID }

// Apply patches the matching record in place and returns the snapshot.
// Records for other question ids are untouched, which is what makes a
// late-completing save for a previously displayed question safe.
// Unknown question ids are a no-op.
func Apply(questions []model.QuestionAnswer, intent Intent) []model.QuestionAnswer {
	for idx := range questions {
		if questions[idx].QuestionID != intent.QuestionID() {
			continue
		}
		switch in := intent.(type) {
		case SaveAnswer:
			encoded := in.Encoded
			questions[idx].UserAnswer = &encoded
			questions[idx].IsCorrect = nil
			questions[idx].Point = nil
		case ResetAnswer:
			questions[idx].UserAnswer = nil
			questions[idx].IsCorrect = nil
			questions[idx].Point = nil
		case SetFlag:
			questions[idx].IsFlagged = in.Flagged
		}
		return questions
	}
	return questions
}
