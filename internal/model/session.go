package model

import "time"

// SessionStatus enumerates session states.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
)

// Session is one participant's attempt at a test. It is created by the
// external generate/continue action, read by the session loader and
// mutated only through end-category / end-session transitions.
// Terminal once completed.
type Session struct {
	ID            int64         `json:"id"`
	TestID        int64         `json:"test_id"`
	ParticipantID int64         `json:"participant_id"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    *time.Time    `json:"finished_at,omitempty"`
	Status        SessionStatus `json:"status"`
	FinalGrade    *float64      `json:"final_grade,omitempty"`
}

// CategoryGroup is one scored section of a session: the category, its
// per-session timing state and its ordered questions.
type CategoryGroup struct {
	CategoryID      int64            `json:"category_id"`
	Name            string           `json:"name"`
	DurationSeconds *int             `json:"duration_seconds,omitempty"`
	StartedAt       *time.Time       `json:"started_at,omitempty"`
	EndedAt         *time.Time       `json:"ended_at,omitempty"`
	Questions       []QuestionAnswer `json:"questions"`
}

// SessionPayload is the normalized result of continuing a whole test or
// a single category: both server operations produce this one shape.
type SessionPayload struct {
	Session          Session          `json:"session"`
	Test             Test             `json:"test"`
	Groups           []CategoryGroup  `json:"category_groups"`
	Questions        []QuestionAnswer `json:"questions"`
	Timed            bool             `json:"timed"`
	RemainingSeconds int64            `json:"remaining_seconds"`
}

// TransitionResult is the discriminated outcome of ending a category or
// a session: either the next category to continue with, or the finished
// test identity when the attempt is complete.
type TransitionResult struct {
	NextCategoryID *int64 `json:"next_category_id,omitempty"`
	TestID         *int64 `json:"test_id,omitempty"`
}

// Completed reports whether the transition ended the whole attempt.
func (t TransitionResult) Completed() bool {
	return t.TestID != nil
}

// HistoryAttempt is one completed or ongoing attempt in the participant
// history read path.
type HistoryAttempt struct {
	SessionID    int64         `json:"session_id"`
	TestID       int64         `json:"test_id"`
	TestTitle    string        `json:"test_title"`
	ParentTestID *int64        `json:"parent_test_id,omitempty"`
	ScoreDivisor *float64      `json:"score_divisor,omitempty"`
	Status       SessionStatus `json:"status"`
	Grade        *float64      `json:"grade,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   *time.Time    `json:"finished_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}
