package grading

// PersistJob is the queue payload the grade worker consumes: the graded
// results of one completed session. The session row itself is already
// completed synchronously; the worker only backfills per-question
// grading columns and drops the hot answer snapshot.
type PersistJob struct {
	SessionID int64    `json:"session_id"`
	Results   []Result `json:"results"`
}
