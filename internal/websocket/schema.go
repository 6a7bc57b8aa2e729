package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave   Action = "autosave"
	ActionReset      Action = "reset"
	ActionFlag       Action = "flag"
	ActionVisibility Action = "visibility"
	ActionFinish     Action = "finish"
	ActionPing       Action = "ping"
)

// RequestPayload is the single client message shape; unused fields stay
// zero for actions that do not need them.
type RequestPayload struct {
	Action     Action `json:"action"`
	QuestionID int64  `json:"question_id,omitempty"`
	Variant    string `json:"variant,omitempty"`
	Answer     string `json:"answer,omitempty"`
	Flagged    bool   `json:"flagged,omitempty"`
	CategoryID *int64 `json:"category_id,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError      Event = "error"
	EventSaved      Event = "saved"
	EventTimer      Event = "timer"
	EventTransition Event = "transition"
	EventPong       Event = "pong"
)

// SavedResponse acknowledges an autosave, reset or flag write.
type SavedResponse struct {
	Event      Event  `json:"event"`
	QuestionID int64  `json:"question_id"`
	Status     string `json:"status"`
}

// TimerResponse carries the reconciled countdown after a visibility
// regain. RemainingSeconds is -1 when no timer runs for the scope.
type TimerResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int64 `json:"remaining_seconds"`
}

// TransitionResponse reports the outcome of a finish: either the next
// category or the completed test.
type TransitionResponse struct {
	Event          Event  `json:"event"`
	NextCategoryID *int64 `json:"next_category_id,omitempty"`
	TestID         *int64 `json:"test_id,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
