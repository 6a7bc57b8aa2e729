package model

import "encoding/json"

// Variant enumerates the five question types. The set is closed: the
// answer codec and the grader switch exhaustively over it.
type Variant string

const (
	VariantMultipleChoice         Variant = "multiple_choice"
	VariantTrueFalse              Variant = "true_false"
	VariantMultipleChoiceMulti    Variant = "multiple_choice_multiple_answer"
	VariantMultipleChoiceCategory Variant = "multiple_choice_multiple_category"
	VariantEssay                  Variant = "essay"
)

// Valid reports whether v is one of the five known variants.
func (v Variant) Valid() bool {
	switch v {
	case VariantMultipleChoice, VariantTrueFalse, VariantMultipleChoiceMulti,
		VariantMultipleChoiceCategory, VariantEssay:
		return true
	}
	return false
}

// Option is one selectable choice of a question.
type Option struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// QuestionDetails carries the variant-specific schema of a question.
type QuestionDetails struct {
	Variant    Variant  `json:"variant"`
	Body       string   `json:"body"`
	Options    []Option `json:"options,omitempty"`
	PointScale float64  `json:"point_scale"`
}

// Question is an authored question belonging to a test category. The
// answer key is stored in the same wire encoding the codec produces.
type Question struct {
	ID         int64           `json:"id"`
	CategoryID int64           `json:"category_id"`
	Details    QuestionDetails `json:"details"`
	AnswerKey  string          `json:"-"`
	Position   int             `json:"position"`
}

// QuestionAnswer is one question of a session together with the
// participant's current answer state. QuestionID is stable for the
// session lifetime; the flattened index is derived, never persisted.
type QuestionAnswer struct {
	QuestionID int64           `json:"question_id"`
	Details    QuestionDetails `json:"question_details"`
	UserAnswer *string         `json:"user_answer"`
	IsCorrect  *bool           `json:"is_correct"`
	Point      *float64        `json:"point"`
	IsFlagged  bool            `json:"is_flagged"`
}

// AutosavedAnswer is the per-question state kept in the Redis answer
// hash between the autosave write and durable persistence.
type AutosavedAnswer struct {
	Answer    *string `json:"answer"`
	IsFlagged bool    `json:"is_flagged"`
}

// EncodeAutosaved marshals a for the Redis hash.
func EncodeAutosaved(a AutosavedAnswer) string {
	raw, _ := json.Marshal(a)
	return string(raw)
}

// DecodeAutosaved unmarshals a hash value back into answer state.
func DecodeAutosaved(raw string) (AutosavedAnswer, error) {
	var a AutosavedAnswer
	err := json.Unmarshal([]byte(raw), &a)
	return a, err
}

// SaveAnswerRequest is the payload for saving one answer.
type SaveAnswerRequest struct {
	Variant string `json:"variant" binding:"required,oneof=multiple_choice true_false multiple_choice_multiple_answer multiple_choice_multiple_category essay"`
	Answer  string `json:"answer"`
}

// FlagQuestionRequest is the payload for toggling a question flag.
type FlagQuestionRequest struct {
	Flagged *bool `json:"flagged" binding:"required"`
}
