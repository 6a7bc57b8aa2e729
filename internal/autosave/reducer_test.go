package autosave

import (
	"testing"

	"github.com/ujianku/sesi-backend/internal/model"
)

func strPtr(s string) *string     { return &s }
func boolPtr(b bool) *bool        { return &b }
func floatPtr(f float64) *float64 { return &f }

func snapshot() []model.QuestionAnswer {
	return []model.QuestionAnswer{
		{QuestionID: 1, UserAnswer: strPtr("a"), IsCorrect: boolPtr(true), Point: floatPtr(2)},
		{QuestionID: 2, UserAnswer: nil, IsFlagged: true},
		{QuestionID: 3, UserAnswer: strPtr("b,c")},
	}
}

func TestApplySavePatchesByQuestionID(t *testing.T) {
	qs := Apply(snapshot(), SaveAnswer{ID: 3, Encoded: "a,b"})

	if qs[2].UserAnswer == nil || *qs[2].UserAnswer != "a,b" {
		t.Fatalf("question 3 not patched: %+v", qs[2])
	}
	// Other records untouched.
	if *qs[0].UserAnswer != "a" || qs[1].UserAnswer != nil {
		t.Fatal("save leaked into other question records")
	}
}

func TestApplySaveInvalidatesGrading(t *testing.T) {
	qs := Apply(snapshot(), SaveAnswer{ID: 1, Encoded: "b"})

	if qs[0].IsCorrect != nil || qs[0].Point != nil {
		t.Fatalf("grading fields survived an answer change: %+v", qs[0])
	}
}

func TestApplyResetClearsAnswerAndGradingTogether(t *testing.T) {
	qs := Apply(snapshot(), ResetAnswer{ID: 1})

	got := qs[0]
	if got.UserAnswer != nil || got.IsCorrect != nil || got.Point != nil {
		t.Fatalf("reset left state behind: %+v", got)
	}
}

func TestApplyFlagIsIndependentOfAnswerState(t *testing.T) {
	qs := Apply(snapshot(), SetFlag{ID: 1, Flagged: true})

	if !qs[0].IsFlagged {
		t.Fatal("flag not set")
	}
	if qs[0].UserAnswer == nil || *qs[0].UserAnswer != "a" {
		t.Fatal("flag toggle must not touch the answer")
	}
	if qs[0].IsCorrect == nil || qs[0].Point == nil {
		t.Fatal("flag toggle must not touch grading")
	}

	qs = Apply(qs, SetFlag{ID: 1, Flagged: false})
	if qs[0].IsFlagged {
		t.Fatal("flag not cleared")
	}
}

func TestApplyUnknownQuestionIsNoop(t *testing.T) {
	before := snapshot()
	after := Apply(snapshot(), SaveAnswer{ID: 99, Encoded: "x"})

	for i := range before {
		if (before[i].UserAnswer == nil) != (after[i].UserAnswer == nil) {
			t.Fatalf("record %d changed by unknown-id intent", i)
		}
	}
}

func TestApplyLateSaveForPreviousQuestionIsSafe(t *testing.T) {
	// The user has moved from question 1 to question 2; the in-flight
	// save for question 1 completes afterwards. Patching is keyed by
	// id, so the late completion lands on the right record.
	qs := snapshot()
	qs = Apply(qs, SaveAnswer{ID: 2, Encoded: "c"})
	qs = Apply(qs, SaveAnswer{ID: 1, Encoded: "b"})

	if *qs[0].UserAnswer != "b" {
		t.Fatalf("late save lost: %+v", qs[0])
	}
	if *qs[1].UserAnswer != "c" {
		t.Fatalf("current answer clobbered: %+v", qs[1])
	}
}
