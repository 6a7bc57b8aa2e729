package grading

import (
	"testing"

	"github.com/ujianku/sesi-backend/internal/model"
)

func strPtr(s string) *string { return &s }

func question(variant model.Variant, optionKeys []string, points float64, answer *string) model.QuestionAnswer {
	opts := make([]model.Option, len(optionKeys))
	for i, k := range optionKeys {
		opts[i] = model.Option{Key: k}
	}
	return model.QuestionAnswer{
		QuestionID: 1,
		Details:    model.QuestionDetails{Variant: variant, Options: opts, PointScale: points},
		UserAnswer: answer,
	}
}

func TestGradeQuestion(t *testing.T) {
	abc := []string{"a", "b", "c"}

	tests := []struct {
		name      string
		q         model.QuestionAnswer
		key       string
		isCorrect *bool
		point     *float64
	}{
		{name: "single correct", q: question(model.VariantMultipleChoice, abc, 2, strPtr("b")), key: "b", isCorrect: ptrBool(true), point: ptrFloat(2)},
		{name: "single wrong", q: question(model.VariantMultipleChoice, abc, 2, strPtr("a")), key: "b", isCorrect: ptrBool(false), point: ptrFloat(0)},
		{name: "true false correct", q: question(model.VariantTrueFalse, []string{"a", "b"}, 1, strPtr("a")), key: "a", isCorrect: ptrBool(true), point: ptrFloat(1)},
		{name: "multi correct any order", q: question(model.VariantMultipleChoiceMulti, abc, 4, strPtr("c,a")), key: "a,c", isCorrect: ptrBool(true), point: ptrFloat(4)},
		{name: "multi missing one", q: question(model.VariantMultipleChoiceMulti, abc, 4, strPtr("a")), key: "a,c", isCorrect: ptrBool(false), point: ptrFloat(0)},
		{name: "multi extra one", q: question(model.VariantMultipleChoiceMulti, abc, 4, strPtr("a,b,c")), key: "a,c", isCorrect: ptrBool(false), point: ptrFloat(0)},
		{name: "multi keys equal up to case", q: question(model.VariantMultipleChoiceMulti, abc, 4, strPtr("A,b")), key: "a,B", isCorrect: ptrBool(true), point: ptrFloat(4)},
		{name: "multi case fold keeps keys distinct", q: question(model.VariantMultipleChoiceMulti, abc, 4, strPtr("A,a")), key: "a", isCorrect: ptrBool(false), point: ptrFloat(0)},
		{name: "categorized correct", q: question(model.VariantMultipleChoiceCategory, abc, 3, strPtr("accurate,not_accurate,accurate")), key: "accurate,not_accurate,accurate", isCorrect: ptrBool(true), point: ptrFloat(3)},
		{name: "categorized one slot off", q: question(model.VariantMultipleChoiceCategory, abc, 3, strPtr("accurate,accurate,accurate")), key: "accurate,not_accurate,accurate", isCorrect: ptrBool(false), point: ptrFloat(0)},
		{name: "categorized unanswered slot", q: question(model.VariantMultipleChoiceCategory, abc, 3, strPtr("accurate,,accurate")), key: "accurate,not_accurate,accurate", isCorrect: ptrBool(false), point: ptrFloat(0)},
		{name: "unanswered stays ungraded", q: question(model.VariantMultipleChoice, abc, 2, nil), key: "b"},
		{name: "empty answer stays ungraded", q: question(model.VariantMultipleChoice, abc, 2, strPtr("")), key: "b"},
		{name: "essay stays ungraded", q: question(model.VariantEssay, nil, 10, strPtr("uraian panjang")), key: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := GradeQuestion(tc.q, tc.key)
			if !eqBool(got.IsCorrect, tc.isCorrect) {
				t.Fatalf("is_correct = %v, want %v", fmtBool(got.IsCorrect), fmtBool(tc.isCorrect))
			}
			if !eqFloat(got.Point, tc.point) {
				t.Fatalf("point = %v, want %v", fmtFloat(got.Point), fmtFloat(tc.point))
			}
		})
	}
}

func TestGradeSessionSumsEarnedPoints(t *testing.T) {
	abc := []string{"a", "b", "c"}
	questions := []model.QuestionAnswer{
		question(model.VariantMultipleChoice, abc, 2, strPtr("b")),
		question(model.VariantMultipleChoiceMulti, abc, 4, strPtr("a,c")),
		question(model.VariantMultipleChoice, abc, 2, strPtr("a")),
		question(model.VariantEssay, nil, 10, strPtr("essay")),
	}
	for i := range questions {
		questions[i].QuestionID = int64(i + 1)
	}

	keys := map[int64]string{1: "b", 2: "a,c", 3: "b", 4: ""}

	rollup := GradeSession(questions, keys)
	if rollup.FinalGrade != 6 {
		t.Fatalf("final grade = %v, want 6", rollup.FinalGrade)
	}
	if len(rollup.Results) != 4 {
		t.Fatalf("results = %d", len(rollup.Results))
	}
	if rollup.Results[3].IsCorrect != nil {
		t.Fatal("essay must remain ungraded in the rollup")
	}
}

func ptrBool(b bool) *bool        { return &b }
func ptrFloat(f float64) *float64 { return &f }

func eqBool(a, b *bool) bool     { return (a == nil) == (b == nil) && (a == nil || *a == *b) }
func eqFloat(a, b *float64) bool { return (a == nil) == (b == nil) && (a == nil || *a == *b) }

func fmtBool(p *bool) interface{} {
	if p == nil {
		return "nil"
	}
	return *p
}

func fmtFloat(p *float64) interface{} {
	if p == nil {
		return "nil"
	}
	return *p
}
