// Package grading computes per-question correctness at session
// completion by comparing the participant's wire-encoded answer with
// the stored answer key, variant by variant.
package grading

import (
	"sort"
	"strings"

	"github.com/ujianku/sesi-backend/internal/codec"
	"github.com/ujianku/sesi-backend/internal/model"
)

// Result is the graded outcome of one question.
type Result struct {
	QuestionID int64
	// IsCorrect stays nil for essays and unanswered questions.
	IsCorrect *bool
	// Point stays nil when IsCorrect is nil.
	Point *float64
}

// Rollup is the graded outcome of a whole session.
type Rollup struct {
	Results []Result
	// FinalGrade is the sum of earned points across graded questions.
	FinalGrade float64
}

// GradeQuestion grades one answered question. An empty or missing
// answer is ungraded; essays are always ungraded.
func GradeQuestion(q model.QuestionAnswer, answerKey string) Result {
	res := Result{QuestionID: q.QuestionID}

	if q.Details.Variant == model.VariantEssay {
		return res
	}
	if q.UserAnswer == nil || *q.UserAnswer == "" {
		return res
	}

	correct := compare(q.Details, answerKey, *q.UserAnswer)
	res.IsCorrect = &correct

	point := 0.0
	if correct {
		point = q.Details.PointScale
	}
	res.Point = &point
	return res
}

// GradeSession grades every question of a session and sums the earned
// points into the final grade.
func GradeSession(questions []model.QuestionAnswer, answerKeys map[int64]string) Rollup {
	rollup := Rollup{Results: make([]Result, 0, len(questions))}
	for _, q := range questions {
		res := GradeQuestion(q, answerKeys[q.QuestionID])
		if res.Point != nil {
			rollup.FinalGrade += *res.Point
		}
		rollup.Results = append(rollup.Results, res)
	}
	return rollup
}

func compare(details model.QuestionDetails, answerKey, userAnswer string) bool {
	optionCount := len(details.Options)

	keyAns, err := codec.Decode(details.Variant, answerKey, optionCount)
	if err != nil {
		return false
	}
	userAns, err := codec.Decode(details.Variant, userAnswer, optionCount)
	if err != nil {
		return false
	}

	switch key := keyAns.(type) {
	case codec.Single:
		user := userAns.(codec.Single)
		return strings.EqualFold(user.Key, key.Key)

	case codec.Multi:
		user := userAns.(codec.Multi)
		return equalFoldKeys(user.Keys, key.Keys)

	case codec.Categorized:
		user := userAns.(codec.Categorized)
		for i := range key.Labels {
			if user.Labels[i] != key.Labels[i] {
				return false
			}
		}
		return true
	}

	return false
}

// equalFoldKeys reports set equality of two key lists ignoring case.
// The codec sorts case-sensitively, so keys that match only up to case
// can land in different positions; folding both sides to one casing
// restores the alignment before comparing.
func equalFoldKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	fa, fb := foldSorted(a), foldSorted(b)
	for i := range fa {
		if fa[i] != fb[i] {
			return false
		}
	}
	return true
}

func foldSorted(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = strings.ToLower(k)
	}
	sort.Strings(out)
	return out
}
