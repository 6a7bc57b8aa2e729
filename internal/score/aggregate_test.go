package score

import (
	"testing"
	"time"
)

func int64Ptr(v int64) *int64       { return &v }
func floatPtr(v float64) *float64   { return &v }
func at(minute int) time.Time       { return time.Date(2026, 3, 9, 8, minute, 0, 0, time.UTC) }

func TestDedupeKeepsMostRecentAttemptPerTest(t *testing.T) {
	attempts := []Attempt{
		{SessionID: 1, TestID: 10, Grade: 50, CreatedAt: at(0)},
		{SessionID: 2, TestID: 10, Grade: 80, CreatedAt: at(30)},
		{SessionID: 3, TestID: 20, Grade: 60, CreatedAt: at(10)},
	}

	got := Dedupe(attempts)
	if len(got) != 2 {
		t.Fatalf("deduped count = %d, want 2", len(got))
	}
	if got[0].SessionID != 2 || got[0].Grade != 80 {
		t.Fatalf("kept the wrong attempt for test 10: %+v", got[0])
	}
	if got[1].TestID != 20 {
		t.Fatalf("lost test 20: %+v", got)
	}
}

func TestWeightedTotalWithDivisors(t *testing.T) {
	// testA: grade 80 divisor 1, testB: grade 60 divisor 2 → 110.
	attempts := []Attempt{
		{TestID: 1, Grade: 80, Divisor: floatPtr(1), CreatedAt: at(0)},
		{TestID: 2, Grade: 60, Divisor: floatPtr(2), CreatedAt: at(1)},
	}

	s := Summarize(attempts)
	if s.Total != 110 {
		t.Fatalf("total = %v, want 110", s.Total)
	}
	if s.Min != 30 || s.Max != 80 {
		t.Fatalf("min/max = %v/%v, want 30/80", s.Min, s.Max)
	}
	if s.Mean != 55 {
		t.Fatalf("mean = %v, want 55", s.Mean)
	}
}

func TestMissingDivisorDefaultsToOne(t *testing.T) {
	s := Summarize([]Attempt{{TestID: 1, Grade: 72, CreatedAt: at(0)}})
	if s.Total != 72 {
		t.Fatalf("total = %v, want 72", s.Total)
	}
}

func TestZeroDivisorTreatedAsOne(t *testing.T) {
	// A zero divisor would divide by zero; it falls back to 1.
	a := Attempt{Grade: 40, Divisor: floatPtr(0)}
	if got := a.WeightedGrade(); got != 40 {
		t.Fatalf("weighted = %v, want 40", got)
	}
}

func TestGroupByRootAttachesChildren(t *testing.T) {
	attempts := []Attempt{
		{TestID: 1, Grade: 80, CreatedAt: at(0)},                          // root
		{TestID: 2, ParentTestID: int64Ptr(1), Grade: 60, CreatedAt: at(1)}, // child of 1
		{TestID: 3, ParentTestID: int64Ptr(1), Grade: 70, CreatedAt: at(2)}, // child of 1
	}

	groups := GroupByRoot(attempts)
	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(groups))
	}
	if groups[0].Root.TestID != 1 || len(groups[0].Children) != 2 {
		t.Fatalf("unexpected grouping: %+v", groups[0])
	}
}

func TestOrphanPromotedToStandaloneRoot(t *testing.T) {
	attempts := []Attempt{
		{TestID: 1, Grade: 80, CreatedAt: at(0)},
		{TestID: 5, ParentTestID: int64Ptr(99), Grade: 45, CreatedAt: at(1)},
	}

	groups := GroupByRoot(attempts)
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2 (orphan promoted, not dropped)", len(groups))
	}
	if groups[1].Root.TestID != 5 || len(groups[1].Children) != 0 {
		t.Fatalf("orphan not standalone: %+v", groups[1])
	}
}

func TestAggregateEndToEnd(t *testing.T) {
	attempts := []Attempt{
		{SessionID: 1, TestID: 1, Grade: 40, CreatedAt: at(0)},
		{SessionID: 2, TestID: 1, Grade: 80, Divisor: floatPtr(1), CreatedAt: at(5)}, // retake wins
		{SessionID: 3, TestID: 2, ParentTestID: int64Ptr(1), Grade: 60, Divisor: floatPtr(2), CreatedAt: at(6)},
	}

	groups, summary := Aggregate(attempts)
	if len(groups) != 1 || len(groups[0].Children) != 1 {
		t.Fatalf("unexpected groups: %+v", groups)
	}
	if summary.Count != 2 {
		t.Fatalf("count = %d, want 2", summary.Count)
	}
	if summary.Total != 110 {
		t.Fatalf("total = %v, want 110", summary.Total)
	}
}

func TestSummarizeEmptySet(t *testing.T) {
	s := Summarize(nil)
	if s.Count != 0 || s.Total != 0 || s.Mean != 0 {
		t.Fatalf("empty summary not zero: %+v", s)
	}
}
