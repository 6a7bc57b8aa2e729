package model

import "time"

// TimerType selects how a test is timed: one countdown for the whole
// test, or an independent countdown per category.
type TimerType string

const (
	TimerPerTest     TimerType = "per_test"
	TimerPerCategory TimerType = "per_category"
)

// Test is a test definition. Tests form a two-level hierarchy: a test
// without a parent is a root, tests referencing it are its children.
type Test struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	ParentTestID *int64     `json:"parent_test_id,omitempty"`
	TimerType    TimerType  `json:"timer_type"`
	// TotalTime is the whole-test duration in seconds (per_test only).
	TotalTime *int `json:"total_time,omitempty"`
	// ScoreDivisor scales this test's grade in cross-test summaries.
	// Nil means 1.
	ScoreDivisor *float64  `json:"score_divisor,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// TestCategory is one scored section of a test with its own ordered
// question set and, optionally, its own duration.
type TestCategory struct {
	ID       int64  `json:"id"`
	TestID   int64  `json:"test_id"`
	Name     string `json:"name"`
	// DurationSeconds is the category countdown (per_category only).
	DurationSeconds *int `json:"duration_seconds,omitempty"`
	Position        int  `json:"position"`
}
