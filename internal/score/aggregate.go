// Package score is the post-hoc read path over completed attempts:
// deduplication per test, root/child grouping along the test hierarchy,
// and divisor-weighted summary statistics.
package score

import (
	"sort"
	"time"
)

// Attempt is one completed attempt as seen by the aggregator.
type Attempt struct {
	SessionID    int64      `json:"session_id"`
	TestID       int64      `json:"test_id"`
	TestTitle    string     `json:"test_title"`
	ParentTestID *int64     `json:"parent_test_id,omitempty"`
	Grade        float64    `json:"grade"`
	// Divisor scales the grade in totals; nil means 1.
	Divisor   *float64  `json:"divisor,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// WeightedGrade is the attempt's contribution to the total.
func (a Attempt) WeightedGrade() float64 {
	div := 1.0
	if a.Divisor != nil && *a.Divisor != 0 {
		div = *a.Divisor
	}
	return a.Grade / div
}

// Group is one root attempt with its child attempts. An attempt whose
// test has no parent is a root; an attempt whose parent is missing from
// the set is promoted to a standalone root rather than dropped.
type Group struct {
	Root     Attempt   `json:"root"`
	Children []Attempt `json:"children,omitempty"`
}

// Summary holds the statistics over a deduplicated attempt set.
type Summary struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	Total float64 `json:"total"`
}

// Dedupe keeps only the most recently created attempt per test id,
// preserving a stable order by test id.
func Dedupe(attempts []Attempt) []Attempt {
	latest := make(map[int64]Attempt, len(attempts))
	for _, a := range attempts {
		if prev, ok := latest[a.TestID]; ok && !a.CreatedAt.After(prev.CreatedAt) {
			continue
		}
		latest[a.TestID] = a
	}

	out := make([]Attempt, 0, len(latest))
	for _, a := range latest {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TestID < out[j].TestID })
	return out
}

// GroupByRoot arranges a deduplicated attempt set into root groups.
// Children attach to the root whose test id matches their parent test
// id; orphans become standalone roots.
func GroupByRoot(attempts []Attempt) []Group {
	roots := make(map[int64]*Group)
	var order []int64

	addRoot := func(a Attempt) {
		if _, ok := roots[a.TestID]; ok {
			return
		}
		roots[a.TestID] = &Group{Root: a}
		order = append(order, a.TestID)
	}

	for _, a := range attempts {
		if a.ParentTestID == nil {
			addRoot(a)
		}
	}

	for _, a := range attempts {
		if a.ParentTestID == nil {
			continue
		}
		if root, ok := roots[*a.ParentTestID]; ok {
			root.Children = append(root.Children, a)
		} else {
			// Orphan rule: a missing parent promotes the attempt to a
			// standalone root instead of silently dropping it.
			addRoot(a)
		}
	}

	out := make([]Group, 0, len(order))
	for _, id := range order {
		out = append(out, *roots[id])
	}
	return out
}

// Summarize computes min, max, mean and total of the weighted grades.
func Summarize(attempts []Attempt) Summary {
	if len(attempts) == 0 {
		return Summary{}
	}

	s := Summary{Count: len(attempts)}
	for i, a := range attempts {
		g := a.WeightedGrade()
		s.Total += g
		if i == 0 || g < s.Min {
			s.Min = g
		}
		if i == 0 || g > s.Max {
			s.Max = g
		}
	}
	s.Mean = s.Total / float64(len(attempts))
	return s
}

// Aggregate runs the full read path: dedupe, group, summarize.
func Aggregate(attempts []Attempt) ([]Group, Summary) {
	deduped := Dedupe(attempts)
	return GroupByRoot(deduped), Summarize(deduped)
}
