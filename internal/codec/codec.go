// Package codec converts between typed answer values and the flat
// string wire format the answer protocol uses. Encoding is per question
// variant; all functions are pure and stateless.
//
// Wire formats:
//   - single-select: the chosen option key ("a")
//   - multi-select:  comma-joined unordered set of keys ("a,c")
//   - categorized:   comma-joined labels positionally aligned with the
//     option list; an unanswered slot is an empty segment
//   - essay:         raw text, no structural encoding
//
// The separator is a bare comma with no escaping. Option keys are
// validated at the authoring boundary to short alphanumerics, so a key
// can never contain a comma.
package codec

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ujianku/sesi-backend/internal/model"
)

// Category labels used by the categorized variant.
const (
	LabelAccurate    = "accurate"
	LabelNotAccurate = "not_accurate"
)

// Answer is the closed set of structured answer values, one per
// variant. Adding a variant without updating Encode and Decode is a
// compile-time error at the switch default paths.
type Answer interface {
	answer()
}

// Single is the answer of a multiple_choice or true_false question.
type Single struct {
	Key string
}

// Multi is the answer of a multiple_choice_multiple_answer question.
// Keys are a set: normalized to sorted unique order on construction and
// on decode, so round-trips are order-insensitive.
type Multi struct {
	Keys []string
}

// Categorized is the answer of a multiple_choice_multiple_category
// question. Labels[i] is the label chosen for option i; an unanswered
// slot is the empty string.
type Categorized struct {
	Labels []string
}

// Essay is the free-text answer of an essay question.
type Essay struct {
	Text string
}

func (Single) answer()      {}
func (Multi) answer()       {}
func (Categorized) answer() {}
func (Essay) answer()       {}

// NewMulti builds a normalized multi-select answer from the given keys:
// duplicates removed, order discarded.
func NewMulti(keys ...string) Multi {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return Multi{Keys: out}
}

// Empty returns the "no answer" structured value for a variant.
// optionCount sizes the categorized slot list.
func Empty(variant model.Variant, optionCount int) (Answer, error) {
	switch variant {
	case model.VariantMultipleChoice, model.VariantTrueFalse:
		return Single{}, nil
	case model.VariantMultipleChoiceMulti:
		return Multi{Keys: []string{}}, nil
	case model.VariantMultipleChoiceCategory:
		return Categorized{Labels: make([]string, optionCount)}, nil
	case model.VariantEssay:
		return Essay{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown variant %q", variant)
	}
}

// Encode serializes a structured answer to the wire string. The answer
// type must match the variant.
func Encode(variant model.Variant, a Answer) (string, error) {
	switch variant {
	case model.VariantMultipleChoice, model.VariantTrueFalse:
		v, ok := a.(Single)
		if !ok {
			return "", mismatch(variant, a)
		}
		return v.Key, nil

	case model.VariantMultipleChoiceMulti:
		v, ok := a.(Multi)
		if !ok {
			return "", mismatch(variant, a)
		}
		norm := NewMulti(v.Keys...)
		return strings.Join(norm.Keys, ","), nil

	case model.VariantMultipleChoiceCategory:
		v, ok := a.(Categorized)
		if !ok {
			return "", mismatch(variant, a)
		}
		return strings.Join(v.Labels, ","), nil

	case model.VariantEssay:
		v, ok := a.(Essay)
		if !ok {
			return "", mismatch(variant, a)
		}
		return v.Text, nil

	default:
		return "", fmt.Errorf("codec: unknown variant %q", variant)
	}
}

// Decode parses a wire string back into the structured value for a
// variant. The empty string decodes to the variant's "no answer" value.
// optionCount is used only by the categorized variant, whose slot list
// is padded or truncated to the live option count so positional
// alignment survives schema edits.
func Decode(variant model.Variant, raw string, optionCount int) (Answer, error) {
	switch variant {
	case model.VariantMultipleChoice, model.VariantTrueFalse:
		return Single{Key: raw}, nil

	case model.VariantMultipleChoiceMulti:
		if raw == "" {
			return Multi{Keys: []string{}}, nil
		}
		return NewMulti(strings.Split(raw, ",")...), nil

	case model.VariantMultipleChoiceCategory:
		labels := make([]string, optionCount)
		if raw != "" {
			for i, seg := range strings.Split(raw, ",") {
				if i >= optionCount {
					break
				}
				labels[i] = seg
			}
		}
		return Categorized{Labels: labels}, nil

	case model.VariantEssay:
		return Essay{Text: raw}, nil

	default:
		return nil, fmt.Errorf("codec: unknown variant %q", variant)
	}
}

// SelectedSet resolves a decoded multi-select answer against the live
// option list. Stale keys that no longer match an option are dropped
// rather than treated as an error.
func SelectedSet(options []model.Option, m Multi) map[string]bool {
	known := make(map[string]struct{}, len(options))
	for _, opt := range options {
		known[opt.Key] = struct{}{}
	}
	selected := make(map[string]bool, len(m.Keys))
	for _, k := range m.Keys {
		if _, ok := known[k]; ok {
			selected[k] = true
		}
	}
	return selected
}

// IsSelected reports whether a single-select answer matches an option
// that still exists. A stale key selects nothing.
func IsSelected(options []model.Option, s Single, key string) bool {
	if s.Key != key {
		return false
	}
	for _, opt := range options {
		if opt.Key == key {
			return true
		}
	}
	return false
}

func mismatch(variant model.Variant, a Answer) error {
	return fmt.Errorf("codec: answer type %T does not match variant %q", a, variant)
}
