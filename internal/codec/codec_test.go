package codec

import (
	"reflect"
	"testing"

	"github.com/ujianku/sesi-backend/internal/model"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name        string
		variant     model.Variant
		answer      Answer
		optionCount int
	}{
		{name: "single choice", variant: model.VariantMultipleChoice, answer: Single{Key: "b"}},
		{name: "single empty", variant: model.VariantMultipleChoice, answer: Single{}},
		{name: "true false", variant: model.VariantTrueFalse, answer: Single{Key: "a"}},
		{name: "multi two keys", variant: model.VariantMultipleChoiceMulti, answer: NewMulti("a", "c")},
		{name: "multi empty", variant: model.VariantMultipleChoiceMulti, answer: Multi{Keys: []string{}}},
		{name: "categorized full", variant: model.VariantMultipleChoiceCategory, answer: Categorized{Labels: []string{LabelAccurate, LabelNotAccurate, LabelAccurate}}, optionCount: 3},
		{name: "categorized partial", variant: model.VariantMultipleChoiceCategory, answer: Categorized{Labels: []string{LabelNotAccurate, "", ""}}, optionCount: 3},
		{name: "categorized all empty", variant: model.VariantMultipleChoiceCategory, answer: Categorized{Labels: make([]string, 4)}, optionCount: 4},
		{name: "essay text", variant: model.VariantEssay, answer: Essay{Text: "<p>jawaban, dengan koma</p>"}},
		{name: "essay empty", variant: model.VariantEssay, answer: Essay{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			wire, err := Encode(tc.variant, tc.answer)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := Decode(tc.variant, wire, tc.optionCount)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(got, tc.answer) {
				t.Fatalf("round trip mismatch: got %#v, want %#v", got, tc.answer)
			}
		})
	}
}

func TestSingleSelectLastWriteWins(t *testing.T) {
	// Selecting b then c encodes the final selection only.
	first, _ := Encode(model.VariantMultipleChoice, Single{Key: "b"})
	if first != "b" {
		t.Fatalf("first selection: got %q", first)
	}
	second, _ := Encode(model.VariantMultipleChoice, Single{Key: "c"})
	if second != "c" {
		t.Fatalf("final selection: got %q, want %q", second, "c")
	}
}

func TestMultiDecodeOrderInsensitive(t *testing.T) {
	a, err := Decode(model.VariantMultipleChoiceMulti, "a,c", 0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Decode(model.VariantMultipleChoiceMulti, "c,a", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("order-sensitive decode: %#v vs %#v", a, b)
	}
	if !reflect.DeepEqual(a, NewMulti("a", "c")) {
		t.Fatalf("decoded set mismatch: %#v", a)
	}
}

func TestMultiEncodeDeduplicates(t *testing.T) {
	wire, err := Encode(model.VariantMultipleChoiceMulti, Multi{Keys: []string{"c", "a", "c"}})
	if err != nil {
		t.Fatal(err)
	}
	if wire != "a,c" {
		t.Fatalf("got %q, want %q", wire, "a,c")
	}
}

func TestCategorizedPreservesAlignment(t *testing.T) {
	// Three options, only the first marked not_accurate.
	got, err := Decode(model.VariantMultipleChoiceCategory, "not_accurate,,", 3)
	if err != nil {
		t.Fatal(err)
	}
	want := Categorized{Labels: []string{LabelNotAccurate, "", ""}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestCategorizedPadsToOptionCount(t *testing.T) {
	// A wire value written against a shorter option list still decodes
	// to one slot per current option.
	got, err := Decode(model.VariantMultipleChoiceCategory, "accurate", 3)
	if err != nil {
		t.Fatal(err)
	}
	want := Categorized{Labels: []string{LabelAccurate, "", ""}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestEmptyDecodesToNoAnswer(t *testing.T) {
	tests := []struct {
		variant     model.Variant
		optionCount int
	}{
		{model.VariantMultipleChoice, 0},
		{model.VariantTrueFalse, 0},
		{model.VariantMultipleChoiceMulti, 0},
		{model.VariantMultipleChoiceCategory, 3},
		{model.VariantEssay, 0},
	}
	for _, tc := range tests {
		t.Run(string(tc.variant), func(t *testing.T) {
			got, err := Decode(tc.variant, "", tc.optionCount)
			if err != nil {
				t.Fatal(err)
			}
			want, err := Empty(tc.variant, tc.optionCount)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("got %#v, want %#v", got, want)
			}
		})
	}
}

func TestSelectedSetDropsStaleKeys(t *testing.T) {
	options := []model.Option{{Key: "a"}, {Key: "b"}, {Key: "c"}}
	decoded, err := Decode(model.VariantMultipleChoiceMulti, "a,z", 0)
	if err != nil {
		t.Fatal(err)
	}
	selected := SelectedSet(options, decoded.(Multi))
	if !selected["a"] {
		t.Fatal("live key a should stay selected")
	}
	if selected["z"] {
		t.Fatal("stale key z must not be marked selected")
	}
	if len(selected) != 1 {
		t.Fatalf("unexpected selection set: %v", selected)
	}
}

func TestEncodeRejectsMismatchedType(t *testing.T) {
	if _, err := Encode(model.VariantEssay, Single{Key: "a"}); err == nil {
		t.Fatal("expected type mismatch error")
	}
	if _, err := Encode(model.VariantMultipleChoice, Essay{Text: "x"}); err == nil {
		t.Fatal("expected type mismatch error")
	}
}

func TestUnknownVariantRejected(t *testing.T) {
	if _, err := Decode(model.Variant("matching"), "a", 0); err == nil {
		t.Fatal("expected unknown variant error")
	}
	if _, err := Encode(model.Variant("matching"), Single{}); err == nil {
		t.Fatal("expected unknown variant error")
	}
}
