package question_test

import (
	"testing"

	"github.com/kyashrathore/formlink-sub001/internal/domain/question"
)

func TestRepairButtonsWithTooManyOptions(t *testing.T) {
	in := question.Schema{
		Type:    question.TypeSingleChoice,
		Title:   " Favourite colour ",
		Options: choice("Red", "Green", "Blue", "Yellow", "Purple"),
		Display: question.DisplayButtons,
	}
	out := question.Repair(in)

	if out.Display != question.DisplayRadio {
		t.Errorf("expected radio, got %q", out.Display)
	}
	if out.Title != "Favourite colour" {
		t.Errorf("expected trimmed title, got %q", out.Title)
	}
	if in.Display != question.DisplayButtons {
		t.Error("Repair must not modify its input")
	}
	if issues := question.Validate(&out); len(issues) != 0 {
		t.Errorf("repaired schema should validate, got %v", issues)
	}
}

func TestRepairLongRadioBecomesDropdown(t *testing.T) {
	opts := choice("1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11")
	out := question.Repair(question.Schema{Type: question.TypeSingleChoice, Title: "Pick", Options: opts, Display: question.DisplayRadio})
	if out.Display != question.DisplayDropdown {
		t.Errorf("expected dropdown for %d options, got %q", len(opts), out.Display)
	}
}

func TestRepairMultipleChoiceSelections(t *testing.T) {
	out := question.Repair(question.Schema{
		Type:          question.TypeMultipleChoice,
		Title:         "Toppings",
		Options:       choice("Cheese", "Ham", "Olives"),
		Display:       question.DisplayRadio,
		MinSelections: 5,
		MaxSelections: 7,
	})
	if out.Display != question.DisplayCheckbox {
		t.Errorf("expected checkbox, got %q", out.Display)
	}
	if out.MaxSelections != 3 || out.MinSelections != 3 {
		t.Errorf("expected selections clamped to 3/3, got %d/%d", out.MinSelections, out.MaxSelections)
	}
	if issues := question.Validate(&out); len(issues) != 0 {
		t.Errorf("repaired schema should validate, got %v", issues)
	}
}

func TestRepairOptions(t *testing.T) {
	out := question.Repair(question.Schema{
		Type:  question.TypeRanking,
		Title: "Rank",
		Options: []question.Option{
			{Label: "  Fast Delivery "},
			{Label: ""},
			{Label: "Fast delivery"},
			{Label: "Price", Value: "price"},
		},
	})
	if len(out.Options) != 3 {
		t.Fatalf("expected 3 options, got %+v", out.Options)
	}
	if out.Options[0].Value != "fast_delivery" || out.Options[1].Value != "fast_delivery_2" {
		t.Errorf("unexpected derived values: %+v", out.Options)
	}
	if out.Options[0].Label != "Fast Delivery" {
		t.Errorf("expected trimmed label, got %q", out.Options[0].Label)
	}
}

func TestRepairDefaults(t *testing.T) {
	tests := []struct {
		name  string
		in    question.Schema
		check func(t *testing.T, s question.Schema)
	}{
		{
			name: "yes no gets options",
			in:   question.Schema{Type: question.TypeYesNo, Title: "Agree?"},
			check: func(t *testing.T, s question.Schema) {
				if len(s.Options) != 2 || s.Display != question.DisplayRadio {
					t.Errorf("unexpected yes/no repair: %+v", s)
				}
			},
		},
		{
			name: "rating clamps",
			in:   question.Schema{Type: question.TypeRating, Title: "Rate", Rating: &question.Rating{Max: 42, Icon: "Rocket"}},
			check: func(t *testing.T, s question.Schema) {
				if s.Rating.Max != 5 || s.Rating.Icon != "star" {
					t.Errorf("unexpected rating repair: %+v", s.Rating)
				}
			},
		},
		{
			name: "scale swaps",
			in:   question.Schema{Type: question.TypeLinearScale, Title: "Scale", Scale: &question.Scale{Min: 10, Max: 1, MinLabel: "high", MaxLabel: "low"}},
			check: func(t *testing.T, s question.Schema) {
				if s.Scale.Min != 1 || s.Scale.Max != 10 || s.Scale.MinLabel != "low" {
					t.Errorf("unexpected scale repair: %+v", s.Scale)
				}
			},
		},
		{
			name: "file defaults",
			in:   question.Schema{Type: question.TypeFileUpload, Title: "CV"},
			check: func(t *testing.T, s question.Schema) {
				if s.File == nil || s.File.MaxFiles != 1 || s.File.MaxSizeMB != 10 {
					t.Errorf("unexpected file repair: %+v", s.File)
				}
			},
		},
		{
			name: "text drops options",
			in:   question.Schema{Type: question.TypeShortText, Title: "Name", Options: choice("A", "B"), Display: question.DisplayRadio},
			check: func(t *testing.T, s question.Schema) {
				if s.Options != nil || s.Display != "" {
					t.Errorf("expected options stripped: %+v", s)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := question.Repair(tt.in)
			tt.check(t, out)
			if issues := question.Validate(&out); len(issues) != 0 {
				t.Errorf("repaired schema should validate, got %v", issues)
			}
		})
	}
}

func TestRepairAllIsIdempotent(t *testing.T) {
	list := []question.Schema{
		{Type: question.TypeMultipleChoice, Title: "X", Options: choice("A", "B"), MaxSelections: 9},
		{Type: question.TypeLinearScale, Title: "Y"},
	}
	once := question.RepairAll(list)
	twice := question.RepairAll(once)
	if once[0].MaxSelections != twice[0].MaxSelections || *once[1].Scale != *twice[1].Scale {
		t.Errorf("repair is not idempotent: %+v vs %+v", once, twice)
	}
}
