package question

import (
	"strconv"
	"strings"
	"unicode"
)

// Repair corrects known cross-field inconsistencies in model output
// deterministically. It never calls out to a model and never invents
// content beyond neutral defaults; anything it cannot fix is left for
// Validate to report. The input is not modified.
func Repair(in Schema) Schema {
	s := in
	s.Title = strings.TrimSpace(s.Title)
	s.Description = strings.TrimSpace(s.Description)

	switch s.Type.Family() {
	case FamilyText:
		s.Options, s.Display = nil, ""
		s.MinSelections, s.MaxSelections = 0, 0
		if s.Text != nil {
			t := *s.Text
			if t.MinLength < 0 {
				t.MinLength = 0
			}
			if t.MaxLength < 0 {
				t.MaxLength = 0
			}
			if t.MaxLength > 0 && t.MinLength > t.MaxLength {
				t.MinLength, t.MaxLength = t.MaxLength, t.MinLength
			}
			s.Text = &t
		}
	case FamilyNumber:
		s.Options, s.Display = nil, ""
		if s.Number != nil {
			n := *s.Number
			if n.Min != nil && n.Max != nil && *n.Min > *n.Max {
				n.Min, n.Max = n.Max, n.Min
			}
			if n.Step < 0 {
				n.Step = -n.Step
			}
			s.Number = &n
		}
	case FamilyChoice:
		s.Options = normalizeOptions(s.Options)
		if s.Type == TypeYesNo && len(s.Options) == 0 {
			s.Options = []Option{{Label: "Yes", Value: "yes"}, {Label: "No", Value: "no"}}
		}
		s.Display = repairDisplay(s.Type, s.Display, len(s.Options))
		repairSelections(&s)
	case FamilyRanking:
		s.Options = normalizeOptions(s.Options)
		s.Display = ""
		s.MinSelections, s.MaxSelections = 0, 0
	case FamilyRating:
		r := Rating{Max: 5, Icon: "star"}
		if s.Rating != nil {
			r = *s.Rating
		}
		if r.Max < 3 || r.Max > 10 {
			r.Max = 5
		}
		r.Icon = strings.ToLower(strings.TrimSpace(r.Icon))
		if !ratingIcons[r.Icon] {
			r.Icon = "star"
		}
		s.Rating = &r
	case FamilyScale:
		sc := Scale{Min: 1, Max: 5}
		if s.Scale != nil {
			sc = *s.Scale
		}
		if sc.Min > sc.Max {
			sc.Min, sc.Max = sc.Max, sc.Min
			sc.MinLabel, sc.MaxLabel = sc.MaxLabel, sc.MinLabel
		}
		if sc.Min != 0 && sc.Min != 1 {
			sc.Min = 1
		}
		if sc.Max > 10 {
			sc.Max = 10
		}
		if sc.Max <= sc.Min {
			sc.Max = sc.Min + 4
		}
		s.Scale = &sc
	case FamilyFile:
		f := FileRules{MaxFiles: 1, MaxSizeMB: 10}
		if s.File != nil {
			f = *s.File
		}
		if f.MaxFiles < 1 {
			f.MaxFiles = 1
		}
		if f.MaxSizeMB < 1 {
			f.MaxSizeMB = 10
		}
		s.File = &f
	}
	return s
}

// RepairAll applies Repair to every question and returns a new slice.
func RepairAll(list []Schema) []Schema {
	out := make([]Schema, len(list))
	for i := range list {
		out[i] = Repair(list[i])
	}
	return out
}

// repairDisplay picks a widget consistent with the type and option count.
func repairDisplay(t Type, d Display, n int) Display {
	switch t {
	case TypeDropdown:
		return DisplayDropdown
	case TypeMultipleChoice:
		if d == DisplayButtons && n <= maxButtonOptions {
			return DisplayButtons
		}
		return DisplayCheckbox
	case TypeYesNo:
		if d == DisplayButtons {
			return DisplayButtons
		}
		return DisplayRadio
	case TypeSingleChoice:
		switch {
		case d == DisplayButtons && n <= maxButtonOptions:
			return DisplayButtons
		case d == DisplayDropdown:
			return DisplayDropdown
		case n > maxRadioOptions:
			return DisplayDropdown
		default:
			return DisplayRadio
		}
	}
	return d
}

func repairSelections(s *Schema) {
	if s.Type != TypeMultipleChoice {
		s.MinSelections, s.MaxSelections = 0, 0
		return
	}
	if s.MinSelections < 0 {
		s.MinSelections = 0
	}
	if s.MaxSelections < 0 {
		s.MaxSelections = 0
	}
	if s.MaxSelections > len(s.Options) {
		s.MaxSelections = len(s.Options)
	}
	if s.MaxSelections > 0 && s.MinSelections > s.MaxSelections {
		s.MinSelections = s.MaxSelections
	}
}

// normalizeOptions trims labels, drops empty ones, derives missing values
// from labels, and makes values unique.
func normalizeOptions(opts []Option) []Option {
	if len(opts) == 0 {
		return opts
	}
	out := make([]Option, 0, len(opts))
	used := make(map[string]int, len(opts))
	for _, o := range opts {
		o.Label = strings.TrimSpace(o.Label)
		if o.Label == "" {
			continue
		}
		o.Value = strings.TrimSpace(o.Value)
		if o.Value == "" {
			o.Value = slugify(o.Label)
		}
		base := o.Value
		if n := used[base]; n > 0 {
			o.Value = base + "_" + strconv.Itoa(n+1)
		}
		used[base]++
		out = append(out, o)
	}
	return out
}

func slugify(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore && b.Len() > 0:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	out := strings.TrimSuffix(b.String(), "_")
	if out == "" {
		return "option"
	}
	return out
}
