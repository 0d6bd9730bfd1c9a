package question

import (
	"fmt"
	"strings"
)

// Issue is one structural problem found by a validator.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// Validator checks one question against the shape required by its type.
type Validator func(s *Schema) []Issue

var validators = map[Family]Validator{
	FamilyText:    validateText,
	FamilyNumber:  validateNumber,
	FamilyDate:    validateBase,
	FamilyChoice:  validateChoice,
	FamilyRating:  validateRating,
	FamilyScale:   validateScale,
	FamilyRanking: validateRanking,
	FamilyFile:    validateFile,
}

// ValidatorFor returns the validator for the given question type.
func ValidatorFor(t Type) (Validator, bool) {
	v, ok := validators[t.Family()]
	return v, ok
}

// Validate checks s with the validator for its own type.
func Validate(s *Schema) []Issue {
	v, ok := ValidatorFor(s.Type)
	if !ok {
		return []Issue{{Path: "type", Message: fmt.Sprintf("unknown question type %q", s.Type)}}
	}
	return v(s)
}

// ValidateAll checks a whole question collection. Besides per-question
// issues it rejects an empty collection and duplicate ids.
func ValidateAll(list []Schema) []Issue {
	if len(list) == 0 {
		return []Issue{{Path: "questions", Message: "at least one question is required"}}
	}

	var issues []Issue
	seen := make(map[string]int, len(list))
	for i := range list {
		prefix := fmt.Sprintf("questions[%d]", i)
		if list[i].ID == "" {
			issues = append(issues, Issue{Path: prefix + ".id", Message: "id is required"})
		} else if j, dup := seen[list[i].ID]; dup {
			issues = append(issues, Issue{Path: prefix + ".id", Message: fmt.Sprintf("duplicate id %q (also questions[%d])", list[i].ID, j)})
		} else {
			seen[list[i].ID] = i
		}
		for _, is := range Validate(&list[i]) {
			is.Path = joinPath(prefix, is.Path)
			issues = append(issues, is)
		}
	}
	return issues
}

// FormatIssues renders issues one per line for prompts and error messages.
func FormatIssues(issues []Issue) string {
	lines := make([]string, len(issues))
	for i, is := range issues {
		lines[i] = "- " + is.String()
	}
	return strings.Join(lines, "\n")
}

func joinPath(prefix, p string) string {
	if p == "" {
		return prefix
	}
	return prefix + "." + p
}

func validateBase(s *Schema) []Issue {
	var issues []Issue
	if strings.TrimSpace(s.Title) == "" {
		issues = append(issues, Issue{Path: "title", Message: "title is required"})
	}
	if !s.Type.IsValid() {
		issues = append(issues, Issue{Path: "type", Message: fmt.Sprintf("unknown question type %q", s.Type)})
	}
	return issues
}

func validateText(s *Schema) []Issue {
	issues := validateBase(s)
	if s.Text != nil {
		if s.Text.MinLength < 0 || s.Text.MaxLength < 0 {
			issues = append(issues, Issue{Path: "text", Message: "lengths must not be negative"})
		}
		if s.Text.MaxLength > 0 && s.Text.MinLength > s.Text.MaxLength {
			issues = append(issues, Issue{Path: "text", Message: "minLength exceeds maxLength"})
		}
	}
	return issues
}

func validateNumber(s *Schema) []Issue {
	issues := validateBase(s)
	if n := s.Number; n != nil {
		if n.Min != nil && n.Max != nil && *n.Min > *n.Max {
			issues = append(issues, Issue{Path: "number", Message: "min exceeds max"})
		}
		if n.Step < 0 {
			issues = append(issues, Issue{Path: "number.step", Message: "step must not be negative"})
		}
	}
	return issues
}

func validateOptions(opts []Option, minCount int) []Issue {
	var issues []Issue
	if len(opts) < minCount {
		issues = append(issues, Issue{Path: "options", Message: fmt.Sprintf("at least %d options are required, got %d", minCount, len(opts))})
	}
	seen := make(map[string]bool, len(opts))
	for i, o := range opts {
		if strings.TrimSpace(o.Label) == "" {
			issues = append(issues, Issue{Path: fmt.Sprintf("options[%d].label", i), Message: "label is required"})
		}
		if o.Value == "" {
			issues = append(issues, Issue{Path: fmt.Sprintf("options[%d].value", i), Message: "value is required"})
			continue
		}
		if seen[o.Value] {
			issues = append(issues, Issue{Path: fmt.Sprintf("options[%d].value", i), Message: fmt.Sprintf("duplicate value %q", o.Value)})
		}
		seen[o.Value] = true
	}
	return issues
}

func allowedDisplays(t Type) []Display {
	switch t {
	case TypeSingleChoice:
		return []Display{DisplayRadio, DisplayButtons, DisplayDropdown}
	case TypeMultipleChoice:
		return []Display{DisplayCheckbox, DisplayButtons}
	case TypeDropdown:
		return []Display{DisplayDropdown}
	case TypeYesNo:
		return []Display{DisplayRadio, DisplayButtons}
	}
	return nil
}

func displayAllowed(t Type, d Display) bool {
	for _, a := range allowedDisplays(t) {
		if a == d {
			return true
		}
	}
	return false
}

func validateChoice(s *Schema) []Issue {
	issues := validateBase(s)

	minCount := 2
	issues = append(issues, validateOptions(s.Options, minCount)...)
	if s.Type == TypeYesNo && len(s.Options) != 2 {
		issues = append(issues, Issue{Path: "options", Message: "yes/no questions need exactly 2 options"})
	}

	if !displayAllowed(s.Type, s.Display) {
		issues = append(issues, Issue{Path: "display", Message: fmt.Sprintf("display %q is not valid for %s", s.Display, s.Type)})
	}
	if s.Display == DisplayButtons && len(s.Options) > maxButtonOptions {
		issues = append(issues, Issue{Path: "display", Message: fmt.Sprintf("buttons support at most %d options, got %d", maxButtonOptions, len(s.Options))})
	}

	if s.Type == TypeMultipleChoice {
		if s.MinSelections < 0 || s.MaxSelections < 0 {
			issues = append(issues, Issue{Path: "selections", Message: "selection limits must not be negative"})
		}
		if s.MaxSelections > len(s.Options) {
			issues = append(issues, Issue{Path: "maxSelections", Message: fmt.Sprintf("maxSelections %d exceeds option count %d", s.MaxSelections, len(s.Options))})
		}
		if s.MaxSelections > 0 && s.MinSelections > s.MaxSelections {
			issues = append(issues, Issue{Path: "minSelections", Message: "minSelections exceeds maxSelections"})
		}
	} else if s.MinSelections != 0 || s.MaxSelections != 0 {
		issues = append(issues, Issue{Path: "selections", Message: "selection limits only apply to multiple choice"})
	}
	return issues
}

var ratingIcons = map[string]bool{"star": true, "heart": true, "thumb": true}

func validateRating(s *Schema) []Issue {
	issues := validateBase(s)
	if s.Rating == nil {
		return append(issues, Issue{Path: "rating", Message: "rating configuration is required"})
	}
	if s.Rating.Max < 3 || s.Rating.Max > 10 {
		issues = append(issues, Issue{Path: "rating.max", Message: fmt.Sprintf("max must be between 3 and 10, got %d", s.Rating.Max)})
	}
	if !ratingIcons[s.Rating.Icon] {
		issues = append(issues, Issue{Path: "rating.icon", Message: fmt.Sprintf("unknown icon %q", s.Rating.Icon)})
	}
	return issues
}

func validateScale(s *Schema) []Issue {
	issues := validateBase(s)
	sc := s.Scale
	if sc == nil {
		return append(issues, Issue{Path: "scale", Message: "scale configuration is required"})
	}
	if sc.Min != 0 && sc.Min != 1 {
		issues = append(issues, Issue{Path: "scale.min", Message: fmt.Sprintf("min must be 0 or 1, got %d", sc.Min)})
	}
	if sc.Max < 2 || sc.Max > 10 {
		issues = append(issues, Issue{Path: "scale.max", Message: fmt.Sprintf("max must be between 2 and 10, got %d", sc.Max)})
	}
	if sc.Min >= sc.Max {
		issues = append(issues, Issue{Path: "scale", Message: "min must be below max"})
	}
	return issues
}

func validateRanking(s *Schema) []Issue {
	issues := validateBase(s)
	return append(issues, validateOptions(s.Options, 2)...)
}

func validateFile(s *Schema) []Issue {
	issues := validateBase(s)
	if s.File == nil {
		return append(issues, Issue{Path: "file", Message: "file configuration is required"})
	}
	if s.File.MaxFiles < 1 {
		issues = append(issues, Issue{Path: "file.maxFiles", Message: "maxFiles must be at least 1"})
	}
	if s.File.MaxSizeMB < 1 {
		issues = append(issues, Issue{Path: "file.maxSizeMb", Message: "maxSizeMb must be at least 1"})
	}
	return issues
}
