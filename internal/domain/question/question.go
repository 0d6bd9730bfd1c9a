// Package question defines form question content objects, the per-type
// structural validators they must satisfy, and the deterministic repairs
// applied to model output before validation.
package question

import (
	"strings"
)

// Type identifies the kind of question a form field renders as.
type Type string

const (
	TypeShortText      Type = "short_text"
	TypeLongText       Type = "long_text"
	TypeEmail          Type = "email"
	TypePhone          Type = "phone"
	TypeURL            Type = "url"
	TypeNumber         Type = "number"
	TypeDate           Type = "date"
	TypeSingleChoice   Type = "single_choice"
	TypeMultipleChoice Type = "multiple_choice"
	TypeDropdown       Type = "dropdown"
	TypeYesNo          Type = "yes_no"
	TypeRating         Type = "rating"
	TypeLinearScale    Type = "linear_scale"
	TypeRanking        Type = "ranking"
	TypeFileUpload     Type = "file_upload"
)

// Types lists every supported question type in a stable order.
var Types = []Type{
	TypeShortText, TypeLongText, TypeEmail, TypePhone, TypeURL,
	TypeNumber, TypeDate,
	TypeSingleChoice, TypeMultipleChoice, TypeDropdown, TypeYesNo,
	TypeRating, TypeLinearScale, TypeRanking, TypeFileUpload,
}

// Family groups question types that share one structural shape.
type Family string

const (
	FamilyText    Family = "text"
	FamilyNumber  Family = "number"
	FamilyDate    Family = "date"
	FamilyChoice  Family = "choice"
	FamilyRating  Family = "rating"
	FamilyScale   Family = "scale"
	FamilyRanking Family = "ranking"
	FamilyFile    Family = "file"
)

// Family returns the structural family of the type, or "" if unknown.
func (t Type) Family() Family {
	switch t {
	case TypeShortText, TypeLongText, TypeEmail, TypePhone, TypeURL:
		return FamilyText
	case TypeNumber:
		return FamilyNumber
	case TypeDate:
		return FamilyDate
	case TypeSingleChoice, TypeMultipleChoice, TypeDropdown, TypeYesNo:
		return FamilyChoice
	case TypeRating:
		return FamilyRating
	case TypeLinearScale:
		return FamilyScale
	case TypeRanking:
		return FamilyRanking
	case TypeFileUpload:
		return FamilyFile
	}
	return ""
}

// IsValid reports whether t is a known question type.
func (t Type) IsValid() bool {
	return t.Family() != ""
}

var typeAliases = map[string]Type{
	"text":           TypeShortText,
	"short_answer":   TypeShortText,
	"textarea":       TypeLongText,
	"paragraph":      TypeLongText,
	"long_answer":    TypeLongText,
	"phone_number":   TypePhone,
	"telephone":      TypePhone,
	"website":        TypeURL,
	"integer":        TypeNumber,
	"radio":          TypeSingleChoice,
	"choice":         TypeSingleChoice,
	"multiple":       TypeMultipleChoice,
	"checkbox":       TypeMultipleChoice,
	"checkboxes":     TypeMultipleChoice,
	"select":         TypeDropdown,
	"boolean":        TypeYesNo,
	"stars":          TypeRating,
	"scale":          TypeLinearScale,
	"nps":            TypeLinearScale,
	"file":           TypeFileUpload,
	"upload":         TypeFileUpload,
	"multiplechoice": TypeMultipleChoice,
	"singlechoice":   TypeSingleChoice,
}

// ParseType normalizes a free-form type name produced by a model.
// Case, spaces, and dashes are ignored and common synonyms are accepted.
func ParseType(s string) (Type, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	if t := Type(norm); t.IsValid() {
		return t, true
	}
	if t, ok := typeAliases[norm]; ok {
		return t, true
	}
	if t, ok := typeAliases[strings.ReplaceAll(norm, "_", "")]; ok {
		return t, true
	}
	return "", false
}

// Display controls how choice options are rendered.
type Display string

const (
	DisplayRadio    Display = "radio"
	DisplayCheckbox Display = "checkbox"
	DisplayDropdown Display = "dropdown"
	DisplayButtons  Display = "buttons"
)

const (
	// maxButtonOptions is the most options a button group renders legibly.
	maxButtonOptions = 4
	// maxRadioOptions is the point above which a radio list becomes a dropdown.
	maxRadioOptions = 10
)

// Option is one selectable answer of a choice or ranking question.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Rating configures a rating question.
type Rating struct {
	Max  int    `json:"max"`
	Icon string `json:"icon"`
}

// Scale configures a linear scale question.
type Scale struct {
	Min      int    `json:"min"`
	Max      int    `json:"max"`
	MinLabel string `json:"minLabel,omitempty"`
	MaxLabel string `json:"maxLabel,omitempty"`
}

// TextRules constrains free-text answers.
type TextRules struct {
	MinLength int `json:"minLength,omitempty"`
	MaxLength int `json:"maxLength,omitempty"`
}

// NumberRules constrains numeric answers.
type NumberRules struct {
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
	Step float64  `json:"step,omitempty"`
}

// FileRules constrains file uploads.
type FileRules struct {
	MaxFiles  int      `json:"maxFiles"`
	MaxSizeMB int      `json:"maxSizeMb"`
	Accept    []string `json:"accept,omitempty"`
}

// Schema is one validated question content object.
type Schema struct {
	ID            string       `json:"id"`
	Type          Type         `json:"type"`
	Title         string       `json:"title"`
	Description   string       `json:"description,omitempty"`
	Order         int          `json:"order"`
	Required      bool         `json:"required"`
	Placeholder   string       `json:"placeholder,omitempty"`
	Options       []Option     `json:"options,omitempty"`
	Display       Display      `json:"display,omitempty"`
	AllowOther    bool         `json:"allowOther,omitempty"`
	MinSelections int          `json:"minSelections,omitempty"`
	MaxSelections int          `json:"maxSelections,omitempty"`
	Rating        *Rating      `json:"rating,omitempty"`
	Scale         *Scale       `json:"scale,omitempty"`
	Text          *TextRules   `json:"text,omitempty"`
	Number        *NumberRules `json:"number,omitempty"`
	File          *FileRules   `json:"file,omitempty"`
}

// Key returns the upsert key of the schema.
func (s Schema) Key() string { return s.ID }
