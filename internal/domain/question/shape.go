package question

// The shape types below describe what a model must return for each family.
// They decode directly into Schema because field names match.

type baseShape struct {
	Title       string `json:"title" jsonschema:"description=Question text shown to the respondent"`
	Description string `json:"description" jsonschema:"description=Optional helper text shown under the title"`
	Required    bool   `json:"required"`
}

type textShape struct {
	baseShape
	Placeholder string    `json:"placeholder"`
	Text        TextRules `json:"text"`
}

type numberShape struct {
	baseShape
	Placeholder string      `json:"placeholder"`
	Number      NumberRules `json:"number"`
}

type dateShape struct {
	baseShape
}

type choiceShape struct {
	baseShape
	Options       []Option `json:"options" jsonschema:"minItems=2"`
	Display       Display  `json:"display" jsonschema:"enum=radio,enum=checkbox,enum=dropdown,enum=buttons"`
	AllowOther    bool     `json:"allowOther"`
	MinSelections int      `json:"minSelections"`
	MaxSelections int      `json:"maxSelections"`
}

type ratingShape struct {
	baseShape
	Rating Rating `json:"rating"`
}

type scaleShape struct {
	baseShape
	Scale Scale `json:"scale"`
}

type rankingShape struct {
	baseShape
	Options []Option `json:"options" jsonschema:"minItems=2"`
}

type fileShape struct {
	baseShape
	File FileRules `json:"file"`
}

// ShapeFor returns a prototype value whose reflected JSON schema is the
// completion target for questions of type t. It returns nil for unknown types.
func ShapeFor(t Type) any {
	switch t.Family() {
	case FamilyText:
		return &textShape{}
	case FamilyNumber:
		return &numberShape{}
	case FamilyDate:
		return &dateShape{}
	case FamilyChoice:
		return &choiceShape{}
	case FamilyRating:
		return &ratingShape{}
	case FamilyScale:
		return &scaleShape{}
	case FamilyRanking:
		return &rankingShape{}
	case FamilyFile:
		return &fileShape{}
	}
	return nil
}

// Collection is the completion target for whole-form repair.
type Collection struct {
	Questions []Schema `json:"questions"`
}
