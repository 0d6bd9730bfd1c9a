// Package agentstate defines the record threaded through every stage of one
// form generation run and the per-field merge functions ("channel
// reducers") used to fold stage outputs into it.
package agentstate

import (
	"maps"
	"slices"

	"github.com/kyashrathore/formlink-sub001/internal/domain/agenttask"
	"github.com/kyashrathore/formlink-sub001/internal/domain/form"
	"github.com/kyashrathore/formlink-sub001/internal/domain/question"
)

// Status represents the lifecycle state of a run.
type Status string

const (
	StatusInitializing Status = "INITIALIZING"
	StatusProcessing   Status = "PROCESSING"
	StatusCompleted    Status = "COMPLETED"
	StatusFailed       Status = "FAILED"
	StatusPartial      Status = "PARTIAL"
)

// IsTerminal returns true if the run reached a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusPartial:
		return true
	}
	return false
}

// InputType identifies the variant of the raw user request.
type InputType string

const (
	InputPrompt InputType = "prompt"
	InputURL    InputType = "url"
	InputHTML   InputType = "html"
)

// ErrorDetails describes the run-level failure, if any.
type ErrorDetails struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

// FormMetadata is the title and description chosen by the planner.
type FormMetadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// State is the single record threaded through every stage of a run.
type State struct {
	FormID                 string            `json:"formId"`
	UserID                 string            `json:"userId"`
	OriginalInput          any               `json:"originalInput"`
	InputType              InputType         `json:"inputType"`
	NormalizedInputContent string            `json:"normalizedInputContent,omitempty"`
	FormMetadata           *FormMetadata     `json:"formMetadata,omitempty"`
	JourneyScript          string            `json:"journeyScript,omitempty"`
	Tasks                  []agenttask.Task  `json:"tasksToPersist"`
	CurrentBatch           []agenttask.Task  `json:"currentProcessingBatch"`
	Questions              []question.Schema `json:"generatedQuestionSchemas"`
	Settings               map[string]any    `json:"settings,omitempty"`
	Notes                  []string          `json:"notes,omitempty"`
	Error                  *ErrorDetails     `json:"errorDetails,omitempty"`
	Status                 Status            `json:"status"`
	EventSequence          int64             `json:"eventSequence"`
	Iteration              int               `json:"iteration"`
	VersionID              string            `json:"versionId,omitempty"`
}

// New returns the initial state of a run.
func New(formID, userID string, inputType InputType, input any, settings map[string]any) State {
	return State{
		FormID:        formID,
		UserID:        userID,
		OriginalInput: input,
		InputType:     inputType,
		Settings:      maps.Clone(settings),
		Status:        StatusInitializing,
	}
}

// Failed reports whether the run has recorded a run-level failure.
func (s *State) Failed() bool {
	return s.Error != nil || s.Status == StatusFailed
}

// OrderedQuestions returns the generated questions sorted by their order.
func (s *State) OrderedQuestions() []question.Schema {
	out := slices.Clone(s.Questions)
	slices.SortStableFunc(out, func(a, b question.Schema) int { return a.Order - b.Order })
	return out
}

// FormView materializes the best-known form from the current state.
func (s *State) FormView() form.View {
	v := form.View{
		ID:        s.FormID,
		Questions: s.OrderedQuestions(),
		Settings:  maps.Clone(s.Settings),
		VersionID: s.VersionID,
	}
	if s.FormMetadata != nil {
		v.Title = s.FormMetadata.Title
		v.Description = s.FormMetadata.Description
	}
	if v.Questions == nil {
		v.Questions = []question.Schema{}
	}
	return v
}

// Clone returns a deep copy of the collections held by s.
func (s State) Clone() State {
	out := s
	out.Tasks = slices.Clone(s.Tasks)
	out.CurrentBatch = slices.Clone(s.CurrentBatch)
	out.Questions = slices.Clone(s.Questions)
	out.Settings = maps.Clone(s.Settings)
	out.Notes = slices.Clone(s.Notes)
	if s.FormMetadata != nil {
		fm := *s.FormMetadata
		out.FormMetadata = &fm
	}
	if s.Error != nil {
		e := *s.Error
		out.Error = &e
	}
	return out
}
