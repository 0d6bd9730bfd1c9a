// Package agenttask defines AgentTask, one unit of generation work planned
// for a form, and the pure batch-selection policy over a task list.
package agenttask

import (
	"encoding/json"
	"fmt"

	"github.com/kyashrathore/formlink-sub001/internal/domain/question"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal returns true if the task reached a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Kind discriminates task definition variants.
type Kind string

const (
	KindGenerateQuestionSchema Kind = "generate_question_schema"
)

// Definition is the sealed set of task definitions. Add a variant by
// declaring a new type with isDefinition and handling it wherever
// definitions are switched on.
type Definition interface {
	Kind() Kind
	isDefinition()
}

// GenerateQuestionSchema asks for the content object of a single question.
type GenerateQuestionSchema struct {
	Title string        `json:"title"`
	Type  question.Type `json:"type"`
	Order int           `json:"order"`
}

func (GenerateQuestionSchema) Kind() Kind { return KindGenerateQuestionSchema }
func (GenerateQuestionSchema) isDefinition() {}

// Task represents one unit of generation work.
type Task struct {
	ID         string          `json:"id"`
	FormID     string          `json:"formId"`
	Definition Definition      `json:"-"`
	Status     Status          `json:"status"`
	Output     json.RawMessage `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	Order      int             `json:"order"`
}

// Key returns the upsert key of the task.
func (t Task) Key() string { return t.ID }

// TaskType returns the definition kind as a string, or "" without a definition.
func (t Task) TaskType() string {
	if t.Definition == nil {
		return ""
	}
	return string(t.Definition.Kind())
}

// Title returns a short human-readable label for events and logs.
func (t Task) Title() string {
	switch d := t.Definition.(type) {
	case GenerateQuestionSchema:
		return d.Title
	}
	return t.ID
}

// definitionEnvelope is the tagged wire form of a Definition.
type definitionEnvelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalDefinition encodes a definition with its kind tag.
func MarshalDefinition(d Definition) ([]byte, error) {
	if d == nil {
		return nil, fmt.Errorf("marshal definition: nil definition")
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal definition %s: %w", d.Kind(), err)
	}
	return json.Marshal(definitionEnvelope{Kind: d.Kind(), Data: data})
}

// UnmarshalDefinition decodes a tagged definition.
func UnmarshalDefinition(data []byte) (Definition, error) {
	var env definitionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	switch env.Kind {
	case KindGenerateQuestionSchema:
		var d GenerateQuestionSchema
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", env.Kind, err)
		}
		return d, nil
	}
	return nil, fmt.Errorf("unmarshal definition: unknown kind %q", env.Kind)
}

type taskAlias Task

type taskWire struct {
	taskAlias
	Definition json.RawMessage `json:"definition,omitempty"`
}

// MarshalJSON encodes the task with its tagged definition.
func (t Task) MarshalJSON() ([]byte, error) {
	w := taskWire{taskAlias: taskAlias(t)}
	if t.Definition != nil {
		def, err := MarshalDefinition(t.Definition)
		if err != nil {
			return nil, err
		}
		w.Definition = def
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a task and its tagged definition.
func (t *Task) UnmarshalJSON(data []byte) error {
	var w taskWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*t = Task(w.taskAlias)
	if len(w.Definition) > 0 && string(w.Definition) != "null" {
		def, err := UnmarshalDefinition(w.Definition)
		if err != nil {
			return err
		}
		t.Definition = def
	}
	return nil
}
