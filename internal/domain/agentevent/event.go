// Package agentevent defines the externally visible notification records
// emitted by a form generation run and the sequence numbering that orders
// them for a consumer.
package agentevent

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/kyashrathore/formlink-sub001/internal/domain/agentstate"
	"github.com/kyashrathore/formlink-sub001/internal/domain/form"
)

// Type identifies the kind of agent event. The set is closed.
type Type string

const (
	TypeAgentInitialized        Type = "agent_initialized"
	TypeAgentWarning            Type = "agent_warning"
	TypeAgentError              Type = "agent_error"
	TypeAgentFinalized          Type = "agent_finalized"
	TypeTaskStarted             Type = "task_started"
	TypeTaskCompleted           Type = "task_completed"
	TypeTaskFailed              Type = "task_failed"
	TypeQuestionSchemaGenerated Type = "question_schema_generated"
	TypeStateSnapshot           Type = "state_snapshot"
)

// Category groups event types for consumers.
type Category string

const (
	CategoryProgress Category = "progress"
	CategorySystem   Category = "system"
	CategoryError    Category = "error"
	CategoryState    Category = "state"
)

var categories = map[Type]Category{
	TypeAgentInitialized:        CategorySystem,
	TypeAgentWarning:            CategorySystem,
	TypeAgentError:              CategoryError,
	TypeAgentFinalized:          CategorySystem,
	TypeTaskStarted:             CategoryProgress,
	TypeTaskCompleted:           CategoryProgress,
	TypeTaskFailed:              CategoryProgress,
	TypeQuestionSchemaGenerated: CategoryProgress,
	TypeStateSnapshot:           CategoryState,
}

// Category returns the category of t, or "" for an unknown type.
func (t Type) Category() Category { return categories[t] }

// IsValid reports whether t belongs to the closed type set.
func (t Type) IsValid() bool {
	_, ok := categories[t]
	return ok
}

// Event is one immutable notification. Sequence is the sole ordering key
// for a form.
type Event struct {
	Type      Type      `json:"type"`
	Category  Category  `json:"category"`
	Sequence  int64     `json:"sequence"`
	FormID    string    `json:"formId"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// MessagePayload is carried by agent_initialized and agent_finalized.
type MessagePayload struct {
	Message string `json:"message"`
}

// WarningPayload is carried by agent_warning.
type WarningPayload struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ErrorPayload is carried by agent_error. Recoverable is always false.
type ErrorPayload struct {
	Message     string `json:"message"`
	Details     string `json:"details,omitempty"`
	Recoverable bool   `json:"recoverable"`
}

// TaskPayload is carried by task_started, task_completed and task_failed.
type TaskPayload struct {
	TaskID   string          `json:"taskId"`
	TaskType string          `json:"taskType"`
	Current  int             `json:"current"`
	Total    int             `json:"total"`
	Message  string          `json:"message"`
	Output   json.RawMessage `json:"output,omitempty"`
}

// QuestionPayload is carried by question_schema_generated.
type QuestionPayload struct {
	QuestionTitle  string `json:"questionTitle"`
	QuestionIndex  int    `json:"questionIndex"`
	TotalQuestions int    `json:"totalQuestions"`
}

// SnapshotPayload is carried by state_snapshot. AgentState is a copy, never
// a reference into the live run.
type SnapshotPayload struct {
	Form       form.View        `json:"form"`
	AgentState agentstate.State `json:"agentState"`
	IsComplete bool             `json:"isComplete"`
}

// IsTerminal reports whether e is a state_snapshot with isComplete set.
// Payloads loaded back from storage arrive as raw JSON and are inspected
// without decoding the whole snapshot.
func (e Event) IsTerminal() bool {
	if e.Type != TypeStateSnapshot {
		return false
	}
	switch p := e.Payload.(type) {
	case SnapshotPayload:
		return p.IsComplete
	case *SnapshotPayload:
		return p != nil && p.IsComplete
	case json.RawMessage:
		var probe struct {
			IsComplete bool `json:"isComplete"`
		}
		return json.Unmarshal(p, &probe) == nil && probe.IsComplete
	}
	return false
}

// SortBySequence sorts events in place by ascending sequence. Events with
// equal sequences keep their relative order.
func SortBySequence(events []Event) {
	slices.SortStableFunc(events, func(a, b Event) int {
		switch {
		case a.Sequence < b.Sequence:
			return -1
		case a.Sequence > b.Sequence:
			return 1
		}
		return 0
	})
}

// MaxSequence returns the highest sequence in events, or 0 if empty.
func MaxSequence(events []Event) int64 {
	var hi int64
	for _, e := range events {
		hi = max(hi, e.Sequence)
	}
	return hi
}

// Decode parses one wire-format event. The payload is kept as
// json.RawMessage since its shape depends on the type.
func Decode(data []byte) (Event, error) {
	var wire struct {
		Event
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return Event{}, err
	}
	ev := wire.Event
	ev.Payload = wire.Payload
	return ev, nil
}
