package agentevent

import (
	"encoding/json"
	"time"

	"github.com/kyashrathore/formlink-sub001/internal/domain/agentstate"
)

// BranchStride is the width of the private sequence range given to each
// parallel branch: branch i numbers its events from base + i*BranchStride.
const BranchStride = 100

// Emitter stamps events for one form with consecutive sequence numbers.
// It is not safe for concurrent use; parallel branches each get their own
// emitter through Branch.
type Emitter struct {
	formID string
	userID string
	base   int64
	seq    int64
	now    func() time.Time
}

// NewEmitter returns an emitter whose first event gets sequence base+1.
func NewEmitter(formID, userID string, base int64) *Emitter {
	return &Emitter{
		formID: formID,
		userID: userID,
		base:   base,
		seq:    base,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ForState returns an emitter continuing from the state's event sequence.
func ForState(s *agentstate.State) *Emitter {
	return NewEmitter(s.FormID, s.UserID, s.EventSequence)
}

// WithClock replaces the timestamp source. Used by tests.
func (e *Emitter) WithClock(now func() time.Time) *Emitter {
	e.now = now
	return e
}

// Branch returns an emitter for parallel branch i. Its range starts at
// base + i*BranchStride, where base is this emitter's current sequence.
func (e *Emitter) Branch(i int) *Emitter {
	b := NewEmitter(e.formID, e.userID, e.seq+int64(i)*BranchStride)
	b.now = e.now
	return b
}

// Next allocates the next sequence number.
func (e *Emitter) Next() int64 {
	e.seq++
	return e.seq
}

// Last returns the highest sequence allocated so far, or the base if none.
func (e *Emitter) Last() int64 { return e.seq }

// Emitted reports how many sequence numbers this emitter has allocated.
func (e *Emitter) Emitted() int { return int(e.seq - e.base) }

// New builds an event of type t with the next sequence number.
func (e *Emitter) New(t Type, payload any) Event {
	return Event{
		Type:      t,
		Category:  t.Category(),
		Sequence:  e.Next(),
		FormID:    e.formID,
		UserID:    e.userID,
		Timestamp: e.now(),
		Payload:   payload,
	}
}

func (e *Emitter) Initialized(msg string) Event {
	return e.New(TypeAgentInitialized, MessagePayload{Message: msg})
}

func (e *Emitter) Warning(msg, details string) Event {
	return e.New(TypeAgentWarning, WarningPayload{Message: msg, Details: details})
}

func (e *Emitter) Error(msg, details string) Event {
	return e.New(TypeAgentError, ErrorPayload{Message: msg, Details: details})
}

func (e *Emitter) Finalized(msg string) Event {
	return e.New(TypeAgentFinalized, MessagePayload{Message: msg})
}

func (e *Emitter) TaskStarted(p TaskPayload) Event   { return e.New(TypeTaskStarted, p) }
func (e *Emitter) TaskCompleted(p TaskPayload) Event { return e.New(TypeTaskCompleted, p) }
func (e *Emitter) TaskFailed(p TaskPayload) Event    { return e.New(TypeTaskFailed, p) }

func (e *Emitter) QuestionGenerated(title string, index, total int) Event {
	return e.New(TypeQuestionSchemaGenerated, QuestionPayload{
		QuestionTitle:  title,
		QuestionIndex:  index,
		TotalQuestions: total,
	})
}

// Snapshot materializes s into a state_snapshot event. The sequence stamped
// on the event is also written into the copied agent state.
func (e *Emitter) Snapshot(s agentstate.State, complete bool) Event {
	ev := e.New(TypeStateSnapshot, nil)
	cp := s.Clone()
	cp.EventSequence = max(cp.EventSequence, ev.Sequence)
	ev.Payload = SnapshotPayload{
		Form:       cp.FormView(),
		AgentState: cp,
		IsComplete: complete,
	}
	return ev
}

// Output encodes v for a task payload, returning nil when v cannot be encoded.
func Output(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
