package service_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/kyashrathore/formlink-sub001/internal/domain/agentevent"
	"github.com/kyashrathore/formlink-sub001/internal/domain/agentstate"
	"github.com/kyashrathore/formlink-sub001/internal/domain/question"
	"github.com/kyashrathore/formlink-sub001/internal/port/completion"
	"github.com/kyashrathore/formlink-sub001/internal/service"
)

func finalizeState(questions ...question.Schema) agentstate.State {
	s := agentstate.New("f1", "u1", agentstate.InputPrompt, "a form", nil)
	s.Status = agentstate.StatusProcessing
	s.FormMetadata = &agentstate.FormMetadata{Title: "Survey", Description: "Tell us"}
	s.Questions = questions
	s.EventSequence = 40
	return s
}

func TestFinalizer_RepairCalledExactlyOnce(t *testing.T) {
	store := newFakeStore()
	llm := newFakeLLM()
	llm.handle("question_collection", func(req completion.Request) (json.RawMessage, error) {
		if !strings.Contains(req.Prompt, "title is required") {
			t.Errorf("repair prompt misses the issue list:\n%s", req.Prompt)
		}
		// Ids and order come back scrambled; they must be restored.
		return json.RawMessage(`{"questions":[
			{"id":"x","type":"short_text","title":"Name","order":9},
			{"id":"y","type":"email","title":" Email ","order":8}
		]}`), nil
	})

	s := finalizeState(
		question.Schema{ID: "q1", Type: question.TypeShortText, Title: "", Order: 1},
		question.Schema{ID: "q2", Type: question.TypeEmail, Title: "Email", Order: 2},
	)
	u, events, err := service.NewFinalizer(llm, store, testAgentConfig(), nil).Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if n := llm.count("question_collection"); n != 1 {
		t.Fatalf("repair called %d times, want 1", n)
	}
	if *u.Status != agentstate.StatusCompleted {
		t.Fatalf("status = %s", *u.Status)
	}
	if len(u.Questions) != 2 || u.Questions[0].ID != "q1" || u.Questions[1].ID != "q2" {
		t.Fatalf("ids not restored: %+v", u.Questions)
	}
	if u.Questions[0].Order != 1 || u.Questions[1].Title != "Email" {
		t.Errorf("unexpected repaired questions %+v", u.Questions)
	}
	if len(store.versions) != 1 {
		t.Fatalf("expected one version, got %d", len(store.versions))
	}
	// No journey script, so the results page fallback runs.
	if store.versions[0].ResultsPage != "Thanks!" {
		t.Errorf("results page = %q", store.versions[0].ResultsPage)
	}
	if events[0].Sequence != 41 || u.EventSequence != events[len(events)-1].Sequence {
		t.Errorf("sequences start at %d, update carries %d", events[0].Sequence, u.EventSequence)
	}
}

func TestFinalizer_StillInvalidAfterRepair(t *testing.T) {
	store := newFakeStore()
	llm := newFakeLLM()
	llm.handle("question_collection", func(completion.Request) (json.RawMessage, error) {
		return json.RawMessage(`{"questions":[{"type":"short_text","title":"   "}]}`), nil
	})

	s := finalizeState(question.Schema{ID: "q1", Type: question.TypeShortText, Order: 1})
	u, events, err := service.NewFinalizer(llm, store, testAgentConfig(), nil).Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if n := llm.count("question_collection"); n != 1 {
		t.Fatalf("repair called %d times, want 1", n)
	}
	if *u.Status != agentstate.StatusFailed || u.Error == nil || u.Error.Stage != "finalize" {
		t.Fatalf("unexpected update %+v", u)
	}
	if store.writeCount() != 0 {
		t.Error("invalid collection must not be persisted")
	}
	last := events[len(events)-1]
	if !last.IsTerminal() || countType(events, agentevent.TypeTaskFailed) != 1 {
		t.Errorf("unexpected events %v", eventTypes(events))
	}
}

func TestFinalizer_RepairCountMismatch(t *testing.T) {
	llm := newFakeLLM()
	llm.handle("question_collection", func(completion.Request) (json.RawMessage, error) {
		return json.RawMessage(`{"questions":[]}`), nil
	})

	s := finalizeState(question.Schema{ID: "q1", Type: question.TypeShortText, Order: 1})
	u, _, err := service.NewFinalizer(llm, newFakeStore(), testAgentConfig(), nil).Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if *u.Status != agentstate.StatusFailed || !strings.Contains(u.Error.Cause, "want 1") {
		t.Fatalf("unexpected update %+v", u.Error)
	}
}

func TestFinalizer_NoQuestionsFails(t *testing.T) {
	store := newFakeStore()
	llm := newFakeLLM()

	u, _, err := service.NewFinalizer(llm, store, testAgentConfig(), nil).Run(context.Background(), finalizeState())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if *u.Status != agentstate.StatusFailed {
		t.Fatalf("status = %s, want FAILED", *u.Status)
	}
	if llm.total() != 0 || store.writeCount() != 0 {
		t.Error("empty collection must not call out or persist")
	}
}

func TestFinalizer_SkipPath(t *testing.T) {
	store := newFakeStore()
	llm := newFakeLLM()
	s := finalizeState(question.Schema{ID: "q1", Type: question.TypeShortText, Title: "Name", Order: 1})
	s.Status = agentstate.StatusFailed
	s.Error = &agentstate.ErrorDetails{Stage: "plan", Message: "Failed to plan", Cause: "boom"}

	u, events, err := service.NewFinalizer(llm, store, testAgentConfig(), nil).Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if *u.Status != agentstate.StatusFailed || u.Error != nil {
		t.Errorf("skip path must keep the original error, got %+v", u)
	}
	if llm.total() != 0 || store.writeCount() != 0 {
		t.Error("skip path must not call out or persist")
	}
	want := []agentevent.Type{agentevent.TypeAgentError, agentevent.TypeTaskFailed, agentevent.TypeStateSnapshot}
	got := eventTypes(events)
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
	p := events[0].Payload.(agentevent.ErrorPayload)
	if !strings.Contains(p.Details, "plan: Failed to plan: boom") {
		t.Errorf("error details = %q", p.Details)
	}
}

func TestFinalizer_ResultsPageFailureIsANote(t *testing.T) {
	store := newFakeStore()
	llm := newFakeLLM()
	llm.handle("results_page", func(completion.Request) (json.RawMessage, error) { return nil, errBoom })

	s := finalizeState(question.Schema{ID: "q1", Type: question.TypeShortText, Title: "Name", Order: 1})
	u, events, err := service.NewFinalizer(llm, store, testAgentConfig(), nil).Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if *u.Status != agentstate.StatusCompleted {
		t.Fatalf("status = %s", *u.Status)
	}
	if len(u.Notes) != 1 || countType(events, agentevent.TypeAgentWarning) != 1 {
		t.Errorf("notes = %v, events = %v", u.Notes, eventTypes(events))
	}
}
