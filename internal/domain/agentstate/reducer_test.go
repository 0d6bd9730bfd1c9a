package agentstate_test

import (
	"reflect"
	"testing"

	"github.com/kyashrathore/formlink-sub001/internal/domain/agentstate"
	"github.com/kyashrathore/formlink-sub001/internal/domain/agenttask"
	"github.com/kyashrathore/formlink-sub001/internal/domain/question"
)

type item struct {
	id  string
	val int
}

func (i item) Key() string { return i.id }

func TestReplace(t *testing.T) {
	if got := agentstate.Replace("a", nil); got != "a" {
		t.Errorf("nil incoming should keep current, got %q", got)
	}
	if got := agentstate.Replace("a", agentstate.Ptr("b")); got != "b" {
		t.Errorf("expected b, got %q", got)
	}
	if got := agentstate.Replace("a", agentstate.Ptr("")); got != "" {
		t.Errorf("explicit empty write should win, got %q", got)
	}
}

func TestMax(t *testing.T) {
	tests := []struct {
		cur, inc, want int64
	}{
		{5, 9, 9},
		{9, 5, 9},
		{7, 7, 7},
		{3, 0, 3},
	}
	for _, tt := range tests {
		if got := agentstate.Max(tt.cur, tt.inc); got != tt.want {
			t.Errorf("Max(%d, %d) = %d, want %d", tt.cur, tt.inc, got, tt.want)
		}
	}
}

func TestUpsertByKey(t *testing.T) {
	cur := []item{{"a", 1}, {"b", 2}, {"c", 3}}
	inc := []item{{"b", 20}, {"d", 4}, {"b", 21}}

	got := agentstate.UpsertByKey(cur, inc)
	want := []item{{"a", 1}, {"b", 21}, {"c", 3}, {"d", 4}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("UpsertByKey = %v, want %v", got, want)
	}
	if cur[1].val != 2 {
		t.Fatal("UpsertByKey must not modify current")
	}

	seen := map[string]bool{}
	for _, it := range got {
		if seen[it.id] {
			t.Fatalf("duplicate key %s", it.id)
		}
		seen[it.id] = true
	}
}

func TestUpsertByKeyEmptyIncoming(t *testing.T) {
	cur := []item{{"a", 1}}
	got := agentstate.UpsertByKey(cur, nil)
	if len(got) != 1 || got[0] != cur[0] {
		t.Fatalf("unexpected result %v", got)
	}
}

func TestMergeKeys(t *testing.T) {
	cur := map[string]any{"theme": "dark", "lang": "en"}
	got := agentstate.MergeKeys(cur, map[string]any{"lang": "de", "tz": "UTC"})
	want := map[string]any{"theme": "dark", "lang": "de", "tz": "UTC"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("MergeKeys = %v, want %v", got, want)
	}
	if cur["lang"] != "en" {
		t.Fatal("MergeKeys must not modify current")
	}
}

func TestAppendUnique(t *testing.T) {
	got := agentstate.AppendUnique([]string{"a"}, []string{"b", "a", "c", "b"})
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("AppendUnique = %v, want %v", got, want)
	}
}

func task(id string, status agenttask.Status) agenttask.Task {
	return agenttask.Task{ID: id, FormID: "f1", Status: status, Definition: agenttask.GenerateQuestionSchema{Title: id, Type: question.TypeShortText}}
}

func sampleUpdates() []agentstate.Update {
	batch := []agenttask.Task{task("t1", agenttask.StatusInProgress)}
	return []agentstate.Update{
		{
			Status:                 agentstate.Ptr(agentstate.StatusProcessing),
			NormalizedInputContent: agentstate.Ptr("a contact form"),
			EventSequence:          3,
		},
		{
			FormMetadata:  &agentstate.FormMetadata{Title: "Contact", Description: "Reach us"},
			Tasks:         []agenttask.Task{task("t1", agenttask.StatusPending), task("t2", agenttask.StatusPending)},
			Settings:      map[string]any{"lang": "en"},
			Notes:         []string{"planned 2 tasks"},
			EventSequence: 6,
		},
		{
			Tasks:         batch,
			CurrentBatch:  &batch,
			Iteration:     1,
			EventSequence: 7,
		},
		{
			Tasks:         []agenttask.Task{task("t1", agenttask.StatusCompleted)},
			Questions:     []question.Schema{{ID: "t1", Type: question.TypeShortText, Title: "Name", Order: 1}},
			EventSequence: 208,
		},
		{
			EventSequence: 107, // a lower branch counter must not move the sequence back
		},
	}
}

func TestApplyChannels(t *testing.T) {
	s := agentstate.New("f1", "u1", agentstate.InputPrompt, "a contact form", nil)
	s = agentstate.ApplyAll(s, sampleUpdates()...)

	if s.Status != agentstate.StatusProcessing {
		t.Errorf("status = %s", s.Status)
	}
	if s.EventSequence != 208 {
		t.Errorf("eventSequence = %d, want 208", s.EventSequence)
	}
	if len(s.Tasks) != 2 || s.Tasks[0].ID != "t1" || s.Tasks[1].ID != "t2" {
		t.Fatalf("unexpected tasks %+v", s.Tasks)
	}
	if s.Tasks[0].Status != agenttask.StatusCompleted {
		t.Errorf("t1 status = %s, want completed", s.Tasks[0].Status)
	}
	if len(s.CurrentBatch) != 1 || s.Iteration != 1 {
		t.Errorf("unexpected batch/iteration: %d/%d", len(s.CurrentBatch), s.Iteration)
	}
	if s.FormMetadata == nil || s.FormMetadata.Title != "Contact" {
		t.Errorf("unexpected metadata %+v", s.FormMetadata)
	}
	if len(s.Questions) != 1 || s.Settings["lang"] != "en" || len(s.Notes) != 1 {
		t.Errorf("unexpected questions/settings/notes: %+v", s)
	}
}

func TestApplyIsIdempotentUnderReplay(t *testing.T) {
	initial := agentstate.New("f1", "u1", agentstate.InputPrompt, "a contact form", map[string]any{"theme": "light"})
	updates := sampleUpdates()

	once := agentstate.ApplyAll(initial, updates...)
	twice := agentstate.ApplyAll(once, updates...)

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("replay changed state:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	initial := agentstate.New("f1", "u1", agentstate.InputPrompt, "x", nil)
	initial.Tasks = []agenttask.Task{task("t1", agenttask.StatusPending)}

	_ = agentstate.Apply(initial, agentstate.Update{Tasks: []agenttask.Task{task("t1", agenttask.StatusFailed)}})
	if initial.Tasks[0].Status != agenttask.StatusPending {
		t.Fatal("Apply mutated its input state")
	}
}

func TestChannelsCoverState(t *testing.T) {
	want := []string{
		"status", "errorDetails", "normalizedInputContent", "formMetadata", "journeyScript",
		"tasksToPersist", "currentProcessingBatch", "generatedQuestionSchemas", "settings",
		"notes", "eventSequence", "iteration", "versionId",
	}
	if got := agentstate.Channels(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Channels() = %v, want %v", got, want)
	}
}

func TestFormViewOrdersQuestions(t *testing.T) {
	s := agentstate.New("f1", "u1", agentstate.InputPrompt, "x", nil)
	s.Questions = []question.Schema{
		{ID: "b", Order: 2, Title: "Second"},
		{ID: "a", Order: 1, Title: "First"},
	}
	v := s.FormView()
	if v.Questions[0].ID != "a" || v.Questions[1].ID != "b" {
		t.Fatalf("expected ordered questions, got %+v", v.Questions)
	}
	if s.Questions[0].ID != "b" {
		t.Fatal("FormView must not reorder state questions")
	}
}
