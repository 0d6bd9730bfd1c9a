package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kyashrathore/formlink-sub001/internal/config"
	"github.com/kyashrathore/formlink-sub001/internal/domain"
	"github.com/kyashrathore/formlink-sub001/internal/domain/agentevent"
	"github.com/kyashrathore/formlink-sub001/internal/domain/agenttask"
	"github.com/kyashrathore/formlink-sub001/internal/domain/form"
	"github.com/kyashrathore/formlink-sub001/internal/port/completion"
)

var errBoom = errors.New("boom")

func testAgentConfig() config.Agent {
	return config.Agent{
		PlanModel:           "plan-model",
		QuestionModel:       "question-model",
		RepairModel:         "repair-model",
		Temperature:         0.2,
		MaxTokens:           1024,
		MaxIterations:       50,
		CompletionParallel:  3,
		ResultsPageFallback: true,
	}
}

// fakeStore is a thread-safe in-memory database.Store that counts writes.
type fakeStore struct {
	mu             sync.Mutex
	tasks          map[string]agenttask.Task
	versions       []form.Version
	pointers       map[string]string
	writes         int
	statusUpdates  []string
	createTasksErr error
	versionErr     error
	pointerErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: map[string]agenttask.Task{}, pointers: map[string]string{}}
}

func (m *fakeStore) CreateTasks(_ context.Context, tasks []agenttask.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createTasksErr != nil {
		return m.createTasksErr
	}
	m.writes++
	for _, t := range tasks {
		m.tasks[t.ID] = t
	}
	return nil
}

func (m *fakeStore) UpsertTask(_ context.Context, t *agenttask.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.tasks[t.ID] = *t
	return nil
}

func (m *fakeStore) UpdateTaskStatus(_ context.Context, id string, status agenttask.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	t.Status = status
	m.tasks[id] = t
	m.statusUpdates = append(m.statusUpdates, id)
	return nil
}

func (m *fakeStore) ListTasks(_ context.Context, formID string) ([]agenttask.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []agenttask.Task
	for _, t := range m.tasks {
		if t.FormID == formID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *fakeStore) GetForm(_ context.Context, id string) (*form.Form, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.pointers[id]
	if !ok {
		return nil, fmt.Errorf("form %s: %w", id, domain.ErrNotFound)
	}
	return &form.Form{ID: id, CurrentVersionID: v}, nil
}

func (m *fakeStore) InsertFormVersion(_ context.Context, v *form.Version) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.versionErr != nil {
		return "", m.versionErr
	}
	m.writes++
	v.ID = fmt.Sprintf("v%d", len(m.versions)+1)
	m.versions = append(m.versions, *v)
	return v.ID, nil
}

func (m *fakeStore) UpdateFormPointer(_ context.Context, formID, versionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pointerErr != nil {
		return m.pointerErr
	}
	m.writes++
	m.pointers[formID] = versionID
	return nil
}

func (m *fakeStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// fakeLLM answers by schema name. Handlers not set fall back to defaults
// that produce a valid plan and valid text questions.
type fakeLLM struct {
	mu       sync.Mutex
	calls    map[string]int
	handlers map[string]func(req completion.Request) (json.RawMessage, error)
	plan     map[string]any
}

func newFakeLLM(questionTitles ...string) *fakeLLM {
	details := make([]map[string]string, len(questionTitles))
	for i, title := range questionTitles {
		details[i] = map[string]string{"text": title, "type": "short_text"}
	}
	return &fakeLLM{
		calls:    map[string]int{},
		handlers: map[string]func(completion.Request) (json.RawMessage, error){},
		plan: map[string]any{
			"title":           "Signup",
			"description":     "Join the club",
			"journeyScript":   "Thanks for joining",
			"questionDetails": details,
		},
	}
}

func (f *fakeLLM) handle(schemaName string, fn func(req completion.Request) (json.RawMessage, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[schemaName] = fn
}

func (f *fakeLLM) count(schemaName string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[schemaName]
}

func (f *fakeLLM) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeLLM) GenerateStructured(_ context.Context, req completion.Request) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls[req.SchemaName]++
	fn := f.handlers[req.SchemaName]
	plan := f.plan
	f.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	switch {
	case req.SchemaName == "form_plan":
		return json.Marshal(plan)
	case strings.HasPrefix(req.SchemaName, "question_text"):
		return json.RawMessage(`{"title":"","description":"  Please answer ","required":true,"placeholder":"Type here"}`), nil
	case req.SchemaName == "results_page":
		return json.RawMessage(`{"content":"Thanks!"}`), nil
	}
	return nil, fmt.Errorf("fakeLLM: unexpected schema %q", req.SchemaName)
}

func (f *fakeLLM) StreamStructured(ctx context.Context, req completion.Request, onPartial completion.PartialFunc) (json.RawMessage, error) {
	raw, err := f.GenerateStructured(ctx, req)
	if err != nil {
		return nil, err
	}
	if onPartial != nil {
		if err := onPartial(raw); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

// recordingSink collects relayed events.
type recordingSink struct {
	mu     sync.Mutex
	events []agentevent.Event
	err    error
}

func (r *recordingSink) Send(_ context.Context, ev agentevent.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingSink) all() []agentevent.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]agentevent.Event, len(r.events))
	copy(out, r.events)
	return out
}

func countType(events []agentevent.Event, t agentevent.Type) int {
	n := 0
	for _, ev := range events {
		if ev.Type == t {
			n++
		}
	}
	return n
}
