package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/invopop/jsonschema"

	"github.com/kyashrathore/formlink-sub001/internal/config"
	"github.com/kyashrathore/formlink-sub001/internal/domain"
	"github.com/kyashrathore/formlink-sub001/internal/domain/agentevent"
	"github.com/kyashrathore/formlink-sub001/internal/domain/agentstate"
	"github.com/kyashrathore/formlink-sub001/internal/domain/agenttask"
	"github.com/kyashrathore/formlink-sub001/internal/domain/question"
	"github.com/kyashrathore/formlink-sub001/internal/port/completion"
	"github.com/kyashrathore/formlink-sub001/internal/port/database"
)

const (
	planTaskID   = "plan"
	planTaskType = "plan_form"
)

// FormPlan is the structured completion the planner asks for.
type FormPlan struct {
	Title           string           `json:"title" jsonschema:"description=Short form title"`
	Description     string           `json:"description" jsonschema:"description=One-sentence form description"`
	JourneyScript   string           `json:"journeyScript" jsonschema:"description=What the respondent sees after submitting; empty if nothing special"`
	QuestionDetails []QuestionDetail `json:"questionDetails" jsonschema:"minItems=1"`
}

// QuestionDetail is one planned question.
type QuestionDetail struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// JSONSchemaExtend restricts type to the supported question types.
func (QuestionDetail) JSONSchemaExtend(s *jsonschema.Schema) {
	if s.Properties == nil {
		return
	}
	if p, ok := s.Properties.Get("type"); ok {
		p.Enum = make([]any, len(question.Types))
		for i, t := range question.Types {
			p.Enum[i] = string(t)
		}
	}
}

// Planner asks the completion service for a form plan and persists one
// pending task per planned question.
type Planner struct {
	llm   completion.Service
	store database.Store
	cfg   config.Agent
}

// NewPlanner creates a Planner.
func NewPlanner(llm completion.Service, store database.Store, cfg config.Agent) *Planner {
	return &Planner{llm: llm, store: store, cfg: cfg}
}

// Run plans the form. It fully succeeds or fully fails: on failure no
// tasks reach the state.
func (p *Planner) Run(ctx context.Context, s agentstate.State) (agentstate.Update, []agentevent.Event, error) {
	em := agentevent.ForState(&s)

	plan, notes, err := p.plan(ctx, &s)
	if err != nil {
		return p.fail(&s, em, err)
	}

	tasks := make([]agenttask.Task, len(plan.QuestionDetails))
	for i, qd := range plan.QuestionDetails {
		qt, _ := plannedType(qd.Type)
		tasks[i] = agenttask.Task{
			ID:     uuid.NewString(),
			FormID: s.FormID,
			Status: agenttask.StatusPending,
			Order:  i + 1,
			Definition: agenttask.GenerateQuestionSchema{
				Title: strings.TrimSpace(qd.Text),
				Type:  qt,
				Order: i + 1,
			},
		}
	}
	if err := p.store.CreateTasks(ctx, tasks); err != nil {
		return p.fail(&s, em, fmt.Errorf("persist tasks: %w", err))
	}

	slog.Info("form planned", "form_id", s.FormID, "tasks", len(tasks), "title", plan.Title)

	u := agentstate.Update{
		FormMetadata: &agentstate.FormMetadata{Title: plan.Title, Description: plan.Description},
		Tasks:        tasks,
		Notes:        notes,
	}
	if js := strings.TrimSpace(plan.JourneyScript); js != "" {
		u.JourneyScript = &js
	}
	events := []agentevent.Event{
		em.Warning(fmt.Sprintf("Planned %d questions", len(tasks)), plan.Title),
		em.TaskCompleted(agentevent.TaskPayload{
			TaskID:   planTaskID,
			TaskType: planTaskType,
			Current:  1,
			Total:    1,
			Message:  "Form plan ready",
			Output:   agentevent.Output(plan),
		}),
	}
	u.EventSequence = em.Last()
	return u, events, nil
}

// plan issues the single structured completion and checks the result.
func (p *Planner) plan(ctx context.Context, s *agentstate.State) (*FormPlan, []string, error) {
	if strings.TrimSpace(s.NormalizedInputContent) == "" {
		return nil, nil, fmt.Errorf("normalized input: %w", domain.ErrEmptyInput)
	}

	req := completion.Request{
		Model:       p.cfg.PlanModel,
		System:      planSystemPrompt,
		Prompt:      buildPlanPrompt(s.NormalizedInputContent, s.Settings),
		SchemaName:  "form_plan",
		Schema:      completion.SchemaFor(FormPlan{}),
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
	}
	seen := 0
	raw, err := p.llm.StreamStructured(ctx, req, func(partial json.RawMessage) error {
		var fp FormPlan
		if json.Unmarshal(partial, &fp) == nil && len(fp.QuestionDetails) > seen {
			seen = len(fp.QuestionDetails)
			slog.Debug("plan streaming", "form_id", s.FormID, "questions_so_far", seen)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("plan completion: %w", err)
	}

	var plan FormPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, nil, fmt.Errorf("decode plan: %w: %w", domain.ErrInvalidPlan, err)
	}
	plan.Title = strings.TrimSpace(plan.Title)
	if plan.Title == "" {
		return nil, nil, fmt.Errorf("plan has no title: %w", domain.ErrInvalidPlan)
	}
	if len(plan.QuestionDetails) == 0 {
		return nil, nil, fmt.Errorf("plan has no questions: %w", domain.ErrInvalidPlan)
	}

	var notes []string
	for i, qd := range plan.QuestionDetails {
		if strings.TrimSpace(qd.Text) == "" {
			return nil, nil, fmt.Errorf("question %d has no text: %w", i+1, domain.ErrInvalidPlan)
		}
		if qt, ok := plannedType(qd.Type); !ok {
			notes = append(notes, fmt.Sprintf("question %d: unknown type %q, using %s", i+1, qd.Type, qt))
		}
	}
	return &plan, notes, nil
}

// plannedType maps a model-chosen type name onto a supported type, falling
// back to short text.
func plannedType(name string) (question.Type, bool) {
	if t, ok := question.ParseType(name); ok {
		return t, true
	}
	return question.TypeShortText, false
}

func (p *Planner) fail(s *agentstate.State, em *agentevent.Emitter, err error) (agentstate.Update, []agentevent.Event, error) {
	slog.Error("planning failed", "form_id", s.FormID, "error", err)
	u := agentstate.Update{
		Status: agentstate.Ptr(agentstate.StatusFailed),
		Error: &agentstate.ErrorDetails{
			Stage:   string(StagePlan),
			Message: "Failed to plan the form",
			Cause:   err.Error(),
		},
	}
	events := []agentevent.Event{
		em.Error("Failed to plan the form", err.Error()),
		em.TaskFailed(agentevent.TaskPayload{
			TaskID:   planTaskID,
			TaskType: planTaskType,
			Current:  1,
			Total:    1,
			Message:  err.Error(),
		}),
	}
	u.EventSequence = em.Last()
	return u, events, nil
}
