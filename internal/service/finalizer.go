package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	flotel "github.com/kyashrathore/formlink-sub001/internal/adapter/otel"
	"github.com/kyashrathore/formlink-sub001/internal/config"
	"github.com/kyashrathore/formlink-sub001/internal/domain"
	"github.com/kyashrathore/formlink-sub001/internal/domain/agentevent"
	"github.com/kyashrathore/formlink-sub001/internal/domain/agentstate"
	"github.com/kyashrathore/formlink-sub001/internal/domain/agenttask"
	"github.com/kyashrathore/formlink-sub001/internal/domain/form"
	"github.com/kyashrathore/formlink-sub001/internal/domain/question"
	"github.com/kyashrathore/formlink-sub001/internal/port/completion"
	"github.com/kyashrathore/formlink-sub001/internal/port/database"
)

const (
	finalizeTaskID   = "finalize"
	finalizeTaskType = "finalize_form"
)

// ResultsPage is the completion target for the results page fallback.
type ResultsPage struct {
	Content string `json:"content" jsonschema:"description=Markdown shown after submission"`
}

// Finalizer validates the accumulated questions, persists a new form
// version and emits the terminal events of a run.
type Finalizer struct {
	llm     completion.Service
	store   database.Store
	cfg     config.Agent
	metrics *flotel.Metrics
}

// NewFinalizer creates a Finalizer. metrics may be nil.
func NewFinalizer(llm completion.Service, store database.Store, cfg config.Agent, metrics *flotel.Metrics) *Finalizer {
	return &Finalizer{llm: llm, store: store, cfg: cfg, metrics: metrics}
}

// Run finalizes the run. A state that already carries a failure takes the
// skip path and touches neither the completion service nor the store.
func (f *Finalizer) Run(ctx context.Context, s agentstate.State) (agentstate.Update, []agentevent.Event, error) {
	em := agentevent.ForState(&s)

	if s.Failed() {
		details := "run failed"
		if s.Error != nil {
			details = fmt.Sprintf("%s: %s", s.Error.Stage, s.Error.Message)
			if s.Error.Cause != "" {
				details += ": " + s.Error.Cause
			}
		}
		return f.terminate(&s, em, agentstate.Update{Status: agentstate.Ptr(agentstate.StatusFailed)}, details)
	}

	questions := s.OrderedQuestions()
	if len(questions) == 0 {
		return f.fail(&s, em, errors.New("no questions were generated"))
	}

	if issues := question.ValidateAll(questions); len(issues) > 0 {
		slog.Warn("final validation failed, requesting repair", "form_id", s.FormID, "issues", len(issues))
		repaired, err := f.repair(ctx, questions, issues)
		if err != nil {
			return f.fail(&s, em, err)
		}
		questions = repaired
	}

	var (
		notes       []string
		events      []agentevent.Event
		resultsPage string
	)
	if s.JourneyScript == "" && f.cfg.ResultsPageFallback {
		page, err := f.resultsPage(ctx, &s, questions)
		if err != nil {
			slog.Warn("results page generation failed", "form_id", s.FormID, "error", err)
			notes = append(notes, "results page not generated: "+err.Error())
			events = append(events, em.Warning("Results page not generated", err.Error()))
		}
		resultsPage = page
	}

	v := &form.Version{
		FormID:        s.FormID,
		UserID:        s.UserID,
		Questions:     questions,
		JourneyScript: s.JourneyScript,
		ResultsPage:   resultsPage,
		Settings:      s.Settings,
	}
	if s.FormMetadata != nil {
		v.Title = s.FormMetadata.Title
		v.Description = s.FormMetadata.Description
	}
	versionID, err := f.store.InsertFormVersion(ctx, v)
	if err != nil {
		return f.fail(&s, em, fmt.Errorf("save form version: %w", err))
	}

	status := agentstate.StatusCompleted
	if err := f.store.UpdateFormPointer(ctx, s.FormID, versionID); err != nil {
		slog.Warn("form pointer update failed", "form_id", s.FormID, "version_id", versionID, "error", err)
		status = agentstate.StatusPartial
		notes = append(notes, fmt.Sprintf("version %s saved but not made current", versionID))
		events = append(events, em.Warning("Form version saved but not activated", err.Error()))
	}

	u := agentstate.Update{
		Status:    agentstate.Ptr(status),
		VersionID: &versionID,
		Questions: questions,
		Notes:     notes,
	}
	total := len(s.Tasks)
	failed := agenttask.Count(s.Tasks, agenttask.StatusFailed)
	events = append(events,
		em.TaskCompleted(agentevent.TaskPayload{
			TaskID:   finalizeTaskID,
			TaskType: finalizeTaskType,
			Current:  total,
			Total:    total,
			Message:  fmt.Sprintf("Saved %d questions (%d tasks failed)", len(questions), failed),
			Output: agentevent.Output(map[string]any{
				"versionId":     versionID,
				"questionCount": len(questions),
			}),
		}),
		em.Finalized(fmt.Sprintf("Form generated with %d questions", len(questions))),
	)
	events = append(events, em.Snapshot(agentstate.Apply(s, u), true))
	u.EventSequence = em.Last()

	slog.Info("form finalized", "form_id", s.FormID, "version_id", versionID, "status", status,
		"questions", len(questions), "failed_tasks", failed)
	return u, events, nil
}

// repair makes the single AI repair call, then repairs and validates the
// result locally. Question ids and order are restored by position.
func (f *Finalizer) repair(ctx context.Context, questions []question.Schema, issues []question.Issue) ([]question.Schema, error) {
	f.metrics.RepairCalled(ctx)

	current, err := json.Marshal(question.Collection{Questions: questions})
	if err != nil {
		return nil, fmt.Errorf("marshal collection: %w", err)
	}
	raw, err := f.llm.GenerateStructured(ctx, completion.Request{
		Model:       f.cfg.RepairModel,
		System:      repairSystemPrompt,
		Prompt:      buildRepairPrompt(current, issues),
		SchemaName:  "question_collection",
		Schema:      completion.SchemaFor(question.Collection{}),
		Temperature: 0,
		MaxTokens:   f.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("repair completion: %w", err)
	}

	var out question.Collection
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode repaired collection: %w: %w", domain.ErrInvalidQuestion, err)
	}
	if len(out.Questions) != len(questions) {
		return nil, fmt.Errorf("repair returned %d questions, want %d: %w",
			len(out.Questions), len(questions), domain.ErrInvalidQuestion)
	}
	for i := range out.Questions {
		out.Questions[i].ID = questions[i].ID
		out.Questions[i].Order = questions[i].Order
		if !out.Questions[i].Type.IsValid() {
			out.Questions[i].Type = questions[i].Type
		}
	}
	repaired := question.RepairAll(out.Questions)
	if issues := question.ValidateAll(repaired); len(issues) > 0 {
		return nil, fmt.Errorf("still invalid after repair: %w:\n%s", domain.ErrInvalidQuestion, question.FormatIssues(issues))
	}
	return repaired, nil
}

func (f *Finalizer) resultsPage(ctx context.Context, s *agentstate.State, questions []question.Schema) (string, error) {
	raw, err := f.llm.GenerateStructured(ctx, completion.Request{
		Model:       f.cfg.PlanModel,
		System:      resultsPageSystemPrompt,
		Prompt:      buildResultsPagePrompt(s, questions),
		SchemaName:  "results_page",
		Schema:      completion.SchemaFor(ResultsPage{}),
		Temperature: f.cfg.Temperature,
		MaxTokens:   f.cfg.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	var page ResultsPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return "", fmt.Errorf("decode results page: %w", err)
	}
	return strings.TrimSpace(page.Content), nil
}

// fail records a finalization failure and terminates the run.
func (f *Finalizer) fail(s *agentstate.State, em *agentevent.Emitter, err error) (agentstate.Update, []agentevent.Event, error) {
	slog.Error("finalization failed", "form_id", s.FormID, "error", err)
	u := agentstate.Update{
		Status: agentstate.Ptr(agentstate.StatusFailed),
		Error: &agentstate.ErrorDetails{
			Stage:   string(StageFinalize),
			Message: "Failed to finalize the form",
			Cause:   err.Error(),
		},
	}
	return f.terminate(s, em, u, err.Error())
}

// terminate emits agent_error, task_failed and the terminal snapshot.
func (f *Finalizer) terminate(s *agentstate.State, em *agentevent.Emitter, u agentstate.Update, details string) (agentstate.Update, []agentevent.Event, error) {
	total := len(s.Tasks)
	events := []agentevent.Event{
		em.Error("Form generation failed", details),
		em.TaskFailed(agentevent.TaskPayload{
			TaskID:   finalizeTaskID,
			TaskType: finalizeTaskType,
			Current:  agenttask.Count(s.Tasks, agenttask.StatusCompleted),
			Total:    total,
			Message:  details,
		}),
	}
	events = append(events, em.Snapshot(agentstate.Apply(*s, u), true))
	u.EventSequence = em.Last()
	return u, events, nil
}
