package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	flotel "github.com/kyashrathore/formlink-sub001/internal/adapter/otel"
	"github.com/kyashrathore/formlink-sub001/internal/config"
	"github.com/kyashrathore/formlink-sub001/internal/domain"
	"github.com/kyashrathore/formlink-sub001/internal/domain/agentevent"
	"github.com/kyashrathore/formlink-sub001/internal/domain/agentstate"
	"github.com/kyashrathore/formlink-sub001/internal/domain/agenttask"
	"github.com/kyashrathore/formlink-sub001/internal/domain/question"
	"github.com/kyashrathore/formlink-sub001/internal/port/completion"
	"github.com/kyashrathore/formlink-sub001/internal/port/database"
)

// Executor runs the current batch of tasks in parallel.
type Executor struct {
	llm     completion.Service
	store   database.Store
	cfg     config.Agent
	metrics *flotel.Metrics
}

// NewExecutor creates an Executor. metrics may be nil.
func NewExecutor(llm completion.Service, store database.Store, cfg config.Agent, metrics *flotel.Metrics) *Executor {
	return &Executor{llm: llm, store: store, cfg: cfg, metrics: metrics}
}

// branchResult is what one parallel branch hands back across the barrier.
type branchResult struct {
	task     agenttask.Task
	question *question.Schema
	events   []agentevent.Event
	note     string
}

// Run executes every task in s.CurrentBatch concurrently. Branch i numbers
// its events from s.EventSequence + i*agentevent.BranchStride; after all
// branches settle, their events are merged in sequence order. A failing
// task never cancels its siblings.
func (e *Executor) Run(ctx context.Context, s agentstate.State) (agentstate.Update, []agentevent.Event, error) {
	batch := s.CurrentBatch
	if len(batch) == 0 {
		return agentstate.Update{}, nil, nil
	}

	parent := agentevent.ForState(&s)
	positions := make(map[string]int, len(s.Tasks))
	for i := range s.Tasks {
		positions[s.Tasks[i].ID] = i + 1
	}

	results := make([]branchResult, len(batch))
	var g errgroup.Group
	g.SetLimit(agenttask.BatchSize)
	for i := range batch {
		em := parent.Branch(i)
		g.Go(func() error {
			results[i] = e.runTask(ctx, &s, batch[i], em, positions[batch[i].ID])
			return nil
		})
	}
	_ = g.Wait()

	u := agentstate.Update{CurrentBatch: &[]agenttask.Task{}}
	var events []agentevent.Event
	for _, r := range results {
		u.Tasks = append(u.Tasks, r.task)
		if r.question != nil {
			u.Questions = append(u.Questions, *r.question)
		}
		if r.note != "" {
			u.Notes = append(u.Notes, r.note)
		}
		events = append(events, r.events...)
	}
	agentevent.SortBySequence(events)
	u.EventSequence = agentevent.MaxSequence(events)
	return u, events, nil
}

// runTask executes one task on its own emitter and persists its terminal
// state. It only reads s.
func (e *Executor) runTask(ctx context.Context, s *agentstate.State, t agenttask.Task, em *agentevent.Emitter, position int) branchResult {
	total := len(s.Tasks)
	ctx, span := flotel.StartTaskSpan(ctx, t.ID, t.TaskType())

	res := branchResult{}
	res.events = append(res.events, em.TaskStarted(agentevent.TaskPayload{
		TaskID:   t.ID,
		TaskType: t.TaskType(),
		Current:  position,
		Total:    total,
		Message:  "Generating question: " + t.Title(),
	}))

	var (
		q   question.Schema
		err error
	)
	switch d := t.Definition.(type) {
	case agenttask.GenerateQuestionSchema:
		q, err = e.generateQuestion(ctx, s, t.ID, d)
	default:
		err = fmt.Errorf("unsupported task definition %T", t.Definition)
	}
	flotel.EndSpan(span, err)

	qType := ""
	if d, ok := t.Definition.(agenttask.GenerateQuestionSchema); ok {
		qType = string(d.Type)
	}

	if err != nil {
		slog.Warn("task failed", "form_id", s.FormID, "task_id", t.ID, "error", err)
		t.Status = agenttask.StatusFailed
		t.Error = err.Error()
		res.events = append(res.events,
			em.TaskFailed(agentevent.TaskPayload{
				TaskID:   t.ID,
				TaskType: t.TaskType(),
				Current:  position,
				Total:    total,
				Message:  err.Error(),
			}),
			em.Error("Question generation failed: "+t.Title(), err.Error()),
		)
	} else {
		t.Status = agenttask.StatusCompleted
		t.Output = agentevent.Output(q)
		t.Error = ""
		res.question = &q
		view := agentstate.Apply(*s, agentstate.Update{
			Tasks:     []agenttask.Task{t},
			Questions: []question.Schema{q},
		})
		res.events = append(res.events,
			em.QuestionGenerated(q.Title, q.Order, total),
			em.Snapshot(view, false),
		)
	}
	e.metrics.TaskFinished(ctx, string(t.Status), qType)

	if perr := e.store.UpsertTask(ctx, &t); perr != nil {
		slog.Warn("persist task failed", "form_id", s.FormID, "task_id", t.ID, "error", perr)
		res.note = fmt.Sprintf("task %s: terminal state not persisted", t.ID)
	}
	res.task = t
	return res
}

// generateQuestion asks for the content of one question constrained to the
// shape of its type, then repairs and validates it locally.
func (e *Executor) generateQuestion(ctx context.Context, s *agentstate.State, taskID string, d agenttask.GenerateQuestionSchema) (question.Schema, error) {
	shape := question.ShapeFor(d.Type)
	if shape == nil {
		return question.Schema{}, fmt.Errorf("question type %q: %w", d.Type, domain.ErrInvalidQuestion)
	}

	raw, err := e.llm.GenerateStructured(ctx, completion.Request{
		Model:       e.cfg.QuestionModel,
		System:      questionSystemPrompt,
		Prompt:      buildQuestionPrompt(s, d),
		SchemaName:  "question_" + string(d.Type.Family()),
		Schema:      completion.SchemaFor(shape),
		Temperature: e.cfg.Temperature,
		MaxTokens:   e.cfg.MaxTokens,
	})
	if err != nil {
		return question.Schema{}, fmt.Errorf("question completion: %w", err)
	}

	var q question.Schema
	if err := json.Unmarshal(raw, &q); err != nil {
		return question.Schema{}, fmt.Errorf("decode question: %w: %w", domain.ErrInvalidQuestion, err)
	}
	q.ID = taskID
	q.Type = d.Type
	q.Order = d.Order
	if q.Title == "" {
		q.Title = d.Title
	}

	q = question.Repair(q)
	if issues := question.Validate(&q); len(issues) > 0 {
		return question.Schema{}, fmt.Errorf("%w:\n%s", domain.ErrInvalidQuestion, question.FormatIssues(issues))
	}
	return q, nil
}
