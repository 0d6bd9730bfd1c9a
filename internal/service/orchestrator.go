package service

import (
	"context"
	"fmt"
	"log/slog"

	flotel "github.com/kyashrathore/formlink-sub001/internal/adapter/otel"
	"github.com/kyashrathore/formlink-sub001/internal/config"
	"github.com/kyashrathore/formlink-sub001/internal/domain/agentevent"
	"github.com/kyashrathore/formlink-sub001/internal/domain/agentstate"
	"github.com/kyashrathore/formlink-sub001/internal/domain/agenttask"
	"github.com/kyashrathore/formlink-sub001/internal/port/completion"
	"github.com/kyashrathore/formlink-sub001/internal/port/database"
)

// Stage names one node of the generation workflow.
type Stage string

const (
	StageNormalize    Stage = "normalize"
	StagePlan         Stage = "plan"
	StageSelectBatch  Stage = "select_batch"
	StageExecuteBatch Stage = "execute_batch"
	StageFinalize     Stage = "finalize"
	StageEnd          Stage = "end"

	// stageOrchestrate labels failures raised by the run loop itself.
	stageOrchestrate = "orchestrate"
)

// StageFunc runs one stage against a read-only state and returns the partial
// update and the events it produced. A returned error is an infrastructure
// fault, not a domain failure.
type StageFunc func(ctx context.Context, s agentstate.State) (agentstate.Update, []agentevent.Event, error)

// Route returns the stage that follows from, given the state after from ran.
func Route(from Stage, s *agentstate.State) Stage {
	switch from {
	case StageNormalize:
		// Deliberate extra edge: a normalize failure ends the run without
		// the Finalizer. Nothing was planned or persisted, and the
		// normalizer emits its own terminal snapshot.
		if s.Failed() {
			return StageEnd
		}
		return StagePlan
	case StagePlan:
		if s.Failed() {
			return StageFinalize
		}
		return StageSelectBatch
	case StageSelectBatch:
		if len(s.CurrentBatch) > 0 {
			return StageExecuteBatch
		}
		return StageFinalize
	case StageExecuteBatch:
		return StageSelectBatch
	}
	return StageEnd
}

// RelayFunc receives each stage's events, already in sequence order.
type RelayFunc func(ctx context.Context, events []agentevent.Event)

// Orchestrator drives a run through its stages until StageEnd.
type Orchestrator struct {
	stages        map[Stage]StageFunc
	maxIterations int
}

// NewOrchestrator wires the standard stages.
func NewOrchestrator(llm completion.Service, store database.Store, cfg config.Agent, metrics *flotel.Metrics) *Orchestrator {
	return NewOrchestratorWithStages(map[Stage]StageFunc{
		StageNormalize:    Normalizer{}.Run,
		StagePlan:         NewPlanner(llm, store, cfg).Run,
		StageSelectBatch:  NewBatchSelector(store).Run,
		StageExecuteBatch: NewExecutor(llm, store, cfg, metrics).Run,
		StageFinalize:     NewFinalizer(llm, store, cfg, metrics).Run,
	}, cfg.MaxIterations)
}

// NewOrchestratorWithStages builds an orchestrator from explicit stage
// functions. Used by tests.
func NewOrchestratorWithStages(stages map[Stage]StageFunc, maxIterations int) *Orchestrator {
	return &Orchestrator{stages: stages, maxIterations: max(maxIterations, 1)}
}

// Run executes the workflow from StageNormalize and returns the final state.
// Each stage's update is folded in through the channel reducers before its
// events are relayed. An error is returned only when the finalize stage
// itself faults; the caller then owns the terminal snapshot.
func (o *Orchestrator) Run(ctx context.Context, s agentstate.State, relay RelayFunc) (agentstate.State, error) {
	stage := StageNormalize
	for stage != StageEnd {
		// Only a cycle that would start another batch counts against the limit.
		if stage == StageSelectBatch && s.Iteration >= o.maxIterations &&
			agenttask.Count(s.Tasks, agenttask.StatusPending) > 0 {
			slog.Error("iteration limit reached", "form_id", s.FormID, "iterations", s.Iteration)
			s = agentstate.Apply(s, agentstate.Update{
				Status: agentstate.Ptr(agentstate.StatusFailed),
				Error: &agentstate.ErrorDetails{
					Stage:   stageOrchestrate,
					Message: "Iteration limit exceeded",
					Cause:   fmt.Sprintf("more than %d batch cycles", o.maxIterations),
				},
			})
			stage = StageFinalize
			continue
		}

		fn, ok := o.stages[stage]
		if !ok {
			return s, fmt.Errorf("stage %s: not registered", stage)
		}

		sctx, span := flotel.StartStageSpan(ctx, string(stage), s.Iteration)
		u, events, err := fn(sctx, s)
		flotel.EndSpan(span, err)

		if err != nil {
			slog.Error("stage fault", "form_id", s.FormID, "stage", stage, "error", err)
			if stage == StageFinalize {
				return s, fmt.Errorf("stage %s: %w", stage, err)
			}
			s = agentstate.Apply(s, agentstate.Update{
				Status: agentstate.Ptr(agentstate.StatusFailed),
				Error: &agentstate.ErrorDetails{
					Stage:   string(stage),
					Message: "Internal error",
					Cause:   err.Error(),
				},
			})
			stage = StageFinalize
			continue
		}

		s = agentstate.Apply(s, u)
		if len(events) > 0 && relay != nil {
			relay(ctx, events)
		}
		slog.Debug("stage done", "form_id", s.FormID, "stage", stage, "events", len(events), "sequence", s.EventSequence)
		stage = Route(stage, &s)
	}
	return s, nil
}
