package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	flotel "github.com/kyashrathore/formlink-sub001/internal/adapter/otel"
	"github.com/kyashrathore/formlink-sub001/internal/domain"
	"github.com/kyashrathore/formlink-sub001/internal/domain/agentevent"
	"github.com/kyashrathore/formlink-sub001/internal/domain/agentstate"
	"github.com/kyashrathore/formlink-sub001/internal/logger"
	"github.com/kyashrathore/formlink-sub001/internal/port/broadcast"
	"github.com/kyashrathore/formlink-sub001/internal/port/eventstore"
)

// GenerateRequest starts one generation run.
type GenerateRequest struct {
	FormID    string               `json:"formId"`
	UserID    string               `json:"userId"`
	InputType agentstate.InputType `json:"inputType"`
	Input     any                  `json:"input"`
	Settings  map[string]any       `json:"settings,omitempty"`
}

// Validate checks identity fields and the input type. Input content is the
// normalizer's concern.
func (r *GenerateRequest) Validate() error {
	if r.FormID == "" {
		return fmt.Errorf("formId is required: %w", domain.ErrValidation)
	}
	if r.UserID == "" {
		return fmt.Errorf("userId is required: %w", domain.ErrValidation)
	}
	if r.InputType == "" {
		r.InputType = agentstate.InputPrompt
	}
	switch r.InputType {
	case agentstate.InputPrompt, agentstate.InputURL, agentstate.InputHTML:
		return nil
	}
	return fmt.Errorf("inputType %q is not one of prompt, url, html: %w", r.InputType, domain.ErrValidation)
}

// GenerationService runs the orchestrator behind a streaming wrapper and
// fans relayed events out to the configured sinks.
type GenerationService struct {
	orch    *Orchestrator
	sinks   broadcast.Multi
	events  eventstore.Store
	metrics *flotel.Metrics

	mu   sync.Mutex
	last map[string]int64 // highest sequence relayed per form by this process
}

// NewGenerationService creates a GenerationService. Every relayed event is
// delivered to sinks before the per-call sink.
func NewGenerationService(orch *Orchestrator, events eventstore.Store, metrics *flotel.Metrics, sinks ...broadcast.Sink) *GenerationService {
	return &GenerationService{orch: orch, sinks: sinks, events: events, metrics: metrics, last: map[string]int64{}}
}

// baseSequence returns the sequence a new run of formID continues from. The
// event store covers earlier processes; the in-memory mark covers runs
// whose events are not persisted.
func (g *GenerationService) baseSequence(ctx context.Context, formID string) int64 {
	g.mu.Lock()
	base := g.last[formID]
	g.mu.Unlock()
	if g.events == nil {
		return base
	}
	stored, err := g.events.LastSequence(ctx, formID)
	if err != nil {
		slog.WarnContext(ctx, "last sequence lookup failed", "error", err)
		return base
	}
	return max(base, stored)
}

func (g *GenerationService) markSequence(formID string, seq int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last[formID] = max(g.last[formID], seq)
}

// Generate runs one generation to completion. The run is detached from
// ctx's cancellation: a disconnecting caller does not stop it. onEvent may
// be nil.
func (g *GenerationService) Generate(ctx context.Context, req GenerateRequest, onEvent broadcast.Sink) (agentstate.State, error) {
	if err := req.Validate(); err != nil {
		return agentstate.State{}, err
	}

	runCtx := logger.WithFormID(context.WithoutCancel(ctx), req.FormID)
	runCtx, span := flotel.StartRunSpan(runCtx, req.FormID, req.UserID)
	start := time.Now()
	g.metrics.RunStarted(runCtx)

	sinks := make(broadcast.Multi, 0, len(g.sinks)+1)
	sinks = append(sinks, g.sinks...)
	if onEvent != nil {
		sinks = append(sinks, onEvent)
	}

	base := g.baseSequence(runCtx, req.FormID)
	stream := NewStreamAt(req.FormID, req.UserID, base, sinks)
	s := agentstate.New(req.FormID, req.UserID, req.InputType, req.Input, req.Settings)
	s.EventSequence = base
	stream.Relay(runCtx, []agentevent.Event{
		agentevent.ForState(&s).Initialized("Form generation started"),
	})
	s.EventSequence = stream.Watermark()

	slog.InfoContext(runCtx, "generation started", "user_id", req.UserID, "input_type", req.InputType, "base_sequence", base)

	final, err := g.orch.Run(runCtx, s, stream.Relay)
	stream.Finish(runCtx, final, err)
	g.markSequence(req.FormID, stream.Watermark())
	if err != nil || !final.Status.IsTerminal() {
		final.Status = agentstate.StatusFailed
	}

	delivered, dropped := stream.Stats()
	slog.InfoContext(runCtx, "generation finished", "status", final.Status,
		"events", delivered, "dropped", dropped, "duration", time.Since(start))
	g.metrics.RunFinished(runCtx, string(final.Status), time.Since(start))
	flotel.EndSpan(span, err)
	return final, nil
}

// Replay returns the stored events of formID after afterSeq.
func (g *GenerationService) Replay(ctx context.Context, formID string, afterSeq int64) ([]agentevent.Event, error) {
	if g.events == nil {
		return nil, fmt.Errorf("replay %s: %w", formID, domain.ErrNotFound)
	}
	events, err := g.events.LoadByForm(ctx, formID, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", formID, err)
	}
	return events, nil
}

// PersistEvents adapts an event store to a broadcast sink.
func PersistEvents(store eventstore.Store) broadcast.Sink {
	return broadcast.SinkFunc(func(ctx context.Context, ev agentevent.Event) error {
		return store.Append(ctx, &ev)
	})
}
