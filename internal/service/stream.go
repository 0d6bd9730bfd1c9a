package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kyashrathore/formlink-sub001/internal/domain/agentevent"
	"github.com/kyashrathore/formlink-sub001/internal/domain/agentstate"
	"github.com/kyashrathore/formlink-sub001/internal/port/broadcast"
)

// Stream relays a run's events to a sink exactly once each, in strictly
// increasing sequence order, and guarantees a terminal snapshot.
type Stream struct {
	mu         sync.Mutex
	formID     string
	userID     string
	sink       broadcast.Sink
	watermark  int64
	delivered  int
	dropped    int
	terminated bool
}

// NewStream creates a Stream for the first run of a form.
func NewStream(formID, userID string, sink broadcast.Sink) *Stream {
	return NewStreamAt(formID, userID, 0, sink)
}

// NewStreamAt creates a Stream whose watermark starts at base, the last
// sequence already published for the form.
func NewStreamAt(formID, userID string, base int64, sink broadcast.Sink) *Stream {
	return &Stream{formID: formID, userID: userID, sink: sink, watermark: base}
}

// Relay forwards events whose sequence is above the watermark and drops the
// rest. Sink errors are logged and do not stop the run.
func (w *Stream) Relay(ctx context.Context, events []agentevent.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, ev := range events {
		if ev.Sequence <= w.watermark {
			w.dropped++
			slog.Debug("event dropped below watermark", "form_id", w.formID,
				"sequence", ev.Sequence, "watermark", w.watermark, "type", ev.Type)
			continue
		}
		w.watermark = ev.Sequence
		w.delivered++
		if ev.IsTerminal() {
			w.terminated = true
		}
		if w.sink == nil {
			continue
		}
		if err := w.sink.Send(ctx, ev); err != nil {
			slog.Warn("event relay failed", "form_id", w.formID, "sequence", ev.Sequence, "error", err)
		}
	}
}

// Finish emits a terminal FAILED snapshot when the run ended without one.
func (w *Stream) Finish(ctx context.Context, s agentstate.State, cause error) {
	w.mu.Lock()
	done := w.terminated
	base := max(w.watermark, s.EventSequence)
	w.mu.Unlock()
	if done {
		return
	}

	slog.Warn("run ended without terminal snapshot", "form_id", w.formID, "status", s.Status)
	final := s.Clone()
	final.Status = agentstate.StatusFailed
	if final.Error == nil {
		msg := "run ended unexpectedly"
		if cause != nil {
			msg = cause.Error()
		}
		final.Error = &agentstate.ErrorDetails{Stage: stageOrchestrate, Message: "Internal error", Cause: msg}
	}
	em := agentevent.NewEmitter(w.formID, w.userID, base)
	w.Relay(ctx, []agentevent.Event{em.Snapshot(final, true)})
}

// Watermark returns the highest sequence relayed so far.
func (w *Stream) Watermark() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watermark
}

// Stats returns the number of delivered and dropped events.
func (w *Stream) Stats() (delivered, dropped int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.delivered, w.dropped
}

// Terminated reports whether a terminal snapshot has been relayed.
func (w *Stream) Terminated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.terminated
}
