package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kyashrathore/formlink-sub001/internal/domain"
	"github.com/kyashrathore/formlink-sub001/internal/domain/agentevent"
	"github.com/kyashrathore/formlink-sub001/internal/domain/agentstate"
)

// Normalizer validates the raw request and flattens it into plain text.
type Normalizer struct{}

// Run normalizes s.OriginalInput according to s.InputType.
func (Normalizer) Run(_ context.Context, s agentstate.State) (agentstate.Update, []agentevent.Event, error) {
	em := agentevent.ForState(&s)

	content, err := normalizeInput(s.InputType, s.OriginalInput)
	if err != nil {
		slog.Warn("input rejected", "form_id", s.FormID, "input_type", s.InputType, "error", err)
		u := agentstate.Update{
			Status: agentstate.Ptr(agentstate.StatusFailed),
			Error: &agentstate.ErrorDetails{
				Stage:   string(StageNormalize),
				Message: "Invalid input",
				Cause:   err.Error(),
			},
		}
		events := []agentevent.Event{em.Error("Invalid input", err.Error())}
		events = append(events, em.Snapshot(agentstate.Apply(s, u), true))
		u.EventSequence = em.Last()
		return u, events, nil
	}

	u := agentstate.Update{
		Status:                 agentstate.Ptr(agentstate.StatusProcessing),
		NormalizedInputContent: &content,
	}
	events := []agentevent.Event{
		em.Warning("Input normalized", fmt.Sprintf("%d characters of %s input", len(content), s.InputType)),
	}
	events = append(events, em.Snapshot(agentstate.Apply(s, u), false))
	u.EventSequence = em.Last()
	return u, events, nil
}

func normalizeInput(t agentstate.InputType, input any) (string, error) {
	switch t {
	case agentstate.InputPrompt:
		text, ok := input.(string)
		if !ok {
			return "", fmt.Errorf("prompt input must be a string, got %T: %w", input, domain.ErrEmptyInput)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return "", fmt.Errorf("prompt: %w", domain.ErrEmptyInput)
		}
		return text, nil
	case agentstate.InputURL, agentstate.InputHTML:
		return "", fmt.Errorf("%s: %w", t, domain.ErrUnsupportedInput)
	}
	return "", fmt.Errorf("unknown input type %q: %w", t, domain.ErrUnsupportedInput)
}
