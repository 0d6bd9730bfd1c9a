// Package completion defines the port to the structured language-model
// completion service.
package completion

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrMalformedOutput is returned when the model answered but its output
// could not be turned into a JSON object, even after repair.
var ErrMalformedOutput = errors.New("completion: malformed structured output")

// Request asks for one JSON object conforming to Schema.
type Request struct {
	Model       string
	System      string
	Prompt      string
	SchemaName  string
	Schema      map[string]any
	Temperature float64
	MaxTokens   int
}

// PartialFunc receives progressively more complete versions of the object
// while a streamed completion is in flight. Returning an error aborts the
// stream.
type PartialFunc func(partial json.RawMessage) error

// Service produces structured JSON completions.
type Service interface {
	// GenerateStructured returns the complete JSON object.
	GenerateStructured(ctx context.Context, req Request) (json.RawMessage, error)

	// StreamStructured behaves like GenerateStructured and additionally
	// reports partial objects to onPartial as they arrive.
	StreamStructured(ctx context.Context, req Request, onPartial PartialFunc) (json.RawMessage, error)
}
