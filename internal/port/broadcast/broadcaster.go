// Package broadcast defines the port for delivering relayed run events to
// live consumers.
package broadcast

import (
	"context"
	"errors"

	"github.com/kyashrathore/formlink-sub001/internal/domain/agentevent"
)

// Sink receives events in the order the streaming wrapper relays them.
type Sink interface {
	Send(ctx context.Context, ev agentevent.Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev agentevent.Event) error

func (f SinkFunc) Send(ctx context.Context, ev agentevent.Event) error { return f(ctx, ev) }

// Multi delivers to every sink in order. A failing sink does not stop
// delivery to the others; the joined error is returned.
type Multi []Sink

func (m Multi) Send(ctx context.Context, ev agentevent.Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Send(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
