// Package eventstore defines the port interface for the append-only event store.
package eventstore

import (
	"context"

	"github.com/kyashrathore/formlink-sub001/internal/domain/agentevent"
)

// Store is the port interface for appending and loading agent events.
type Store interface {
	// Append persists a relayed event. Appending a (formID, sequence) pair
	// that already exists is a no-op.
	Append(ctx context.Context, ev *agentevent.Event) error

	// LoadByForm returns events for the form with sequence > afterSeq,
	// ordered by sequence. Payloads come back as json.RawMessage.
	LoadByForm(ctx context.Context, formID string, afterSeq int64) ([]agentevent.Event, error)

	// LastSequence returns the highest stored sequence of the form, or 0
	// when it has no events.
	LastSequence(ctx context.Context, formID string) (int64, error)
}
