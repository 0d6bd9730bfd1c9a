package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kyashrathore/formlink-sub001/internal/domain/agentevent"
)

// EventStore implements eventstore.Store using PostgreSQL (append-only).
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append inserts ev. A second append of the same (form, sequence) is ignored.
func (s *EventStore) Append(ctx context.Context, ev *agentevent.Event) error {
	var payload []byte
	switch p := ev.Payload.(type) {
	case nil:
	case json.RawMessage:
		payload = p
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		payload = data
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO agent_events (form_id, sequence, event_type, category, user_id, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (form_id, sequence) DO NOTHING`,
		ev.FormID, ev.Sequence, string(ev.Type), string(ev.Category), ev.UserID, nullJSON(payload), ev.Timestamp)
	if err != nil {
		return fmt.Errorf("append event %s/%d: %w", ev.FormID, ev.Sequence, err)
	}
	return nil
}

// LoadByForm returns events after afterSeq in sequence order.
func (s *EventStore) LoadByForm(ctx context.Context, formID string, afterSeq int64) ([]agentevent.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT form_id, sequence, event_type, category, user_id, payload, created_at
		 FROM agent_events WHERE form_id = $1 AND sequence > $2 ORDER BY sequence ASC`, formID, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("load events %s: %w", formID, err)
	}
	defer rows.Close()

	var events []agentevent.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// LastSequence returns the form's highest stored sequence, 0 if none.
func (s *EventStore) LastSequence(ctx context.Context, formID string) (int64, error) {
	var seq int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM agent_events WHERE form_id = $1`, formID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last sequence %s: %w", formID, err)
	}
	return seq, nil
}

func scanEvent(row scannable) (agentevent.Event, error) {
	var (
		ev            agentevent.Event
		typ, category string
		payload       []byte
	)
	if err := row.Scan(&ev.FormID, &ev.Sequence, &typ, &category, &ev.UserID, &payload, &ev.Timestamp); err != nil {
		return ev, fmt.Errorf("scan event: %w", err)
	}
	ev.Type = agentevent.Type(typ)
	ev.Category = agentevent.Category(category)
	if len(payload) > 0 {
		ev.Payload = json.RawMessage(payload)
	}
	return ev, nil
}
