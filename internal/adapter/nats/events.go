package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kyashrathore/formlink-sub001/internal/domain/agentevent"
	"github.com/kyashrathore/formlink-sub001/internal/port/messagequeue"
)

// EventSink publishes relayed run events to formlink.events.{formId}.
type EventSink struct {
	q      messagequeue.Queue
	prefix string
}

// NewEventSink returns a broadcast sink publishing through q.
func NewEventSink(q messagequeue.Queue, prefix string) *EventSink {
	return &EventSink{q: q, prefix: prefix}
}

// Send implements broadcast.Sink.
func (s *EventSink) Send(ctx context.Context, ev agentevent.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %d: %w", ev.Sequence, err)
	}
	return s.q.Publish(ctx, messagequeue.EventSubject(s.prefix, ev.FormID), data)
}

// WatchForm subscribes to the events of one form and calls fn with each
// decoded event. Payloads arrive as json.RawMessage.
func WatchForm(ctx context.Context, q messagequeue.Queue, prefix, formID string, fn func(agentevent.Event) error) (func(), error) {
	return q.Subscribe(ctx, messagequeue.EventSubject(prefix, formID), func(_ context.Context, _ string, data []byte) error {
		ev, err := agentevent.Decode(data)
		if err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		return fn(ev)
	})
}
