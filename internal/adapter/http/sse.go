package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kyashrathore/formlink-sub001/internal/domain/agentevent"
)

var errStreamClosed = errors.New("event stream closed")

// sseWriter writes relayed events as server-sent events. The event id is
// the sequence number, so a client can resume through the replay endpoint.
type sseWriter struct {
	mu     sync.Mutex
	w      http.ResponseWriter
	f      http.Flusher
	closed bool
}

func newSSEWriter(w http.ResponseWriter, f http.Flusher) *sseWriter {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &sseWriter{w: w, f: f}
}

// Send implements broadcast.Sink. After the first write error the writer
// stays closed and reports every further event as undelivered.
func (s *sseWriter) Send(_ context.Context, ev agentevent.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %d: %w", ev.Sequence, err)
	}
	return s.write(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", ev.Sequence, ev.Type, data))
}

// comment writes an SSE comment line, used as a keep-alive.
func (s *sseWriter) comment(text string) error {
	return s.write(": " + text + "\n\n")
}

func (s *sseWriter) write(frame string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStreamClosed
	}
	if _, err := fmt.Fprint(s.w, frame); err != nil {
		s.closed = true
		return fmt.Errorf("write event stream: %w", err)
	}
	s.f.Flush()
	return nil
}

// keepAlive sends a comment every interval until ctx is done.
func (s *sseWriter) keepAlive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.comment("keep-alive") != nil {
				return
			}
		}
	}
}
