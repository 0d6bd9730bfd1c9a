package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// recordingHandler collects slog.Records for test assertions.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
	delay   time.Duration
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, rec slog.Record) error {
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	h.mu.Lock()
	h.records = append(h.records, rec)
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

func TestAsyncHandler_Delivery(t *testing.T) {
	tests := []struct {
		name      string
		buffer    int
		workers   int
		producers int
		each      int
	}{
		{"single record", 100, 1, 1, 1},
		{"parallel branches", 10000, 4, 100, 100},
		{"close drains backlog", 1000, 2, 1, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &recordingHandler{}
			ah := NewAsyncHandler(inner, tt.buffer, tt.workers)

			var wg sync.WaitGroup
			for range tt.producers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for range tt.each {
						rec := slog.NewRecord(time.Now(), slog.LevelInfo, "task finished", 0)
						if err := ah.Handle(context.Background(), rec); err != nil {
							t.Errorf("Handle: %v", err)
						}
					}
				}()
			}
			wg.Wait()
			ah.Close()

			if got, want := inner.count(), tt.producers*tt.each; got != want {
				t.Fatalf("delivered %d records, want %d", got, want)
			}
			if ah.DroppedCount() != 0 {
				t.Errorf("dropped %d records", ah.DroppedCount())
			}
		})
	}
}

func TestAsyncHandler_SlowSinkDrops(t *testing.T) {
	inner := &recordingHandler{delay: 10 * time.Millisecond}
	ah := NewAsyncHandler(inner, 1, 1)

	for range 50 {
		_ = ah.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "flood", 0))
	}
	ah.Close()

	dropped := ah.DroppedCount()
	if dropped == 0 {
		t.Fatal("expected a full buffer to drop records")
	}
	if int(dropped)+inner.count() != 50 {
		t.Errorf("dropped %d + delivered %d != 50", dropped, inner.count())
	}
}

func TestAsyncHandler_WithAttrsKeepsAttributes(t *testing.T) {
	var buf syncBuffer
	inner := slog.NewJSONHandler(&buf, nil)
	ah := NewAsyncHandler(inner, 10, 1)

	slog.New(ah).With("form_id", "f1").Info("derived")
	ah.Close()

	if !strings.Contains(buf.String(), `"form_id":"f1"`) {
		t.Fatalf("expected derived attribute in output, got %s", buf.String())
	}
}

func TestAsyncHandler_HandleAfterCloseDrops(t *testing.T) {
	inner := &recordingHandler{}
	ah := NewAsyncHandler(inner, 10, 1)
	ah.Close()
	ah.Close()

	rec := slog.NewRecord(time.Now(), slog.LevelInfo, "late", 0)
	if err := ah.Handle(context.Background(), rec); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if ah.DroppedCount() != 1 {
		t.Fatalf("expected 1 dropped record, got %d", ah.DroppedCount())
	}
}

// syncBuffer is a bytes.Buffer safe for use by handler workers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
