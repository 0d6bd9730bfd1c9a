package nats

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kyashrathore/formlink-sub001/internal/domain/agentevent"
	"github.com/kyashrathore/formlink-sub001/internal/logger"
	"github.com/kyashrathore/formlink-sub001/internal/port/messagequeue"
)

// testConnect connects to NATS or skips the test if NATS_URL is not set.
func testConnect(t *testing.T) *Queue {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	q, err := Connect(context.Background(), url, "FORMLINK_TEST", "formlink.events")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := q.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return q
}

func TestEventSink_PublishAndWatch(t *testing.T) {
	q := testConnect(t)
	formID := uuid.NewString()

	var (
		mu   sync.Mutex
		got  []agentevent.Event
		done = make(chan struct{})
		once sync.Once
	)
	stop, err := WatchForm(context.Background(), q, "", formID, func(ev agentevent.Event) error {
		mu.Lock()
		got = append(got, ev)
		n := len(got)
		mu.Unlock()
		if n == 2 {
			once.Do(func() { close(done) })
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WatchForm: %v", err)
	}
	defer stop()

	sink := NewEventSink(q, "")
	em := agentevent.NewEmitter(formID, "u1", 0)
	ctx := logger.WithRequestID(context.Background(), "req-nats")
	for _, ev := range []agentevent.Event{em.Warning("normalized", ""), em.Finalized("done")} {
		if err := sink.Send(ctx, ev); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for events")
	}

	mu.Lock()
	defer mu.Unlock()
	if got[0].Sequence != 1 || got[1].Sequence != 2 {
		t.Fatalf("unexpected order: %d, %d", got[0].Sequence, got[1].Sequence)
	}
	var p agentevent.MessagePayload
	if err := json.Unmarshal(got[1].Payload.(json.RawMessage), &p); err != nil || p.Message != "done" {
		t.Fatalf("unexpected payload %v (%v)", got[1].Payload, err)
	}
}

func TestQueue_PublishRejectsInvalid(t *testing.T) {
	q := testConnect(t)
	err := q.Publish(context.Background(), messagequeue.EventSubject("", "f1"), []byte(`{"type":"bogus","sequence":1,"formId":"f1"}`))
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestQueue_KeyValue(t *testing.T) {
	q := testConnect(t)
	ctx := context.Background()

	kv, err := q.KeyValue(ctx, "FORMLINK_TEST_KV", time.Minute)
	if err != nil {
		t.Fatalf("KeyValue: %v", err)
	}
	if _, err := kv.Put(ctx, "probe", []byte("1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !q.IsConnected() {
		t.Fatal("expected connected queue")
	}
}
