package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/kyashrathore/formlink-sub001/internal/domain/agentevent"
)

func TestNewHub(t *testing.T) {
	hub := NewHub()
	if hub.ConnectionCount() != 0 {
		t.Fatalf("expected 0 connections, got %d", hub.ConnectionCount())
	}
}

func TestHubSendNoConnections(t *testing.T) {
	hub := NewHub()
	ev := agentevent.NewEmitter("f1", "u1", 0).Initialized("hello")
	if err := hub.Send(context.Background(), ev); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestHubSendMarshalError(t *testing.T) {
	hub := NewHub()
	ev := agentevent.Event{FormID: "f1", Payload: make(chan int)}
	if err := hub.Send(context.Background(), ev); err == nil {
		t.Fatal("expected marshal error")
	}
}

func TestHubRemoveNonexistent(t *testing.T) {
	hub := NewHub()
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.remove(&conn{cancel: cancel, formID: "f1"})
}

func TestHandleWSRequiresFormID(t *testing.T) {
	hub := NewHub()
	rec := httptest.NewRecorder()
	hub.HandleWS(rec, httptest.NewRequest(http.MethodGet, "/ws", http.NoBody))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubDeliversOnlyToWatchers(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	base := "ws" + strings.TrimPrefix(srv.URL, "http")
	watcher, _, err := websocket.Dial(ctx, base+"?form_id=f1", nil)
	if err != nil {
		t.Fatalf("dial f1: %v", err)
	}
	defer func() { _ = watcher.Close(websocket.StatusNormalClosure, "") }()
	other, _, err := websocket.Dial(ctx, base+"?form_id=f2", nil)
	if err != nil {
		t.Fatalf("dial f2: %v", err)
	}
	defer func() { _ = other.Close(websocket.StatusNormalClosure, "") }()

	waitFor(t, func() bool { return hub.ConnectionCount() == 2 })
	if hub.Watchers("f1") != 1 {
		t.Fatalf("expected 1 watcher for f1, got %d", hub.Watchers("f1"))
	}

	ev := agentevent.NewEmitter("f1", "u1", 4).Warning("planned", "3 tasks")
	if err := hub.Send(ctx, ev); err != nil {
		t.Fatalf("Send: %v", err)
	}

	_, data, err := watcher.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got, err := agentevent.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Sequence != 5 || got.Type != agentevent.TypeAgentWarning {
		t.Errorf("unexpected event %+v", got)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil || raw["formId"] != "f1" {
		t.Errorf("unexpected wire event %s", data)
	}

	readCtx, readCancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer readCancel()
	if _, _, err := other.Read(readCtx); err == nil {
		t.Error("watcher of f2 received an f1 event")
	}
}
