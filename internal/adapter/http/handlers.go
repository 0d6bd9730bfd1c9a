package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kyashrathore/formlink-sub001/internal/domain/agentevent"
	"github.com/kyashrathore/formlink-sub001/internal/domain/agentstate"
	"github.com/kyashrathore/formlink-sub001/internal/domain/form"
	"github.com/kyashrathore/formlink-sub001/internal/port/broadcast"
	"github.com/kyashrathore/formlink-sub001/internal/service"
)

const (
	defaultBodyLimit  = 1 << 20
	keepAliveInterval = 15 * time.Second
)

// Generator runs and replays generations.
type Generator interface {
	Generate(ctx context.Context, req service.GenerateRequest, onEvent broadcast.Sink) (agentstate.State, error)
	Replay(ctx context.Context, formID string, afterSeq int64) ([]agentevent.Event, error)
}

// SnapshotReader returns the latest snapshot event of a form as JSON.
type SnapshotReader interface {
	Latest(ctx context.Context, formID string) (json.RawMessage, error)
}

// FormReader loads a form row.
type FormReader interface {
	GetForm(ctx context.Context, id string) (*form.Form, error)
}

// HealthChecker reports the completion proxy's health.
type HealthChecker interface {
	Health(ctx context.Context) (bool, error)
	BreakerState() string
}

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Generator Generator
	Snapshots SnapshotReader
	Forms     FormReader
	LLM       HealthChecker
	BodyLimit int64
}

type generateBody struct {
	UserID    string               `json:"userId"`
	InputType agentstate.InputType `json:"inputType"`
	Input     any                  `json:"input"`
	Settings  map[string]any       `json:"settings,omitempty"`
}

// Generate handles POST /api/v1/forms/{formID}/generate. With
// Accept: text/event-stream the run's events are streamed as they are
// relayed; otherwise the final state is returned once the run ends. A
// client that disconnects mid-stream does not stop the run.
func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request) {
	limit := h.BodyLimit
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	body, ok := readJSON[generateBody](w, r, limit)
	if !ok {
		return
	}
	req := service.GenerateRequest{
		FormID:    chi.URLParam(r, "formID"),
		UserID:    body.UserID,
		InputType: body.InputType,
		Input:     body.Input,
		Settings:  body.Settings,
	}
	if err := req.Validate(); err != nil {
		writeDomainError(w, r, err, "")
		return
	}

	if !wantsEventStream(r) {
		final, err := h.Generator.Generate(r.Context(), req, nil)
		if err != nil {
			writeDomainError(w, r, err, "form not found")
			return
		}
		writeJSON(w, http.StatusOK, final)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	sse := newSSEWriter(w, flusher)

	kaCtx, stopKeepAlive := context.WithCancel(r.Context())
	defer stopKeepAlive()
	go sse.keepAlive(kaCtx, keepAliveInterval)

	// Generate validated req above; its only error is validation.
	_, _ = h.Generator.Generate(r.Context(), req, sse)
}

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// Events handles GET /api/v1/forms/{formID}/events?after=N.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	var after int64
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "after must be a non-negative integer")
			return
		}
		after = n
	}
	events, err := h.Generator.Replay(r.Context(), chi.URLParam(r, "formID"), after)
	if err != nil {
		writeDomainError(w, r, err, "no events for form")
		return
	}
	if events == nil {
		events = []agentevent.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// Snapshot handles GET /api/v1/forms/{formID}/snapshot.
func (h *Handlers) Snapshot(w http.ResponseWriter, r *http.Request) {
	data, err := h.Snapshots.Latest(r.Context(), chi.URLParam(r, "formID"))
	if err != nil {
		writeDomainError(w, r, err, "no snapshot for form")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// GetForm handles GET /api/v1/forms/{formID}.
func (h *Handlers) GetForm(w http.ResponseWriter, r *http.Request) {
	f, err := h.Forms.GetForm(r.Context(), chi.URLParam(r, "formID"))
	if err != nil {
		writeDomainError(w, r, err, "form not found")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

type healthStatus struct {
	Status  string `json:"status"`
	LiteLLM string `json:"litellm"`
	Breaker string `json:"breaker"`
}

// Health handles GET /health. The service is degraded, not down, when the
// completion proxy is unreachable: replay and snapshots still work.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	st := healthStatus{Status: "ok", LiteLLM: "ok"}
	if h.LLM == nil {
		st.LiteLLM, st.Breaker = "unconfigured", "unknown"
		writeJSON(w, http.StatusOK, st)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	st.Breaker = h.LLM.BreakerState()
	if healthy, err := h.LLM.Health(ctx); err != nil || !healthy {
		st.Status, st.LiteLLM = "degraded", "unreachable"
	}
	code := http.StatusOK
	if st.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}
