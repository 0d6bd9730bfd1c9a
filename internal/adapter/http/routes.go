package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the API routes on r. ws, when non-nil, serves the
// live event websocket.
func MountRoutes(r chi.Router, h *Handlers, ws http.HandlerFunc) {
	r.Get("/health", h.Health)
	if ws != nil {
		r.Get("/ws", ws)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		r.Route("/forms/{formID}", func(r chi.Router) {
			r.Get("/", h.GetForm)
			r.Post("/generate", h.Generate)
			r.Get("/events", h.Events)
			r.Get("/snapshot", h.Snapshot)
		})
	})
}
