package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opsgate/sapguard/internal/config"
)

// MountRoutes registers all API routes on the given chi router. wsHandler may
// be nil when the streaming surface is disabled.
func MountRoutes(r chi.Router, h *Handlers, cfg config.Config, wsHandler http.HandlerFunc) {
	r.Get("/health", h.Health)

	if wsHandler != nil {
		r.Get("/ws", wsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(APIKeyAuth(cfg.Auth.APIKeyHashes))

		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"service":"sapguard","version":"0.1.0"}`))
		})

		// Conversations
		r.Post("/conversations", h.CreateConversation)
		r.Get("/conversations/{id}", h.GetConversation)
		r.Get("/conversations/{id}/messages", h.ListMessages)
		r.Post("/conversations/{id}/messages", h.SendMessage)

		// Plans and confirmations
		r.Post("/plans", h.SubmitPlan)
		r.Post("/confirmations/{id}/confirm", h.ConfirmExecution)
		r.Post("/confirmations/{id}/cancel", h.CancelExecution)

		// Capability surface
		r.Get("/capabilities", h.ListCapabilities)
	})
}
