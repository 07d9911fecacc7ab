package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// Unified agent entry point for all channels. Bearer auth only
		// when a JWT secret is configured.
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.AuthMiddleware)
			r.Post("/agent", apiHandler.AgentHandler)
		})

		// Green API cannot attach bearer tokens; the webhook stays open.
		r.Post("/webhooks/greenapi", apiHandler.GreenAPIWebhookHandler)
	})

	return r
}
