// Package api exposes the engine's HTTP surface: campaign management, the
// tracking endpoints the rendered emails point at, and operational probes.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the router.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.HealthCheck)

	// Tracking endpoints referenced from rendered emails. No auth: the
	// signature in the URL is the credential.
	r.Get("/track/open/{data}/{sig}", h.HandleTrackOpen)
	r.Get("/track/click/{data}/{sig}", h.HandleTrackClick)
	r.Get("/track/unsubscribe/{data}/{sig}", h.HandleUnsubscribe)
	r.Get("/view/{data}/{sig}", h.HandleView)

	r.Route("/api/campaigns", func(r chi.Router) {
		r.Get("/", h.ListCampaigns)
		r.Post("/", h.CreateCampaign)
		r.Get("/{id}", h.GetCampaign)
		r.Put("/{id}", h.UpdateCampaign)
		r.Delete("/{id}", h.DeleteCampaign)
		r.Get("/{id}/stats", h.CampaignStats)
		r.Post("/{id}/schedule", h.ScheduleCampaign)
		r.Post("/{id}/start", h.StartCampaign)
		r.Post("/{id}/pause", h.PauseCampaign)
		r.Post("/{id}/resume", h.ResumeCampaign)
		r.Post("/{id}/cancel", h.CancelCampaign)
	})

	r.Post("/api/templates/{id}/default", h.SetDefaultTemplate)
	r.Delete("/api/lists/{id}", h.DeleteList)

	return r
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
