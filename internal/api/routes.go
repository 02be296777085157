package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	// CORS (explicit origins; the dashboard SPA runs on its own host)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://dashboard.civicpulse.io", "http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", h.HealthCheck)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/orgs/{orgID}", func(r chi.Router) {
			r.Get("/kpis", h.GetKPIs)
			r.Get("/rollup/daily", h.GetDailyRollup)
			r.Get("/channels", h.GetChannels)
			r.Get("/snapshots/latest", h.GetLatestSnapshot)
			r.Get("/audit", h.GetAudit)
		})
	})

	return r
}
