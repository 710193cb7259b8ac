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

	// CORS - the tracking snippet and the dashboard run on other origins
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://app.clientflow.io", "http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (no auth required)
	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		// Event ingestion - the tracking snippet posts here
		r.Post("/events", h.IngestEvent)

		// Session records
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.ListSessions)
			r.Get("/{sessionID}", h.GetSession)
		})

		// Analysis endpoints
		r.Route("/analytics", func(r chi.Router) {
			r.Post("/dropoff", h.AnalyzeDropOff)
			r.Post("/compare", h.CompareJourneys)
			r.Get("/pairs", h.FindPairs)
		})

		// Realtime dashboard feed
		r.Get("/realtime/metrics", h.RealtimeMetrics)

		// Alert management
		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", h.ListAlerts)
			r.Post("/{alertID}/ack", h.AcknowledgeAlert)
			r.Get("/thresholds", h.ListThresholds)
			r.Put("/thresholds", h.PutThreshold)
			r.Delete("/thresholds/{thresholdID}", h.DeleteThreshold)
		})
	})

	return r
}
