package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	})

	// All API routes require Basic auth (a no-op when no credentials are
	// configured).
	r.Route("/api", func(r chi.Router) {
		r.Use(apiHandler.BasicAuthMiddleware)

		r.Get("/auth/check", apiHandler.AuthCheckHandler)
		r.Get("/sync", apiHandler.SyncHandler)

		r.Post("/books/upsert", apiHandler.UpsertBookHandler)
		r.Post("/books/delete", apiHandler.DeleteBookHandler)
		r.Post("/progress/append", apiHandler.AppendProgressHandler)

		r.Get("/recommendations/local", apiHandler.LocalRecommendationsHandler)
		r.Post("/ai/recommendations", apiHandler.GenerateRecommendationsHandler)
		r.Get("/ai/recommendations/last", apiHandler.LastRecommendationsHandler)
	})

	return r
}
