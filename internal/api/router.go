package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/raido/internal/projectservice"
)

// NewRouter mounts the project routes behind AuthMiddleware. Live document
// reads are never cached; events is only mounted when sseHandler is set.
func NewRouter(svc *projectservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Group(func(r chi.Router) {
		r.Use(middleware.NoCache)

		r.Get("/projects", h.ListProjects)
		r.Get("/projects/*", h.GetProject)
	})

	// Writes keep their conditional headers (If-Match).
	r.Put("/properties/*", h.SetProperty)
	r.Post("/saves/*", h.SaveProject)
	r.Post("/reloads/*", h.ReloadProject)

	r.Get("/evaluations/*", h.GetEvaluation)
	r.Get("/search", h.Search)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}
	return r
}
