package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", s.Health)

	// The stream outlives any request timeout.
	r.Get("/ws/{jobID}", s.Stream)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Logger)
		if s.cfg.Server.ReadTimeout > 0 {
			r.Use(chimiddleware.Timeout(s.cfg.Server.ReadTimeout))
		}

		r.Post("/process", s.Process)
		r.Route("/jobs/{jobID}", func(r chi.Router) {
			r.Get("/document", s.Document)
			r.Get("/deck", s.Deck)
			r.Post("/pages/{page}/images", s.AppendImage)
		})
	})

	return r
}
