package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/state", s.handleState)
		r.Get("/journal", s.handleListJournal)

		r.Post("/subscribe", s.handleSubscribe)
		r.Post("/report/raw", s.handleReportRaw)

		r.Route("/telemetry", func(r chi.Router) {
			r.Post("/chunks", s.handleAppendTelemetry)
			r.Post("/flush", s.handleFlushTelemetry)
		})
	})

	return r
}
