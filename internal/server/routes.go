package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lumenchat/governor/internal/server/handlers"
)

// registerRoutes mounts the operational endpoints outside the governance gate
// and everything else behind it. Health probes must keep answering during
// maintenance mode and under rate-limit pressure.
func (s *Server) registerRoutes(opts Options) {
	if opts.Health != nil {
		s.router.Get("/healthz", opts.Health.Liveness)
		s.router.Get("/readyz", opts.Health.Readiness)
	}
	s.router.Get("/version", handlers.Version(opts.Version))

	upstream := opts.Upstream
	if upstream == nil {
		upstream = http.HandlerFunc(notFoundHandler)
	}

	s.router.Group(func(r chi.Router) {
		if opts.Governor != nil {
			r.Use(opts.Governor.Handler)
		}
		r.Handle("/*", upstream)
	})
}
