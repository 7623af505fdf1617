// Package server wires the governance middleware chain around the HTTP
// surface. Business routes are a pluggable upstream handler; this service
// only decides whether a request gets to reach them.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lumenchat/governor/internal/httperr"
	"github.com/lumenchat/governor/internal/server/handlers"
	servermw "github.com/lumenchat/governor/internal/server/middleware"
)

// Options collects everything the server needs; all governance state is
// constructed by the caller and injected, never reached through globals.
type Options struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	Logger   *zap.Logger
	Governor *servermw.Governor
	Health   *handlers.Health
	Version  handlers.VersionInfo

	// Upstream receives every request the governance gate passes. Nil means
	// no business backend is mounted and governed routes answer 404.
	Upstream http.Handler
}

// Server is the governance gateway's HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	host   string
	port   int
	logger *zap.Logger
}

// New assembles the router and middleware chain.
func New(opts Options) *Server {
	r := chi.NewRouter()

	// Order matters: correlation first, then logging, then recovery so a
	// panic line still carries the request ID.
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestLogger(opts.Logger))
	r.Use(servermw.Recovery(opts.Logger))

	s := &Server{
		router: r,
		host:   opts.Host,
		port:   opts.Port,
		logger: opts.Logger,
	}

	s.registerRoutes(opts)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Handler:      r,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  opts.IdleTimeout,
	}

	return s
}

// Start begins serving and blocks until the listener closes.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		zap.String("host", s.host),
		zap.Int("port", s.port))
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	httperr.Respond(w, http.StatusNotFound,
		httperr.NotFound("no backend mounted for this route"),
		servermw.GetRequestID(r.Context()))
}
