// Package api wires the factory's HTTP surface: run submission, execution
// status, and observability endpoints.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/edvin/accountfactory/internal/api/handler"
	mw "github.com/edvin/accountfactory/internal/api/middleware"
)

type Server struct {
	router  chi.Router
	logger  zerolog.Logger
	account *handler.Account
}

// NewServer builds the router for the factory API.
func NewServer(logger zerolog.Logger, starter handler.WorkflowStarter, accounts handler.AccountLookup, temporal handler.ExecutionDescriber) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		logger:  logger,
		account: handler.NewAccount(starter, accounts, temporal, logger),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/accounts", s.account.Create)
		r.Get("/accounts/{name}/availability", s.account.NameAvailability)
		r.Get("/executions/{id}", s.account.ExecutionStatus)
	})
}

func (s *Server) Handler() http.Handler {
	return s.router
}
