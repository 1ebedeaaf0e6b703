package core

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"teamsjira/internal/config"
)

// Server encapsulates the dependencies of the subscription API, allowing
// injection during testing and distinct configuration per environment.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator

	router *chi.Mux
}

// NewServer initializes the router and shared middleware. The caller
// mounts domain routes after construction; this separation lets tests
// customize route registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	s := &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}

	s.router.Use(s.Recoverer)
	s.router.Use(RequestID)
	s.router.Use(s.RequestLogger)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, r, http.StatusOK, APIResponse{Data: map[string]string{"status": "ok"}})
	})

	return s, nil
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}
