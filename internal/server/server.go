// Package server implements the HTTP API facade: session/turn/step CRUD,
// cancellation, permission resolution, file/context artifacts, event replay,
// and SSE streaming with resume. Built on the chi router, go-chi/cors, and
// middleware stack, routed around a session/turn/step/event domain model.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/opencode-ai/opencode/internal/eventbus"
	"github.com/opencode-ai/opencode/internal/permission"
	"github.com/opencode-ai/opencode/internal/scheduler"
	"github.com/opencode-ai/opencode/internal/store"
)

// Config holds server configuration.
type Config struct {
	Addr              string
	AllowedRoot       string
	EnableCORS        bool
	ReadTimeout       time.Duration
	SSEHeartbeat      time.Duration
	PermissionTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:              ":8080",
		EnableCORS:        true,
		ReadTimeout:       30 * time.Second,
		SSEHeartbeat:      30 * time.Second,
		PermissionTimeout: 2 * time.Minute,
	}
}

// Server is the HTTP API facade.
type Server struct {
	cfg         *Config
	router      *chi.Mux
	httpSrv     *http.Server
	store       *store.Store
	bus         *eventbus.Bus
	permissions *permission.Gate
	scheduler   *scheduler.Scheduler
}

// New builds a Server wired to the given components.
func New(cfg *Config, st *store.Store, bus *eventbus.Bus, permissions *permission.Gate, sched *scheduler.Scheduler) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Server{
		cfg:         cfg,
		router:      chi.NewRouter(),
		store:       st,
		bus:         bus,
		permissions: permissions,
		scheduler:   sched,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(securityHeaders)

	if s.cfg.EnableCORS {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Last-Event-Id", "X-Request-ID"},
			ExposedHeaders:   []string{"Link", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// securityHeaders sets the Content-Security-Policy and nosniff headers on
// every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux { return s.router }

// Start runs the HTTP server until it errors or is shut down.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:        s.cfg.Addr,
		Handler:     s.router,
		ReadTimeout: s.cfg.ReadTimeout,
		// SSE connections are long-lived; no write timeout.
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
