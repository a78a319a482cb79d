// Package server provides the HTTP server and routing for the deal relay.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/loanops/dealbridge/internal/config"
	"github.com/loanops/dealbridge/internal/database"
	"github.com/loanops/dealbridge/internal/events"
	checklisthandlers "github.com/loanops/dealbridge/internal/modules/checklist/handlers"
	dealshandlers "github.com/loanops/dealbridge/internal/modules/deals/handlers"
	rateshandlers "github.com/loanops/dealbridge/internal/modules/rates/handlers"
	"github.com/loanops/dealbridge/internal/reliability"
)

// Config holds server wiring.
type Config struct {
	Log              zerolog.Logger
	Config           *config.Config
	MirrorDB         *database.DB // nil when running without a data dir
	EventManager     *events.Manager
	ChecklistHandler *checklisthandlers.Handler
	RatesHandler     *rateshandlers.Handler
	DealsHandler     *dealshandlers.Handler
	BackupService    *reliability.BackupService // nil when backups unconfigured
}

// Server is the HTTP server.
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	systemHandlers *SystemHandlers
	eventsHandler  *EventsWSHandler
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		cfg:            cfg.Config,
		systemHandlers: NewSystemHandlers(cfg.Log, cfg.MirrorDB, cfg.BackupService),
		eventsHandler:  NewEventsWSHandler(cfg.EventManager, cfg.Log),
	}

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes(cfg)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", signatureHeader, timestampHeader, portalHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes(cfg Config) {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/hubspot", func(r chi.Router) {
		cfg.ChecklistHandler.RegisterRoutes(r)
		cfg.DealsHandler.RegisterRoutes(r)

		// Rates carry the signed-widget check when a secret is configured.
		r.Group(func(r chi.Router) {
			if s.cfg.SignatureEnabled() {
				r.Use(SignatureMiddleware(s.cfg.SigningSecret, s.cfg.AllowedPortals, s.log))
			}
			cfg.RatesHandler.RegisterRoutes(r)
		})
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/events/ws", s.eventsHandler.ServeHTTP)

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Post("/backup", s.systemHandlers.HandleTriggerBackup)
			r.Get("/backups", s.systemHandlers.HandleListBackups)
		})
	})
}

// handleHealth is the liveness endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ok"}`)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
