// Package server exposes question answering, pipeline runs and the current
// highlights over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"headlines/internal/config"
	"headlines/internal/core"
	"headlines/internal/logger"
	"headlines/internal/pipeline"
	"headlines/internal/vectorstore"
)

// QuestionAnswerer answers a question from the indexed highlights
type QuestionAnswerer interface {
	Answer(ctx context.Context, question string) (*core.Answer, error)
}

// Processor runs the highlight pipeline
type Processor interface {
	Process(ctx context.Context, opts pipeline.Options) (*pipeline.Result, error)
}

// IndexStats reports collection sizes for health checks
type IndexStats interface {
	Collections(ctx context.Context) ([]vectorstore.CollectionInfo, error)
}

// Dependencies are the components the handlers call into
type Dependencies struct {
	Answerer      QuestionAnswerer
	Processor     Processor
	Index         IndexStats
	ClassifiedCSV string
	HighlightsCSV string
}

// Server represents the HTTP server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	deps       Dependencies
	config     config.Server
	log        *slog.Logger

	// Only one pipeline run at a time
	processing sync.Mutex
}

// New creates a new HTTP server instance. A nil log discards output.
func New(deps Dependencies, cfg config.Server, log *slog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		deps:   deps,
		config: cfg,
		log:    logger.OrDiscard(log).With("component", "server"),
	}

	s.setupMiddleware()
	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// setupMiddleware configures middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	origins := s.config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

// setupRoutes configures routes for the server
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(noCache)
		r.Post("/chat", s.handleChat)
		r.Post("/process", s.handleProcess)
		r.Get("/highlights", s.handleHighlights)
		r.Get("/articles", s.handleArticles)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info("Starting HTTP server",
		"addr", s.httpServer.Addr,
		"read_timeout", s.config.ReadTimeout,
		"write_timeout", s.config.WriteTimeout,
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server gracefully...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.log.Info("HTTP server stopped")
	return nil
}

// Router returns the chi router instance (useful for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}
