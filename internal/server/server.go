// Package server provides the HTTP API for the tutor.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/tutor/internal/config"
	"github.com/hyperjump/tutor/internal/embedding"
	"github.com/hyperjump/tutor/internal/kb"
	"github.com/hyperjump/tutor/internal/models"
)

// Answerer answers one question. image is base64, a data: URL, an http(s) URL or empty.
type Answerer interface {
	AnswerQuestion(ctx context.Context, question, image string) (*models.AnswerResult, error)
}

// Server is the HTTP server for the tutor API.
type Server struct {
	answerer Answerer
	kb       *kb.Manager
	config   *config.Config
	embedder string
	logger   *zap.Logger
	server   *http.Server

	cacheStats func() embedding.CacheStats
}

// NewServer creates a server. embedderName is reported by the status endpoint.
func NewServer(answerer Answerer, manager *kb.Manager, cfg *config.Config, embedderName string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		answerer: answerer,
		kb:       manager,
		config:   cfg,
		embedder: embedderName,
		logger:   logger,
	}
}

// ReportCache adds the question embedding cache counters to the status endpoint.
func (s *Server) ReportCache(stats func() embedding.CacheStats) {
	s.cacheStats = stats
}

// Handler returns the router with all routes and middleware.
func (s *Server) Handler() http.Handler {
	timeout := s.config.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5))

	r.Post("/", s.handleAsk)
	r.Post("/api/v1/ask", s.handleAsk)
	r.Get("/health", s.handleHealth)
	r.Get("/api/v1/status", s.handleStatus)
	r.Post("/api/v1/reload", s.handleReload)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)))
	})
}
