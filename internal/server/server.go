// Package server provides the HTTP API for the recommender.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/spigell/shl-recommender/internal/logger"
	"github.com/spigell/shl-recommender/internal/metrics"
	"github.com/spigell/shl-recommender/internal/recommender"
)

// Recommender is the engine surface served over HTTP.
type Recommender interface {
	Recommend(ctx context.Context, req recommender.Request) (*recommender.Response, error)
	Rebuild(ctx context.Context) error
	Stats() recommender.Stats
}

// Config holds listener and request handling settings.
type Config struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request-timeout"`
	CORSOrigins    []string      `mapstructure:"cors-origins"`
}

// Server is the HTTP server for the recommender API.
type Server struct {
	engine  Recommender
	metrics *metrics.Metrics
	config  Config
	logger  *zap.Logger
	server  *http.Server
}

func New(engine Recommender, m *metrics.Metrics, cfg Config, log *zap.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		engine:  engine,
		metrics: m,
		config:  cfg,
		logger:  logger.OrNop(log),
	}
	s.server = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler builds the router with every route and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", s.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.config.RequestTimeout))
		r.Post("/recommend", s.handleRecommend)
		r.Post("/admin/reindex", s.handleReindex)
	})

	return r
}

// Start serves until Stop is called. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen %s: %w", s.server.Addr, err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
