// Package server implements the HTTP server that exposes the commerce agent
// via a REST API: catalog search, image search, recommendations, chat, and
// operational endpoints (health, readiness, metrics, prefetch).
// The server is started by the `cagent serve` CLI command.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/commerce-agent/cagent-go/internal/agent"
	"github.com/commerce-agent/cagent-go/internal/logging"
	"github.com/commerce-agent/cagent-go/internal/recommender"
)

// New constructs a Server from the provided agent, recommender service, and
// config.
func New(chatAgent *agent.Agent, service *recommender.Service, cfg *Config) (*Server, error) {
	if chatAgent == nil {
		return nil, fmt.Errorf("server: agent must not be nil")
	}
	if service == nil {
		return nil, fmt.Errorf("server: recommender service must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout covers slow LLM generations on /api/agent/chat.
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxImageBytes == 0 {
		cfg.MaxImageBytes = 8 << 20
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	s := &Server{
		agent:   chatAgent,
		service: service,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(registry),
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/catalog/search", s.instrument("catalog_search", s.handleCatalogSearch))
	mux.Handle("POST /api/catalog/image-search", s.instrument("image_search", s.handleImageSearch))
	mux.Handle("POST /api/recommend", s.instrument("recommend", s.handleRecommend))
	mux.Handle("POST /api/agent/chat", s.instrument("agent_chat", s.handleAgentChat))
	mux.Handle("POST /api/prefetch", s.instrument("prefetch", s.handlePrefetch))
	mux.Handle("GET /api/health", s.instrument("health", s.handleHealth))
	mux.Handle("GET /api/ready", s.instrument("ready", s.handleReady))
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		fmt.Printf("cagent server listening on http://%s\n", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// Handler exposes the configured request handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
