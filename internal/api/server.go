// Package api provides the PaathGuide REST API server.
package api

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/FocuswithJustin/PaathGuide/core/corpus"
	"github.com/FocuswithJustin/PaathGuide/internal/loader"
	"github.com/FocuswithJustin/PaathGuide/internal/logging"
	"github.com/FocuswithJustin/PaathGuide/internal/server"
	"github.com/FocuswithJustin/PaathGuide/internal/store"
)

// Version is reported by the root and health endpoints.
const Version = "0.1.0"

// Server serves the verse corpus over HTTP. All dependencies are injected
// explicitly; there is no ambient database session or global state to
// configure, which keeps handlers testable against an in-memory corpus.
type Server struct {
	cfg       Config
	corpus    *corpus.Corpus
	repo      *store.Repository
	loader    *loader.Loader
	hub       *Hub
	jobs      *JobStore
	startTime time.Time
}

// New creates a server around the given corpus, repository and loader.
func New(cfg Config, c *corpus.Corpus, repo *store.Repository, ldr *loader.Loader) *Server {
	return &Server{
		cfg:       cfg.withDefaults(),
		corpus:    c,
		repo:      repo,
		loader:    ldr,
		hub:       NewHub(cfg.AllowedOrigins),
		jobs:      NewJobStore(),
		startTime: time.Now(),
	}
}

// Start validates the configuration and serves until the listener fails.
func (s *Server) Start() error {
	// Validate authentication configuration
	if err := ValidateAuthConfig(s.cfg.Auth); err != nil {
		return fmt.Errorf("invalid auth config: %w", err)
	}

	// Validate TLS configuration if enabled
	if s.cfg.TLS.Enabled {
		if s.cfg.TLS.CertFile == "" || s.cfg.TLS.KeyFile == "" {
			return fmt.Errorf("TLS enabled but cert or key file not specified")
		}
		if _, err := os.Stat(s.cfg.TLS.CertFile); err != nil {
			return fmt.Errorf("TLS cert file not found: %w", err)
		}
		if _, err := os.Stat(s.cfg.TLS.KeyFile); err != nil {
			return fmt.Errorf("TLS key file not found: %w", err)
		}
	}

	go s.hub.Run()

	// Log server startup with appropriate protocol
	protocol := "http"
	wsProtocol := "ws"
	if s.cfg.TLS.Enabled {
		protocol = "https"
		wsProtocol = "wss"
		logging.Info("TLS enabled", "cert_file", s.cfg.TLS.CertFile)
	} else {
		logging.Warn("TLS disabled - using plain HTTP",
			"recommendation", "consider using TLS or reverse proxy for production")
	}
	logging.ServerStartup("rest_api", protocol, s.cfg.Port,
		"websocket_protocol", wsProtocol,
		"verses", s.corpus.Len())

	handler := s.Handler()

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	if s.cfg.TLS.Enabled {
		return http.ListenAndServeTLS(addr, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile, handler)
	}
	return http.ListenAndServe(addr, handler)
}

// Handler builds the full middleware chain around the route mux. Exposed
// so tests can drive the API through httptest without a listener.
func (s *Server) Handler() http.Handler {
	mux := s.setupRoutes()

	// Build middleware chain with security headers
	cspConfig := server.APICSPConfig()
	var handler http.Handler = server.SecurityHeadersWithCSP(cspConfig, mux)

	// Apply authentication middleware if configured
	if s.cfg.Auth.Enabled {
		handler = AuthMiddleware(s.cfg.Auth, handler)
		logging.SecurityEvent("authentication_configured", "api",
			"enabled", true,
			"note", "API key required")
	} else {
		logging.SecurityEvent("authentication_configured", "api",
			"enabled", false,
			"note", "all requests allowed")
	}

	// Apply rate limiting if configured
	if s.cfg.RateLimitRequests > 0 {
		rateLimitConfig := RateLimiterConfig{
			RequestsPerMinute: s.cfg.RateLimitRequests,
			BurstSize:         s.cfg.RateLimitBurst,
		}
		if rateLimitConfig.BurstSize == 0 {
			rateLimitConfig.BurstSize = 10 // Default burst size
		}
		rateLimiter := NewRateLimiter(rateLimitConfig)
		handler = rateLimiter.Middleware(handler)
		logging.Info("rate limiting enabled",
			"requests_per_minute", rateLimitConfig.RequestsPerMinute,
			"burst_size", rateLimitConfig.BurstSize)
	}

	// Apply CORS middleware (outermost)
	corsConfig := server.CORSConfig{
		AllowedOrigins: s.cfg.AllowedOrigins,
	}
	handler = server.CORSMiddlewareWithConfig(corsConfig, handler)

	// Apply logging middleware
	return logging.CombinedMiddleware(handler)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/verses", s.handleVerses)
	mux.HandleFunc("/verses/", s.handleVerseSubpath)
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/fuzzy-search", s.handleFuzzySearch)
	mux.HandleFunc("/pages/", s.handlePage)
	mux.HandleFunc("/random", s.handleRandom)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/admin/load", s.handleLoad)
	mux.HandleFunc("/admin/clear", s.handleClear)
	mux.HandleFunc("/jobs/", s.handleJobByID)
	mux.HandleFunc("/ws", s.handleWebSocket)

	return mux
}
