package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/examtile/examtile/internal/analyze"
	"github.com/examtile/examtile/internal/api"
	"github.com/examtile/examtile/internal/config"
	"github.com/examtile/examtile/internal/home"
	"github.com/examtile/examtile/internal/ingest"
	"github.com/examtile/examtile/internal/prompts"
	"github.com/examtile/examtile/internal/providers"
	"github.com/examtile/examtile/internal/ratelimit"
	"github.com/examtile/examtile/internal/server/endpoints"
	"github.com/examtile/examtile/internal/svcctx"
)

// Server is the examtile HTTP server.
// Analyses share one analyzer, so every upload is paced by the same
// rate limiter and runs one after another.
type Server struct {
	httpServer *http.Server
	registry   *providers.Registry
	analyzer   *analyze.Analyzer
	configMgr  *config.Manager
	home       *home.Dir
	logger     *slog.Logger

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	// baseCancel stops in-flight analyses on shutdown.
	baseCancel context.CancelFunc

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: server.host, then 127.0.0.1)
	Host string
	// Port is the port to listen on (default: server.port, then 8080)
	Port string
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// AppConfig is used when there is no ConfigManager.
	AppConfig *config.Config
	// Home holds run directories and call logs. Nil disables both.
	Home *home.Dir
	// Renderer draws PDF pages (default: pdftoppm)
	Renderer ingest.Renderer
	// Clock paces inference requests (default: wall clock)
	Clock ratelimit.Clock
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	appCfg := cfg.AppConfig
	if cfg.ConfigManager != nil {
		appCfg = cfg.ConfigManager.Get()
	}
	if appCfg == nil {
		appCfg = config.DefaultConfig()
	}
	if cfg.Host == "" {
		cfg.Host = appCfg.Server.Host
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = appCfg.Server.Port
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}

	renderer := cfg.Renderer
	if renderer == nil {
		renderer = &ingest.Pdftoppm{}
	}

	// Create provider registry
	registry := providers.NewRegistry()
	registry.SetLogger(cfg.Logger)
	if err := registry.Reload(context.Background(), appCfg.ProviderConfigs()); err != nil {
		cfg.Logger.Warn("some providers could not be loaded", "error", err)
	}

	resolver := prompts.NewResolver(cfg.Logger)
	analyzer := analyze.New(analyze.Options{
		Config:     appCfg,
		Registry:   registry,
		Prompts:    resolver,
		Rasterizer: ingest.NewRasterizer(ingest.Config{Renderer: renderer, Logger: cfg.Logger}),
		Home:       cfg.Home,
		Clock:      cfg.Clock,
		Logger:     cfg.Logger,
	})

	// Watch for config changes
	if cfg.ConfigManager != nil {
		cfg.ConfigManager.OnChange(func(c *config.Config) {
			if err := registry.Reload(context.Background(), c.ProviderConfigs()); err != nil {
				cfg.Logger.Warn("provider registry reload incomplete", "error", err)
			}
			analyzer.SetConfig(c)
			cfg.Logger.Info("analyzer reloaded from config")
		})
	}

	s := &Server{
		registry:  registry,
		analyzer:  analyzer,
		configMgr: cfg.ConfigManager,
		home:      cfg.Home,
		logger:    cfg.Logger,
	}
	s.services = &svcctx.Services{
		Analyzer:      analyzer,
		Registry:      registry,
		ConfigManager: cfg.ConfigManager,
		Prompts:       resolver,
		Logger:        cfg.Logger,
		Home:          cfg.Home,
	}

	var rendererCheck func() error
	if a, ok := renderer.(interface{ Available() error }); ok {
		rendererCheck = a.Available
	}
	addr := net.JoinHostPort(cfg.Host, cfg.Port)

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = endpoints.Registry(endpoints.Config{RendererCheck: rendererCheck, SwaggerHost: addr})

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	baseCtx, baseCancel := context.WithCancel(context.Background())
	s.baseCancel = baseCancel
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.withServices(mux),
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start starts the server.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if s.home != nil {
		if err := s.home.EnsureExists(); err != nil {
			s.setNotRunning()
			return fmt.Errorf("failed to create home directory: %w", err)
		}
	}
	if err := s.analyzer.Config().Validate(); err != nil {
		// The server still starts so the configuration can be inspected;
		// analyses are refused until it is fixed.
		s.logger.Warn("configuration incomplete", "error", err)
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			s.setNotRunning()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown cancels in-flight analyses, which end their streams with a
// canceled event, then waits for connections to drain.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")
	s.baseCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Registry returns the provider registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

// Analyzer returns the shared analyzer.
func (s *Server) Analyzer() *analyze.Analyzer {
	return s.analyzer
}

// Handler returns the server's HTTP handler with services attached.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server's services exist.
// Returns 503 Service Unavailable otherwise.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.services == nil || s.services.Analyzer == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
