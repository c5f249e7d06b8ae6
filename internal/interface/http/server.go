// Package http is the bot's network surface: the webhook the chat transport
// bridge posts inbound messages to, plus health and Prometheus endpoints.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/classroll/classroll-bot/internal/infrastructure/metrics"
	"github.com/classroll/classroll-bot/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// JWTSecret signs bridge tokens; empty disables webhook auth.
	JWTSecret string

	// JWTIssuer is checked when set.
	JWTIssuer string

	// Mode is the gin mode: debug, release or test.
	Mode string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		JWTIssuer:    "classroll-bridge",
		Mode:         gin.ReleaseMode,
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains everything the handlers need.
type Dependencies struct {
	Router  handlers.Dispatcher
	Health  *handlers.CompositeHealthChecker
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server wraps a gin engine and its http.Server.
type Server struct {
	config     Config
	engine     *gin.Engine
	httpServer *http.Server
	logger     *zap.Logger

	mu      sync.Mutex
	running bool
}

// NewServer builds the engine and registers routes.
func NewServer(config Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Health == nil {
		deps.Health = handlers.NewCompositeHealthChecker("")
	}
	log := deps.Logger.Named("http")

	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	engine := gin.New()
	engine.Use(
		handlers.RequestID(),
		handlers.Recovery(log),
		handlers.AccessLog(log, deps.Metrics),
	)

	engine.GET("/healthz", handlers.Health(deps.Health))
	engine.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	v1 := engine.Group("/v1", handlers.BearerAuth(config.JWTSecret, config.JWTIssuer))
	v1.POST("/messages", handlers.Messages(deps.Router, log))

	return &Server{
		config: config,
		engine: engine,
		httpServer: &http.Server{
			Addr:         config.Address(),
			Handler:      engine,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		logger: log,
	}
}

// Handler returns the engine, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", zap.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Address returns the server address.
func (s *Server) Address() string {
	return s.config.Address()
}
