// Package server provides the HTTP surface: login and session endpoints,
// tier-gated content, elevated-access administrative routes, and the
// operational endpoints.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clearancehq/tiergate/internal/access"
	"github.com/clearancehq/tiergate/internal/admin"
	"github.com/clearancehq/tiergate/internal/audit"
	"github.com/clearancehq/tiergate/internal/content"
	"github.com/clearancehq/tiergate/internal/credential"
	"github.com/clearancehq/tiergate/internal/observability"
	"github.com/clearancehq/tiergate/internal/ratelimit"
	"github.com/clearancehq/tiergate/internal/session"
)

// SessionCookie is the name of the HTTP-only session cookie.
const SessionCookie = "tiergate_session"

// ginModeOnce ensures gin.SetMode is only called once to avoid race conditions
var ginModeOnce sync.Once

// Config holds configuration for the HTTP server.
type Config struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// SecureCookies marks the session cookie Secure. Disabled only for
	// local development over plain HTTP.
	SecureCookies bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		SecureCookies:   true,
	}
}

// Deps are the collaborators the server routes requests through.
type Deps struct {
	Directory   *credential.Directory
	Credentials *credential.Service
	Sessions    session.Store
	Access      *access.Controller
	Admin       *admin.Validator
	Limits      *ratelimit.Registry
	Content     content.Source
	Audit       audit.Logger
	Logger      observability.Logger

	// SessionTTL is the lifetime of sessions established at login.
	SessionTTL time.Duration
}

// Server is the HTTP server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	config     *Config
	deps       Deps
	logger     observability.Logger

	mu      sync.Mutex
	running bool
}

// New creates the HTTP server and registers all routes.
func New(config *Config, deps Deps) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}
	if deps.Audit == nil {
		deps.Audit = audit.NopLogger()
	}
	if deps.SessionTTL <= 0 {
		deps.SessionTTL = 24 * time.Hour
	}

	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	s := &Server{
		engine: gin.New(),
		config: config,
		deps:   deps,
		logger: deps.Logger,
	}

	s.engine.Use(Recovery(s.logger))
	s.engine.Use(RequestLogging(s.logger))
	s.registerRoutes()

	return s
}

// Engine returns the underlying gin engine. Tests drive it directly.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := s.engine.Group("/auth")
	auth.POST("/login", s.handleLogin)
	auth.POST("/refresh", s.handleRefresh)
	auth.POST("/logout", s.handleLogout)

	s.engine.GET("/content/*slug", s.handleContent)

	adminGroup := s.engine.Group("/admin", s.adminGuard())
	adminGroup.GET("/status", s.handleAdminStatus)
	adminGroup.GET("/sessions/:handle", s.handleAdminSession)
	adminGroup.DELETE("/sessions/:handle", s.handleAdminRevoke)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting HTTP server",
		observability.String("address", addr),
		observability.Duration("readTimeout", s.config.ReadTimeout),
		observability.Duration("writeTimeout", s.config.WriteTimeout),
	)

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop stops the HTTP server gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.logger.Info("stopping HTTP server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("HTTP server stopped")
	return nil
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
