// Package api serves a read-only REST view of the import: the merged
// locations and occupants, the connector status and stored runs.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ggeimport/ggeimport/internal/config"
	"github.com/ggeimport/ggeimport/internal/connector"
	"github.com/ggeimport/ggeimport/internal/db"
	intnet "github.com/ggeimport/ggeimport/internal/network"
	"github.com/ggeimport/ggeimport/internal/store"
	"github.com/ggeimport/ggeimport/internal/util"
)

// StatusSource reports the state of the running import.
type StatusSource interface {
	Status() connector.Status
}

// Server is the REST API server.
type Server struct {
	cfg    config.APIConfig
	store  *store.Store
	logger zerolog.Logger

	host      util.HostInfo
	startedAt time.Time
	now       func() time.Time

	mu     sync.Mutex
	status StatusSource
	db     *db.Database

	httpServer *http.Server
	router     *gin.Engine
	listener   net.Listener
}

// NewServer creates a new API server over st.
func NewServer(cfg config.APIConfig, st *store.Store) *Server {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:    cfg,
		store:  st,
		logger: util.ComponentLogger("api"),
		host:   util.DescribeHost(),
		now:    time.Now,
	}
	s.startedAt = s.now()
	s.router = s.buildRouter()
	return s
}

// SetStatusSource attaches the connector of the current run.
func (s *Server) SetStatusSource(src StatusSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = src
}

// SetDatabase attaches the snapshot database for the imports route.
func (s *Server) SetDatabase(d *db.Database) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db = d
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Listen binds the configured port.
func (s *Server) Listen(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	lc := intnet.ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return nil
}

// Serve handles requests until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return fmt.Errorf("API server not listening")
	}
	s.logger.Info().Str("addr", s.listener.Addr().String()).Msg("REST API server starting")

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

// Start binds and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(ctx); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger(s.logger))
	router.Use(SecurityHeaders())

	allowedOrigins := s.cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.Use(NewRateLimiter(s.cfg.RateLimitRPS).Middleware())

	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/info", s.handleGetInfo)
	}

	data := router.Group("/api")
	{
		data.GET("/status", s.handleGetStatus)
		data.GET("/locations", s.handleGetLocations)
		data.GET("/locations/:id", s.handleGetLocation)
		data.GET("/occupants", s.handleGetOccupants)
		data.GET("/export", s.handleGetExport)
		data.GET("/imports", s.handleGetImports)
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "ggeimport API is running"})
	})

	return router
}
