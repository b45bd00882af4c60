package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/Bikxs/skafu-core/config"
	"github.com/Bikxs/skafu-core/eventstore"
	"github.com/Bikxs/skafu-core/faults"
	"github.com/Bikxs/skafu-core/messaging"
)

// Server is the HTTP server for the API
type Server struct {
	cfg        config.Config
	router     *gin.Engine
	httpServer *http.Server
	db         *gorm.DB
	store      eventstore.EventStore
	handler    messaging.CommandHandler
	errors     faults.Store
}

// NewServer creates a new API server
func NewServer(cfg config.Config, db *gorm.DB, store eventstore.EventStore, handler messaging.CommandHandler, errors faults.Store) *Server {
	server := &Server{
		cfg:     cfg,
		router:  gin.New(),
		db:      db,
		store:   store,
		handler: handler,
		errors:  errors,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware adds middleware to the router
func (s *Server) setupMiddleware() {
	s.router.Use(RequestIDMiddleware())
	s.router.Use(CorrelationIDMiddleware())

	if s.cfg.CorsEnabled {
		s.router.Use(CORSMiddleware())
	}

	s.router.Use(gin.Recovery())
	s.router.Use(LoggingMiddleware())
}

// setupRoutes defines the API routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")

	v1.POST("/commands", s.submitCommand)

	projectRoutes := v1.Group("/projects")
	{
		projectRoutes.GET("", s.listProjects)
		projectRoutes.GET("/:id", s.getProject)
		projectRoutes.GET("/:id/events", s.getProjectEvents)
	}

	templateRoutes := v1.Group("/templates")
	{
		templateRoutes.GET("", s.listTemplates)
		templateRoutes.GET("/:id", s.getTemplate)
	}

	errorRoutes := v1.Group("/errors")
	{
		errorRoutes.GET("", s.queryErrorWindow)
		errorRoutes.GET("/:correlationId", s.getErrorsByCorrelation)
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.HTTPServerAddress,
		Handler: s.router,
	}

	log.Info().Msgf("HTTP server starting on %s", s.cfg.HTTPServerAddress)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
