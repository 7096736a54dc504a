// Package server
//
// @title Firerestore API
// @version 1.0
// @description Firestore backup restore wizard API
// @host localhost:8080
// @BasePath /
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/firerestore-dev/firerestore/internal/config"
	"github.com/firerestore-dev/firerestore/internal/gcloud"
	"github.com/firerestore-dev/firerestore/internal/history"
	"github.com/firerestore-dev/firerestore/internal/maintenance"
	"github.com/firerestore-dev/firerestore/internal/models"
	"github.com/firerestore-dev/firerestore/internal/wizard"
)

// Server represents the HTTP server
type Server struct {
	router    *gin.Engine
	db        *gorm.DB
	config    *config.Config
	logger    zerolog.Logger
	validator *validator.Validate
	gateway   *gcloud.Gateway
	wizards   *wizard.Manager
	history   *history.Service
	cookies   *SessionStore
	scheduler *maintenance.Scheduler
	version   string
}

// New creates a new server instance backed by the real CLI tools
func New(cfg *config.Config, zlog zerolog.Logger, version string) (*Server, error) {
	db, err := models.Open(cfg.Database.URL, zlog)
	if err != nil {
		return nil, err
	}
	return newServer(cfg, zlog, version, gcloud.ExecRunner{}, db)
}

func newServer(cfg *config.Config, zlog zerolog.Logger, version string, runner gcloud.Runner, db *gorm.DB) (*Server, error) {
	// Identifier tags are shared with the gateway so handlers reject the same input
	validate := validator.New()
	if err := gcloud.RegisterValidations(validate); err != nil {
		return nil, fmt.Errorf("failed to register validations: %w", err)
	}

	gateway := gcloud.New(runner, gcloud.Options{
		GcloudBinary:  cfg.Gcloud.Binary,
		GsutilBinary:  cfg.Gcloud.GsutilBinary,
		StorageSuffix: cfg.Gcloud.StorageSuffix,
	}, zlog)

	historyService := history.NewService(db, zlog)

	wizards := wizard.NewManager(gateway, historyService, wizard.Options{
		PollInterval:    cfg.Poll.Interval,
		MaxPollFailures: cfg.Poll.MaxFailures,
	}, zlog)

	cookies, err := NewSessionStore(SessionConfig{
		Secret: []byte(cfg.Session.Secret),
		MaxAge: cfg.Session.TTL,
		Secure: cfg.Session.Secure,
	}, zlog)
	if err != nil {
		return nil, err
	}

	scheduler, err := maintenance.New(wizards, historyService, maintenance.Options{
		SessionTTL:       cfg.Session.TTL,
		HistoryRetention: cfg.History.Retention,
		EvictSchedule:    maintenance.DefaultOptions().EvictSchedule,
		PruneSchedule:    maintenance.DefaultOptions().PruneSchedule,
	}, zlog)
	if err != nil {
		return nil, err
	}

	server := &Server{
		db:        db,
		config:    cfg,
		logger:    zlog,
		validator: validate,
		gateway:   gateway,
		wizards:   wizards,
		history:   historyService,
		cookies:   cookies,
		scheduler: scheduler,
		version:   version,
	}

	if err := server.setupRouter(); err != nil {
		return nil, err
	}

	return server, nil
}

// setupRouter configures the Gin router with routes and middleware
func (s *Server) setupRouter() error {
	gin.SetMode(gin.ReleaseMode)

	s.router = gin.New()

	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())

	s.router.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	requests, period, err := config.ParseRate(s.config.Server.RestoreRateLimit)
	if err != nil {
		return err
	}
	restoreLimit := NewRateLimiter(requests, period)

	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", s.metrics)

	api := s.router.Group("/api")
	{
		api.GET("/auth/status", s.getAuthStatus)
		api.GET("/projects", s.listProjects)
		api.GET("/databases", s.listDatabases)
		api.GET("/backups", s.listBackups)
		api.GET("/operations", s.listOperations)

		api.POST("/restore/start", restoreLimit, s.startRestore)
		api.GET("/restore/status", s.getRestoreStatus)

		api.GET("/history", s.listHistory)
		api.GET("/history/:id", s.getHistoryRecord)

		api.GET("/config", s.getConfig)
		api.GET("/system/info", s.getSystemInfo)

		wiz := api.Group("/wizard")
		wiz.Use(s.wizardSessionMiddleware())
		{
			wiz.GET("", s.getWizard)
			wiz.POST("/auth/check", s.checkWizardAuth)
			wiz.POST("/advance", s.advanceWizard)
			wiz.POST("/back", s.backWizard)
			wiz.PUT("/project", s.selectWizardProject)
			wiz.PUT("/database", s.selectWizardDatabase)
			wiz.PUT("/backup", s.selectWizardBackup)
			wiz.PUT("/backup-source", s.setWizardBackupSource)
			wiz.POST("/confirm", restoreLimit, s.confirmWizard)
			wiz.POST("/refresh", s.refreshWizard)
			wiz.POST("/reset", s.resetWizard)
		}
	}
	return nil
}

// loggingMiddleware creates a custom logging middleware using zerolog
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)

		s.logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until SIGINT or SIGTERM
func (s *Server) Start() error {
	addr := s.config.Server.Address

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
		// Confirm waits for the import call to return
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      180 * time.Second,
		ReadHeaderTimeout: 30 * time.Second,
		IdleTimeout:       300 * time.Second,
	}

	s.scheduler.Start()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info().Str("address", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		s.logger.Info().Msg("Received shutdown signal, shutting down gracefully...")
	case err := <-errChan:
		s.logger.Error().Err(err).Msg("HTTP server error")
		s.shutdownBackground()
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	s.logger.Info().Msg("Shutting down HTTP server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down HTTP server")
		return err
	}

	s.shutdownBackground()
	s.logger.Info().Msg("Server shutdown complete")
	return nil
}

// shutdownBackground stops pollers and jobs, then closes the database to flush WAL writes
func (s *Server) shutdownBackground() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.scheduler.Stop(ctx)
	s.wizards.Close()

	s.logger.Info().Msg("Closing database connection...")
	if err := models.Close(s.db); err != nil {
		s.logger.Error().Err(err).Msg("Error closing database")
	} else {
		s.logger.Info().Msg("Database closed successfully")
	}
}
