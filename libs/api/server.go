package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server is the scheduler's HTTP surface: subscription lifecycle and
// administration, fronted by the same middleware stack regardless of route.
type Server struct {
	config   *Config
	router   *gin.Engine
	server   *http.Server
	logger   *zap.Logger
	handlers *Handlers
	ctx      context.Context
	cancel   context.CancelFunc
}

// Config holds the API server configuration.
type Config struct {
	Host string
	Port int

	TLSCertFile string
	TLSKeyFile  string

	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	EnableRateLimit bool
	RateLimit       int

	EnableCORS     bool
	AllowedOrigins []string

	EnableMetrics bool
	MetricsPath   string
}

// DefaultConfig returns a default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            8080,
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		EnableRateLimit: true,
		RateLimit:       100,
		EnableCORS:      true,
		AllowedOrigins:  []string{"*"},
		EnableMetrics:   true,
		MetricsPath:     "/metrics",
	}
}

// NewServer creates a new API server instance.
func NewServer(config *Config, handlers *Handlers, logger *zap.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(correlationIDMiddleware())
	router.Use(loggingMiddleware(logger))
	router.Use(principalMiddleware())
	router.Use(timeoutMiddleware(config.RequestTimeout))

	if config.EnableCORS {
		router.Use(corsMiddleware(config.AllowedOrigins))
	}
	if config.EnableRateLimit {
		router.Use(rateLimitMiddleware(config.RateLimit))
	}

	server := &Server{
		config:   config,
		router:   router,
		logger:   logger,
		handlers: handlers,
		ctx:      ctx,
		cancel:   cancel,
	}
	server.setupRoutes()

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      router,
		ReadTimeout:  config.RequestTimeout,
		WriteTimeout: config.RequestTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return server
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ready", s.handleReady)

	if s.config.EnableMetrics {
		s.router.GET(s.config.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	v1 := s.router.Group("/api/v1")
	{
		subs := v1.Group("/subscriptions")
		subs.Use(requireRole())
		{
			subs.POST("", s.handlers.CreateSubscription)
			subs.GET("/:sub_id", s.handlers.GetSubscription)
			subs.POST("/:sub_id/pause", s.handlers.PauseSubscription)
			subs.POST("/:sub_id/resume", s.handlers.ResumeSubscription)
			subs.DELETE("/:sub_id", s.handlers.CancelSubscription)
			subs.GET("/by-principal/:principal", s.handlers.ListSubscriptionsByPrincipal)
		}

		v1.GET("/ping", s.handlers.Ping)
		v1.GET("/canister-health", s.handlers.GetCanisterHealth)

		admin := v1.Group("/admin")
		admin.Use(requireRole())
		{
			admin.POST("/init", s.handlers.InitializeFirstAdmin)
			admin.POST("/admins", s.handlers.AddAdmin)
			admin.DELETE("/admins", s.handlers.RemoveAdmin)
			admin.POST("/readers", s.handlers.AddReader)
			admin.DELETE("/readers", s.handlers.RemoveReader)

			admin.GET("/cycles", s.handlers.GetCycleStatus)
			admin.PUT("/cycles/threshold", s.handlers.SetCycleThreshold)
			admin.PUT("/cycles/auto-refill", s.handlers.EnableAutoRefill)
			admin.POST("/cycles/refill", s.handlers.RefillCyclesFromFees)

			admin.POST("/emergency/pause-all", s.handlers.EmergencyPauseAll)
			admin.POST("/emergency/resume", s.handlers.ResumeOperations)

			admin.POST("/fee-address/propose", s.handlers.ProposeFeeAddressChange)
			admin.POST("/fee-address/execute", s.handlers.ExecuteFeeAddressChange)
			admin.POST("/fee-address/cancel", s.handlers.CancelFeeAddressProposal)
			admin.GET("/fee-address/pending", s.handlers.PendingFeeProposal)

			admin.POST("/withdraw/sol", s.handlers.AdminWithdrawSOL)
			admin.POST("/withdraw/token", s.handlers.AdminWithdrawToken)

			admin.PUT("/subscriptions/:sub_id/addresses", s.handlers.UpdateSubscriptionAddresses)
		}
	}
}

// Start starts the API server.
func (s *Server) Start() error {
	addr := s.server.Addr
	s.logger.Info("starting API server",
		zap.String("address", addr),
		zap.Bool("tls", s.config.TLSCertFile != ""),
		zap.Bool("metrics", s.config.EnableMetrics),
	)

	if s.config.TLSCertFile != "" && s.config.TLSKeyFile != "" {
		return s.server.ListenAndServeTLS(s.config.TLSCertFile, s.config.TLSKeyFile)
	}
	return s.server.ListenAndServe()
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info("stopping API server")
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "scheduler-api",
		"time":    nowUnix(),
	})
}

func (s *Server) handleReady(c *gin.Context) {
	if s.handlers == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "handlers not initialized",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ready",
		"service": "scheduler-api",
		"time":    nowUnix(),
	})
}

// Address returns the server's listening address.
func (s *Server) Address() string {
	return s.server.Addr
}

// Context returns the server's context.
func (s *Server) Context() context.Context {
	return s.ctx
}

// Router returns the server's Gin router, for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}
