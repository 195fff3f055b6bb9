// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/mbd888/fraudwatch/internal/auth"
	"github.com/mbd888/fraudwatch/internal/classifier"
	"github.com/mbd888/fraudwatch/internal/config"
	"github.com/mbd888/fraudwatch/internal/logging"
	"github.com/mbd888/fraudwatch/internal/metrics"
	"github.com/mbd888/fraudwatch/internal/ratelimit"
	"github.com/mbd888/fraudwatch/internal/realtime"
	"github.com/mbd888/fraudwatch/internal/security"
	"github.com/mbd888/fraudwatch/internal/simulation"
	"github.com/mbd888/fraudwatch/internal/synth"
	"github.com/mbd888/fraudwatch/internal/transaction"
	"github.com/mbd888/fraudwatch/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	store        transaction.Store
	authMgr      *auth.Manager
	hub          *realtime.Hub
	controller   *simulation.Controller
	generator    *synth.Generator
	rateLimiter  *ratelimit.Limiter
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithStore sets a custom transaction store (for testing)
func WithStore(store transaction.Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

// WithGenerator sets a custom generator (for deterministic tests)
func WithGenerator(gen *synth.Generator) Option {
	return func(s *Server) {
		s.generator = gen
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	// Apply options first (may set store/logger/generator)
	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if s.store == nil && cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		txStore := transaction.NewPostgresStore(db)
		if err := txStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate transaction store", "error", err)
		}
		s.store = txStore
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		authStore := auth.NewPostgresStore(db)
		if err := authStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate auth store", "error", err)
		}
		s.authMgr = auth.NewManager(authStore)
	} else {
		if s.store == nil {
			s.store = transaction.NewMemoryStore()
			s.logger.Info("using in-memory storage (data will not persist)")
		}
		s.authMgr = auth.NewManager(auth.NewMemoryStore())
	}
	s.logger.Info("API authentication enabled")

	// Synthetic transaction generator
	if s.generator == nil {
		s.generator = synth.New()
	}

	// Risk classifier: remote model first when credentials are configured,
	// deterministic rule table otherwise and on every remote failure.
	var remote classifier.Remote
	if cfg.ClassifierAPIKey != "" {
		if err := security.ValidateEndpointURL(cfg.ClassifierAPIURL); err != nil {
			s.logger.Warn("classifier URL failed safety check, remote scoring disabled",
				"url", cfg.ClassifierAPIURL,
				"error", err,
			)
		} else {
			remote = classifier.NewHTTPRemote(cfg.ClassifierAPIURL, cfg.ClassifierAPIKey, cfg.ClassifierModel, cfg.ClassifierTimeout)
			s.logger.Info("remote classifier enabled", "model", cfg.ClassifierModel)
		}
	} else {
		s.logger.Info("no classifier API key set, using rule-based scoring only")
	}
	gateway := classifier.NewGateway(remote, s.logger)

	// Realtime hub authorizes WebSocket clients against the same token store
	s.hub = realtime.NewHub(s.logger, s.authMgr)
	s.logger.Info("realtime streaming enabled")

	// Simulation controller
	s.controller = simulation.NewController(s.store, gateway, s.hub, s.generator, cfg.TickInterval, s.logger)

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limits
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	limiterCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPS > 0 {
		limiterCfg.RequestsPerMinute = s.cfg.RateLimitRPS * 60
		limiterCfg.BurstSize = s.cfg.RateLimitRPS * 2
	}
	s.rateLimiter = ratelimit.New(limiterCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for real-time streaming (token checked before upgrade)
	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	api := s.router.Group("/api")

	// Accounts and tokens
	authHandler := auth.NewHandler(s.authMgr)
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)

	protectedAuth := api.Group("")
	protectedAuth.Use(auth.Middleware(s.authMgr), auth.RequireAuth(s.authMgr))
	{
		protectedAuth.GET("/auth/tokens", authHandler.ListTokens)
		protectedAuth.DELETE("/auth/tokens/:tokenId", authHandler.RevokeToken)
		protectedAuth.GET("/auth/me", authHandler.Me)
	}

	// Aggregate stats carry no per-transaction detail, so they stay public
	// and dashboards can render a summary before login.
	api.GET("/simulation/stats", s.simulationStatsHandler)

	// History, run state, and the control surface require a valid token.
	// Same rule as the WebSocket handshake: authenticate before any records.
	control := api.Group("")
	control.Use(auth.Middleware(s.authMgr), auth.RequireAuth(s.authMgr))
	{
		control.GET("/transactions", s.listTransactionsHandler)
		control.GET("/simulation/status", s.simulationStatusHandler)
		control.POST("/simulation/start", s.startSimulationHandler)
		control.POST("/simulation/stop", s.stopSimulationHandler)
		control.POST("/simulation/incident", s.forceIncidentHandler)
		control.DELETE("/transactions", s.resetHistoryHandler)
	}
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "in-memory"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	for _, v := range checks {
		if v == "unhealthy" {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "fraudwatch",
		"description": "Real-time fraud transaction simulation and scoring",
		"version":     "0.1.0",
	})
}

// listTransactionsHandler returns recent transactions, newest first.
// ?limit= overrides the default, capped at the configured history limit.
func (s *Server) listTransactionsHandler(c *gin.Context) {
	ctx := c.Request.Context()

	limit := s.cfg.HistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := parsePositiveInt(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be a positive integer",
			})
			return
		}
		if n < limit {
			limit = n
		}
	}

	txs, err := s.store.ListRecent(ctx, limit)
	if err != nil {
		logging.L(ctx).Error("failed to list transactions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to fetch transactions",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": txs,
		"count":        len(txs),
	})
}

func (s *Server) simulationStatusHandler(c *gin.Context) {
	st := s.controller.Status()
	c.JSON(http.StatusOK, gin.H{
		"running":      st.Running,
		"tickInterval": st.TickInterval.String(),
		"startedAt":    st.StartedAt,
		"ticks":        st.Ticks,
		"tickFailures": st.TickFailures,
		"incidents":    st.Incidents,
	})
}

func (s *Server) simulationStatsHandler(c *gin.Context) {
	ctx := c.Request.Context()

	counts, err := s.controller.RiskBreakdown(ctx)
	if err != nil {
		logging.L(ctx).Error("failed to count transactions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to compute stats",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"byRiskLevel": counts,
		"simulation":  s.controller.Status(),
		"realtime":    s.hub.Stats(),
	})
}

func (s *Server) startSimulationHandler(c *gin.Context) {
	if err := s.controller.Start(c.Request.Context()); err != nil {
		if errors.Is(err, simulation.ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "already_running",
				"message": "Simulation is already running",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to start simulation",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Simulation started",
		"status":  s.controller.Status(),
	})
}

func (s *Server) stopSimulationHandler(c *gin.Context) {
	if err := s.controller.Stop(); err != nil {
		if errors.Is(err, simulation.ErrNotRunning) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "not_running",
				"message": "Simulation is not running",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to stop simulation",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Simulation stopped",
		"status":  s.controller.Status(),
	})
}

func (s *Server) forceIncidentHandler(c *gin.Context) {
	ctx := c.Request.Context()

	tx, err := s.controller.ForceIncident(ctx)
	if err != nil {
		logging.L(ctx).Error("failed to force incident", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to emit incident",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":     "Incident emitted",
		"transaction": tx,
	})
}

func (s *Server) resetHistoryHandler(c *gin.Context) {
	ctx := c.Request.Context()

	if err := s.controller.ResetHistory(ctx); err != nil {
		logging.L(ctx).Error("failed to reset history", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to reset history",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Transaction history cleared",
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.hub.Run(runCtx)

	// Export DB pool gauges
	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Stop the simulation loop before tearing anything else down so no tick
	// races a closing store or hub.
	if err := s.controller.Stop(); err == nil {
		s.logger.Info("simulation stopped")
	}

	// Cancel the context for background goroutines (hub, collectors)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Controller returns the simulation controller for testing
func (s *Server) Controller() *simulation.Controller {
	return s.controller
}

// AuthManager returns the auth manager for testing
func (s *Server) AuthManager() *auth.Manager {
	return s.authMgr
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

func parsePositiveInt(raw string) (int, error) {
	n := 0
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("not a number: %q", raw)
		}
		n = n*10 + int(r-'0')
		if n > 1_000_000 {
			return 0, fmt.Errorf("too large: %q", raw)
		}
	}
	if n == 0 {
		return 0, fmt.Errorf("must be positive: %q", raw)
	}
	return n, nil
}
