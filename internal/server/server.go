// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
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

	"github.com/fraudguard-io/fraudguard/internal/alerts"
	"github.com/fraudguard-io/fraudguard/internal/config"
	"github.com/fraudguard-io/fraudguard/internal/health"
	"github.com/fraudguard-io/fraudguard/internal/idgen"
	"github.com/fraudguard-io/fraudguard/internal/logging"
	"github.com/fraudguard-io/fraudguard/internal/metrics"
	"github.com/fraudguard-io/fraudguard/internal/ml"
	"github.com/fraudguard-io/fraudguard/internal/pipeline"
	"github.com/fraudguard-io/fraudguard/internal/ratelimit"
	"github.com/fraudguard-io/fraudguard/internal/realtime"
	"github.com/fraudguard-io/fraudguard/internal/rules"
	"github.com/fraudguard-io/fraudguard/internal/scoring"
	"github.com/fraudguard-io/fraudguard/internal/security"
	"github.com/fraudguard-io/fraudguard/internal/streaming"
	"github.com/fraudguard-io/fraudguard/internal/transaction"
	"github.com/fraudguard-io/fraudguard/internal/validation"
)

// Version is reported on the service info and health endpoints.
const Version = "0.1.0"

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Producer is the streaming transport side the server manages.
type Producer interface {
	pipeline.Publisher
	Start(ctx context.Context) error
	Stop() error
	Connected() bool
}

// Consumer is the message-consuming side the server manages.
type Consumer interface {
	Start(ctx context.Context) error
	Stop()
	Running() bool
	Stats() map[string]interface{}
}

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg           *config.Config
	store         transaction.Store
	pipe          *pipeline.Pipeline
	estimator     *ml.Estimator
	producer      Producer
	consumer      Consumer
	hub           *realtime.Hub
	subscriptions alerts.SubscriptionStore
	dispatcher    pipeline.AlertDispatcher
	checks        *health.Registry
	rateLimiter   *ratelimit.Limiter
	db            *sql.DB // nil if using in-memory
	router        *gin.Engine
	httpSrv       *http.Server
	logger        *slog.Logger
	cancelRunCtx  context.CancelFunc // cancels background goroutines started in Run

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

// WithProducer sets a custom streaming producer (for testing)
func WithProducer(p Producer) Option {
	return func(s *Server) {
		s.producer = p
	}
}

// WithConsumer sets a custom streaming consumer (for testing)
func WithConsumer(c Consumer) Option {
	return func(s *Server) {
		s.consumer = c
	}
}

// WithHub sets a custom realtime hub
func WithHub(h *realtime.Hub) Option {
	return func(s *Server) {
		s.hub = h
	}
}

// WithDispatcher sets a custom alert dispatcher (for testing)
func WithDispatcher(d pipeline.AlertDispatcher) Option {
	return func(s *Server) {
		s.dispatcher = d
	}
}

// WithModel sets the fraud model directly instead of loading it from
// the configured path
func WithModel(m ml.Model) Option {
	return func(s *Server) {
		s.estimator = ml.NewEstimator(m)
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}

	// Apply options first (may set store/transport/logger)
	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	// Initialize storage (Postgres when configured, otherwise in-memory)
	if s.store == nil {
		if cfg.Store == "postgres" {
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
			store := transaction.NewPostgresStore(db)
			if err := store.Migrate(ctx); err != nil {
				s.logger.Warn("failed to migrate transaction store", "error", err)
			}
			s.store = store
			s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
		} else {
			s.store = transaction.NewMemoryStore()
			s.logger.Info("using in-memory storage (data will not persist)")
		}
	}

	// Scoring components
	if s.estimator == nil {
		var model ml.Model
		if cfg.ModelPath != "" {
			m, err := ml.LoadLogisticModel(cfg.ModelPath)
			if err != nil {
				s.logger.Warn("failed to load fraud model, scoring falls back to rules only", "path", cfg.ModelPath, "error", err)
			} else {
				model = m
				s.logger.Info("fraud model loaded", "path", cfg.ModelPath, "model", m.Describe())
			}
		}
		s.estimator = ml.NewEstimator(model)
	}
	s.estimator.WithHighRiskCountries(cfg.MLHighRiskCountries)

	evaluator := rules.New().
		WithHighRiskCountries(cfg.HighRiskCountries).
		WithSuspiciousMerchants(cfg.SuspiciousMerchants)

	engine := scoring.NewEngine().
		WithWeights(cfg.RuleWeight, cfg.MLWeight).
		WithThresholds(cfg.BlockThreshold, cfg.ReviewThreshold)

	// Realtime hub for WebSocket alert streaming
	if s.hub == nil {
		s.hub = realtime.NewHub(s.logger).WithMaxClients(cfg.WSMaxClients)
	}

	// Webhook alert sinks
	if s.dispatcher == nil {
		s.subscriptions = alerts.NewMemorySubscriptionStore()
		s.dispatcher = alerts.NewDispatcher(s.subscriptions, s.logger)
		s.logger.Info("webhook alerts enabled")
	}

	// Streaming transport
	if cfg.KafkaEnabled && s.producer == nil {
		s.producer = streaming.NewProducer(cfg.KafkaBrokers, streaming.Topics{
			Transactions: cfg.TransactionsTopic,
			Alerts:       cfg.AlertsTopic,
			Processed:    cfg.ProcessedTopic,
		}, s.logger)
		s.logger.Info("kafka streaming enabled", "brokers", cfg.KafkaBrokers)
	}

	// Processing pipeline
	s.pipe = pipeline.New(s.store, evaluator, s.estimator, engine, s.logger).
		WithBroadcaster(s.hub).
		WithDispatcher(s.dispatcher)
	if s.producer != nil {
		s.pipe.WithPublisher(s.producer)
	}

	// Consumer feeds the pipeline from the inbound topic
	if cfg.KafkaEnabled && s.consumer == nil {
		s.consumer = streaming.NewConsumer(
			cfg.KafkaBrokers,
			cfg.TransactionsTopic,
			cfg.ConsumerGroup,
			s.pipe.HandleMessage,
			s.logger,
		)
	}

	s.registerHealthChecks()

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

func (s *Server) registerHealthChecks() {
	s.checks = health.NewRegistry()

	s.checks.Register("database", func(ctx context.Context) health.Status {
		st := health.Status{Name: "database", Healthy: true}
		if err := s.store.Ping(ctx); err != nil {
			st.Healthy = false
			st.Detail = err.Error()
		}
		return st
	})

	if s.producer != nil {
		s.checks.Register("kafka", func(ctx context.Context) health.Status {
			st := health.Status{Name: "kafka", Healthy: s.producer.Connected()}
			if !st.Healthy {
				st.Detail = "producer not connected"
			}
			return st
		})
	}
	if s.consumer != nil {
		s.checks.Register("consumer", func(ctx context.Context) health.Status {
			st := health.Status{Name: "consumer", Healthy: s.consumer.Running()}
			if !st.Healthy {
				st.Detail = "consumer not running"
			}
			return st
		})
	}
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

	// CORS (allow all origins for the dashboard - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	s.rateLimiter = ratelimit.New(ratelimit.Config{
		RequestsPerMinute: s.cfg.RateLimitRPS * 60,
		BurstSize:         s.cfg.RateLimitBurst,
		CleanupInterval:   time.Minute,
	})
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
			requestID = idgen.Hex(16)
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

	// Service info and the live alert dashboard
	s.router.GET("/", s.rootHandler)
	s.router.GET("/dashboard", dashboardHandler)

	// WebSocket for real-time fraud alerts
	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	// V1 API group
	v1 := s.router.Group("/api/v1")

	v1.POST("/transactions", s.submitTransactionHandler)
	v1.POST("/transactions/batch", s.batchTransactionsHandler)
	v1.GET("/transactions/:id", s.getTransactionHandler)
	v1.GET("/transactions", s.listTransactionsHandler)

	v1.GET("/streaming/status", s.streamingStatusHandler)
	v1.GET("/stats", s.statsHandler)

	// Webhook subscription management
	if s.subscriptions != nil {
		alerts.NewHandler(s.subscriptions).RegisterRoutes(v1)
	}
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
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"env", s.cfg.Env,
			"store", s.cfg.Store,
			"kafka_enabled", s.cfg.KafkaEnabled,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.hub.Run(runCtx)

	// Start streaming transport
	if s.cfg.KafkaEnabled {
		topics := streaming.DefaultTopicConfigs(s.cfg.TransactionsTopic, s.cfg.AlertsTopic, s.cfg.ProcessedTopic)
		if err := streaming.EnsureTopics(runCtx, s.cfg.KafkaBrokers, topics, s.logger); err != nil {
			s.logger.Warn("failed to ensure kafka topics", "error", err)
		}
	}
	if s.producer != nil {
		if err := s.producer.Start(runCtx); err != nil {
			// Lazy start retries on the first publish
			s.logger.Warn("kafka producer not started", "error", err)
		}
	}
	if s.consumer != nil {
		if err := s.consumer.Start(runCtx); err != nil {
			s.logger.Error("failed to start consumer", "error", err)
		}
	}

	// Start DB pool stats collector
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
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

// Shutdown gracefully stops the server: intake off first, then the
// consumer drains its in-flight message, then the transport and hub
// are released, then the HTTP listener closes.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	// Stop consuming (waits for the current message to finish)
	if s.consumer != nil {
		s.consumer.Stop()
		s.logger.Info("consumer drained")
	}

	// Close the producer after the consumer so the final processed
	// results and alerts still go out
	if s.producer != nil {
		if err := s.producer.Stop(); err != nil {
			s.logger.Error("producer close error", "error", err)
		}
	}

	// Cancel the context for background goroutines (hub, collectors)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
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
