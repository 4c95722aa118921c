// Package api wires together all HTTP routes for the messaging gateway.
//
// Route grouping:
//   - System routes (/health, /ready, /version) are unauthenticated and sit outside the
//     versioned API so load balancers can probe them without credentials.
//   - Everything under /api/v1/ is declared in the route table (routes.go). Each entry
//     carries one auth.Operation and every guard in the chain reads from it, so a route's
//     access requirements live in exactly one place.
package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/msgcore/msgcore-sub001/internal/api/handlers"
	"github.com/msgcore/msgcore-sub001/internal/audit"
	"github.com/msgcore/msgcore-sub001/internal/auth"
	"github.com/msgcore/msgcore-sub001/internal/auth/oidc"
	"github.com/msgcore/msgcore-sub001/internal/config"
	"github.com/msgcore/msgcore-sub001/internal/crypto"
	"github.com/msgcore/msgcore-sub001/internal/db"
	"github.com/msgcore/msgcore-sub001/internal/db/repositories"
	"github.com/msgcore/msgcore-sub001/internal/jobs"
	"github.com/msgcore/msgcore-sub001/internal/middleware"
	"github.com/msgcore/msgcore-sub001/internal/queue"
	"github.com/msgcore/msgcore-sub001/internal/services"
	"github.com/redis/go-redis/v9"
)

// Version is reported by /version
const Version = "0.1.0"

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	retentionJob  *jobs.RetentionJob
	rateLimiters  []*middleware.RateLimiter
	auditRecorder *audit.Recorder
	publisher     queue.Publisher
	redisClient   *redis.Client
}

// Shutdown stops all background goroutines and closes broker and cache connections.
// It should be called after the HTTP server has been shut down so that in-flight
// requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.retentionJob != nil {
		bg.retentionJob.Stop()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.auditRecorder != nil {
		if err := bg.auditRecorder.Close(); err != nil {
			slog.Warn("failed to close audit recorder", "error", err)
		}
	}
	if bg.publisher != nil {
		if err := bg.publisher.Close(); err != nil {
			slog.Warn("failed to close queue publisher", "error", err)
		}
	}
	if bg.redisClient != nil {
		if err := bg.redisClient.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, database *sql.DB) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()
	bg := &BackgroundServices{}

	// Initialize repositories. Row-mapped repositories share the pool through sqlx.
	sqlxDB := db.Sqlx(database)
	userRepo := repositories.NewUserRepository(database)
	apiKeyRepo := repositories.NewAPIKeyRepository(database)
	projectRepo := repositories.NewProjectRepository(database)
	auditRepo := repositories.NewAuditRepository(database)
	webhookRepo := repositories.NewWebhookRepository(database)
	platformRepo := repositories.NewPlatformRepository(sqlxDB)
	identityRepo := repositories.NewIdentityRepository(sqlxDB)
	messageRepo := repositories.NewMessageRepository(sqlxDB)
	reactionRepo := repositories.NewReactionRepository(sqlxDB)

	// Platform credentials are sealed with the master key before insert
	encryptionKey := os.Getenv("ENCRYPTION_KEY")
	if encryptionKey == "" {
		return nil, nil, errors.New("ENCRYPTION_KEY environment variable must be set to store platform credentials")
	}
	tokenCipher, err := crypto.NewTokenCipher([]byte(encryptionKey))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize token cipher: %w", err)
	}

	// Authentication resolver
	var resolverOpts []auth.ResolverOption
	if cfg.Auth.External.Enabled {
		verifier, err := oidc.NewVerifier(&cfg.Auth.External)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize external token issuer: %w", err)
		}
		resolverOpts = append(resolverOpts, auth.WithExternalVerifier(verifier))
		slog.Info("external token issuer enabled", "issuer", cfg.Auth.External.IssuerURL)
	}
	resolver := auth.NewResolver(apiKeyRepo, userRepo, resolverOpts...)
	if !auth.LocalJWTConfigured() {
		slog.Warn("local JWT signing is not configured; signup and login are disabled")
	}

	// Message broker
	if cfg.Queue.Enabled {
		publisher, err := queue.NewAMQPPublisher(cfg.Queue.URL, cfg.Queue.Name, cfg.Queue.MaxRetries)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to message queue: %w", err)
		}
		bg.publisher = publisher
		slog.Info("message queue connected", "queue", cfg.Queue.Name)
	} else {
		slog.Warn("message queue disabled; outbound jobs stay pending")
	}

	// Services
	accountSvc := services.NewAccountService(userRepo, cfg.Auth.JWTExpiry)
	projectSvc := services.NewProjectService(projectRepo, userRepo)
	apiKeySvc := services.NewAPIKeyService(apiKeyRepo, cfg.Auth.APIKeys.Prefix, cfg.Auth.APIKeys.RollGracePeriod)
	platformSvc := services.NewPlatformService(platformRepo, tokenCipher)
	identitySvc := services.NewIdentityService(identityRepo, platformRepo)
	reactionResolver := services.NewReactionResolver(reactionRepo, identityRepo)
	messageSvc := services.NewMessageService(messageRepo, platformRepo, reactionResolver, bg.publisher)
	webhookSvc := services.NewWebhookService(webhookRepo, devMode())
	auditSvc := services.NewAuditService(auditRepo)

	// Audit trail
	var recorder middleware.AuditRecorder
	if cfg.Audit.Enabled {
		var shipper audit.Shipper
		if cfg.Audit.ShipToQueue && bg.publisher != nil {
			shipper = audit.NewQueueShipper(bg.publisher, cfg.Audit.QueueName)
		}
		bg.auditRecorder = audit.NewRecorder(auditRepo, shipper)
		recorder = bg.auditRecorder
	}

	// Retention job
	if cfg.Retention.Enabled {
		bg.retentionJob = jobs.NewRetentionJob(messageRepo, reactionRepo, auditRepo, cfg.Retention)
		bg.retentionJob.Start(context.Background())
	}

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Security.TLS.Enabled)))

	var probes []readinessProbe
	var authLimit, sendLimit gin.HandlerFunc
	if cfg.Security.RateLimiting.Enabled {
		apiCfg := middleware.DefaultRateLimitConfig()
		if cfg.Security.RateLimiting.RequestsPerMinute > 0 {
			apiCfg.RequestsPerMinute = cfg.Security.RateLimiting.RequestsPerMinute
		}
		if cfg.Security.RateLimiting.Burst > 0 {
			apiCfg.BurstSize = cfg.Security.RateLimiting.Burst
		}

		newLimiter := bg.inMemoryLimiter
		if cfg.Redis.Enabled {
			bg.redisClient = redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			newLimiter = bg.redisLimiter
			probes = append(probes, readinessProbe{name: "redis", check: func(ctx context.Context) error {
				return bg.redisClient.Ping(ctx).Err()
			}})
			slog.Info("distributed rate limiting enabled", "redis", cfg.Redis.Addr)
		}

		router.Use(middleware.RateLimitMiddleware(newLimiter(apiCfg)))
		authLimit = middleware.RateLimitMiddleware(newLimiter(middleware.AuthRateLimitConfig()))
		sendLimit = middleware.RateLimitMiddleware(newLimiter(middleware.SendRateLimitConfig()))
	}

	// System routes
	router.GET("/health", healthCheckHandler(database))
	router.GET("/ready", readinessHandler(database, probes...))
	router.GET("/version", versionHandler())

	table := routeTable(routeHandlers{
		accounts:   handlers.NewAccountHandlers(accountSvc),
		projects:   handlers.NewProjectHandlers(projectSvc),
		keys:       handlers.NewAPIKeyHandlers(apiKeySvc),
		platforms:  handlers.NewPlatformHandlers(platformSvc),
		identities: handlers.NewIdentityHandlers(identitySvc),
		messages:   handlers.NewMessageHandlers(messageSvc),
		webhooks:   handlers.NewWebhookHandlers(webhookSvc),
		audit:      handlers.NewAuditHandlers(auditSvc),
		authLimit:  authLimit,
		sendLimit:  sendLimit,
	})
	registerRoutes(router.Group("/api/v1"), table, guards{
		resolver: resolver,
		projects: projectRepo,
		recorder: recorder,
		audit:    &cfg.Audit,
	})

	return router, bg, nil
}

func (bg *BackgroundServices) inMemoryLimiter(cfg middleware.RateLimitConfig) middleware.Limiter {
	rl := middleware.NewRateLimiter(cfg)
	bg.rateLimiters = append(bg.rateLimiters, rl)
	return rl
}

func (bg *BackgroundServices) redisLimiter(cfg middleware.RateLimitConfig) middleware.Limiter {
	return middleware.NewRedisRateLimiter(bg.redisClient, cfg)
}

func devMode() bool {
	v := os.Getenv("DEV_MODE")
	return v == "true" || v == "1"
}

// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check database connection
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessProbe checks one optional dependency
type readinessProbe struct {
	name  string
	check func(ctx context.Context) error
}

// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks optional dependencies such as
// the Redis instance backing the rate limiter.
func readinessHandler(db *sql.DB, probes ...readinessProbe) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		// Check database connection
		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		for _, p := range probes {
			if err := p.check(c.Request.Context()); err != nil {
				checks[p.name] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": checks,
					"error":  p.name + " not ready",
				})
				return
			}
			checks[p.name] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured logging. The output format follows the global
// slog handler configured in telemetry.SetupLogger.
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}

		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", c.GetString(middleware.RequestIDKey)),
		}
		// Query strings may carry lookup identifiers; only log them when debugging
		if query != "" && strings.EqualFold(cfg.Logging.Level, "debug") {
			attrs = append(attrs, slog.String("query", query))
		}
		if op := c.GetString(middleware.OperationKey); op != "" {
			attrs = append(attrs, slog.String("operation", op))
		}

		slog.LogAttrs(c.Request.Context(), level, "http request", attrs...)
	}
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	methods := "GET, POST, PATCH, DELETE, OPTIONS"
	if len(cfg.Security.CORS.AllowedMethods) > 0 {
		methods = strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Check if origin is allowed
		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-API-Key, X-Request-ID")
			c.Header("Access-Control-Expose-Headers", "X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining, Retry-After")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
