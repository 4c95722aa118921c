// ratelimit.go provides Gin middleware that enforces per-client rate limits, returning 429
// responses when the configured requests-per-minute threshold is exceeded. Limits are kept
// in process memory or, when Redis is configured, shared across replicas.
package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/msgcore/msgcore-sub001/internal/auth"
	"github.com/redis/go-redis/v9"
)

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// Name separates the buckets of limiters that share a backend
	Name string
	// RequestsPerMinute is the maximum number of requests allowed per minute
	RequestsPerMinute int
	// BurstSize is the maximum burst of requests allowed
	BurstSize int
	// CleanupInterval is how often to clean up expired entries
	CleanupInterval time.Duration
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Name:              "api",
		RequestsPerMinute: 200,
		BurstSize:         50, // dashboards fan out several reads per page
		CleanupInterval:   5 * time.Minute,
	}
}

// AuthRateLimitConfig returns stricter limits for signup and login
func AuthRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Name:              "auth",
		RequestsPerMinute: 10,
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
	}
}

// SendRateLimitConfig returns limits for outbound message endpoints
func SendRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Name:              "send",
		RequestsPerMinute: 60,
		BurstSize:         20,
		CleanupInterval:   5 * time.Minute,
	}
}

// RateLimitResult is the outcome of one limiter decision
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether the request identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (RateLimitResult, error)
}

// rateLimitEntry tracks request counts for a single client
type rateLimitEntry struct {
	tokens     float64
	lastUpdate time.Time
}

// RateLimiter implements an in-memory token bucket rate limiter
type RateLimiter struct {
	config   RateLimitConfig
	entries  map[string]*rateLimitEntry
	mu       sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// NewRateLimiter creates a new rate limiter with the given config
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	rl := &RateLimiter{
		config:  config,
		entries: make(map[string]*rateLimitEntry),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}

	go rl.cleanup()

	return rl
}

// cleanup periodically removes expired entries
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evictIdle(10 * time.Minute)
		case <-rl.stopCh:
			return
		}
	}
}

// evictIdle removes entries that have not been touched within idle
func (rl *RateLimiter) evictIdle(idle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key, entry := range rl.entries {
		if now.Sub(entry.lastUpdate) > idle {
			delete(rl.entries, key)
		}
	}
}

// Stop stops the cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Allow checks if a request from the given key should be allowed
func (rl *RateLimiter) Allow(_ context.Context, key string) (RateLimitResult, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	burst := float64(rl.config.BurstSize)
	tokensPerSecond := float64(rl.config.RequestsPerMinute) / 60.0

	entry, exists := rl.entries[key]
	if !exists {
		// New client, give them full burst
		entry = &rateLimitEntry{tokens: burst, lastUpdate: now}
		rl.entries[key] = entry
	} else {
		elapsed := now.Sub(entry.lastUpdate)
		entry.tokens = min(burst, entry.tokens+elapsed.Seconds()*tokensPerSecond)
		entry.lastUpdate = now
	}

	result := RateLimitResult{Limit: rl.config.RequestsPerMinute}
	if entry.tokens >= 1 {
		entry.tokens--
		result.Allowed = true
		result.Remaining = int(entry.tokens)
		return result, nil
	}

	if tokensPerSecond > 0 {
		wait := (1 - entry.tokens) / tokensPerSecond
		result.RetryAfter = time.Duration(wait * float64(time.Second))
	} else {
		result.RetryAfter = time.Minute
	}
	return result, nil
}

// RemainingTokens returns how many tokens are left for a key
func (rl *RateLimiter) RemainingTokens(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists := rl.entries[key]
	if !exists {
		return rl.config.BurstSize
	}

	elapsed := rl.now().Sub(entry.lastUpdate)
	tokensPerSecond := float64(rl.config.RequestsPerMinute) / 60.0
	return int(min(float64(rl.config.BurstSize), entry.tokens+elapsed.Seconds()*tokensPerSecond))
}

// RedisRateLimiter is a Limiter shared across replicas through Redis (GCRA via redis_rate)
type RedisRateLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
	prefix  string
}

// NewRedisRateLimiter creates a limiter backed by client
func NewRedisRateLimiter(client *redis.Client, config RateLimitConfig) *RedisRateLimiter {
	return &RedisRateLimiter{
		limiter: redis_rate.NewLimiter(client),
		limit:   redisLimit(config),
		prefix:  "msgcore:ratelimit:" + config.Name + ":",
	}
}

// redisLimit converts a RateLimitConfig into a redis_rate limit
func redisLimit(config RateLimitConfig) redis_rate.Limit {
	burst := config.BurstSize
	if burst <= 0 {
		burst = config.RequestsPerMinute
	}
	return redis_rate.Limit{
		Rate:   config.RequestsPerMinute,
		Burst:  burst,
		Period: time.Minute,
	}
}

// Allow consumes one request from key's bucket
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (RateLimitResult, error) {
	res, err := rl.limiter.Allow(ctx, rl.prefix+key, rl.limit)
	if err != nil {
		return RateLimitResult{}, err
	}
	return RateLimitResult{
		Allowed:    res.Allowed > 0,
		Limit:      rl.limit.Rate,
		Remaining:  res.Remaining,
		RetryAfter: res.RetryAfter,
	}, nil
}

// RateLimitMiddleware creates a Gin middleware that rate limits requests.
// A limiter error lets the request through.
func RateLimitMiddleware(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := getRateLimitKey(c)

		result, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			slog.Warn("rate limiter unavailable, allowing request", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(result.Remaining, 0)))

		if !result.Allowed {
			retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()
	}
}

// getRateLimitKey determines the key to use for rate limiting
// Priority: resolved principal > presented API key > IP address
func getRateLimitKey(c *gin.Context) string {
	if ac := GetAuthContext(c); ac != nil {
		if ac.AuthType == auth.AuthTypeAPIKey && ac.APIKey != nil {
			return "apikey:" + ac.APIKey.ID
		}
		if id := ac.UserID(); id != "" {
			return "user:" + id
		}
	}

	// The limiter runs before authentication, so key on a digest of the raw key.
	if raw := c.GetHeader(APIKeyHeader); raw != "" {
		return "apikey:" + auth.HashAPIKey(raw)[:16]
	}

	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}
