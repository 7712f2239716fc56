// ratelimit.go provides Gin middleware that enforces per-client token-bucket rate limits,
// returning 429 responses when the configured requests-per-minute threshold is exceeded.
// Two backends are available: an in-process limiter built on golang.org/x/time/rate and a
// Redis-backed limiter (redis_rate) whose counters are shared by every replica.
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
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained rate allowed per client
	RequestsPerMinute int
	// BurstSize is the maximum burst of requests allowed
	BurstSize int
	// CleanupInterval is how often idle in-memory buckets are dropped
	CleanupInterval time.Duration
}

// DefaultRateLimitConfig returns the limits for ordinary API traffic.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 200,
		BurstSize:         50,
		CleanupInterval:   5 * time.Minute,
	}
}

// AuthRateLimitConfig returns stricter limits for the login endpoints.
func AuthRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
	}
}

// UploadRateLimitConfig returns limits for document uploads.
func UploadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 30,
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
	}
}

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Limit() int
}

// ---------------------------------------------------------------------------
// In-memory limiter
// ---------------------------------------------------------------------------

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter keeps one token bucket per key in process memory.
type MemoryLimiter struct {
	config  RateLimitConfig
	buckets map[string]*bucket
	mu      sync.Mutex
	stopCh  chan struct{}
	stopped sync.Once
}

// NewMemoryLimiter creates a limiter and starts its cleanup goroutine.
func NewMemoryLimiter(config RateLimitConfig) *MemoryLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	ml := &MemoryLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		stopCh:  make(chan struct{}),
	}
	go ml.cleanup()
	return ml
}

func (ml *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(ml.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ml.sweep(time.Now(), 10*time.Minute)
		case <-ml.stopCh:
			return
		}
	}
}

// sweep drops buckets idle for longer than idle.
func (ml *MemoryLimiter) sweep(now time.Time, idle time.Duration) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	for key, b := range ml.buckets {
		if now.Sub(b.lastSeen) > idle {
			delete(ml.buckets, key)
		}
	}
}

// Stop stops the cleanup goroutine
func (ml *MemoryLimiter) Stop() {
	ml.stopped.Do(func() { close(ml.stopCh) })
}

// Limit returns the configured requests per minute.
func (ml *MemoryLimiter) Limit() int { return ml.config.RequestsPerMinute }

// Allow consumes one token for key.
func (ml *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := time.Now()

	ml.mu.Lock()
	b, ok := ml.buckets[key]
	if !ok {
		perSecond := rate.Limit(float64(ml.config.RequestsPerMinute) / 60.0)
		b = &bucket{limiter: rate.NewLimiter(perSecond, ml.config.BurstSize)}
		ml.buckets[key] = b
	}
	b.lastSeen = now
	ml.mu.Unlock()

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return Decision{RetryAfter: time.Minute}, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{RetryAfter: delay}, nil
	}
	remaining := int(math.Floor(b.limiter.TokensAt(now)))
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Remaining: remaining}, nil
}

// ---------------------------------------------------------------------------
// Redis limiter
// ---------------------------------------------------------------------------

// RedisLimiter shares limits across replicas using the GCRA implementation in
// redis_rate.
type RedisLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
	prefix  string
}

// NewRedisLimiter creates a limiter whose keys are namespaced by prefix.
func NewRedisLimiter(client redis.UniversalClient, config RateLimitConfig, prefix string) *RedisLimiter {
	burst := config.BurstSize
	if burst <= 0 {
		burst = config.RequestsPerMinute
	}
	return &RedisLimiter{
		limiter: redis_rate.NewLimiter(client),
		limit: redis_rate.Limit{
			Rate:   config.RequestsPerMinute,
			Burst:  burst,
			Period: time.Minute,
		},
		prefix: prefix,
	}
}

// Limit returns the configured requests per minute.
func (rl *RedisLimiter) Limit() int { return rl.limit.Rate }

// Allow consumes one token for key.
func (rl *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := rl.limiter.Allow(ctx, "ratelimit:"+rl.prefix+":"+key, rl.limit)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{Allowed: res.Allowed > 0, Remaining: res.Remaining}
	if !d.Allowed {
		d.RetryAfter = res.RetryAfter
	}
	return d, nil
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

// RateLimitMiddleware rejects clients that exceed limiter. A limiter error
// (e.g. Redis unreachable) lets the request through and is logged.
func RateLimitMiddleware(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := getRateLimitKey(c)

		d, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			slog.Warn("rate limiter unavailable, allowing request", "key", key, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

		if !d.Allowed {
			retry := int(math.Ceil(d.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": retry,
			})
			return
		}

		c.Next()
	}
}

// getRateLimitKey keys authenticated callers by user and everyone else by IP.
func getRateLimitKey(c *gin.Context) string {
	if userID := c.GetString(UserIDKey); userID != "" {
		return "user:" + userID
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}
