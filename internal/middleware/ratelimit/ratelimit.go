package ratelimit

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

type bucket struct {
	mu         sync.Mutex
	tokens     int
	lastRefill time.Time
}

// RateLimiter is a per-client token bucket. Idle buckets expire on their own.
type RateLimiter struct {
	mu         sync.Mutex
	buckets    *gocache.Cache
	maxTokens  int
	refillRate time.Duration
	logger     *zap.Logger
}

type Config struct {
	MaxRequestsPerMinute int
	WindowDuration       time.Duration
	// IdleTTL is how long an untouched bucket is kept.
	IdleTTL time.Duration
	Logger  *zap.Logger
}

func New(cfg Config) *RateLimiter {
	if cfg.MaxRequestsPerMinute <= 0 {
		cfg.MaxRequestsPerMinute = 60
	}
	if cfg.WindowDuration <= 0 {
		cfg.WindowDuration = time.Minute
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &RateLimiter{
		buckets:    gocache.New(cfg.IdleTTL, cfg.IdleTTL/2),
		maxTokens:  cfg.MaxRequestsPerMinute,
		refillRate: cfg.WindowDuration / time.Duration(cfg.MaxRequestsPerMinute),
		logger:     cfg.Logger,
	}
}

func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.IP()
		if clientID := c.Get("X-Client-ID"); clientID != "" {
			key = clientID
		}

		allowed, retryAfter := rl.allow(key)
		if !allowed {
			rl.logger.Warn("Rate limit exceeded",
				zap.String("key", key),
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()),
			)
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(retryAfter.Seconds()+0.5)))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded. Please try again later.",
			})
		}

		return c.Next()
	}
}

func (rl *RateLimiter) allow(key string) (bool, time.Duration) {
	b := rl.bucketFor(key)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if add := int(now.Sub(b.lastRefill) / rl.refillRate); add > 0 {
		b.tokens = min(rl.maxTokens, b.tokens+add)
		b.lastRefill = b.lastRefill.Add(time.Duration(add) * rl.refillRate)
	}

	if b.tokens > 0 {
		b.tokens--
		return true, 0
	}
	return false, rl.refillRate - now.Sub(b.lastRefill)
}

func (rl *RateLimiter) bucketFor(key string) *bucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if v, ok := rl.buckets.Get(key); ok {
		rl.buckets.SetDefault(key, v)
		return v.(*bucket)
	}

	b := &bucket{tokens: rl.maxTokens, lastRefill: time.Now()}
	rl.buckets.SetDefault(key, b)
	return b
}

// Clients is the number of buckets currently tracked.
func (rl *RateLimiter) Clients() int {
	return rl.buckets.ItemCount()
}
