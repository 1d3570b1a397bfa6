package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/telekom/mailgun-notifier/pkg/metrics"
	"github.com/telekom/mailgun-notifier/pkg/signal"
)

// ExceededMessage is the failure message returned to throttled clients.
const ExceededMessage = "rate limit exceeded, please try again later"

// Config holds rate limiter configuration
type Config struct {
	// Rate is the number of requests allowed per second
	Rate float64
	// Burst is the maximum number of requests allowed in a burst
	Burst int
	// CleanupInterval is how often to clean up stale entries
	CleanupInterval time.Duration
	// MaxAge is how long to keep an entry after last access
	MaxAge time.Duration
}

// DefaultSignalsConfig returns the default limit for signal submission:
// 20 req/s per client, burst of 50.
func DefaultSignalsConfig() Config {
	return Config{
		Rate:            20,
		Burst:           50,
		CleanupInterval: time.Minute,
		MaxAge:          5 * time.Minute,
	}
}

// KeyFunc derives the bucket key for a request.
type KeyFunc func(c *gin.Context) string

// ClientIP keys requests by gin's resolved client IP.
func ClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// HeaderOrClientIP keys requests by the named header, falling back to the
// client IP when the header is absent.
func HeaderOrClientIP(header string) KeyFunc {
	return func(c *gin.Context) string {
		if v := c.GetHeader(header); v != "" {
			return header + ":" + v
		}
		return c.ClientIP()
	}
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithKeyFunc replaces the default ClientIP key function.
func WithKeyFunc(fn KeyFunc) Option {
	return func(l *Limiter) {
		if fn != nil {
			l.keyFunc = fn
		}
	}
}

// entry holds a bucket and its last access time
type entry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Limiter implements per-client rate limiting with automatic cleanup
type Limiter struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	config   Config
	keyFunc  KeyFunc
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a per-client rate limiter and starts its cleanup goroutine.
func New(cfg Config, opts ...Option) *Limiter {
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 5 * time.Minute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	l := &Limiter{
		entries: make(map[string]*entry),
		config:  cfg,
		keyFunc: ClientIP,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	go l.cleanup()

	return l
}

// Allow reports whether a request for key may proceed now.
func (l *Limiter) Allow(key string) bool {
	return l.reserve(key).OK
}

type decision struct {
	OK         bool
	RetryAfter time.Duration
}

func (l *Limiter) reserve(key string) decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, exists := l.entries[key]
	if !exists {
		e = &entry{
			limiter: rate.NewLimiter(rate.Limit(l.config.Rate), l.config.Burst),
		}
		l.entries[key] = e
	}
	now := time.Now()
	e.lastAccess = now

	r := e.limiter.ReserveN(now, 1)
	if !r.OK() {
		return decision{}
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return decision{RetryAfter: delay}
	}
	return decision{OK: true}
}

// Middleware rejects throttled requests with 429 and a failure result body.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		d := l.reserve(l.keyFunc(c))
		if !d.OK {
			metrics.APIRequestsRateLimited.WithLabelValues(c.FullPath()).Inc()
			if d.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, signal.Result{Error: 1, Message: ExceededMessage}.Signal())
			return
		}
		c.Next()
	}
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

// cleanup periodically removes stale entries
func (l *Limiter) cleanup() {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.cleanupStaleEntries()
		}
	}
}

// cleanupStaleEntries removes entries that haven't been accessed recently
func (l *Limiter) cleanupStaleEntries() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for key, e := range l.entries {
		if now.Sub(e.lastAccess) > l.config.MaxAge {
			delete(l.entries, key)
		}
	}
}

// Len returns the current number of tracked clients
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Config returns a copy of the current configuration
func (l *Limiter) Config() Config {
	return l.config
}
