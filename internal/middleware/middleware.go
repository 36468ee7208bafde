// Package middleware holds the gin handlers that wrap every request.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mesikahq/outbreak-exchange/internal/audit"
	"github.com/mesikahq/outbreak-exchange/internal/metrics"
)

const requestIDKey = "request_id"

// RequestID reuses an incoming X-Request-ID or assigns a fresh one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set(requestIDKey, requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("Content-Security-Policy", "default-src 'self'")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Cache-Control", "no-store")

		c.Next()
	}
}

// AuditContext copies request metadata onto the request context for audit
// events.
func AuditContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := audit.WithRequestInfo(c.Request.Context(), audit.RequestInfo{
			RequestID: c.GetString(requestIDKey),
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func Timeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			c.AbortWithStatusJSON(http.StatusGatewayTimeout, gin.H{"error": "request timeout"})
		}
	}
}

// RateLimit allows limit requests per second per client IP with the given
// burst. Idle clients are forgotten once their bucket would have refilled.
func RateLimit(limit rate.Limit, burst int) gin.HandlerFunc {
	limiters := newLimiterSet(limit, burst, limiterTTL(limit, burst))

	return func(c *gin.Context) {
		if !limiters.get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

const minLimiterTTL = time.Minute

// limiterTTL is the time an idle bucket needs to refill completely, and never
// less than minLimiterTTL.
func limiterTTL(limit rate.Limit, burst int) time.Duration {
	if limit <= 0 || limit == rate.Inf {
		return minLimiterTTL
	}
	refill := time.Duration(float64(burst) / float64(limit) * float64(time.Second))
	return max(refill, minLimiterTTL)
}

type limiterSet struct {
	limit rate.Limit
	burst int
	cache *cache.Cache
}

func newLimiterSet(limit rate.Limit, burst int, ttl time.Duration) *limiterSet {
	return &limiterSet{limit: limit, burst: burst, cache: cache.New(ttl, 2*ttl)}
}

// get returns the client's limiter and pushes its expiry back by one TTL.
func (l *limiterSet) get(key string) *rate.Limiter {
	if v, ok := l.cache.Get(key); ok {
		limiter := v.(*rate.Limiter)
		l.cache.SetDefault(key, limiter)
		return limiter
	}
	limiter := rate.NewLimiter(l.limit, l.burst)
	if err := l.cache.Add(key, limiter, cache.DefaultExpiration); err != nil {
		// Another request for the same client won the insert.
		if v, ok := l.cache.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return limiter
}

func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered",
					zap.Any("error", err),
					zap.ByteString("stack", debug.Stack()),
					zap.String("request_id", c.GetString(requestIDKey)),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()

		c.Next()
	}
}

func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString(requestIDKey)),
		}
		if p, ok := PrincipalFrom(c); ok {
			fields = append(fields, zap.String("username", p.Username))
		}
		logger.Info("Request processed", fields...)
	}
}

// Metrics records the status and latency of every request under its route
// template.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.ObserveRequest(c.FullPath(), c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}
