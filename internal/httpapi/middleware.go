package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/co2market/auth-service/pkg/core/logger"
	"github.com/co2market/auth-service/pkg/event"
	"github.com/co2market/auth-service/pkg/observability/tracing"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	headerCorrelationID = "X-Correlation-ID"
	headerAdminKey      = "X-Admin-Key"
)

func isHealthPath(path string) bool {
	return strings.HasPrefix(path, "/health/")
}

func requestFields(c *gin.Context) []zap.Field {
	return []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("client_ip", c.ClientIP()),
	}
}

// correlationMiddleware puts the request correlation id and a request logger
// into the request context. Events recorded by the request carry the id.
func correlationMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerCorrelationID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(headerCorrelationID, id)

		ctx := event.WithCorrelationID(c.Request.Context(), id)
		reqLog := log.With(zap.String("correlation_id", id))
		if traceID, spanID := tracing.TraceAndSpanID(ctx); traceID != "" {
			reqLog = reqLog.With(zap.String("trace_id", traceID), zap.String("span_id", spanID))
		}
		c.Request = c.Request.WithContext(logger.With(ctx, reqLog))
		c.Next()
	}
}

func recoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				fields := append(requestFields(c),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
				logger.Get(c.Request.Context()).Error("panic recovered", fields...)
				abort(c, http.StatusInternalServerError, errors.New("panic"))
			}
		}()
		c.Next()
	}
}

func loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isHealthPath(c.Request.URL.Path) {
			c.Next()
			return
		}
		start := time.Now()

		c.Next()

		log := logger.Get(c.Request.Context())
		fields := append(requestFields(c),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("user_agent", c.Request.UserAgent()),
		)
		log.Debug("incoming request", fields...)

		for _, e := range c.Errors {
			if c.Writer.Status() >= http.StatusInternalServerError {
				log.Error("request error", append(fields, zap.Error(e.Err))...)
			} else {
				log.Info("request rejected", append(fields, zap.Error(e.Err))...)
			}
		}
	}
}

func rateLimitMiddleware(cfg RateLimitConfig) gin.HandlerFunc {
	if !*cfg.Enabled {
		return nil
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	return func(c *gin.Context) {
		if isHealthPath(c.Request.URL.Path) {
			c.Next()
			return
		}
		if !limiter.Allow() {
			abort(c, http.StatusTooManyRequests, errRateLimited)
			return
		}
		c.Next()
	}
}

var errAdminKey = errors.New("missing or invalid admin key")

func adminKeyMiddleware(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(headerAdminKey)
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			abort(c, http.StatusUnauthorized, errAdminKey)
			return
		}
		c.Next()
	}
}
