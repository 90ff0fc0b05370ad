package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/safar/hardware-store/internal/auth"
	"go.uber.org/zap"
)

const (
	traceHeader = "X-Trace-ID"
	traceKey    = "trace_id"
)

// TraceID tags the request with a trace id, reusing a valid incoming one.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(traceHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(traceKey, id)
		c.Header(traceHeader, id)
		c.Next()
	}
}

func traceID(c *gin.Context) string {
	return c.GetString(traceKey)
}

func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("trace_id", traceID(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}

		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("request", fields...)
			return
		}
		logger.Info("request", fields...)
	}
}

// Authenticate requires a valid bearer token and puts its claims on the
// request context.
func Authenticate(issuer *auth.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			respondMessage(c, http.StatusUnauthorized, "unauthorized", nil)
			return
		}

		claims, err := issuer.ParseToken(token)
		if err != nil {
			respondMessage(c, http.StatusUnauthorized, "unauthorized", nil)
			return
		}

		c.Request = c.Request.WithContext(auth.WithClaims(c.Request.Context(), claims))
		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := auth.FromContext(c.Request.Context())
		if !ok || !claims.IsAdmin() {
			respondMessage(c, http.StatusForbidden, "unauthorized", nil)
			return
		}
		c.Next()
	}
}

func claimsOf(c *gin.Context) *auth.Claims {
	claims, _ := auth.FromContext(c.Request.Context())
	return claims
}

func userID(c *gin.Context) int64 {
	if claims := claimsOf(c); claims != nil {
		return claims.UserID
	}
	return 0
}
