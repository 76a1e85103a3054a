// Package middleware holds the gin middleware stack. JWTAuth,
// InternalAuth, and RateLimit from the teacher are dropped outright —
// identity/authentication and rate-limiting are explicit Non-goals —
// and replaced with the ambient request-ID and access-logging
// middleware every handler still needs, in the teacher's structured
// zerolog style.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const requestIDKey = "request_id"

// RequestID stamps every request with a UUID, mirroring the request_id
// ksred-klear-api's idempotency records carry, so logs and error
// responses can be correlated across the underwriting gate's mutex.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

// AccessLog logs one structured line per request, the way
// ksred-klear-api's handlers log with log.With().Str(...).Logger()
// around every operation.
func AccessLog(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info().
			Str("request_id", c.GetString(requestIDKey)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("handled request")
	}
}
