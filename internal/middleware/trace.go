package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	TraceHeader = "X-Trace-ID"

	traceContextKey = "TraceID"
	maxTraceIDLen   = 128
)

// TraceMiddleware propagates the trace id sent by the client so that a call
// retried after a token refresh shares the id of the rejected attempt.
// Ids that are too long or carry unexpected characters are replaced.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceHeader)
		if !validTraceID(traceID) {
			traceID = uuid.NewString()
		}
		c.Set(traceContextKey, traceID)
		c.Header(TraceHeader, traceID)
		c.Next()
	}
}

// TraceID returns the trace id of the request, or "" outside TraceMiddleware.
func TraceID(c *gin.Context) string {
	return c.GetString(traceContextKey)
}

func validTraceID(id string) bool {
	if id == "" || len(id) > maxTraceIDLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return false
		}
	}
	return true
}
