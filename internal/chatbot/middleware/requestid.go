// Package middleware provides the gin middleware for the chatbot HTTP
// server: request IDs, panic recovery, access logging, and CORS.
package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/ray729alp/mqa-chatbot/pkg/utils/id"
)

// HeaderXRequestID is the header name for the request ID.
const HeaderXRequestID = "X-Request-ID"

// requestIDKey is the context key type for the request ID.
type requestIDKey struct{}

// RequestID tags every request with a ULID. An incoming X-Request-ID is
// reused so callers can correlate across hops; the ID is echoed on the
// response header and stored in the request context for the access log.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderXRequestID)
		if requestID == "" {
			requestID = id.NewULID()
		}

		c.Header(HeaderXRequestID, requestID)
		c.Request = c.Request.WithContext(withRequestID(c.Request.Context(), requestID))

		c.Next()
	}
}

// withRequestID stores the request ID in the context.
func withRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// GetRequestID returns the request ID from the context.
// Returns empty string if not found.
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}
