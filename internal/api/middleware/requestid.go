package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the header name for request ID.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin context key for request ID.
	RequestIDKey = "request_id"

	// maxRequestIDLength bounds client-supplied IDs before they reach the logs.
	maxRequestIDLength = 128
)

// RequestID ensures each request has an ID. A client-supplied X-Request-ID
// is kept when it is short enough; otherwise a UUID is generated.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}

		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}
