package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader is the response header carrying the request id.
const RequestIDHeader = "X-Request-ID"

const requestIDContextName = "request_id"

// RequestID assigns a unique id to every request so log lines from one
// request can be correlated. An id supplied by the client is reused.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDContextName, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestIDFromContext returns the request id assigned by RequestID.
func RequestIDFromContext(c *gin.Context) string {
	return c.GetString(requestIDContextName)
}
