package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RequestIDKey is the locals key the request ID is stored under.
const RequestIDKey = "request_id"

// RequestID attaches a request ID to every request, honoring an incoming
// X-Request-ID header so callers can correlate their own traces. The ID is
// echoed in the response and stamped into timeline entry metadata.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Locals(RequestIDKey, requestID)
		c.Set("X-Request-ID", requestID)
		return c.Next()
	}
}

// GetRequestID reads the request ID out of the fiber context.
func GetRequestID(c *fiber.Ctx) string {
	if id, ok := c.Locals(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
