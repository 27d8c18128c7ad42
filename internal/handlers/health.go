package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger is satisfied by store backends that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	pinger Pinger // nil for backends without a liveness probe
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(pinger Pinger) *HealthHandler {
	return &HealthHandler{pinger: pinger}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	status := "healthy"
	storeStatus := "ok"
	code := fiber.StatusOK

	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()
		if err := h.pinger.Ping(ctx); err != nil {
			status = "degraded"
			storeStatus = err.Error()
			code = fiber.StatusServiceUnavailable
		}
	}

	return c.Status(code).JSON(fiber.Map{
		"status":    status,
		"store":     storeStatus,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
