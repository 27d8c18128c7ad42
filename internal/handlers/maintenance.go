package handlers

import (
	"arcanum/internal/services"

	"github.com/gofiber/fiber/v2"
)

// MaintenanceHandler exposes the user-scoped maintenance operations
type MaintenanceHandler struct {
	maintenance *services.MaintenanceService
}

// NewMaintenanceHandler creates a new maintenance handler
func NewMaintenanceHandler(maintenance *services.MaintenanceService) *MaintenanceHandler {
	return &MaintenanceHandler{maintenance: maintenance}
}

// InvalidateUserCache sweeps every derived cache for a user
// DELETE /api/v1/users/:userId/cache
func (h *MaintenanceHandler) InvalidateUserCache(c *fiber.Ctx) error {
	userID := c.Params("userId")
	removed, err := h.maintenance.InvalidateUserCache(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":   "Invalidation failed",
			"removed": removed,
		})
	}
	return c.JSON(fiber.Map{"removed": removed})
}

// WarmUserTimeline precomputes and caches the user's timeline stats
// POST /api/v1/users/:userId/timeline/warm
func (h *MaintenanceHandler) WarmUserTimeline(c *fiber.Ctx) error {
	userID := c.Params("userId")
	stats, err := h.maintenance.WarmUserTimeline(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Timeline warm failed",
		})
	}
	return c.JSON(stats)
}
