package handlers

import (
	"strconv"

	"arcanum/internal/logging"
	"arcanum/internal/middleware"
	"arcanum/internal/models"
	"arcanum/internal/services"

	"github.com/gofiber/fiber/v2"
)

// TimelineHandler exposes the append-only timeline log
type TimelineHandler struct {
	timeline    *services.TimelineService
	maintenance *services.MaintenanceService
}

// NewTimelineHandler creates a new timeline handler
func NewTimelineHandler(timeline *services.TimelineService, maintenance *services.MaintenanceService) *TimelineHandler {
	return &TimelineHandler{timeline: timeline, maintenance: maintenance}
}

// Append adds an entry to the user's timeline
// POST /api/v1/users/:userId/timeline
func (h *TimelineHandler) Append(c *fiber.Ctx) error {
	userID := c.Params("userId")

	var entry models.TimelineEntry
	if err := c.BodyParser(&entry); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	entry.UserID = userID
	if entry.Metadata.RequestID == "" {
		entry.Metadata.RequestID = middleware.GetRequestID(c)
	}

	if err := h.timeline.Append(c.Context(), &entry); err != nil {
		logging.WithRequest(entry.Metadata.RequestID, userID).Warn("timeline append failed", "error", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Timeline append failed",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(&entry)
}

// Update overwrites an existing entry
// PUT /api/v1/users/:userId/timeline/:entryId
func (h *TimelineHandler) Update(c *fiber.Ctx) error {
	userID := c.Params("userId")
	entryID := c.Params("entryId")

	var entry models.TimelineEntry
	if err := c.BodyParser(&entry); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	entry.UserID = userID
	entry.ID = entryID

	if err := h.timeline.Update(c.Context(), &entry); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(&entry)
}

// Remove deletes an entry
// DELETE /api/v1/users/:userId/timeline/:entryId?timestamp=...
func (h *TimelineHandler) Remove(c *fiber.Ctx) error {
	userID := c.Params("userId")
	entryID := c.Params("entryId")
	timestamp := c.Query("timestamp")
	if timestamp == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "timestamp query parameter is required",
		})
	}

	if err := h.timeline.Remove(c.Context(), userID, entryID, timestamp); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Timeline remove failed",
		})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Query returns one page of the user's timeline
// GET /api/v1/users/:userId/timeline?startDate&endDate&type&limit&offset&sortOrder
func (h *TimelineHandler) Query(c *fiber.Ctx) error {
	userID := c.Params("userId")

	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	result, err := h.timeline.Query(c.Context(), userID, models.TimelineQuery{
		StartDate: c.Query("startDate"),
		EndDate:   c.Query("endDate"),
		Type:      models.TimelineEntryType(c.Query("type")),
		Limit:     limit,
		Offset:    offset,
		SortOrder: c.Query("sortOrder", "desc"),
	})
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Timeline query failed",
		})
	}
	return c.JSON(result)
}

// Stats returns the user's timeline statistics, served from the warmed cache
// when available
// GET /api/v1/users/:userId/timeline/stats
func (h *TimelineHandler) Stats(c *fiber.Ctx) error {
	userID := c.Params("userId")
	stats, err := h.maintenance.CachedTimelineStats(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Timeline stats failed",
		})
	}
	return c.JSON(stats)
}

type rebuildIndexRequest struct {
	Date string `json:"date"`
}

// RebuildIndex recomputes one day bucket from the entry log
// POST /api/v1/users/:userId/timeline/index/rebuild
func (h *TimelineHandler) RebuildIndex(c *fiber.Ctx) error {
	userID := c.Params("userId")

	var req rebuildIndexRequest
	if err := c.BodyParser(&req); err != nil || len(req.Date) != 10 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "date (YYYY-MM-DD) is required",
		})
	}

	index, err := h.timeline.RebuildIndex(c.Context(), userID, req.Date)
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Index rebuild failed",
		})
	}
	return c.JSON(index)
}
