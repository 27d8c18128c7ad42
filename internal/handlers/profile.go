package handlers

import (
	"encoding/json"

	"arcanum/internal/models"
	"arcanum/internal/services"

	"github.com/gofiber/fiber/v2"
)

// ProfileHandler exposes the versioned profile store
type ProfileHandler struct {
	profiles *services.ProfileService
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(profiles *services.ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

type profileWriteRequest struct {
	Payload          json.RawMessage        `json:"payload"`
	Priority         models.ProfilePriority `json:"priority,omitempty"`
	ForceQuickAccess bool                   `json:"forceQuickAccess,omitempty"`
}

// Write creates a new profile version
// PUT /api/v1/users/:userId/profiles/:engine
func (h *ProfileHandler) Write(c *fiber.Ctx) error {
	userID := c.Params("userId")
	engine := c.Params("engine")

	var req profileWriteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if len(req.Payload) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "payload is required",
		})
	}
	if req.Priority != "" && !req.Priority.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "priority must be high, normal or low",
		})
	}

	version, err := h.profiles.Write(c.Context(), userID, engine, req.Payload, models.ProfileWriteOptions{
		Priority:         req.Priority,
		ForceQuickAccess: req.ForceQuickAccess,
	})
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Profile write failed",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"version": version})
}

// Read returns the latest profile version, or an exact version when the
// version query parameter is set
// GET /api/v1/users/:userId/profiles/:engine?version=...
func (h *ProfileHandler) Read(c *fiber.Ctx) error {
	userID := c.Params("userId")
	engine := c.Params("engine")
	version := c.Query("version")

	var (
		payload []byte
		found   bool
		err     error
	)
	if version != "" {
		payload, found, err = h.profiles.ReadVersion(c.Context(), userID, engine, version)
	} else {
		payload, found, err = h.profiles.ReadLatest(c.Context(), userID, engine)
	}
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Profile read failed",
		})
	}
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Profile not found",
		})
	}
	return c.JSON(fiber.Map{"payload": json.RawMessage(payload)})
}

// ListVersions enumerates every profile key the user has
// GET /api/v1/users/:userId/profiles
func (h *ProfileHandler) ListVersions(c *fiber.Ctx) error {
	userID := c.Params("userId")
	keys, err := h.profiles.ListVersions(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Profile listing failed",
		})
	}
	return c.JSON(fiber.Map{"versions": keys})
}

// DeleteAll removes every profile version and quick-access pointer for the user
// DELETE /api/v1/users/:userId/profiles
func (h *ProfileHandler) DeleteAll(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if err := h.profiles.DeleteAll(c.Context(), userID); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Profile deletion failed",
		})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
