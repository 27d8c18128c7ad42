package handlers

import (
	"encoding/json"
	"time"

	"arcanum/internal/services"

	"github.com/gofiber/fiber/v2"
)

// CacheHandler exposes the result cache operations
type CacheHandler struct {
	cache      *services.ResultCacheService
	stats      *services.CacheStatsService
	defaultTTL time.Duration
}

// NewCacheHandler creates a new cache handler
func NewCacheHandler(cache *services.ResultCacheService, stats *services.CacheStatsService, defaultTTL time.Duration) *CacheHandler {
	return &CacheHandler{cache: cache, stats: stats, defaultTTL: defaultTTL}
}

type cacheLookupRequest struct {
	Input map[string]any `json:"input"`
}

// Lookup returns the cached payload for (engine, input)
// POST /api/v1/cache/:engine/lookup
func (h *CacheHandler) Lookup(c *fiber.Ctx) error {
	engine := c.Params("engine")
	var req cacheLookupRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	payload, found, err := h.cache.Get(c.Context(), engine, req.Input)
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Cache unavailable",
		})
	}
	if !found {
		return c.JSON(fiber.Map{"cached": false})
	}
	return c.JSON(fiber.Map{
		"cached":  true,
		"payload": json.RawMessage(payload),
	})
}

type cacheSetRequest struct {
	Input      map[string]any  `json:"input"`
	Payload    json.RawMessage `json:"payload"`
	TTLSeconds int             `json:"ttlSeconds,omitempty"`
	Confidence *float64        `json:"confidence,omitempty"`
	Force      bool            `json:"force,omitempty"`
}

// Set writes a result into the cache, subject to confidence gating
// POST /api/v1/cache/:engine
func (h *CacheHandler) Set(c *fiber.Ctx) error {
	engine := c.Params("engine")
	var req cacheSetRequest
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

	ttl := h.defaultTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	result, err := h.cache.Set(c.Context(), engine, req.Input, req.Payload, ttl, req.Confidence, req.Force)
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Cache unavailable",
		})
	}
	return c.JSON(result)
}

// Invalidate removes every cached result for an engine
// DELETE /api/v1/cache/:engine
func (h *CacheHandler) Invalidate(c *fiber.Ctx) error {
	engine := c.Params("engine")
	removed, err := h.cache.InvalidateEngine(c.Context(), engine)
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":   "Invalidation failed",
			"removed": removed,
		})
	}
	return c.JSON(fiber.Map{"removed": removed})
}

type cacheWarmRequest struct {
	Inputs []map[string]any `json:"inputs"`
}

// Warm precomputes results for the given inputs
// POST /api/v1/cache/:engine/warm
func (h *CacheHandler) Warm(c *fiber.Ctx) error {
	engine := c.Params("engine")
	var req cacheWarmRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if len(req.Inputs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "inputs is required",
		})
	}

	result, err := h.cache.Warm(c.Context(), engine, req.Inputs)
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":  "Warming aborted",
			"warmed": result.Warmed,
			"failed": result.Failed,
		})
	}
	return c.JSON(result)
}

// Stats returns the global hit/miss statistics
// GET /api/v1/cache/stats
func (h *CacheHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.stats.Stats(c.Context())
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Stats unavailable",
		})
	}
	return c.JSON(stats)
}
