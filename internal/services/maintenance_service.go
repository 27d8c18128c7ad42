package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"arcanum/internal/models"
	"arcanum/internal/store"
)

// MaintenanceService orchestrates invalidation and warming on top of the
// result cache, profile store and timeline log. It inherits their
// non-atomicity and partial-failure behavior: sweeps are per-key, counts are
// of keys actually removed, and one failed item never aborts a batch.
type MaintenanceService struct {
	store         store.Store
	cache         *ResultCacheService
	timeline      *TimelineService
	metrics       *Metrics
	statsCacheTTL time.Duration
}

// NewMaintenanceService creates the maintenance layer.
func NewMaintenanceService(
	s store.Store,
	cache *ResultCacheService,
	timeline *TimelineService,
	metrics *Metrics,
	statsCacheTTL time.Duration,
) *MaintenanceService {
	if statsCacheTTL <= 0 {
		statsCacheTTL = 10 * time.Minute
	}
	return &MaintenanceService{
		store:         s,
		cache:         cache,
		timeline:      timeline,
		metrics:       metrics,
		statsCacheTTL: statsCacheTTL,
	}
}

// InvalidateEngineCache removes every cached result for the engine.
func (s *MaintenanceService) InvalidateEngineCache(ctx context.Context, engine string) (int, error) {
	return s.cache.InvalidateEngine(ctx, engine)
}

// InvalidateUserCache sweeps every user-scoped derived cache: quick-access
// pointers, forecast caches and the warmed timeline-stats document. Returns
// the number of keys removed; per-key failures are logged and skipped.
func (s *MaintenanceService) InvalidateUserCache(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, fmt.Errorf("user ID is required")
	}

	removed := 0
	for _, prefix := range []string{
		store.QuickAccessUserPrefix(userID),
		store.ForecastUserPrefix(userID),
	} {
		keys, err := store.ListAll(ctx, s.store, prefix)
		if err != nil {
			return removed, fmt.Errorf("failed to enumerate %q: %w", prefix, err)
		}
		for _, key := range keys {
			if err := s.store.Delete(ctx, key); err != nil {
				slog.Warn("user cache invalidation: delete failed, skipping",
					"user_id", userID, "key", key, "error", err)
				continue
			}
			removed++
		}
	}

	// Single-key documents swept alongside the prefixes.
	if err := s.store.Delete(ctx, store.TimelineStatsCacheKey(userID)); err != nil {
		slog.Warn("user cache invalidation: stats document delete failed",
			"user_id", userID, "error", err)
	} else {
		removed++
	}

	if s.metrics != nil {
		s.metrics.InvalidatedKeys.WithLabelValues("user").Add(float64(removed))
	}
	slog.Info("user caches invalidated", "user_id", userID, "removed", removed)
	return removed, nil
}

// WarmEngineCache precomputes and caches results for the given inputs.
func (s *MaintenanceService) WarmEngineCache(ctx context.Context, engine string, inputs []map[string]any) (models.WarmResult, error) {
	return s.cache.Warm(ctx, engine, inputs)
}

// WarmUserTimeline precomputes the user's timeline stats and caches the
// document so the stats endpoint stops paying the full scan for a while.
func (s *MaintenanceService) WarmUserTimeline(ctx context.Context, userID string) (*models.TimelineStats, error) {
	stats, err := s.timeline.Stats(ctx, userID)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(stats)
	if err != nil {
		return nil, fmt.Errorf("failed to encode timeline stats: %w", err)
	}
	if err := s.store.Put(ctx, store.TimelineStatsCacheKey(userID), data, s.statsCacheTTL); err != nil {
		return nil, err
	}
	return stats, nil
}

// CachedTimelineStats serves the warmed stats document when present and falls
// back to computing (and re-warming, best effort) when it is not.
func (s *MaintenanceService) CachedTimelineStats(ctx context.Context, userID string) (*models.TimelineStats, error) {
	data, found, err := s.store.Get(ctx, store.TimelineStatsCacheKey(userID))
	if err == nil && found {
		var stats models.TimelineStats
		if err := json.Unmarshal(data, &stats); err == nil {
			return &stats, nil
		}
		slog.Warn("corrupt timeline stats cache, recomputing", "user_id", userID)
	}
	if err != nil {
		// A store failure must not make stats unavailable; compute directly.
		slog.Warn("timeline stats cache read failed, recomputing", "user_id", userID, "error", err)
	}
	return s.WarmUserTimeline(ctx, userID)
}
