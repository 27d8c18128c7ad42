package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"arcanum/internal/models"
	"arcanum/internal/store"
)

// CacheStatsService tracks cache hit/miss statistics.
//
// When the backend supports atomic counters (store.Counter) each event is a
// single INCR on a dedicated key, which removes the read-modify-write race of
// the old shared stats document. Backends without counters fall back to that
// legacy document; its counts are approximate under concurrency and that is
// accepted.
type CacheStatsService struct {
	store   store.Store
	counter store.Counter // nil when the backend has no atomic counters
	enabled bool
}

// NewCacheStatsService creates the stats service. The counter path is used
// automatically when the store implements store.Counter.
func NewCacheStatsService(s store.Store, enabled bool) *CacheStatsService {
	counter, _ := s.(store.Counter)
	return &CacheStatsService{store: s, counter: counter, enabled: enabled}
}

// Enabled reports whether stats tracking is on.
func (s *CacheStatsService) Enabled() bool {
	return s.enabled
}

// RecordHit tallies a cache hit for the engine. Best effort: stats must never
// fail a cache read, so errors are logged and swallowed.
func (s *CacheStatsService) RecordHit(ctx context.Context, engine string) {
	s.record(ctx, engine, true)
}

// RecordMiss tallies a cache miss for the engine. Best effort.
func (s *CacheStatsService) RecordMiss(ctx context.Context, engine string) {
	s.record(ctx, engine, false)
}

func (s *CacheStatsService) record(ctx context.Context, engine string, hit bool) {
	if !s.enabled {
		return
	}

	if s.counter != nil {
		s.recordCounters(ctx, engine, hit)
		return
	}
	s.recordLegacy(ctx, engine, hit)
}

func (s *CacheStatsService) recordCounters(ctx context.Context, engine string, hit bool) {
	totalKey, engineKind := store.StatsMissesKey, "misses"
	if hit {
		totalKey, engineKind = store.StatsHitsKey, "hits"
	}

	if _, err := s.counter.Incr(ctx, store.StatsRequestsKey, 1); err != nil {
		slog.Debug("cache stats increment failed", "key", store.StatsRequestsKey, "error", err)
		return
	}
	if _, err := s.counter.Incr(ctx, totalKey, 1); err != nil {
		slog.Debug("cache stats increment failed", "key", totalKey, "error", err)
	}
	if _, err := s.counter.Incr(ctx, store.StatsEngineKey(engine, engineKind), 1); err != nil {
		slog.Debug("cache stats increment failed", "engine", engine, "error", err)
	}
	s.trackEngine(ctx, engine)
}

// trackEngine keeps the set of engine names seen, so Stats can enumerate the
// per-engine counters. Read-modify-write on a small document; losing an
// update only delays an engine's first appearance in the stats view.
func (s *CacheStatsService) trackEngine(ctx context.Context, engine string) {
	data, found, err := s.store.Get(ctx, store.StatsEnginesKey)
	if err != nil {
		slog.Debug("cache stats engine set read failed", "error", err)
		return
	}

	var engines []string
	if found {
		if err := json.Unmarshal(data, &engines); err != nil {
			engines = nil
		}
	}
	for _, name := range engines {
		if name == engine {
			return
		}
	}
	engines = append(engines, engine)
	sort.Strings(engines)

	updated, err := json.Marshal(engines)
	if err != nil {
		return
	}
	if err := s.store.Put(ctx, store.StatsEnginesKey, updated, 0); err != nil {
		slog.Debug("cache stats engine set write failed", "error", err)
	}
}

// recordLegacy is the single-document fallback. Concurrent writers can lose
// increments; acceptable for a fallback path.
func (s *CacheStatsService) recordLegacy(ctx context.Context, engine string, hit bool) {
	stats, err := s.readLegacy(ctx)
	if err != nil {
		slog.Debug("cache stats document read failed", "error", err)
		return
	}

	stats.TotalRequests++
	engineStats := stats.EngineStats[engine]
	if hit {
		stats.TotalHits++
		engineStats.Hits++
	} else {
		stats.TotalMisses++
		engineStats.Misses++
	}
	stats.EngineStats[engine] = engineStats

	data, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := s.store.Put(ctx, store.StatsGlobalKey, data, 0); err != nil {
		slog.Debug("cache stats document write failed", "error", err)
	}
}

func (s *CacheStatsService) readLegacy(ctx context.Context) (*models.CacheStats, error) {
	stats := &models.CacheStats{EngineStats: make(map[string]models.EngineCacheStats)}
	data, found, err := s.store.Get(ctx, store.StatsGlobalKey)
	if err != nil {
		return nil, err
	}
	if found {
		if err := json.Unmarshal(data, stats); err != nil {
			slog.Warn("cache stats document corrupt, resetting", "error", err)
			stats = &models.CacheStats{EngineStats: make(map[string]models.EngineCacheStats)}
		}
		if stats.EngineStats == nil {
			stats.EngineStats = make(map[string]models.EngineCacheStats)
		}
	}
	return stats, nil
}

// Stats assembles the current statistics view, regardless of which backend
// recorded them.
func (s *CacheStatsService) Stats(ctx context.Context) (*models.CacheStats, error) {
	if s.counter == nil {
		return s.readLegacy(ctx)
	}

	stats := &models.CacheStats{EngineStats: make(map[string]models.EngineCacheStats)}

	var err error
	if stats.TotalRequests, err = s.counter.Incr(ctx, store.StatsRequestsKey, 0); err != nil {
		return nil, err
	}
	if stats.TotalHits, err = s.counter.Incr(ctx, store.StatsHitsKey, 0); err != nil {
		return nil, err
	}
	if stats.TotalMisses, err = s.counter.Incr(ctx, store.StatsMissesKey, 0); err != nil {
		return nil, err
	}

	data, found, err := s.store.Get(ctx, store.StatsEnginesKey)
	if err != nil {
		return nil, err
	}
	if found {
		var engines []string
		if err := json.Unmarshal(data, &engines); err == nil {
			for _, engine := range engines {
				hits, err := s.counter.Incr(ctx, store.StatsEngineKey(engine, "hits"), 0)
				if err != nil {
					return nil, err
				}
				misses, err := s.counter.Incr(ctx, store.StatsEngineKey(engine, "misses"), 0)
				if err != nil {
					return nil, err
				}
				stats.EngineStats[engine] = models.EngineCacheStats{Hits: hits, Misses: misses}
			}
		}
	}

	return stats, nil
}
