package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"arcanum/internal/engines"
	"arcanum/internal/models"
	"arcanum/internal/store"

	"golang.org/x/time/rate"
)

// TTL scaling bounds: a result at the confidence floor keeps half the base
// TTL, a fully confident one keeps double.
const (
	ttlScaleMin = 0.5
	ttlScaleMax = 2.0
)

// ResultCacheService caches calculation results keyed by (engine, input
// fingerprint). The cache is a pure optimization: callers must treat every
// miss or error as "recompute", never as a hard failure.
type ResultCacheService struct {
	store     store.Store
	stats     *CacheStatsService
	tiers     *engines.Tiers
	registry  *engines.Registry
	metrics   *Metrics
	threshold float64 // confidence below this is not cached unless forced
	paranoid  bool    // verify canonical input on hits
	warmLimit *rate.Limiter
}

// NewResultCacheService creates the result cache.
func NewResultCacheService(
	s store.Store,
	stats *CacheStatsService,
	tiers *engines.Tiers,
	registry *engines.Registry,
	metrics *Metrics,
	threshold float64,
	paranoid bool,
	warmRatePerSecond float64,
) *ResultCacheService {
	if warmRatePerSecond <= 0 {
		warmRatePerSecond = 5
	}
	return &ResultCacheService{
		store:     s,
		stats:     stats,
		tiers:     tiers,
		registry:  registry,
		metrics:   metrics,
		threshold: threshold,
		paranoid:  paranoid,
		warmLimit: rate.NewLimiter(rate.Limit(warmRatePerSecond), 1),
	}
}

// Get looks up the cached result for (engine, input). The input is
// fingerprinted the same way Set fingerprints it, so key order differences
// between semantically identical inputs still hit.
func (s *ResultCacheService) Get(ctx context.Context, engine string, input map[string]any) ([]byte, bool, error) {
	fingerprint, err := engines.Fingerprint(input)
	if err != nil {
		return nil, false, err
	}

	canonical := ""
	if s.paranoid {
		if canonical, err = engines.CanonicalInput(input); err != nil {
			return nil, false, err
		}
	}
	return s.get(ctx, engine, fingerprint, canonical)
}

// GetByFingerprint looks up a cached result by its precomputed fingerprint.
// Paranoid verification is unavailable on this path because the original
// input is not known.
func (s *ResultCacheService) GetByFingerprint(ctx context.Context, engine, fingerprint string) ([]byte, bool, error) {
	return s.get(ctx, engine, fingerprint, "")
}

func (s *ResultCacheService) get(ctx context.Context, engine, fingerprint, canonical string) ([]byte, bool, error) {
	data, found, err := s.store.Get(ctx, store.CacheKey(engine, fingerprint))
	if err != nil {
		// A store failure reads as a miss for stats purposes but the error
		// still reaches the caller so it can decide to recompute.
		s.recordMiss(ctx, engine)
		return nil, false, err
	}
	if !found {
		s.recordMiss(ctx, engine)
		return nil, false, nil
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		// Malformed payloads are treated as a miss, never a crash.
		slog.Warn("corrupt cache entry, treating as miss",
			"engine", engine, "fingerprint", fingerprint, "error", err)
		s.recordMiss(ctx, engine)
		return nil, false, nil
	}

	if canonical != "" && entry.CanonicalInput != "" && entry.CanonicalInput != canonical {
		// Fingerprint collision caught by paranoid verification.
		slog.Warn("cache fingerprint collision detected",
			"engine", engine, "fingerprint", fingerprint)
		s.recordMiss(ctx, engine)
		return nil, false, nil
	}

	s.recordHit(ctx, engine)
	return entry.Payload, true, nil
}

// Set caches payload for (engine, input).
//
// Admission: a result whose confidence is below the threshold is skipped
// unless force is set, so low-confidence results never poison the cache.
// TTL: baseTTL scaled by clamp(confidence*2, 0.5, 2.0), then capped by the
// engine's complexity ceiling. Results without a confidence keep baseTTL.
func (s *ResultCacheService) Set(
	ctx context.Context,
	engine string,
	input map[string]any,
	payload []byte,
	baseTTL time.Duration,
	confidence *float64,
	force bool,
) (models.SetResult, error) {
	if confidence != nil && *confidence < s.threshold && !force {
		slog.Debug("cache write skipped: low confidence",
			"engine", engine, "confidence", *confidence, "threshold", s.threshold)
		if s.metrics != nil {
			s.metrics.CacheWrites.WithLabelValues(engine, "skipped").Inc()
		}
		return models.SetResult{Cached: false, Reason: models.SkipReasonLowConfidence}, nil
	}

	fingerprint, err := engines.Fingerprint(input)
	if err != nil {
		return models.SetResult{}, err
	}

	ttl := s.EffectiveTTL(engine, baseTTL, confidence)

	entry := models.CacheEntry{
		Engine:           engine,
		InputFingerprint: fingerprint,
		Payload:          payload,
		CachedAt:         time.Now().UTC(),
		TTLSeconds:       int(ttl.Seconds()),
		Confidence:       confidence,
	}
	// The canonical input is stored alongside the payload so paranoid-mode
	// reads can verify equality instead of trusting the hash.
	if entry.CanonicalInput, err = engines.CanonicalInput(input); err != nil {
		return models.SetResult{}, err
	}

	data, err := json.Marshal(&entry)
	if err != nil {
		return models.SetResult{}, fmt.Errorf("failed to encode cache entry: %w", err)
	}
	if err := s.store.Put(ctx, store.CacheKey(engine, fingerprint), data, ttl); err != nil {
		return models.SetResult{}, err
	}

	if s.metrics != nil {
		s.metrics.CacheWrites.WithLabelValues(engine, "cached").Inc()
	}
	return models.SetResult{Cached: true, TTLSeconds: int(ttl.Seconds())}, nil
}

// EffectiveTTL computes the confidence-scaled, complexity-capped TTL without
// writing anything. Exposed so callers can report the TTL they would get.
func (s *ResultCacheService) EffectiveTTL(engine string, baseTTL time.Duration, confidence *float64) time.Duration {
	ttl := baseTTL
	if confidence != nil {
		scale := *confidence * 2
		if scale < ttlScaleMin {
			scale = ttlScaleMin
		}
		if scale > ttlScaleMax {
			scale = ttlScaleMax
		}
		ttl = time.Duration(float64(baseTTL) * scale)
	}
	if ceiling, ok := s.tiers.TTLCeiling(engine); ok && ttl > ceiling {
		ttl = ceiling
	}
	return ttl
}

// InvalidateEngine removes every cached result for the engine. Not atomic: a
// concurrent reader can observe a partially invalidated cache. Individual
// delete failures are logged and skipped; the returned count is the number of
// keys actually removed.
func (s *ResultCacheService) InvalidateEngine(ctx context.Context, engine string) (int, error) {
	keys, err := store.ListAll(ctx, s.store, store.CacheEnginePrefix(engine))
	if err != nil {
		return 0, fmt.Errorf("failed to enumerate cache keys for %s: %w", engine, err)
	}

	removed := 0
	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil {
			slog.Warn("cache invalidation: delete failed, skipping",
				"engine", engine, "key", key, "error", err)
			continue
		}
		removed++
	}

	if s.metrics != nil {
		s.metrics.InvalidatedKeys.WithLabelValues("engine").Add(float64(removed))
	}
	slog.Info("engine cache invalidated", "engine", engine, "removed", removed, "enumerated", len(keys))
	return removed, nil
}

// Warm precomputes and caches results for the given inputs. Inputs are
// independent: one failing calculation is tallied and the batch continues.
// Successful results are written through the normal admission policy with the
// engine's complexity ceiling as the base TTL, so warmed entries live as long
// as the engine's tier allows.
func (s *ResultCacheService) Warm(ctx context.Context, engine string, inputs []map[string]any) (models.WarmResult, error) {
	if s.registry == nil {
		return models.WarmResult{}, fmt.Errorf("no engine registry configured")
	}

	baseTTL, ok := s.tiers.TTLCeiling(engine)
	if !ok {
		baseTTL = time.Hour
	}

	var result models.WarmResult
	for _, input := range inputs {
		if err := s.warmLimit.Wait(ctx); err != nil {
			// Context cancelled; report what we have.
			return result, err
		}

		engineResult, err := s.registry.Calculate(ctx, engine, input)
		if err != nil || !engineResult.Success {
			result.Failed++
			if err != nil {
				slog.Warn("cache warm: calculation failed", "engine", engine, "error", err)
			} else {
				slog.Warn("cache warm: calculation unsuccessful", "engine", engine, "reason", engineResult.Error)
			}
			if s.metrics != nil {
				s.metrics.WarmResults.WithLabelValues(engine, "failed").Inc()
			}
			continue
		}

		payload, err := json.Marshal(engineResult.Data)
		if err != nil {
			result.Failed++
			continue
		}

		set, err := s.Set(ctx, engine, input, payload, baseTTL, engineResult.Confidence, false)
		if err != nil {
			result.Failed++
			slog.Warn("cache warm: write failed", "engine", engine, "error", err)
			if s.metrics != nil {
				s.metrics.WarmResults.WithLabelValues(engine, "failed").Inc()
			}
			continue
		}
		if !set.Cached {
			result.Skipped++
			if s.metrics != nil {
				s.metrics.WarmResults.WithLabelValues(engine, "skipped").Inc()
			}
			continue
		}
		result.Warmed++
		if s.metrics != nil {
			s.metrics.WarmResults.WithLabelValues(engine, "warmed").Inc()
		}
	}

	slog.Info("cache warm complete",
		"engine", engine, "warmed", result.Warmed, "failed", result.Failed, "skipped", result.Skipped)
	return result, nil
}

func (s *ResultCacheService) recordHit(ctx context.Context, engine string) {
	if s.stats != nil {
		s.stats.RecordHit(ctx, engine)
	}
	if s.metrics != nil {
		s.metrics.CacheHits.WithLabelValues(engine).Inc()
	}
}

func (s *ResultCacheService) recordMiss(ctx context.Context, engine string) {
	if s.stats != nil {
		s.stats.RecordMiss(ctx, engine)
	}
	if s.metrics != nil {
		s.metrics.CacheMisses.WithLabelValues(engine).Inc()
	}
}
