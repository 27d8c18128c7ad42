package models

import "time"

// CacheEntry is a single cached calculation result, keyed by engine + input fingerprint.
type CacheEntry struct {
	Engine           string    `json:"engine"`
	InputFingerprint string    `json:"inputFingerprint"`
	Payload          []byte    `json:"payload"`
	CanonicalInput   string    `json:"canonicalInput,omitempty"` // set for paranoid-mode read verification
	CachedAt         time.Time `json:"cachedAt"`
	TTLSeconds       int       `json:"ttlSeconds"`
	Confidence       *float64  `json:"confidence,omitempty"`
}

// SetResult reports whether a cache write happened and, if not, why.
type SetResult struct {
	Cached bool   `json:"cached"`
	Reason string `json:"reason,omitempty"`
	// TTLSeconds is the effective TTL applied when Cached is true.
	TTLSeconds int `json:"ttlSeconds,omitempty"`
}

// Skip reasons for SetResult.Reason
const (
	SkipReasonLowConfidence = "low_confidence"
)

// WarmResult aggregates the outcome of a cache warming batch.
type WarmResult struct {
	Warmed  int `json:"warmed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"` // calculations that succeeded but were gated out of the cache
}

// EngineCacheStats holds hit/miss counters for a single engine.
type EngineCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// CacheStats is the assembled process-wide cache statistics view.
type CacheStats struct {
	TotalRequests int64                       `json:"totalRequests"`
	TotalHits     int64                       `json:"totalHits"`
	TotalMisses   int64                       `json:"totalMisses"`
	EngineStats   map[string]EngineCacheStats `json:"engineStats"`
}

// HitRate returns the overall hit ratio in [0,1], 0 when no requests were recorded.
func (s *CacheStats) HitRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.TotalHits) / float64(s.TotalRequests)
}
