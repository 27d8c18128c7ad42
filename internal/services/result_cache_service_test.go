package services

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"arcanum/internal/engines"
	"arcanum/internal/models"
	"arcanum/internal/store"
)

func floatPtr(v float64) *float64 { return &v }

func newTestCache(paranoid bool) (*ResultCacheService, *store.MemoryStore) {
	backend := store.NewMemoryStore()
	stats := NewCacheStatsService(backend, true)
	registry := engines.NewRegistry()
	svc := NewResultCacheService(backend, stats, engines.NewTiers(), registry, nil, 0.7, paranoid, 1000)
	return svc, backend
}

func TestResultCacheRoundTrip(t *testing.T) {
	svc, _ := newTestCache(false)
	ctx := context.Background()
	input := map[string]any{"birthDate": "1990-05-15", "spread": "celtic_cross"}
	payload := []byte(`{"cards":["the_fool"]}`)

	set, err := svc.Set(ctx, "tarot", input, payload, time.Hour, floatPtr(0.9), false)
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !set.Cached {
		t.Fatalf("Expected write to be admitted, got reason %q", set.Reason)
	}

	// Key order must not matter on the read side.
	got, found, err := svc.Get(ctx, "tarot", map[string]any{"spread": "celtic_cross", "birthDate": "1990-05-15"})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found {
		t.Fatal("Expected a cache hit")
	}
	if string(got) != string(payload) {
		t.Errorf("Payload mismatch: got %s", got)
	}
}

func TestResultCacheMiss(t *testing.T) {
	svc, _ := newTestCache(false)

	_, found, err := svc.Get(context.Background(), "tarot", map[string]any{"spread": "unknown"})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Error("Expected a miss for an uncached input")
	}
}

func TestResultCacheConfidenceGating(t *testing.T) {
	svc, _ := newTestCache(false)
	ctx := context.Background()
	input := map[string]any{"question": "should I?"}

	set, err := svc.Set(ctx, "iching", input, []byte(`{}`), time.Hour, floatPtr(0.4), false)
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if set.Cached {
		t.Fatal("Low-confidence result must not be cached")
	}
	if set.Reason != models.SkipReasonLowConfidence {
		t.Errorf("Expected reason %q, got %q", models.SkipReasonLowConfidence, set.Reason)
	}
	if _, found, _ := svc.Get(ctx, "iching", input); found {
		t.Error("Skipped write must leave no entry behind")
	}

	// force overrides the admission policy.
	set, err = svc.Set(ctx, "iching", input, []byte(`{}`), time.Hour, floatPtr(0.4), true)
	if err != nil {
		t.Fatalf("Forced Set failed: %v", err)
	}
	if !set.Cached {
		t.Error("Forced write should be admitted despite low confidence")
	}
}

func TestResultCacheNilConfidenceIsCached(t *testing.T) {
	svc, _ := newTestCache(false)

	set, err := svc.Set(context.Background(), "tarot", map[string]any{"q": 1}, []byte(`{}`), time.Hour, nil, false)
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !set.Cached {
		t.Error("A result without a confidence should be cached at base TTL")
	}
	if set.TTLSeconds != int(time.Hour.Seconds()) {
		t.Errorf("Expected base TTL %d, got %d", int(time.Hour.Seconds()), set.TTLSeconds)
	}
}

func TestEffectiveTTL(t *testing.T) {
	svc, _ := newTestCache(false)
	base := time.Hour

	tests := []struct {
		name       string
		engine     string
		confidence *float64
		want       time.Duration
	}{
		{"nil confidence keeps base", "custom_engine", nil, base},
		{"full confidence doubles", "custom_engine", floatPtr(1.0), 2 * base},
		{"midpoint keeps base", "custom_engine", floatPtr(0.5), base},
		{"floor clamps at half", "custom_engine", floatPtr(0.1), base / 2},
		{"zero clamps at half", "custom_engine", floatPtr(0.0), base / 2},
		{"simple tier capped", "numerology", floatPtr(1.0), engines.SimpleTTLCeiling},
		{"medium tier capped", "tarot", floatPtr(1.0), engines.MediumTTLCeiling},
		{"complex tier under ceiling", "natal_chart", floatPtr(1.0), 2 * base},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := svc.EffectiveTTL(tt.engine, base, tt.confidence); got != tt.want {
				t.Errorf("EffectiveTTL(%s, %v) = %v, want %v", tt.engine, tt.confidence, got, tt.want)
			}
		})
	}
}

func TestEffectiveTTLMonotonic(t *testing.T) {
	svc, _ := newTestCache(false)
	base := time.Hour

	prev := time.Duration(-1)
	for c := 0.0; c <= 1.0; c += 0.05 {
		conf := c
		ttl := svc.EffectiveTTL("custom_engine", base, &conf)
		if ttl < prev {
			t.Fatalf("TTL decreased from %v to %v at confidence %.2f", prev, ttl, c)
		}
		prev = ttl
	}
}

func TestInvalidateEngine(t *testing.T) {
	svc, _ := newTestCache(false)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		input := map[string]any{"n": i}
		if _, err := svc.Set(ctx, "tarot", input, []byte(`{}`), time.Hour, nil, false); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	otherInput := map[string]any{"n": 0}
	if _, err := svc.Set(ctx, "numerology", otherInput, []byte(`{}`), time.Hour, nil, false); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	removed, err := svc.InvalidateEngine(ctx, "tarot")
	if err != nil {
		t.Fatalf("InvalidateEngine failed: %v", err)
	}
	if removed != 3 {
		t.Errorf("Expected 3 keys removed, got %d", removed)
	}

	if _, found, _ := svc.Get(ctx, "tarot", map[string]any{"n": 0}); found {
		t.Error("Invalidated engine should read as a miss")
	}
	if _, found, _ := svc.Get(ctx, "numerology", otherInput); !found {
		t.Error("Other engines must be untouched by a scoped invalidation")
	}
}

func TestParanoidCollisionReadsAsMiss(t *testing.T) {
	svc, backend := newTestCache(true)
	ctx := context.Background()
	input := map[string]any{"birthDate": "1990-05-15"}

	fingerprint, err := engines.Fingerprint(input)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}

	// Simulate a colliding entry: right fingerprint, different canonical input.
	entry := models.CacheEntry{
		Engine:           "tarot",
		InputFingerprint: fingerprint,
		Payload:          []byte(`{"cards":[]}`),
		CanonicalInput:   `{"birthDate":"1971-01-01"}`,
		CachedAt:         time.Now().UTC(),
	}
	data, _ := json.Marshal(&entry)
	if err := backend.Put(ctx, store.CacheKey("tarot", fingerprint), data, time.Hour); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, found, err := svc.Get(ctx, "tarot", input); err != nil || found {
		t.Errorf("Collision should read as a miss, got found=%v err=%v", found, err)
	}
}

func TestParanoidVerificationPassesOnHonestHit(t *testing.T) {
	svc, _ := newTestCache(true)
	ctx := context.Background()
	input := map[string]any{"birthDate": "1990-05-15"}

	if _, err := svc.Set(ctx, "tarot", input, []byte(`{}`), time.Hour, nil, false); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, found, err := svc.Get(ctx, "tarot", input); err != nil || !found {
		t.Errorf("Expected a verified hit, got found=%v err=%v", found, err)
	}
}

func TestCorruptEntryReadsAsMiss(t *testing.T) {
	svc, backend := newTestCache(false)
	ctx := context.Background()
	input := map[string]any{"n": 1}

	fingerprint, _ := engines.Fingerprint(input)
	if err := backend.Put(ctx, store.CacheKey("tarot", fingerprint), []byte("not json"), time.Hour); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	_, found, err := svc.Get(ctx, "tarot", input)
	if err != nil {
		t.Fatalf("Corrupt entry must not surface an error: %v", err)
	}
	if found {
		t.Error("Corrupt entry should read as a miss")
	}
}

func TestWarmPartialFailure(t *testing.T) {
	svc, _ := newTestCache(false)
	ctx := context.Background()

	svc.registry.Register("demo", func(_ context.Context, input map[string]any) (*models.EngineResult, error) {
		if fail, _ := input["fail"].(bool); fail {
			return nil, fmt.Errorf("synthetic failure")
		}
		return &models.EngineResult{
			Success:    true,
			Data:       map[string]any{"ok": true},
			Confidence: floatPtr(0.95),
		}, nil
	})

	inputs := []map[string]any{
		{"n": 1},
		{"n": 2, "fail": true},
		{"n": 3},
	}
	result, err := svc.Warm(ctx, "demo", inputs)
	if err != nil {
		t.Fatalf("Warm failed: %v", err)
	}
	if result.Warmed != 2 || result.Failed != 1 || result.Skipped != 0 {
		t.Errorf("Warm = %+v, want {Warmed:2 Failed:1 Skipped:0}", result)
	}

	// The successful entries are retrievable afterwards.
	if _, found, _ := svc.Get(ctx, "demo", map[string]any{"n": 1}); !found {
		t.Error("Warmed entry should be a hit")
	}
	if _, found, _ := svc.Get(ctx, "demo", map[string]any{"n": 2, "fail": true}); found {
		t.Error("Failed calculation must not leave a cache entry")
	}
}

func TestWarmSkipsGatedResults(t *testing.T) {
	svc, _ := newTestCache(false)
	ctx := context.Background()

	svc.registry.Register("hesitant", func(_ context.Context, _ map[string]any) (*models.EngineResult, error) {
		return &models.EngineResult{
			Success:    true,
			Data:       map[string]any{},
			Confidence: floatPtr(0.2),
		}, nil
	})

	result, err := svc.Warm(ctx, "hesitant", []map[string]any{{"n": 1}})
	if err != nil {
		t.Fatalf("Warm failed: %v", err)
	}
	if result.Skipped != 1 || result.Warmed != 0 || result.Failed != 0 {
		t.Errorf("Warm = %+v, want {Warmed:0 Failed:0 Skipped:1}", result)
	}
}

func TestWarmUnknownEngine(t *testing.T) {
	svc, _ := newTestCache(false)

	result, err := svc.Warm(context.Background(), "nonexistent", []map[string]any{{"n": 1}})
	if err != nil {
		t.Fatalf("Warm failed: %v", err)
	}
	// An unregistered engine fails every input but never aborts the batch.
	if result.Failed != 1 || result.Warmed != 0 {
		t.Errorf("Warm = %+v, want {Warmed:0 Failed:1}", result)
	}
}
