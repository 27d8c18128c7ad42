package jobs

import (
	"context"
	"testing"

	"arcanum/internal/engines"
	"arcanum/internal/models"
	"arcanum/internal/services"
	"arcanum/internal/store"
)

func newWarmFixture(warmEngines []string) (*CacheWarmJob, *services.ResultCacheService, *store.MemoryStore) {
	backend := store.NewMemoryStore()
	stats := services.NewCacheStatsService(backend, true)
	registry := engines.NewRegistry()
	registry.Register("demo", func(_ context.Context, _ map[string]any) (*models.EngineResult, error) {
		confidence := 0.95
		return &models.EngineResult{
			Success:    true,
			Data:       map[string]any{"ok": true},
			Confidence: &confidence,
		}, nil
	})
	cache := services.NewResultCacheService(backend, stats, engines.NewTiers(), registry, nil, 0.7, false, 1000)
	timeline := services.NewTimelineService(backend, 10000, nil)
	maintenance := services.NewMaintenanceService(backend, cache, timeline, nil, 0)
	return NewCacheWarmJob(backend, maintenance, warmEngines), cache, backend
}

func TestCacheWarmJobWarmsSeededInputs(t *testing.T) {
	job, cache, backend := newWarmFixture([]string{"demo"})
	ctx := context.Background()

	if err := backend.Put(ctx, store.WarmSetKey("demo"), []byte(`[{"n":1},{"n":2}]`), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := job.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, input := range []map[string]any{{"n": 1}, {"n": 2}} {
		if _, found, _ := cache.Get(ctx, "demo", input); !found {
			t.Errorf("Input %v should be warmed", input)
		}
	}
}

func TestCacheWarmJobSkipsMissingAndCorruptSets(t *testing.T) {
	job, _, backend := newWarmFixture([]string{"demo", "other"})
	ctx := context.Background()

	// "demo" has a corrupt warm set, "other" has none; both are skipped
	// without failing the run.
	if err := backend.Put(ctx, store.WarmSetKey("demo"), []byte("not json"), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := job.Run(ctx); err != nil {
		t.Errorf("Run should tolerate missing and corrupt warm sets: %v", err)
	}
}
