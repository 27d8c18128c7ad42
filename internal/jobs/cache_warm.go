package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"arcanum/internal/services"
	"arcanum/internal/store"
)

// CacheWarmJob periodically precomputes cache entries for the configured
// engines from their operator-seeded warm sets (warmset:{engine} documents).
// Engines without a warm set are skipped quietly.
type CacheWarmJob struct {
	store       store.Store
	maintenance *services.MaintenanceService
	engines     []string
}

// NewCacheWarmJob creates the warm job for the given engines.
func NewCacheWarmJob(s store.Store, maintenance *services.MaintenanceService, engines []string) *CacheWarmJob {
	return &CacheWarmJob{store: s, maintenance: maintenance, engines: engines}
}

// Run warms each configured engine. Per-engine failures are tallied and do
// not stop the remaining engines.
func (j *CacheWarmJob) Run(ctx context.Context) error {
	for _, engine := range j.engines {
		data, found, err := j.store.Get(ctx, store.WarmSetKey(engine))
		if err != nil {
			slog.Warn("warm job: warm set read failed", "engine", engine, "error", err)
			continue
		}
		if !found {
			slog.Debug("warm job: no warm set", "engine", engine)
			continue
		}

		var inputs []map[string]any
		if err := json.Unmarshal(data, &inputs); err != nil {
			slog.Warn("warm job: corrupt warm set", "engine", engine, "error", err)
			continue
		}
		if len(inputs) == 0 {
			continue
		}

		result, err := j.maintenance.WarmEngineCache(ctx, engine, inputs)
		if err != nil {
			slog.Warn("warm job: warming aborted", "engine", engine, "error", err)
			continue
		}
		slog.Info("warm job: engine warmed",
			"engine", engine, "warmed", result.Warmed, "failed", result.Failed, "skipped", result.Skipped)
	}
	return nil
}
