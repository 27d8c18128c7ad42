package jobs

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"arcanum/internal/services"
	"arcanum/internal/store"
)

// IndexRepairJob rebuilds day buckets for recently active users. Appends mark
// activity under timeline_active:{date}:{userId}; the nightly sweep rebuilds
// each marked bucket from the entry log, repairing any index updates lost to
// concurrent writers during the day.
type IndexRepairJob struct {
	store    store.Store
	timeline *services.TimelineService
}

// NewIndexRepairJob creates the repair job.
func NewIndexRepairJob(s store.Store, timeline *services.TimelineService) *IndexRepairJob {
	return &IndexRepairJob{store: s, timeline: timeline}
}

// Run repairs the buckets for yesterday and today.
func (j *IndexRepairJob) Run(ctx context.Context) error {
	now := time.Now().UTC()
	for _, date := range []string{
		now.AddDate(0, 0, -1).Format("2006-01-02"),
		now.Format("2006-01-02"),
	} {
		if err := j.repairDate(ctx, date); err != nil {
			return err
		}
	}
	return nil
}

func (j *IndexRepairJob) repairDate(ctx context.Context, date string) error {
	prefix := store.TimelineActivePrefix(date)
	keys, err := store.ListAll(ctx, j.store, prefix)
	if err != nil {
		return err
	}

	rebuilt := 0
	for _, key := range keys {
		userID := strings.TrimPrefix(key, prefix)
		if userID == "" {
			continue
		}
		if _, err := j.timeline.RebuildIndex(ctx, userID, date); err != nil {
			slog.Warn("index repair: rebuild failed, skipping user",
				"user_id", userID, "date", date, "error", err)
			continue
		}
		rebuilt++
	}
	if rebuilt > 0 {
		slog.Info("index repair complete", "date", date, "rebuilt", rebuilt)
	}
	return nil
}
