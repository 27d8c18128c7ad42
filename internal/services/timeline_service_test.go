package services

import (
	"context"
	"fmt"
	"testing"

	"arcanum/internal/models"
	"arcanum/internal/store"
)

func newTestTimeline() (*TimelineService, *store.MemoryStore) {
	backend := store.NewMemoryStore()
	return NewTimelineService(backend, 10000, nil), backend
}

func appendEntry(t *testing.T, svc *TimelineService, userID, timestamp string, entry models.TimelineEntry) *models.TimelineEntry {
	t.Helper()
	entry.UserID = userID
	entry.Timestamp = timestamp
	if err := svc.Append(context.Background(), &entry); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	return &entry
}

func TestTimelineAppendDefaults(t *testing.T) {
	svc, _ := newTestTimeline()

	entry := appendEntry(t, svc, "user-1", "2024-03-01T08:00:00.123+02:00", models.TimelineEntry{})

	if entry.ID == "" {
		t.Error("Append should assign an ID")
	}
	if entry.Type != models.EntryTypeCalculation {
		t.Errorf("Default type = %s, want calculation", entry.Type)
	}
	// Normalized: UTC, seconds precision.
	if entry.Timestamp != "2024-03-01T06:00:00Z" {
		t.Errorf("Timestamp = %s, want 2024-03-01T06:00:00Z", entry.Timestamp)
	}
}

func TestTimelineAppendRejectsBadInput(t *testing.T) {
	svc, _ := newTestTimeline()
	ctx := context.Background()

	if err := svc.Append(ctx, &models.TimelineEntry{Timestamp: "2024-03-01T08:00:00Z"}); err == nil {
		t.Error("Append without a user ID should fail")
	}
	if err := svc.Append(ctx, &models.TimelineEntry{UserID: "u", Timestamp: "yesterday"}); err == nil {
		t.Error("Append with an unparseable timestamp should fail")
	}
}

func TestTimelineQueryOrdering(t *testing.T) {
	svc, _ := newTestTimeline()
	ctx := context.Background()

	e1 := appendEntry(t, svc, "user-1", "2024-03-01T08:00:00Z", models.TimelineEntry{ID: "e1"})
	e2 := appendEntry(t, svc, "user-1", "2024-03-01T10:00:00Z", models.TimelineEntry{ID: "e2"})
	e3 := appendEntry(t, svc, "user-1", "2024-03-01T12:00:00Z", models.TimelineEntry{ID: "e3"})

	// Default order is newest first.
	page, err := svc.Query(ctx, "user-1", models.TimelineQuery{Limit: 2})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(page.Entries) != 2 || page.Entries[0].ID != e3.ID || page.Entries[1].ID != e2.ID {
		t.Fatalf("Expected [e3, e2], got %d entries", len(page.Entries))
	}
	if page.Total != 3 {
		t.Errorf("Total = %d, want 3", page.Total)
	}
	if !page.HasMore || page.NextOffset == nil || *page.NextOffset != 2 {
		t.Errorf("Expected hasMore with nextOffset 2, got hasMore=%v nextOffset=%v", page.HasMore, page.NextOffset)
	}

	// Second page picks up exactly where the first left off.
	page, err = svc.Query(ctx, "user-1", models.TimelineQuery{Limit: 2, Offset: *page.NextOffset})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(page.Entries) != 1 || page.Entries[0].ID != e1.ID {
		t.Fatalf("Expected [e1] on the second page")
	}
	if page.HasMore {
		t.Error("Last page should not report more")
	}

	// Ascending order reverses the walk.
	page, err = svc.Query(ctx, "user-1", models.TimelineQuery{SortOrder: "asc"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if page.Entries[0].ID != e1.ID || page.Entries[2].ID != e3.ID {
		t.Error("Ascending query should return oldest first")
	}
}

func TestTimelineQueryPaginationIsExhaustive(t *testing.T) {
	svc, _ := newTestTimeline()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		timestamp := fmt.Sprintf("2024-03-01T%02d:00:00Z", 8+i)
		appendEntry(t, svc, "user-1", timestamp, models.TimelineEntry{ID: fmt.Sprintf("e%d", i)})
	}

	seen := make(map[string]bool)
	offset := 0
	for {
		page, err := svc.Query(ctx, "user-1", models.TimelineQuery{Limit: 3, Offset: offset, SortOrder: "asc"})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		for _, entry := range page.Entries {
			if seen[entry.ID] {
				t.Errorf("Entry %s returned twice", entry.ID)
			}
			seen[entry.ID] = true
		}
		if !page.HasMore {
			break
		}
		offset = *page.NextOffset
	}
	if len(seen) != 10 {
		t.Errorf("Pagination covered %d of 10 entries", len(seen))
	}
}

func TestTimelineQueryDateFilter(t *testing.T) {
	svc, _ := newTestTimeline()
	ctx := context.Background()

	appendEntry(t, svc, "user-1", "2024-02-28T12:00:00Z", models.TimelineEntry{ID: "feb"})
	appendEntry(t, svc, "user-1", "2024-03-01T12:00:00Z", models.TimelineEntry{ID: "mar1"})
	appendEntry(t, svc, "user-1", "2024-03-02T12:00:00Z", models.TimelineEntry{ID: "mar2"})

	page, err := svc.Query(ctx, "user-1", models.TimelineQuery{
		StartDate: "2024-03-01",
		EndDate:   "2024-03-01",
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(page.Entries) != 1 || page.Entries[0].ID != "mar1" {
		t.Errorf("Date filter should keep only mar1, got %d entries", len(page.Entries))
	}
	if page.Total != 1 {
		t.Errorf("Total = %d, want 1", page.Total)
	}
}

func TestTimelineQueryTypeFilter(t *testing.T) {
	svc, _ := newTestTimeline()
	ctx := context.Background()

	appendEntry(t, svc, "user-1", "2024-03-01T08:00:00Z", models.TimelineEntry{ID: "c1", Type: models.EntryTypeCalculation})
	appendEntry(t, svc, "user-1", "2024-03-01T09:00:00Z", models.TimelineEntry{ID: "n1", Type: models.EntryTypeNote})
	appendEntry(t, svc, "user-1", "2024-03-01T10:00:00Z", models.TimelineEntry{ID: "c2", Type: models.EntryTypeCalculation})

	page, err := svc.Query(ctx, "user-1", models.TimelineQuery{Type: models.EntryTypeNote})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(page.Entries) != 1 || page.Entries[0].ID != "n1" {
		t.Errorf("Type filter should keep only n1, got %d entries", len(page.Entries))
	}
	// Total is pre-type-filter so offsets stay stable across pages.
	if page.Total != 3 {
		t.Errorf("Total = %d, want 3", page.Total)
	}
}

func TestTimelineUpdate(t *testing.T) {
	svc, _ := newTestTimeline()
	ctx := context.Background()

	entry := appendEntry(t, svc, "user-1", "2024-03-01T08:00:00Z", models.TimelineEntry{
		ID:   "e1",
		Type: models.EntryTypeNote,
	})

	entry.Result = map[string]any{"revised": true}
	if err := svc.Update(ctx, entry); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	page, err := svc.Query(ctx, "user-1", models.TimelineQuery{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if revised, _ := page.Entries[0].Result["revised"].(bool); !revised {
		t.Error("Update should overwrite the stored entry")
	}

	// Updating an entry that was never appended is an error.
	missing := &models.TimelineEntry{UserID: "user-1", ID: "ghost", Timestamp: "2024-03-01T08:00:00Z"}
	if err := svc.Update(ctx, missing); err == nil {
		t.Error("Updating an absent entry should fail")
	}
}

func TestTimelineRemoveUpdatesIndex(t *testing.T) {
	svc, _ := newTestTimeline()
	ctx := context.Background()

	appendEntry(t, svc, "user-1", "2024-03-01T08:00:00Z", models.TimelineEntry{ID: "e1"})
	appendEntry(t, svc, "user-1", "2024-03-01T09:00:00Z", models.TimelineEntry{ID: "e2"})

	if err := svc.Remove(ctx, "user-1", "e1", "2024-03-01T08:00:00Z"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	page, err := svc.Query(ctx, "user-1", models.TimelineQuery{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(page.Entries) != 1 || page.Entries[0].ID != "e2" {
		t.Error("Removed entry should disappear from queries")
	}

	index, found, err := svc.Index(ctx, "user-1", "2024-03-01")
	if err != nil || !found {
		t.Fatalf("Index read failed: found=%v err=%v", found, err)
	}
	if index.EntryCount != 1 || containsString(index.EntryIDs, "e1") {
		t.Errorf("Index should drop e1, got %+v", index)
	}
}

func TestTimelineIndexMaintainedOnAppend(t *testing.T) {
	svc, _ := newTestTimeline()
	ctx := context.Background()

	appendEntry(t, svc, "user-1", "2024-03-01T08:00:00Z", models.TimelineEntry{
		ID: "e1", Type: models.EntryTypeCalculation, EngineName: "tarot",
	})
	appendEntry(t, svc, "user-1", "2024-03-01T09:00:00Z", models.TimelineEntry{
		ID: "e2", Type: models.EntryTypeNote,
	})
	// A different day lands in a different bucket.
	appendEntry(t, svc, "user-1", "2024-03-02T09:00:00Z", models.TimelineEntry{ID: "e3"})

	index, found, err := svc.Index(ctx, "user-1", "2024-03-01")
	if err != nil || !found {
		t.Fatalf("Index read failed: found=%v err=%v", found, err)
	}
	if index.EntryCount != 2 {
		t.Errorf("EntryCount = %d, want 2", index.EntryCount)
	}
	if !containsType(index.Types, models.EntryTypeCalculation) || !containsType(index.Types, models.EntryTypeNote) {
		t.Errorf("Types = %v, want both calculation and note", index.Types)
	}
	if !containsString(index.Engines, "tarot") {
		t.Errorf("Engines = %v, want tarot", index.Engines)
	}
}

func TestTimelineRebuildIndexRepairsTamperedBucket(t *testing.T) {
	svc, backend := newTestTimeline()
	ctx := context.Background()

	appendEntry(t, svc, "user-1", "2024-03-01T08:00:00Z", models.TimelineEntry{ID: "e1", EngineName: "tarot"})
	appendEntry(t, svc, "user-1", "2024-03-01T09:00:00Z", models.TimelineEntry{ID: "e2", EngineName: "iching"})

	// Simulate a lost bucket update by clobbering the index document.
	if err := backend.Put(ctx, store.TimelineIndexKey("user-1", "2024-03-01"), []byte(`{"userId":"user-1","date":"2024-03-01","entryIds":["e1"],"entryCount":1}`), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	index, err := svc.RebuildIndex(ctx, "user-1", "2024-03-01")
	if err != nil {
		t.Fatalf("RebuildIndex failed: %v", err)
	}
	if index.EntryCount != 2 || !containsString(index.EntryIDs, "e2") {
		t.Errorf("Rebuilt index = %+v, want both entries", index)
	}
	if !containsString(index.Engines, "tarot") || !containsString(index.Engines, "iching") {
		t.Errorf("Rebuilt engines = %v, want both", index.Engines)
	}

	// The repaired document is what subsequent reads see.
	stored, found, err := svc.Index(ctx, "user-1", "2024-03-01")
	if err != nil || !found {
		t.Fatalf("Index read failed: found=%v err=%v", found, err)
	}
	if stored.EntryCount != 2 {
		t.Errorf("Stored index EntryCount = %d, want 2", stored.EntryCount)
	}
}

func TestTimelineRebuildIndexBadDate(t *testing.T) {
	svc, _ := newTestTimeline()
	if _, err := svc.RebuildIndex(context.Background(), "user-1", "March 1st"); err == nil {
		t.Error("RebuildIndex should reject non-YYYY-MM-DD dates")
	}
}

func TestTimelineStats(t *testing.T) {
	svc, _ := newTestTimeline()
	ctx := context.Background()

	appendEntry(t, svc, "user-1", "2024-01-01T08:00:00Z", models.TimelineEntry{
		ID: "e1", Type: models.EntryTypeCalculation, EngineName: "tarot",
		Metadata: models.TimelineMetadata{Confidence: floatPtr(0.8)},
	})
	appendEntry(t, svc, "user-1", "2024-01-02T08:00:00Z", models.TimelineEntry{
		ID: "e2", Type: models.EntryTypeCalculation, EngineName: "tarot",
		Metadata: models.TimelineMetadata{Confidence: floatPtr(0.6)},
	})
	appendEntry(t, svc, "user-1", "2024-01-03T08:00:00Z", models.TimelineEntry{
		ID: "e3", Type: models.EntryTypeWorkflow, WorkflowType: "daily_reading", EngineName: "numerology",
	})
	appendEntry(t, svc, "user-1", "2024-01-05T08:00:00Z", models.TimelineEntry{
		ID: "e4", Type: models.EntryTypeNote,
	})

	stats, err := svc.Stats(ctx, "user-1")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}

	if stats.TotalEntries != 4 {
		t.Errorf("TotalEntries = %d, want 4", stats.TotalEntries)
	}
	if stats.ByType[models.EntryTypeCalculation] != 2 || stats.ByType[models.EntryTypeNote] != 1 {
		t.Errorf("ByType = %v", stats.ByType)
	}
	if stats.MostUsedEngine != "tarot" {
		t.Errorf("MostUsedEngine = %s, want tarot", stats.MostUsedEngine)
	}
	if stats.MostUsedWorkflow != "daily_reading" {
		t.Errorf("MostUsedWorkflow = %s, want daily_reading", stats.MostUsedWorkflow)
	}
	// Average over the entries that report a confidence, not all entries.
	if stats.AvgConfidence < 0.699 || stats.AvgConfidence > 0.701 {
		t.Errorf("AvgConfidence = %v, want 0.7", stats.AvgConfidence)
	}
	if stats.FirstEntryDate != "2024-01-01" || stats.LastEntryDate != "2024-01-05" {
		t.Errorf("Date range = %s..%s", stats.FirstEntryDate, stats.LastEntryDate)
	}
	// Days 01-01..01-03 are consecutive, 01-05 breaks the run.
	if stats.StreakDays != 3 {
		t.Errorf("StreakDays = %d, want 3", stats.StreakDays)
	}
}

func TestTimelineStatsEmpty(t *testing.T) {
	svc, _ := newTestTimeline()

	stats, err := svc.Stats(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalEntries != 0 || stats.StreakDays != 0 {
		t.Errorf("Empty timeline stats = %+v", stats)
	}
}

func TestLongestStreak(t *testing.T) {
	tests := []struct {
		name  string
		dates []string
		want  int
	}{
		{"empty", nil, 0},
		{"single day", []string{"2024-01-01"}, 1},
		{"gap resets", []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-05"}, 3},
		{"longest not last", []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-10", "2024-01-11"}, 3},
		{"month boundary", []string{"2024-01-31", "2024-02-01"}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dateSet := make(map[string]bool)
			for _, date := range tt.dates {
				dateSet[date] = true
			}
			if got := longestStreak(dateSet); got != tt.want {
				t.Errorf("longestStreak = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSplitEntryKey(t *testing.T) {
	prefix := store.TimelineUserPrefix("user-1")
	key := store.TimelineEntryKey("user-1", "2024-03-01T08:00:00Z", "abc-123")

	timestamp, entryID, ok := splitEntryKey(key, prefix)
	if !ok {
		t.Fatal("splitEntryKey should parse a well-formed key")
	}
	if timestamp != "2024-03-01T08:00:00Z" || entryID != "abc-123" {
		t.Errorf("Parsed (%s, %s)", timestamp, entryID)
	}

	if _, _, ok := splitEntryKey("other:user-1:x", prefix); ok {
		t.Error("Foreign prefix should not parse")
	}
}

func TestTimelineIsolatedPerUser(t *testing.T) {
	svc, _ := newTestTimeline()
	ctx := context.Background()

	appendEntry(t, svc, "user-1", "2024-03-01T08:00:00Z", models.TimelineEntry{ID: "e1"})
	appendEntry(t, svc, "user-2", "2024-03-01T08:00:00Z", models.TimelineEntry{ID: "e2"})

	page, err := svc.Query(ctx, "user-1", models.TimelineQuery{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(page.Entries) != 1 || page.Entries[0].ID != "e1" {
		t.Error("Queries must not leak across users")
	}
}
