package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"arcanum/internal/models"
	"arcanum/internal/store"

	"github.com/google/uuid"
)

const (
	defaultQueryLimit = 50
	activeMarkerTTL   = 48 * time.Hour
)

// TimelineService is the append-only per-user event log with per-day derived
// indexes.
//
// The entry write and the day-bucket update are two separate store calls with
// no transaction around them: concurrent appends on the same day can lose a
// bucket update (last writer wins on the whole document) even though every
// entry itself is durably written. The bucket is therefore an eventually
// consistent derived index; RebuildIndex recomputes it from the entries.
type TimelineService struct {
	store    store.Store
	statsCap int
	metrics  *Metrics
}

// NewTimelineService creates the timeline log. statsCap bounds how many
// entries a single Stats call will scan.
func NewTimelineService(s store.Store, statsCap int, metrics *Metrics) *TimelineService {
	if statsCap <= 0 {
		statsCap = 10000
	}
	return &TimelineService{store: s, statsCap: statsCap, metrics: metrics}
}

// Append durably writes the entry, then updates the day bucket for its date.
// Entries never expire. Missing IDs are assigned; timestamps default to now
// and are normalized to fixed-width RFC3339 UTC so that key order is
// chronological order.
func (s *TimelineService) Append(ctx context.Context, entry *models.TimelineEntry) error {
	if entry == nil || entry.UserID == "" {
		return fmt.Errorf("timeline entry requires a user ID")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Type == "" {
		entry.Type = models.EntryTypeCalculation
	}

	timestamp, err := normalizeTimestamp(entry.Timestamp)
	if err != nil {
		return err
	}
	entry.Timestamp = timestamp

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode timeline entry: %w", err)
	}
	if err := s.store.Put(ctx, store.TimelineEntryKey(entry.UserID, timestamp, entry.ID), data, 0); err != nil {
		return err
	}

	date := timestamp[:10]
	s.updateIndexOnAppend(ctx, entry, date)
	s.markActive(ctx, entry.UserID, date)

	if s.metrics != nil {
		s.metrics.TimelineAppends.Inc()
	}
	return nil
}

// Update overwrites an existing entry wholesale. The entry's timestamp and ID
// must match the stored version; updating an absent entry is an error.
func (s *TimelineService) Update(ctx context.Context, entry *models.TimelineEntry) error {
	if entry == nil || entry.UserID == "" || entry.ID == "" || entry.Timestamp == "" {
		return fmt.Errorf("timeline update requires user ID, entry ID and timestamp")
	}

	timestamp, err := normalizeTimestamp(entry.Timestamp)
	if err != nil {
		return err
	}
	entry.Timestamp = timestamp

	key := store.TimelineEntryKey(entry.UserID, timestamp, entry.ID)
	_, found, err := s.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("timeline entry %s not found", entry.ID)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode timeline entry: %w", err)
	}
	return s.store.Put(ctx, key, data, 0)
}

// Remove deletes the entry, then filters its ID out of the day bucket. The
// bucket update has the same lost-update caveat as Append.
func (s *TimelineService) Remove(ctx context.Context, userID, entryID, timestamp string) error {
	normalized, err := normalizeTimestamp(timestamp)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, store.TimelineEntryKey(userID, normalized, entryID)); err != nil {
		return err
	}
	s.updateIndexOnRemove(ctx, userID, entryID, normalized[:10])
	return nil
}

// Query returns one page of the user's timeline.
//
// It enumerates every entry key under the user's prefix, filters by the
// timestamp embedded in the key, sorts, and only then fetches the page that
// survives slicing — so the store round-trips are O(limit) even though the
// key scan is O(user's whole timeline). Bounded per-user timelines make that
// acceptable; the scanned-entries histogram watches the assumption.
func (s *TimelineService) Query(ctx context.Context, userID string, query models.TimelineQuery) (*models.TimelineQueryResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	offset := query.Offset
	if offset < 0 {
		offset = 0
	}

	keys, err := store.ListAll(ctx, s.store, store.TimelineUserPrefix(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate timeline for %s: %w", userID, err)
	}
	if s.metrics != nil {
		s.metrics.TimelineQueryEntries.Observe(float64(len(keys)))
	}

	// Date filter using only the key-embedded timestamp; no fetches yet.
	prefix := store.TimelineUserPrefix(userID)
	filtered := keys[:0:0]
	for _, key := range keys {
		ts, _, ok := splitEntryKey(key, prefix)
		if !ok {
			continue
		}
		date := ts[:10]
		if query.StartDate != "" && date < query.StartDate {
			continue
		}
		if query.EndDate != "" && date > query.EndDate {
			continue
		}
		filtered = append(filtered, key)
	}

	// Keys share a fixed-width timestamp segment, so a lexicographic sort is
	// a chronological sort.
	sort.Strings(filtered)
	if query.SortOrder != "asc" {
		for i, j := 0, len(filtered)-1; i < j; i, j = i+1, j-1 {
			filtered[i], filtered[j] = filtered[j], filtered[i]
		}
	}

	total := len(filtered)
	result := &models.TimelineQueryResult{
		Entries: []*models.TimelineEntry{},
		Total:   total,
	}

	if offset < total {
		end := offset + limit
		if end > total {
			end = total
		}
		for _, key := range filtered[offset:end] {
			entry, found := s.fetchEntry(ctx, key)
			if !found {
				continue
			}
			// Type lives only in the stored document, so this filter can
			// only run after the fetch.
			if query.Type != "" && entry.Type != query.Type {
				continue
			}
			result.Entries = append(result.Entries, entry)
		}
	}

	if offset+limit < total {
		result.HasMore = true
		next := offset + limit
		result.NextOffset = &next
	}
	return result, nil
}

// Stats aggregates the user's timeline in a single pass over at most
// statsCap entries.
func (s *TimelineService) Stats(ctx context.Context, userID string) (*models.TimelineStats, error) {
	page, err := s.Query(ctx, userID, models.TimelineQuery{
		Limit:     s.statsCap,
		SortOrder: "asc",
	})
	if err != nil {
		return nil, err
	}

	stats := &models.TimelineStats{
		TotalEntries: len(page.Entries),
		ByType:       make(map[models.TimelineEntryType]int),
		ByEngine:     make(map[string]int),
		ByWorkflow:   make(map[string]int),
	}

	var (
		confidenceSum   float64
		confidenceCount int
		accuracySum     float64
		accuracyCount   int
		engineMax       int
		workflowMax     int
		dateSet         = make(map[string]bool)
	)

	for _, entry := range page.Entries {
		stats.ByType[entry.Type]++

		if entry.EngineName != "" {
			stats.ByEngine[entry.EngineName]++
			// Strictly-greater keeps the first-seen engine on ties.
			if stats.ByEngine[entry.EngineName] > engineMax {
				engineMax = stats.ByEngine[entry.EngineName]
				stats.MostUsedEngine = entry.EngineName
			}
		}
		if entry.WorkflowType != "" {
			stats.ByWorkflow[entry.WorkflowType]++
			if stats.ByWorkflow[entry.WorkflowType] > workflowMax {
				workflowMax = stats.ByWorkflow[entry.WorkflowType]
				stats.MostUsedWorkflow = entry.WorkflowType
			}
		}

		if entry.Metadata.Confidence != nil {
			confidenceSum += *entry.Metadata.Confidence
			confidenceCount++
		}
		if entry.Metadata.Accuracy != nil {
			accuracySum += *entry.Metadata.Accuracy
			accuracyCount++
		}

		if len(entry.Timestamp) >= 10 {
			date := entry.Timestamp[:10]
			dateSet[date] = true
			if stats.FirstEntryDate == "" || date < stats.FirstEntryDate {
				stats.FirstEntryDate = date
			}
			if date > stats.LastEntryDate {
				stats.LastEntryDate = date
			}
		}
	}

	if confidenceCount > 0 {
		stats.AvgConfidence = confidenceSum / float64(confidenceCount)
	}
	if accuracyCount > 0 {
		stats.AvgAccuracy = accuracySum / float64(accuracyCount)
	}
	stats.StreakDays = longestStreak(dateSet)
	return stats, nil
}

// RebuildIndex recomputes the day bucket for (userID, date) from the entries
// themselves and overwrites whatever the bucket currently holds. This is the
// repair operation for buckets that lost updates to concurrent writers.
func (s *TimelineService) RebuildIndex(ctx context.Context, userID, date string) (*models.TimelineIndex, error) {
	if len(date) != 10 {
		return nil, fmt.Errorf("date must be YYYY-MM-DD, got %q", date)
	}

	// Entry keys start with the timestamp's date, so the day's entries live
	// under a single prefix.
	prefix := store.TimelineUserPrefix(userID) + date
	keys, err := store.ListAll(ctx, s.store, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate %s entries for %s: %w", date, userID, err)
	}
	sort.Strings(keys)

	index := &models.TimelineIndex{
		UserID:   userID,
		Date:     date,
		EntryIDs: []string{},
		Types:    []models.TimelineEntryType{},
		Engines:  []string{},
	}
	for _, key := range keys {
		entry, found := s.fetchEntry(ctx, key)
		if !found {
			continue
		}
		index.EntryIDs = append(index.EntryIDs, entry.ID)
		if !containsType(index.Types, entry.Type) {
			index.Types = append(index.Types, entry.Type)
		}
		if entry.EngineName != "" && !containsString(index.Engines, entry.EngineName) {
			index.Engines = append(index.Engines, entry.EngineName)
		}
	}
	index.EntryCount = len(index.EntryIDs)

	data, err := json.Marshal(index)
	if err != nil {
		return nil, fmt.Errorf("failed to encode timeline index: %w", err)
	}
	if err := s.store.Put(ctx, store.TimelineIndexKey(userID, date), data, 0); err != nil {
		return nil, err
	}

	slog.Info("timeline index rebuilt", "user_id", userID, "date", date, "entries", index.EntryCount)
	return index, nil
}

// Index returns the current day bucket without repairing it.
func (s *TimelineService) Index(ctx context.Context, userID, date string) (*models.TimelineIndex, bool, error) {
	data, found, err := s.store.Get(ctx, store.TimelineIndexKey(userID, date))
	if err != nil || !found {
		return nil, false, err
	}
	var index models.TimelineIndex
	if err := json.Unmarshal(data, &index); err != nil {
		slog.Warn("corrupt timeline index", "user_id", userID, "date", date, "error", err)
		return nil, false, nil
	}
	return &index, true, nil
}

func (s *TimelineService) updateIndexOnAppend(ctx context.Context, entry *models.TimelineEntry, date string) {
	index, found, err := s.Index(ctx, entry.UserID, date)
	if err != nil {
		slog.Warn("timeline index read failed, skipping update",
			"user_id", entry.UserID, "date", date, "error", err)
		return
	}
	if !found {
		index = &models.TimelineIndex{UserID: entry.UserID, Date: date}
	}

	if !containsString(index.EntryIDs, entry.ID) {
		index.EntryIDs = append(index.EntryIDs, entry.ID)
	}
	index.EntryCount = len(index.EntryIDs)
	if !containsType(index.Types, entry.Type) {
		index.Types = append(index.Types, entry.Type)
	}
	if entry.EngineName != "" && !containsString(index.Engines, entry.EngineName) {
		index.Engines = append(index.Engines, entry.EngineName)
	}

	s.writeIndex(ctx, index)
}

func (s *TimelineService) updateIndexOnRemove(ctx context.Context, userID, entryID, date string) {
	index, found, err := s.Index(ctx, userID, date)
	if err != nil || !found {
		if err != nil {
			slog.Warn("timeline index read failed, skipping update", "user_id", userID, "date", date, "error", err)
		}
		return
	}

	filtered := index.EntryIDs[:0:0]
	for _, id := range index.EntryIDs {
		if id != entryID {
			filtered = append(filtered, id)
		}
	}
	index.EntryIDs = filtered
	index.EntryCount = len(filtered)
	// Types and Engines are left as-is; RebuildIndex recomputes them exactly.

	s.writeIndex(ctx, index)
}

func (s *TimelineService) writeIndex(ctx context.Context, index *models.TimelineIndex) {
	data, err := json.Marshal(index)
	if err != nil {
		return
	}
	if err := s.store.Put(ctx, store.TimelineIndexKey(index.UserID, index.Date), data, 0); err != nil {
		slog.Warn("timeline index write failed",
			"user_id", index.UserID, "date", index.Date, "error", err)
	}
}

// markActive records that the user touched this date, for the repair job.
func (s *TimelineService) markActive(ctx context.Context, userID, date string) {
	if err := s.store.Put(ctx, store.TimelineActiveKey(date, userID), []byte("1"), activeMarkerTTL); err != nil {
		slog.Debug("timeline active marker write failed", "user_id", userID, "date", date, "error", err)
	}
}

func (s *TimelineService) fetchEntry(ctx context.Context, key string) (*models.TimelineEntry, bool) {
	data, found, err := s.store.Get(ctx, key)
	if err != nil {
		slog.Warn("timeline entry read failed, skipping", "key", key, "error", err)
		return nil, false
	}
	if !found {
		// Deleted between the scan and the fetch.
		return nil, false
	}
	var entry models.TimelineEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		slog.Warn("corrupt timeline entry, skipping", "key", key, "error", err)
		return nil, false
	}
	return &entry, true
}

// normalizeTimestamp parses ts (RFC3339, any precision) and reformats it as
// fixed-width seconds-precision RFC3339 UTC so that the key's timestamp
// segment sorts lexicographically. Empty means now.
func normalizeTimestamp(ts string) (string, error) {
	if ts == "" {
		return time.Now().UTC().Format(time.RFC3339), nil
	}
	parsed, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return "", fmt.Errorf("invalid timestamp %q: %w", ts, err)
	}
	return parsed.UTC().Format(time.RFC3339), nil
}

// splitEntryKey pulls the timestamp and entry ID out of a timeline key. The
// timestamp segment contains colons, so the ID is everything after the last
// colon (entry IDs never contain one).
func splitEntryKey(key, prefix string) (timestamp, entryID string, ok bool) {
	if !strings.HasPrefix(key, prefix) {
		return "", "", false
	}
	rest := key[len(prefix):]
	sep := strings.LastIndex(rest, ":")
	if sep <= 0 || sep == len(rest)-1 {
		return "", "", false
	}
	timestamp, entryID = rest[:sep], rest[sep+1:]
	if len(timestamp) < 10 {
		return "", "", false
	}
	return timestamp, entryID, true
}

// longestStreak finds the longest run of consecutive calendar days in the
// set. This is the longest streak ever, deliberately not the streak ending
// today.
func longestStreak(dateSet map[string]bool) int {
	if len(dateSet) == 0 {
		return 0
	}

	dates := make([]time.Time, 0, len(dateSet))
	for date := range dateSet {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			continue
		}
		dates = append(dates, parsed)
	}
	if len(dates) == 0 {
		return 0
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	longest, current := 1, 1
	for i := 1; i < len(dates); i++ {
		if dates[i].Sub(dates[i-1]) == 24*time.Hour {
			current++
			if current > longest {
				longest = current
			}
		} else {
			current = 1
		}
	}
	return longest
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

func containsType(list []models.TimelineEntryType, value models.TimelineEntryType) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
