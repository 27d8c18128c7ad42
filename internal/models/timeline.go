package models

// TimelineEntryType classifies a timeline event.
type TimelineEntryType string

const (
	EntryTypeCalculation TimelineEntryType = "calculation"
	EntryTypeWorkflow    TimelineEntryType = "workflow"
	EntryTypeInsight     TimelineEntryType = "insight"
	EntryTypeNote        TimelineEntryType = "note"
)

// TimelineMetadata carries per-entry bookkeeping recorded at append time.
type TimelineMetadata struct {
	Confidence *float64 `json:"confidence,omitempty"`
	Cached     bool     `json:"cached"`
	RequestID  string   `json:"requestId,omitempty"`
	Accuracy   *float64 `json:"accuracy,omitempty"`
	DurationMs *int64   `json:"durationMs,omitempty"`
}

// TimelineEntry is one immutable event in a user's timeline. Entries are only
// ever replaced wholesale (Update) or deleted (Remove); they never expire.
type TimelineEntry struct {
	ID            string            `json:"id"`
	UserID        string            `json:"userId"`
	Timestamp     string            `json:"timestamp"` // RFC3339 UTC
	Type          TimelineEntryType `json:"type"`
	EngineName    string            `json:"engineName,omitempty"`
	WorkflowType  string            `json:"workflowType,omitempty"`
	Input         map[string]any    `json:"input,omitempty"`
	Result        map[string]any    `json:"result,omitempty"`
	Metadata      TimelineMetadata  `json:"metadata"`
	LinkedEntries []string          `json:"linkedEntries,omitempty"`
	ParentEntry   string            `json:"parentEntry,omitempty"`
	ChildEntries  []string          `json:"childEntries,omitempty"`
}

// TimelineIndex is the per-user per-day bucket derived from the entry log.
// It is maintained by non-atomic read-modify-write and may briefly disagree
// with the entries themselves; RebuildIndex restores it from the log.
type TimelineIndex struct {
	UserID     string              `json:"userId"`
	Date       string              `json:"date"` // YYYY-MM-DD
	EntryIDs   []string            `json:"entryIds"`
	EntryCount int                 `json:"entryCount"`
	Types      []TimelineEntryType `json:"types"`
	Engines    []string            `json:"engines"`
}

// TimelineQuery selects a slice of a user's timeline.
type TimelineQuery struct {
	StartDate string            `json:"startDate,omitempty"` // YYYY-MM-DD inclusive
	EndDate   string            `json:"endDate,omitempty"`   // YYYY-MM-DD inclusive
	Type      TimelineEntryType `json:"type,omitempty"`
	Limit     int               `json:"limit,omitempty"`
	Offset    int               `json:"offset,omitempty"`
	SortOrder string            `json:"sortOrder,omitempty"` // "asc" or "desc" (default)
}

// TimelineQueryResult is one page of timeline entries.
//
// Total counts entries after the date filter but before the type filter, so
// offset-based pagination walks a stable sequence even when a type filter
// thins out individual pages.
type TimelineQueryResult struct {
	Entries    []*TimelineEntry `json:"entries"`
	Total      int              `json:"total"`
	HasMore    bool             `json:"hasMore"`
	NextOffset *int             `json:"nextOffset,omitempty"`
}

// TimelineStats is the single-pass aggregation over a user's timeline.
type TimelineStats struct {
	TotalEntries     int                       `json:"totalEntries"`
	ByType           map[TimelineEntryType]int `json:"byType"`
	ByEngine         map[string]int            `json:"byEngine"`
	ByWorkflow       map[string]int            `json:"byWorkflow"`
	AvgConfidence    float64                   `json:"avgConfidence"`
	AvgAccuracy      float64                   `json:"avgAccuracy"`
	MostUsedEngine   string                    `json:"mostUsedEngine,omitempty"`
	MostUsedWorkflow string                    `json:"mostUsedWorkflow,omitempty"`
	FirstEntryDate   string                    `json:"firstEntryDate,omitempty"`
	LastEntryDate    string                    `json:"lastEntryDate,omitempty"`
	// StreakDays is the longest run of consecutive calendar days with at
	// least one entry, not the run ending today.
	StreakDays int `json:"streakDays"`
}
