package store

import "fmt"

// Logical key layout. Every persisted document lives under one of these
// schemes; the separator is part of the contract because timeline keys sort
// lexicographically by the embedded RFC3339 timestamp.
//
//	cache:{engine}:{inputFingerprint}
//	cache:stats:*                       (counter keys)
//	profile:{userId}:{engine}:{isoTimestamp}
//	quick:{userId}:{engine}
//	timeline:{userId}:{isoTimestamp}:{entryId}
//	timeline_index:{userId}:{date}
//	forecast:{userId}:*                 (derived caches swept on user invalidation)
//	tlstats:{userId}
const (
	StatsRequestsKey = "cache:stats:requests"
	StatsHitsKey     = "cache:stats:hits"
	StatsMissesKey   = "cache:stats:misses"
	StatsEnginesKey  = "cache:stats:engines"
	StatsGlobalKey   = "cache:stats:global" // legacy read-modify-write document
)

// CacheKey addresses one cached calculation result.
func CacheKey(engine, fingerprint string) string {
	return fmt.Sprintf("cache:%s:%s", engine, fingerprint)
}

// CacheEnginePrefix covers every cached result for one engine.
func CacheEnginePrefix(engine string) string {
	return fmt.Sprintf("cache:%s:", engine)
}

// StatsEngineKey addresses the hit or miss counter for one engine.
// kind is "hits" or "misses".
func StatsEngineKey(engine, kind string) string {
	return fmt.Sprintf("cache:stats:engine:%s:%s", engine, kind)
}

// ProfileKey addresses one immutable profile version.
func ProfileKey(userID, engine, timestamp string) string {
	return fmt.Sprintf("profile:%s:%s:%s", userID, engine, timestamp)
}

// ProfileEnginePrefix covers every version of one user's per-engine profile.
func ProfileEnginePrefix(userID, engine string) string {
	return fmt.Sprintf("profile:%s:%s:", userID, engine)
}

// ProfileUserPrefix covers every profile version a user has, across engines.
func ProfileUserPrefix(userID string) string {
	return fmt.Sprintf("profile:%s:", userID)
}

// QuickAccessKey addresses the hot-tier pointer for one (user, engine).
func QuickAccessKey(userID, engine string) string {
	return fmt.Sprintf("quick:%s:%s", userID, engine)
}

// QuickAccessUserPrefix covers all of a user's hot-tier pointers.
func QuickAccessUserPrefix(userID string) string {
	return fmt.Sprintf("quick:%s:", userID)
}

// TimelineEntryKey addresses one timeline entry. The timestamp component
// comes first so a lexicographic sort of keys is a chronological sort.
func TimelineEntryKey(userID, timestamp, entryID string) string {
	return fmt.Sprintf("timeline:%s:%s:%s", userID, timestamp, entryID)
}

// TimelineUserPrefix covers a user's whole entry log.
func TimelineUserPrefix(userID string) string {
	return fmt.Sprintf("timeline:%s:", userID)
}

// TimelineIndexKey addresses the day bucket for one (user, date).
func TimelineIndexKey(userID, date string) string {
	return fmt.Sprintf("timeline_index:%s:%s", userID, date)
}

// TimelineActiveKey marks that a user appended entries on a date. The repair
// job scans these markers to find day buckets worth rebuilding.
func TimelineActiveKey(date, userID string) string {
	return fmt.Sprintf("timeline_active:%s:%s", date, userID)
}

// TimelineActivePrefix covers all activity markers for one date.
func TimelineActivePrefix(date string) string {
	return fmt.Sprintf("timeline_active:%s:", date)
}

// WarmSetKey addresses the operator-seeded list of known inputs the periodic
// warm job precomputes for one engine.
func WarmSetKey(engine string) string {
	return fmt.Sprintf("warmset:%s", engine)
}

// ForecastUserPrefix covers derived forecast caches for one user.
func ForecastUserPrefix(userID string) string {
	return fmt.Sprintf("forecast:%s:", userID)
}

// TimelineStatsCacheKey addresses the cached timeline stats document.
func TimelineStatsCacheKey(userID string) string {
	return fmt.Sprintf("tlstats:%s", userID)
}
