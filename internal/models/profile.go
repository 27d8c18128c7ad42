package models

import "time"

// ProfilePriority controls how long a profile version is retained.
type ProfilePriority string

const (
	PriorityHigh   ProfilePriority = "high"
	PriorityNormal ProfilePriority = "normal"
	PriorityLow    ProfilePriority = "low"
)

// Valid reports whether p is a known priority.
func (p ProfilePriority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// AccessPattern is a coarse hint recorded with each profile version.
type AccessPattern string

const (
	AccessFrequent   AccessPattern = "frequent"
	AccessModerate   AccessPattern = "moderate"
	AccessInfrequent AccessPattern = "infrequent"
)

// ProfileRecord is one immutable version of a user's per-engine profile.
// Every write creates a new record; versions are addressed by their timestamp.
type ProfileRecord struct {
	UserID        string          `json:"userId"`
	EngineName    string          `json:"engineName"`
	Timestamp     string          `json:"timestamp"` // RFC3339 UTC, doubles as the version key
	Payload       []byte          `json:"payload"`
	Encrypted     bool            `json:"encrypted,omitempty"`
	Priority      ProfilePriority `json:"priority"`
	AccessPattern AccessPattern   `json:"accessPattern"`
}

// QuickAccessSummary is the hot-tier pointer for frequently read engines.
// It carries a small plaintext projection of the payload and the key of the
// full record it points at. It may outlive or predecease that record; readers
// must tolerate a dangling pointer and fall back to the version listing.
type QuickAccessSummary struct {
	UserID       string         `json:"userId"`
	EngineName   string         `json:"engineName"`
	PointerKey   string         `json:"pointerKey"`
	Summary      map[string]any `json:"summary,omitempty"`
	LastAccessed time.Time      `json:"lastAccessed"`
}

// ProfileWriteOptions tunes a single profile write.
type ProfileWriteOptions struct {
	Priority         ProfilePriority `json:"priority,omitempty"`
	ForceQuickAccess bool            `json:"forceQuickAccess,omitempty"`
}
