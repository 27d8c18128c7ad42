package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"arcanum/internal/crypto"
	"arcanum/internal/models"
	"arcanum/internal/store"
)

// profileTimestampLayout is fixed-width so version keys sort
// lexicographically in chronological order. ReadLatest still parses and
// compares timestamps instead of trusting store listing order.
const profileTimestampLayout = "2006-01-02T15:04:05.000000000Z"

// identityKeys marks payloads carrying birth/identity data, which change
// rarely and get double the retention of ordinary profile data.
var identityKeys = []string{
	"birthDate", "birth_date", "dateOfBirth",
	"birthTime", "birth_time",
	"birthPlace", "birth_place",
	"fullName", "full_name",
}

// maxSummaryFields bounds the quick-access projection size.
const maxSummaryFields = 5

// ProfileService stores versioned per-user per-engine profile snapshots.
// Every write is a new version; nothing is mutated in place. Engines on the
// hot-tier list additionally get a short-TTL QuickAccessSummary pointing at
// their newest version.
type ProfileService struct {
	store      store.Store
	encryption *crypto.EncryptionService // nil disables payload encryption
	hotTier    map[string]bool
	quickTTL   time.Duration
	ttlHigh    time.Duration
	ttlNormal  time.Duration
	ttlLow     time.Duration
}

// ProfileConfig carries the tuning knobs for NewProfileService.
type ProfileConfig struct {
	QuickAccessEngines []string
	QuickAccessTTL     time.Duration
	TTLHigh            time.Duration
	TTLNormal          time.Duration
	TTLLow             time.Duration
}

// NewProfileService creates the profile store. encryption may be nil.
func NewProfileService(s store.Store, encryption *crypto.EncryptionService, cfg ProfileConfig) *ProfileService {
	hotTier := make(map[string]bool, len(cfg.QuickAccessEngines))
	for _, engine := range cfg.QuickAccessEngines {
		hotTier[engine] = true
	}
	return &ProfileService{
		store:      s,
		encryption: encryption,
		hotTier:    hotTier,
		quickTTL:   cfg.QuickAccessTTL,
		ttlHigh:    cfg.TTLHigh,
		ttlNormal:  cfg.TTLNormal,
		ttlLow:     cfg.TTLLow,
	}
}

// Write creates a new profile version and returns its version timestamp.
// Hot-tier engines also get their quick-access pointer refreshed, best
// effort: a failed pointer write never fails the profile write.
func (s *ProfileService) Write(ctx context.Context, userID, engine string, payload []byte, opts models.ProfileWriteOptions) (string, error) {
	if userID == "" || engine == "" {
		return "", fmt.Errorf("user ID and engine name are required")
	}

	priority := opts.Priority
	if !priority.Valid() {
		priority = models.PriorityNormal
	}

	timestamp := time.Now().UTC().Format(profileTimestampLayout)
	record := models.ProfileRecord{
		UserID:        userID,
		EngineName:    engine,
		Timestamp:     timestamp,
		Payload:       payload,
		Priority:      priority,
		AccessPattern: s.accessPattern(engine, priority),
	}

	if s.encryption != nil {
		ciphertext, err := s.encryption.Encrypt(userID, payload)
		if err != nil {
			return "", fmt.Errorf("failed to encrypt profile payload: %w", err)
		}
		record.Payload = []byte(ciphertext)
		record.Encrypted = true
	}

	data, err := json.Marshal(&record)
	if err != nil {
		return "", fmt.Errorf("failed to encode profile record: %w", err)
	}

	key := store.ProfileKey(userID, engine, timestamp)
	if err := s.store.Put(ctx, key, data, s.ttlFor(priority, payload)); err != nil {
		return "", err
	}

	if s.hotTier[engine] || opts.ForceQuickAccess {
		s.refreshQuickAccess(ctx, userID, engine, key, payload)
	}

	slog.Debug("profile version written", "user_id", userID, "engine", engine, "version", timestamp)
	return timestamp, nil
}

// ReadLatest returns the newest profile version's payload.
//
// Hot-tier engines are served through the quick-access pointer when it is
// valid; a dangling pointer (the pointed-to version expired first) falls back
// to the full listing. The listing path parses the version timestamp out of
// every key and picks the maximum, because store listing order carries no
// chronology guarantee.
func (s *ProfileService) ReadLatest(ctx context.Context, userID, engine string) ([]byte, bool, error) {
	if s.hotTier[engine] {
		payload, found, err := s.readViaQuickAccess(ctx, userID, engine)
		if err != nil {
			return nil, false, err
		}
		if found {
			return payload, true, nil
		}
	}

	keys, err := store.ListAll(ctx, s.store, store.ProfileEnginePrefix(userID, engine))
	if err != nil {
		return nil, false, err
	}
	if len(keys) == 0 {
		return nil, false, nil
	}

	prefix := store.ProfileEnginePrefix(userID, engine)
	newestKey := ""
	var newest time.Time
	for _, key := range keys {
		if len(key) <= len(prefix) {
			continue
		}
		ts, err := time.Parse(profileTimestampLayout, key[len(prefix):])
		if err != nil {
			continue
		}
		if newestKey == "" || ts.After(newest) {
			newest = ts
			newestKey = key
		}
	}
	if newestKey == "" {
		return nil, false, nil
	}

	record, found, err := s.readRecord(ctx, newestKey, userID)
	if err != nil || !found {
		return nil, found, err
	}

	// Opportunistic quick-access refresh on read.
	if s.hotTier[engine] {
		s.refreshQuickAccess(ctx, userID, engine, newestKey, record.Payload)
	}
	return record.Payload, true, nil
}

// ReadVersion returns the payload of one exact version.
func (s *ProfileService) ReadVersion(ctx context.Context, userID, engine, timestamp string) ([]byte, bool, error) {
	record, found, err := s.readRecord(ctx, store.ProfileKey(userID, engine, timestamp), userID)
	if err != nil || !found {
		return nil, found, err
	}
	return record.Payload, true, nil
}

// ListVersions enumerates every profile key the user has, across engines.
func (s *ProfileService) ListVersions(ctx context.Context, userID string) ([]string, error) {
	return store.ListAll(ctx, s.store, store.ProfileUserPrefix(userID))
}

// DeleteAll removes every profile version and quick-access pointer for the
// user. Individual delete failures are logged and skipped.
func (s *ProfileService) DeleteAll(ctx context.Context, userID string) error {
	for _, prefix := range []string{
		store.ProfileUserPrefix(userID),
		store.QuickAccessUserPrefix(userID),
	} {
		keys, err := store.ListAll(ctx, s.store, prefix)
		if err != nil {
			return fmt.Errorf("failed to enumerate %q: %w", prefix, err)
		}
		for _, key := range keys {
			if err := s.store.Delete(ctx, key); err != nil {
				slog.Warn("profile delete failed, skipping", "user_id", userID, "key", key, "error", err)
			}
		}
	}
	slog.Info("profile data deleted", "user_id", userID)
	return nil
}

func (s *ProfileService) readViaQuickAccess(ctx context.Context, userID, engine string) ([]byte, bool, error) {
	quickKey := store.QuickAccessKey(userID, engine)
	data, found, err := s.store.Get(ctx, quickKey)
	if err != nil || !found {
		return nil, false, err
	}

	var summary models.QuickAccessSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		slog.Warn("corrupt quick-access summary, falling back", "user_id", userID, "engine", engine, "error", err)
		return nil, false, nil
	}

	record, found, err := s.readRecord(ctx, summary.PointerKey, userID)
	if err != nil {
		return nil, false, err
	}
	if !found {
		// Dangling pointer: the full record expired before the summary.
		slog.Debug("quick-access pointer dangling", "user_id", userID, "engine", engine)
		return nil, false, nil
	}

	summary.LastAccessed = time.Now().UTC()
	if refreshed, err := json.Marshal(&summary); err == nil {
		if err := s.store.Put(ctx, quickKey, refreshed, s.quickTTL); err != nil {
			slog.Debug("quick-access refresh failed", "user_id", userID, "engine", engine, "error", err)
		}
	}
	return record.Payload, true, nil
}

// readRecord fetches and decodes one profile record, decrypting the payload
// when needed. A corrupt record reads as absent.
func (s *ProfileService) readRecord(ctx context.Context, key, userID string) (*models.ProfileRecord, bool, error) {
	data, found, err := s.store.Get(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}

	var record models.ProfileRecord
	if err := json.Unmarshal(data, &record); err != nil {
		slog.Warn("corrupt profile record, treating as absent", "key", key, "error", err)
		return nil, false, nil
	}

	if record.Encrypted {
		if s.encryption == nil {
			return nil, false, fmt.Errorf("profile record %q is encrypted but no master key is configured", key)
		}
		plaintext, err := s.encryption.Decrypt(userID, string(record.Payload))
		if err != nil {
			return nil, false, fmt.Errorf("failed to decrypt profile payload: %w", err)
		}
		record.Payload = plaintext
	}
	return &record, true, nil
}

// refreshQuickAccess writes the hot-tier pointer. Best effort by design.
func (s *ProfileService) refreshQuickAccess(ctx context.Context, userID, engine, pointerKey string, payload []byte) {
	summary := models.QuickAccessSummary{
		UserID:       userID,
		EngineName:   engine,
		PointerKey:   pointerKey,
		Summary:      buildSummary(payload),
		LastAccessed: time.Now().UTC(),
	}
	data, err := json.Marshal(&summary)
	if err != nil {
		return
	}
	if err := s.store.Put(ctx, store.QuickAccessKey(userID, engine), data, s.quickTTL); err != nil {
		slog.Debug("quick-access write failed", "user_id", userID, "engine", engine, "error", err)
	}
}

// ttlFor derives the version TTL from the priority, doubled when the payload
// carries identity/birth data.
func (s *ProfileService) ttlFor(priority models.ProfilePriority, payload []byte) time.Duration {
	var ttl time.Duration
	switch priority {
	case models.PriorityHigh:
		ttl = s.ttlHigh
	case models.PriorityLow:
		ttl = s.ttlLow
	default:
		ttl = s.ttlNormal
	}
	if looksLikeIdentityData(payload) {
		ttl *= 2
	}
	return ttl
}

func (s *ProfileService) accessPattern(engine string, priority models.ProfilePriority) models.AccessPattern {
	if s.hotTier[engine] {
		return models.AccessFrequent
	}
	if priority == models.PriorityHigh {
		return models.AccessModerate
	}
	return models.AccessInfrequent
}

// looksLikeIdentityData reports whether the payload is a JSON object with any
// known birth/identity field at the top level.
func looksLikeIdentityData(payload []byte) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return false
	}
	for _, key := range identityKeys {
		if _, ok := fields[key]; ok {
			return true
		}
	}
	return false
}

// buildSummary extracts a small scalar projection of the payload for the
// quick-access document. Non-object payloads summarize to nil.
func buildSummary(payload []byte) map[string]any {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil
	}

	summary := make(map[string]any)
	for key, value := range fields {
		if len(summary) >= maxSummaryFields {
			break
		}
		switch v := value.(type) {
		case string:
			if len(v) > 120 {
				v = v[:120]
			}
			summary[key] = v
		case float64, bool, nil:
			summary[key] = v
		}
	}
	if len(summary) == 0 {
		return nil
	}
	return summary
}
