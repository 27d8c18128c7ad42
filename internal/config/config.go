package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all application configuration
type Config struct {
	Port        string
	Environment string
	RedisURL    string // empty = in-memory store (dev/test)

	// Result cache
	ConfidenceThreshold float64       // writes below this are skipped unless forced
	CacheBaseTTL        time.Duration // base TTL before confidence scaling
	CacheParanoid       bool          // verify canonical input on every cache hit
	StatsEnabled        bool          // track hit/miss counters
	EngineTiersFile     string        // optional YAML overriding engine complexity tiers

	// Profile store
	EncryptionMasterKey string // optional; empty disables payload encryption
	QuickAccessEngines  []string
	QuickAccessTTL      time.Duration
	ProfileTTLHigh      time.Duration
	ProfileTTLNormal    time.Duration
	ProfileTTLLow       time.Duration

	// Timeline
	TimelineStatsCap      int           // hard cap on entries scanned per stats call
	TimelineStatsCacheTTL time.Duration // TTL of the warmed stats document

	// Jobs
	WarmSchedule      string // cron expression for the cache warm job
	RepairSchedule    string // cron expression for the index repair job
	WarmRatePerSecond float64
	WarmEngines       []string // engines the warm job precomputes
	DemoEngines       bool     // register built-in demo calculators
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	cfg := &Config{
		Port:        getEnv("PORT", "3001"),
		Environment: getEnv("ENVIRONMENT", "development"),
		RedisURL:    getEnv("REDIS_URL", ""),

		ConfidenceThreshold: getFloatEnv("CONFIDENCE_THRESHOLD", 0.7),
		CacheBaseTTL:        getDurationEnv("CACHE_BASE_TTL", time.Hour),
		CacheParanoid:       getBoolEnv("CACHE_PARANOID", false),
		StatsEnabled:        getBoolEnv("CACHE_STATS_ENABLED", true),
		EngineTiersFile:     getEnv("ENGINE_TIERS_FILE", ""),

		EncryptionMasterKey: getEnv("ENCRYPTION_MASTER_KEY", ""),
		QuickAccessEngines:  getListEnv("QUICK_ACCESS_ENGINES", "natal_chart,numerology,biorhythm"),
		QuickAccessTTL:      getDurationEnv("QUICK_ACCESS_TTL", 15*time.Minute),
		ProfileTTLHigh:      getDurationEnv("PROFILE_TTL_HIGH", 90*24*time.Hour),
		ProfileTTLNormal:    getDurationEnv("PROFILE_TTL_NORMAL", 30*24*time.Hour),
		ProfileTTLLow:       getDurationEnv("PROFILE_TTL_LOW", 7*24*time.Hour),

		TimelineStatsCap:      getIntEnv("TIMELINE_STATS_CAP", 10000),
		TimelineStatsCacheTTL: getDurationEnv("TIMELINE_STATS_CACHE_TTL", 10*time.Minute),

		WarmSchedule:      getEnv("WARM_SCHEDULE", "0 */6 * * *"),
		RepairSchedule:    getEnv("REPAIR_SCHEDULE", "30 3 * * *"),
		WarmRatePerSecond: getFloatEnv("WARM_RATE_PER_SECOND", 5),
		WarmEngines:       getListEnv("WARM_ENGINES", ""),
		DemoEngines:       getBoolEnv("DEMO_ENGINES", false),
	}

	// Validate cron schedules up front so a bad value surfaces at boot, not
	// at the first scheduled run.
	for name, expr := range map[string]string{
		"WARM_SCHEDULE":   cfg.WarmSchedule,
		"REPAIR_SCHEDULE": cfg.RepairSchedule,
	} {
		if _, err := cron.ParseStandard(expr); err != nil {
			log.Printf("⚠️ Invalid %s %q: %v (job will be skipped)", name, expr, err)
		}
	}

	return cfg
}

// Validate reports configuration errors that should abort startup.
func (c *Config) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("CONFIDENCE_THRESHOLD must be in [0,1], got %f", c.ConfidenceThreshold)
	}
	if c.CacheBaseTTL <= 0 {
		return fmt.Errorf("CACHE_BASE_TTL must be positive, got %s", c.CacheBaseTTL)
	}
	if c.TimelineStatsCap <= 0 {
		return fmt.Errorf("TIMELINE_STATS_CAP must be positive, got %d", c.TimelineStatsCap)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
		log.Printf("⚠️ Invalid boolean for %s: %s, using default", key, value)
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
		log.Printf("⚠️ Invalid integer for %s: %s, using default", key, value)
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
		log.Printf("⚠️ Invalid float for %s: %s, using default", key, value)
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
		log.Printf("⚠️ Invalid duration for %s: %s, using default", key, value)
	}
	return defaultValue
}

func getListEnv(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
