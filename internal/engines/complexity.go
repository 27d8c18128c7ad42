package engines

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"arcanum/internal/models"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Per-tier TTL ceilings. Cheap engines get short ceilings because recomputing
// is nearly free; expensive ones are allowed to live a full day.
const (
	SimpleTTLCeiling  = 1 * time.Hour
	MediumTTLCeiling  = 6 * time.Hour
	ComplexTTLCeiling = 24 * time.Hour
)

// defaultTiers classifies the engines the platform ships with. Engines absent
// from the table have no ceiling.
var defaultTiers = map[string]models.EngineComplexity{
	"numerology":   models.ComplexitySimple,
	"biorhythm":    models.ComplexitySimple,
	"tarot":        models.ComplexityMedium,
	"iching":       models.ComplexityMedium,
	"gene_keys":    models.ComplexityMedium,
	"natal_chart":  models.ComplexityComplex,
	"transits":     models.ComplexityComplex,
	"human_design": models.ComplexityComplex,
}

// Tiers holds the engine -> complexity classification, optionally overridden
// from a YAML file that is hot-reloaded on change.
type Tiers struct {
	mu    sync.RWMutex
	tiers map[string]models.EngineComplexity
	path  string
}

type tiersFile struct {
	Engines map[string]string `yaml:"engines"`
}

// NewTiers returns the built-in classification table.
func NewTiers() *Tiers {
	tiers := make(map[string]models.EngineComplexity, len(defaultTiers))
	for name, tier := range defaultTiers {
		tiers[name] = tier
	}
	return &Tiers{tiers: tiers}
}

// LoadFile merges overrides from a YAML file on top of the built-in table.
func (t *Tiers) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read engine tiers file: %w", err)
	}

	var parsed tiersFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse engine tiers YAML: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for name, raw := range parsed.Engines {
		switch tier := models.EngineComplexity(raw); tier {
		case models.ComplexitySimple, models.ComplexityMedium, models.ComplexityComplex:
			t.tiers[name] = tier
		default:
			log.Printf("⚠️ [ENGINE-TIERS] Unknown tier %q for engine %q, skipping", raw, name)
		}
	}
	t.path = path
	return nil
}

// Watch hot-reloads the tiers file whenever it changes, until ctx is done.
func (t *Tiers) Watch(ctx context.Context) error {
	t.mu.RLock()
	path := t.path
	t.mu.RUnlock()
	if path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create tiers watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if err := t.LoadFile(path); err != nil {
						log.Printf("⚠️ [ENGINE-TIERS] Reload failed: %v", err)
					} else {
						log.Printf("🔄 [ENGINE-TIERS] Reloaded %s", path)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("⚠️ [ENGINE-TIERS] Watcher error: %v", err)
			}
		}
	}()
	return nil
}

// Classify returns the engine's complexity tier, if it has one.
func (t *Tiers) Classify(engine string) (models.EngineComplexity, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tier, ok := t.tiers[engine]
	return tier, ok
}

// TTLCeiling returns the maximum cache TTL for the engine. Unclassified
// engines have no ceiling and return ok=false.
func (t *Tiers) TTLCeiling(engine string) (time.Duration, bool) {
	tier, ok := t.Classify(engine)
	if !ok {
		return 0, false
	}
	switch tier {
	case models.ComplexitySimple:
		return SimpleTTLCeiling, true
	case models.ComplexityMedium:
		return MediumTTLCeiling, true
	default:
		return ComplexTTLCeiling, true
	}
}
