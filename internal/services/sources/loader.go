package sources

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/moatasim-KT/career-copilot-sub004/internal/common"
	"github.com/moatasim-KT/career-copilot-sub004/internal/interfaces"
	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
)

// Loader reads source definitions from YAML files. One file defines one
// source; a missing name defaults to the file name. Auth values may
// reference stored keys as {key-name}, resolved against the KV store.
type Loader struct {
	kv     interfaces.KeyValueStorage
	logger arbor.ILogger
}

// NewLoader creates a new source definition loader
func NewLoader(kv interfaces.KeyValueStorage, logger arbor.ILogger) *Loader {
	return &Loader{
		kv:     kv,
		logger: logger,
	}
}

// Load reads every .yaml/.yml file in dir, resolves key references,
// validates, and returns the definitions
func (l *Loader) Load(ctx context.Context, dir string) ([]*models.SourceDefinition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read source definitions directory %s: %w", dir, err)
	}

	kvMap, err := l.keyMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load key references: %w", err)
	}

	seen := make(map[string]string)
	var defs []*models.SourceDefinition

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		def, err := l.loadFile(filepath.Join(dir, entry.Name()), kvMap)
		if err != nil {
			return nil, fmt.Errorf("source definition %s: %w", entry.Name(), err)
		}

		if previous, dup := seen[def.Name]; dup {
			return nil, fmt.Errorf("source definition %s: name %q already defined in %s", entry.Name(), def.Name, previous)
		}
		seen[def.Name] = entry.Name()
		defs = append(defs, def)
	}

	if len(defs) == 0 {
		l.logger.Warn().Str("dir", dir).Msg("No source definitions found")
	} else {
		enabled := 0
		for _, def := range defs {
			if def.Enabled {
				enabled++
			}
		}
		l.logger.Info().
			Str("dir", dir).
			Int("sources", len(defs)).
			Int("enabled", enabled).
			Msg("Loaded source definitions")
	}

	return defs, nil
}

// loadFile parses and validates one definition file
func (l *Loader) loadFile(path string, kvMap map[string]string) (*models.SourceDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var def models.SourceDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if def.Name == "" {
		base := filepath.Base(path)
		def.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now().UTC()
	}

	if err := common.ReplaceInStruct(&def, kvMap, l.logger); err != nil {
		return nil, fmt.Errorf("failed to resolve key references: %w", err)
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}

	return &def, nil
}

// keyMap snapshots the KV store for {key-name} resolution
func (l *Loader) keyMap(ctx context.Context) (map[string]string, error) {
	pairs, err := l.kv.ListByPrefix(ctx, "")
	if err != nil {
		return nil, err
	}
	kvMap := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		kvMap[pair.Key] = pair.Value
	}
	return kvMap, nil
}
