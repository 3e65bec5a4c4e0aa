package badger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// KeyFile is one section of a TOML key file. Each section name becomes the
// key name used by {key-name} references in source definitions.
//
//	[adzuna-app-key]
//	value = "abc123"
//	description = "Adzuna API key"
type KeyFile struct {
	Value       string `toml:"value"`
	Description string `toml:"description"`
}

// LoadKeysFromFiles loads key/value pairs from every .toml file in the keys
// directory into the KV store. Called at startup, before source definitions
// are loaded and their {key-name} references resolved. A missing directory
// is not an error; sources without references work without one.
func (m *Manager) LoadKeysFromFiles(ctx context.Context, dirPath string) error {
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		m.logger.Debug().Str("path", dirPath).Msg("Keys directory not found, skipping")
		return nil
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("failed to read keys directory: %w", err)
	}

	loadedCount := 0
	skippedCount := 0

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".toml" {
			continue
		}

		filePath := filepath.Join(dirPath, entry.Name())
		sections, err := m.loadKeyFile(filePath)
		if err != nil {
			m.logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to load key file")
			skippedCount++
			continue
		}

		for name, key := range sections {
			name = strings.TrimSpace(name)
			if name == "" || key.Value == "" {
				m.logger.Warn().
					Str("file", entry.Name()).
					Str("key", name).
					Msg("Key section missing name or value, skipping")
				skippedCount++
				continue
			}

			if err := m.kv.Set(ctx, name, key.Value); err != nil {
				m.logger.Warn().Err(err).Str("key", name).Msg("Failed to store key")
				skippedCount++
				continue
			}
			loadedCount++
		}
	}

	m.logger.Info().
		Str("path", dirPath).
		Int("loaded", loadedCount).
		Int("skipped", skippedCount).
		Msg("Loaded keys from files")

	return nil
}

// loadKeyFile parses one TOML key file into its sections
func (m *Manager) loadKeyFile(filePath string) (map[string]KeyFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var sections map[string]KeyFile
	if err := toml.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	return sections, nil
}
