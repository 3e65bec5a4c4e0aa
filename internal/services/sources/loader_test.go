package sources

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/moatasim-KT/career-copilot-sub004/internal/interfaces"
	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
)

// kvStub is an in-memory KeyValueStorage for loader tests
type kvStub struct {
	pairs map[string]string
}

func (s *kvStub) Get(_ context.Context, key string) (string, error) {
	value, ok := s.pairs[key]
	if !ok {
		return "", interfaces.ErrKeyNotFound
	}
	return value, nil
}

func (s *kvStub) Set(_ context.Context, key, value string) error {
	s.pairs[key] = value
	return nil
}

func (s *kvStub) Delete(_ context.Context, key string) error {
	if _, ok := s.pairs[key]; !ok {
		return interfaces.ErrKeyNotFound
	}
	delete(s.pairs, key)
	return nil
}

func (s *kvStub) Increment(_ context.Context, _ string, delta int64) (int64, error) {
	return delta, nil
}

func (s *kvStub) ListByPrefix(_ context.Context, prefix string) ([]interfaces.KeyValuePair, error) {
	var pairs []interfaces.KeyValuePair
	for key, value := range s.pairs {
		if prefix == "" || len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			pairs = append(pairs, interfaces.KeyValuePair{Key: key, Value: value})
		}
	}
	return pairs, nil
}

func writeDefinition(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func newTestLoader(pairs map[string]string) *Loader {
	if pairs == nil {
		pairs = map[string]string{}
	}
	return NewLoader(&kvStub{pairs: pairs}, arbor.NewLogger())
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "acme.yaml", `
name: acme
type: greenhouse
display_name: Acme Corp
board: acme
enabled: true
`)
	writeDefinition(t, dir, "globex.yml", `
name: globex
type: lever
board: globex
enabled: false
`)
	writeDefinition(t, dir, "notes.txt", "not a definition")

	loader := newTestLoader(nil)
	defs, err := loader.Load(context.Background(), dir)

	require.NoError(t, err)
	require.Len(t, defs, 2)

	byName := make(map[string]*models.SourceDefinition, len(defs))
	for _, def := range defs {
		byName[def.Name] = def
	}

	acme := byName["acme"]
	require.NotNil(t, acme)
	assert.Equal(t, models.SourceTypeGreenhouse, acme.Type)
	assert.Equal(t, "Acme Corp", acme.DisplayName)
	assert.True(t, acme.Enabled)
	assert.False(t, acme.CreatedAt.IsZero())

	globex := byName["globex"]
	require.NotNil(t, globex)
	assert.Equal(t, models.SourceTypeLever, globex.Type)
	assert.False(t, globex.Enabled)
}

func TestLoader_LoadResolvesKeyReferences(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "adzuna.yaml", `
name: adzuna-us
type: adzuna
enabled: true
auth:
  app_id: "{adzuna-app-id}"
  app_key: "{adzuna-app-key}"
queries:
  - keywords: golang
    location: remote
`)

	loader := newTestLoader(map[string]string{
		"adzuna-app-id":  "id-123",
		"adzuna-app-key": "key-456",
	})
	defs, err := loader.Load(context.Background(), dir)

	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "id-123", defs[0].Auth.AppID)
	assert.Equal(t, "key-456", defs[0].Auth.AppKey)
}

func TestLoader_LoadUnresolvedReferenceLeftInPlace(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "adzuna.yaml", `
name: adzuna-us
type: adzuna
enabled: true
auth:
  app_id: "{missing-key}"
  app_key: "key"
queries:
  - keywords: golang
`)

	// The unresolved reference stays in place; adzuna validation still
	// passes because the value is non-empty. The fetch will fail with a
	// permanent auth error instead.
	loader := newTestLoader(nil)
	defs, err := loader.Load(context.Background(), dir)

	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "{missing-key}", defs[0].Auth.AppID)
}

func TestLoader_LoadNameDefaultsFromFilename(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "acme-board.yaml", `
type: greenhouse
board: acme
enabled: true
`)

	loader := newTestLoader(nil)
	defs, err := loader.Load(context.Background(), dir)

	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "acme-board", defs[0].Name)
}

func TestLoader_LoadDuplicateName(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "a.yaml", `
name: acme
type: greenhouse
board: acme
`)
	writeDefinition(t, dir, "b.yaml", `
name: acme
type: lever
board: acme
`)

	loader := newTestLoader(nil)
	_, err := loader.Load(context.Background(), dir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "already defined")
}

func TestLoader_LoadValidationFailure(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "bad.yaml", `
name: bad
type: greenhouse
enabled: true
`)

	loader := newTestLoader(nil)
	_, err := loader.Load(context.Background(), dir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "board token")
}

func TestLoader_LoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "broken.yaml", "\tname: [")

	loader := newTestLoader(nil)
	_, err := loader.Load(context.Background(), dir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.yaml")
}

func TestLoader_LoadMissingDirectory(t *testing.T) {
	loader := newTestLoader(nil)

	_, err := loader.Load(context.Background(), filepath.Join(t.TempDir(), "nope"))

	require.Error(t, err)
}

func TestLoader_LoadEmptyDirectory(t *testing.T) {
	loader := newTestLoader(nil)

	defs, err := loader.Load(context.Background(), t.TempDir())

	require.NoError(t, err)
	assert.Empty(t, defs)
}
