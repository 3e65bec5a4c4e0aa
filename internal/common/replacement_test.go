package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestReplaceKeyReferences_Simple(t *testing.T) {
	logger := arbor.NewLogger()
	kvMap := map[string]string{"adzuna-app-key": "sk-12345"}

	result := ReplaceKeyReferences("app_key = {adzuna-app-key}", kvMap, logger)
	assert.Equal(t, "app_key = sk-12345", result)
}

func TestReplaceKeyReferences_Multiple(t *testing.T) {
	logger := arbor.NewLogger()
	kvMap := map[string]string{
		"key1": "val1",
		"key2": "val2",
	}

	result := ReplaceKeyReferences("a={key1}, b={key2}, c={key1}", kvMap, logger)
	assert.Equal(t, "a=val1, b=val2, c=val1", result)
}

func TestReplaceKeyReferences_MissingKeyLeftInPlace(t *testing.T) {
	logger := arbor.NewLogger()
	kvMap := map[string]string{"known": "value"}

	result := ReplaceKeyReferences("token = {unknown-key}", kvMap, logger)
	assert.Equal(t, "token = {unknown-key}", result)
}

func TestReplaceKeyReferences_NoReferences(t *testing.T) {
	logger := arbor.NewLogger()
	kvMap := map[string]string{"key": "value"}

	assert.Equal(t, "plain text", ReplaceKeyReferences("plain text", kvMap, logger))
	assert.Equal(t, "", ReplaceKeyReferences("", kvMap, logger))
}

func TestReplaceKeyReferences_InvalidSyntaxIgnored(t *testing.T) {
	logger := arbor.NewLogger()
	kvMap := map[string]string{"key": "value"}

	// Spaces and dots are not valid key characters
	assert.Equal(t, "{not a key}", ReplaceKeyReferences("{not a key}", kvMap, logger))
	assert.Equal(t, "{dotted.key}", ReplaceKeyReferences("{dotted.key}", kvMap, logger))
}

func TestReplaceInStruct_SourceDefinitionShape(t *testing.T) {
	logger := arbor.NewLogger()
	kvMap := map[string]string{
		"adzuna-app-id":  "id-123",
		"adzuna-app-key": "key-456",
		"board-token":    "tok-789",
		"base-url":       "https://board.example.com",
	}

	type auth struct {
		AppID   string
		AppKey  string
		Headers map[string]string
	}
	type htmlOptions struct {
		ItemSelector string
	}
	type definition struct {
		Name     string
		BaseURL  string
		Auth     auth
		HTML     *htmlOptions
		Keywords []string
	}

	def := &definition{
		Name:    "adzuna-de",
		BaseURL: "{base-url}",
		Auth: auth{
			AppID:  "{adzuna-app-id}",
			AppKey: "{adzuna-app-key}",
			Headers: map[string]string{
				"Authorization": "Bearer {board-token}",
			},
		},
		HTML: &htmlOptions{
			ItemSelector: ".job-{board-token}",
		},
		Keywords: []string{"{base-url}/search", "golang"},
	}

	require.NoError(t, ReplaceInStruct(def, kvMap, logger))

	assert.Equal(t, "adzuna-de", def.Name)
	assert.Equal(t, "https://board.example.com", def.BaseURL)
	assert.Equal(t, "id-123", def.Auth.AppID)
	assert.Equal(t, "key-456", def.Auth.AppKey)
	assert.Equal(t, "Bearer tok-789", def.Auth.Headers["Authorization"])
	assert.Equal(t, ".job-tok-789", def.HTML.ItemSelector)
	assert.Equal(t, "https://board.example.com/search", def.Keywords[0])
	assert.Equal(t, "golang", def.Keywords[1])
}

func TestReplaceInStruct_NilPointerAndNilMap(t *testing.T) {
	logger := arbor.NewLogger()

	type inner struct{ Value string }
	type outer struct {
		Inner   *inner
		Headers map[string]string
	}

	def := &outer{}
	require.NoError(t, ReplaceInStruct(def, map[string]string{"k": "v"}, logger))
	assert.Nil(t, def.Inner)
	assert.Nil(t, def.Headers)
}

func TestReplaceInStruct_UnexportedFieldsSkipped(t *testing.T) {
	logger := arbor.NewLogger()

	type withUnexported struct {
		Exported   string
		unexported string
	}

	def := &withUnexported{Exported: "{k}", unexported: "{k}"}
	require.NoError(t, ReplaceInStruct(def, map[string]string{"k": "v"}, logger))
	assert.Equal(t, "v", def.Exported)
	assert.Equal(t, "{k}", def.unexported)
}

func TestReplaceInStruct_RequiresStructPointer(t *testing.T) {
	logger := arbor.NewLogger()
	kvMap := map[string]string{}

	type s struct{ V string }

	assert.Error(t, ReplaceInStruct(s{}, kvMap, logger))

	v := "string"
	assert.Error(t, ReplaceInStruct(&v, kvMap, logger))
}
