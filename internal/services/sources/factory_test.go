package sources

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/moatasim-KT/career-copilot-sub004/internal/common"
	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
)

func newTestFactory() *Factory {
	cfg := &common.FetchConfig{
		UserAgent:      "test-agent/1.0",
		RequestTimeout: 5 * time.Second,
		MaxBodySize:    1 << 20,
	}
	return NewFactory(cfg, arbor.NewLogger())
}

func TestFactory_BuildEveryType(t *testing.T) {
	factory := newTestFactory()
	defer factory.Close()

	defs := []*models.SourceDefinition{
		{
			Name: "adzuna-us", Type: models.SourceTypeAdzuna, Enabled: true,
			Auth:    models.SourceAuth{AppID: "id", AppKey: "key"},
			Queries: []models.QuerySpec{{Keywords: "golang"}},
		},
		{Name: "acme", Type: models.SourceTypeGreenhouse, Board: "acme", Enabled: true},
		{Name: "globex", Type: models.SourceTypeLever, Board: "globex", Enabled: true},
		{
			Name: "initech-careers", Type: models.SourceTypeHTMLBoard, Enabled: true,
			BaseURL: "https://initech.example.com/careers",
			HTML:    &models.HTMLOptions{ItemSelector: "li.job", TitleSelector: "h3"},
		},
		{
			Name: "acme-hiring", Type: models.SourceTypeGitHub, Enabled: true,
			Auth:   models.SourceAuth{Token: "ghp_test"},
			GitHub: &models.GitHubOptions{Owner: "acme", Repo: "hiring"},
		},
		{
			Name: "job-alerts", Type: models.SourceTypeEmailAlerts, Enabled: false,
			Auth:  models.SourceAuth{Username: "u", Password: "p"},
			Email: &models.EmailOptions{Host: "imap.example.com"},
		},
	}

	adapters, err := factory.BuildAll(defs)

	require.NoError(t, err)
	require.Len(t, adapters, len(defs), "disabled sources get adapters too")

	for _, def := range defs {
		adapter, ok := adapters[def.Name]
		require.True(t, ok, "missing adapter for %s", def.Name)
		assert.Equal(t, def.Name, adapter.Name())
		assert.Equal(t, def.Type, adapter.Type())
	}
}

func TestFactory_BuildUnknownType(t *testing.T) {
	factory := newTestFactory()
	defer factory.Close()

	_, err := factory.Build(&models.SourceDefinition{Name: "odd", Type: "gopher-board"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no adapter for type")
}
