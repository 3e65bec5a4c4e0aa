package sources

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/moatasim-KT/career-copilot-sub004/internal/common"
	"github.com/moatasim-KT/career-copilot-sub004/internal/interfaces"
	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
)

// Factory builds fetch adapters over shared infrastructure: one HTTP client
// for every API and scraper source, one headless renderer for render_js
// sources.
type Factory struct {
	cfg      *common.FetchConfig
	client   *fetchClient
	renderer *Renderer
	logger   arbor.ILogger
}

func NewFactory(cfg *common.FetchConfig, logger arbor.ILogger) *Factory {
	return &Factory{
		cfg:      cfg,
		client:   newFetchClient(cfg, logger),
		renderer: NewRenderer(cfg, logger),
		logger:   logger,
	}
}

// Build constructs the adapter for one validated definition
func (f *Factory) Build(def *models.SourceDefinition) (interfaces.SourceAdapter, error) {
	switch def.Type {
	case models.SourceTypeAdzuna:
		return newAdzunaAdapter(def, f.client, f.logger), nil
	case models.SourceTypeGreenhouse:
		return newGreenhouseAdapter(def, f.client, f.logger), nil
	case models.SourceTypeLever:
		return newLeverAdapter(def, f.client, f.logger), nil
	case models.SourceTypeHTMLBoard:
		return newHTMLBoardAdapter(def, f.client, f.renderer, f.logger), nil
	case models.SourceTypeGitHub:
		return newGitHubAdapter(def, f.logger)
	case models.SourceTypeEmailAlerts:
		return newEmailAlertsAdapter(def, f.cfg.RequestTimeout, f.logger), nil
	default:
		return nil, fmt.Errorf("source %q: no adapter for type %s", def.Name, def.Type)
	}
}

// BuildAll constructs adapters for every definition. Disabled sources get
// adapters too so registry lookups work for them.
func (f *Factory) BuildAll(defs []*models.SourceDefinition) (map[string]interfaces.SourceAdapter, error) {
	adapters := make(map[string]interfaces.SourceAdapter, len(defs))
	for _, def := range defs {
		adapter, err := f.Build(def)
		if err != nil {
			return nil, err
		}
		adapters[def.Name] = adapter
	}
	return adapters, nil
}

// Close releases the shared renderer
func (f *Factory) Close() {
	f.renderer.Close()
}
