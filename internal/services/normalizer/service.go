package normalizer

import (
	"strings"

	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
	"github.com/moatasim-KT/career-copilot-sub004/internal/services/transform"
	"github.com/ternarybob/arbor"
)

// Service maps source-specific raw payloads into the canonical posting
// schema. A mapping failure is returned as *models.NormalizationError; the
// caller drops the record, counts it, and keeps going.
type Service struct {
	logger      arbor.ILogger
	transformer *transform.Service
}

// NewService creates a new normalizer service
func NewService(logger arbor.ILogger, transformer *transform.Service) *Service {
	return &Service{
		logger:      logger,
		transformer: transformer,
	}
}

// Normalize converts one raw record into a normalized posting
func (s *Service) Normalize(raw *models.RawRecord) (*models.NormalizedPosting, error) {
	var posting *models.NormalizedPosting
	var err error

	switch raw.SourceType {
	case models.SourceTypeAdzuna:
		posting, err = s.mapAdzuna(raw)
	case models.SourceTypeGreenhouse:
		posting, err = s.mapGreenhouse(raw)
	case models.SourceTypeLever:
		posting, err = s.mapLever(raw)
	case models.SourceTypeHTMLBoard:
		posting, err = s.mapHTMLBoard(raw)
	case models.SourceTypeGitHub:
		posting, err = s.mapGitHub(raw)
	case models.SourceTypeEmailAlerts:
		posting, err = s.mapEmailAlert(raw)
	default:
		return nil, &models.NormalizationError{
			Source: raw.SourceName,
			Reason: "no mapping for source type " + raw.SourceType,
		}
	}
	if err != nil {
		return nil, err
	}

	return s.finish(raw, posting)
}

// finish applies the source-independent half of normalization: identity
// fields, text cleanup, compensation fallback scan, and required-field checks
func (s *Service) finish(raw *models.RawRecord, posting *models.NormalizedPosting) (*models.NormalizedPosting, error) {
	posting.SourceName = raw.SourceName
	posting.Raw = raw.Payload

	if posting.SourceExternalID == "" {
		posting.SourceExternalID = raw.ExternalID
	}
	if posting.SourceURL == "" {
		posting.SourceURL = raw.URL
	}
	if posting.SourceExternalID == "" {
		posting.SourceExternalID = posting.SourceURL
	}

	posting.Title = cleanField(posting.Title)
	posting.Company = cleanField(posting.Company)
	posting.Location = cleanField(posting.Location)
	posting.Description = strings.TrimSpace(posting.Description)
	posting.EmploymentType = mapEmployment(posting.EmploymentType)

	if posting.Company == "" {
		posting.Company = cleanField(raw.CompanyHint)
	}

	// Boards that expose no structured compensation often state it in the
	// description text
	if !posting.HasCompensation() && posting.Description != "" {
		if comp, ok := scanCompensation(posting.Description); ok {
			posting.CompensationMin = comp.Min
			posting.CompensationMax = comp.Max
			posting.CompensationCurrency = comp.Currency
		}
	}
	if posting.CompensationMin > posting.CompensationMax && posting.CompensationMax > 0 {
		posting.CompensationMin, posting.CompensationMax = posting.CompensationMax, posting.CompensationMin
	}

	if posting.Title == "" {
		return nil, &models.NormalizationError{Source: raw.SourceName, Field: "title", Reason: "missing required field"}
	}
	if posting.Company == "" {
		return nil, &models.NormalizationError{Source: raw.SourceName, Field: "company", Reason: "missing required field"}
	}
	if posting.SourceExternalID == "" && posting.SourceURL == "" {
		return nil, &models.NormalizationError{Source: raw.SourceName, Field: "source_external_id", Reason: "record carries neither an id nor a url"}
	}

	return posting, nil
}

// markdown converts an HTML fragment to markdown, keeping the posting URL as
// the base for relative links
func (s *Service) markdown(html, baseURL string) string {
	converted, err := s.transformer.HTMLToMarkdown(html, baseURL)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Description conversion failed, keeping raw text")
		return html
	}
	return converted
}
