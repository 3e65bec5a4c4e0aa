package transform

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/ternarybob/arbor"
)

// Service converts source-provided HTML into markdown. Job boards deliver
// descriptions as HTML fragments of wildly varying quality; the catalog
// stores markdown.
type Service struct {
	logger arbor.ILogger
}

// NewService creates a new transform service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		logger: logger,
	}
}

// HTMLToMarkdown converts HTML content to markdown.
// baseURL is used for resolving relative links.
func (s *Service) HTMLToMarkdown(html string, baseURL string) (string, error) {
	if html == "" {
		return "", nil
	}

	mdConverter := md.NewConverter(baseURL, true, nil)
	converted, err := mdConverter.ConvertString(html)
	if err != nil {
		s.logger.Warn().Err(err).Msg("HTML to markdown conversion failed, using fallback")
		// Fallback: strip HTML tags
		return stripHTMLTags(html), nil
	}

	// Check for empty output
	trimmedMarkdown := strings.TrimSpace(converted)
	if trimmedMarkdown == "" && html != "" {
		s.logger.Debug().
			Int("html_length", len(html)).
			Msg("HTML to markdown conversion produced empty output, applying fallback")
		return stripHTMLTags(html), nil
	}

	return converted, nil
}

// stripHTMLTags removes basic HTML tags for fallback cases
func stripHTMLTags(htmlStr string) string {
	// Remove HTML tags using regex
	re := regexp.MustCompile(`<[^>]*>`)
	stripped := re.ReplaceAllString(htmlStr, "")

	// Clean up multiple whitespaces
	spaceRe := regexp.MustCompile(`\s+`)
	cleaned := spaceRe.ReplaceAllString(stripped, " ")

	// Decode HTML entities (basic set)
	cleaned = strings.ReplaceAll(cleaned, "&amp;", "&")
	cleaned = strings.ReplaceAll(cleaned, "&lt;", "<")
	cleaned = strings.ReplaceAll(cleaned, "&gt;", ">")
	cleaned = strings.ReplaceAll(cleaned, "&quot;", "\"")
	cleaned = strings.ReplaceAll(cleaned, "&#39;", "'")
	cleaned = strings.ReplaceAll(cleaned, "&nbsp;", " ")

	return strings.TrimSpace(cleaned)
}
