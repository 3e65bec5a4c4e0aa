package normalizer

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
)

// cleanField unescapes HTML entities and collapses whitespace in a short
// display field. Case is preserved; canonicalization for matching happens in
// the fingerprint layer.
func cleanField(s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
}

// mapEmployment folds the many source spellings of an employment type onto
// the canonical constants. Unknown values map to empty rather than guessing.
func mapEmployment(s string) string {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)

	switch {
	case normalized == "":
		return ""
	case strings.Contains(normalized, "full"):
		return models.EmploymentFullTime
	case strings.Contains(normalized, "part"):
		return models.EmploymentPartTime
	case strings.Contains(normalized, "intern"):
		return models.EmploymentInternship
	case strings.Contains(normalized, "temp"):
		return models.EmploymentTemporary
	case strings.Contains(normalized, "contract"):
		return models.EmploymentContract
	default:
		return ""
	}
}

// timeLayouts are tried in order; sources disagree on almost everything
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
}

// parseTime parses a source-reported timestamp in any supported layout
func parseTime(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, trimmed); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time layout: %q", value)
}

// timeFromMillis converts an epoch-milliseconds timestamp (Lever's createdAt)
func timeFromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
