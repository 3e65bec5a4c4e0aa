package normalizer

import (
	"regexp"
	"strconv"
	"strings"
)

// compensation is a parsed salary signal
type compensation struct {
	Min      float64
	Max      float64
	Currency string
}

var currencySymbols = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
}

// compPattern matches "$120,000 - $150,000", "€50k–€70k", "£45k", and the
// single-amount forms of the same
var compPattern = regexp.MustCompile(`([$€£])\s?(\d[\d,.]*)\s?([kK])?(?:\s?(?:-|–|—|to)\s?([$€£])?\s?(\d[\d,.]*)\s?([kK])?)?`)

// scanCompensation extracts the first plausible salary range stated in free
// text. Used as a fallback for boards without structured compensation.
func scanCompensation(text string) (compensation, bool) {
	loc := compPattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return compensation{}, false
	}
	m := compPattern.FindStringSubmatch(text)

	min, ok := parseAmount(m[2], m[3] != "")
	if !ok {
		return compensation{}, false
	}
	max := min
	if m[5] != "" {
		if parsed, ok := parseAmount(m[5], m[6] != ""); ok {
			max = parsed
		}
	}

	// Wage statements near the amount change the unit
	window := text[loc[1]:]
	if len(window) > 24 {
		window = window[:24]
	}
	window = strings.ToLower(window)
	switch {
	case strings.Contains(window, "hour") || strings.Contains(window, "/hr"):
		min, max = min*2080, max*2080
	case strings.Contains(window, "day"):
		min, max = min*260, max*260
	case strings.Contains(window, "week"):
		min, max = min*52, max*52
	case strings.Contains(window, "month"):
		min, max = min*12, max*12
	}

	// Amounts below any plausible annual salary are prices, not compensation
	if min < 1000 {
		return compensation{}, false
	}
	if min > max {
		min, max = max, min
	}

	return compensation{
		Min:      min,
		Max:      max,
		Currency: currencySymbols[m[1]],
	}, true
}

// parseAmount converts "120,000" or "50.5" (+ optional k suffix) to a number
func parseAmount(s string, thousands bool) (float64, bool) {
	cleaned := strings.ReplaceAll(s, ",", "")
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	if thousands {
		value *= 1000
	}
	return value, true
}

// annualize converts a structured salary range to a yearly figure based on
// the source's interval label (e.g. Lever's per-hour-wage, per-month-salary)
func annualize(min, max float64, interval string) (float64, float64) {
	lower := strings.ToLower(interval)
	multiplier := 1.0
	switch {
	case strings.Contains(lower, "hour"):
		multiplier = 2080
	case strings.Contains(lower, "day"):
		multiplier = 260
	case strings.Contains(lower, "week"):
		multiplier = 52
	case strings.Contains(lower, "month"):
		multiplier = 12
	}
	return min * multiplier, max * multiplier
}
