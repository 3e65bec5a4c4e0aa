package sources

import (
	"math"

	"golang.org/x/time/rate"

	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
)

// newLimiter builds a per-source request limiter from the definition's
// rate_limit, falling back to the adapter default. Burst tracks the rate so
// one page loop never outruns the configured requests per second.
func newLimiter(def *models.SourceDefinition, defaultRPS float64) *rate.Limiter {
	rps := def.RateLimit
	if rps <= 0 {
		rps = defaultRPS
	}
	burst := int(math.Ceil(rps))
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
