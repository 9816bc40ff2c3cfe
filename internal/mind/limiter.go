package mind

import (
	"time"

	"golang.org/x/time/rate"
)

// ProactiveLimiter caps how often the persona may start a conversation on
// its own, independent of the idle and scene triggers.
type ProactiveLimiter struct {
	lim *rate.Limiter
}

// NewProactiveLimiter allows perMinute utterances with a burst of one.
// A non-positive rate disables the limit.
func NewProactiveLimiter(perMinute float64) *ProactiveLimiter {
	l := rate.Inf
	if perMinute > 0 {
		l = rate.Limit(perMinute / 60)
	}
	return &ProactiveLimiter{lim: rate.NewLimiter(l, 1)}
}

// Allow consumes a token at now if one is available.
func (p *ProactiveLimiter) Allow(now time.Time) bool {
	return p.lim.AllowN(now, 1)
}
