// Package ratelimit provides a shared, structured log-suppression limiter
// addressable by an error-kind tag (§9 "Global counters and log spam"):
// the first occurrence of a given category is always let through, further
// occurrences are suppressed until the configured window elapses.
//
// It is a thin wrapper over catrate.Limiter rather than a reimplementation
// of per-subsystem static counters, which is exactly the replacement §9
// calls for.
package ratelimit

import (
	"time"

	catrate "github.com/joeycumines/go-catrate"
)

// Gate suppresses repeated log/alert emissions for the same category.
type Gate struct {
	limiter *catrate.Limiter
}

// NewGate builds a Gate that allows at most one event per category within
// window, e.g. NewGate(30*time.Second) for "first error logged; further
// suppressed until 30s elapse".
func NewGate(window time.Duration) *Gate {
	return &Gate{limiter: catrate.NewLimiter(map[time.Duration]int{window: 1})}
}

// Allow reports whether an event in category should be emitted now, and
// registers the attempt. next is the zero Time when ok is true; otherwise
// it is the time at which category will next be allowed through. The
// category is typically an error-kind tag such as an errcode.Code combined
// with a sensor or actuator id.
func (g *Gate) Allow(category any) (next time.Time, ok bool) {
	return g.limiter.Allow(category)
}
