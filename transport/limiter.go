package transport

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateGate bounds how many datagrams per second a single source host may
// deliver. A non-positive rate disables limiting.
type RateGate struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	sources map[string]*rate.Limiter
}

// NewRateGate allows rps datagrams per second with the given burst from
// each source.
func NewRateGate(rps float64, burst int) *RateGate {
	return &RateGate{
		limit:   rate.Limit(rps),
		burst:   burst,
		sources: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether one more datagram from source fits its budget.
func (g *RateGate) Allow(source string) bool {
	if g.limit <= 0 {
		return true
	}
	return g.get(source).Allow()
}

func (g *RateGate) get(source string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	if l, ok := g.sources[source]; ok {
		return l
	}
	l := rate.NewLimiter(g.limit, g.burst)
	g.sources[source] = l
	return l
}
