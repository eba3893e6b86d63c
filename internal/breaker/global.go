package breaker

import (
	"sync"

	"github.com/luxardolabs/luxanalytics-go/internal/clock"
)

// GlobalCircuitBreaker maps endpoint URLs to their CircuitBreaker, creating
// one lazily on first reference.
type GlobalCircuitBreaker struct {
	mu       sync.Mutex
	params   Params
	breakers map[string]*CircuitBreaker
}

// NewGlobal constructs a GlobalCircuitBreaker that creates per-endpoint
// breakers using params.
func NewGlobal(params Params) *GlobalCircuitBreaker {
	if params.Clock == nil {
		params.Clock = clock.RealClock{}
	}
	return &GlobalCircuitBreaker{
		params:   params,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// For returns the CircuitBreaker for endpoint, creating it if necessary.
func (g *GlobalCircuitBreaker) For(endpoint string) *CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	cb, ok := g.breakers[endpoint]
	if !ok {
		cb = New(g.params)
		g.breakers[endpoint] = cb
	}
	return cb
}

// Snapshot returns a Metrics snapshot for every known endpoint.
func (g *GlobalCircuitBreaker) Snapshot() map[string]Metrics {
	g.mu.Lock()
	endpoints := make([]string, 0, len(g.breakers))
	breakers := make([]*CircuitBreaker, 0, len(g.breakers))
	for endpoint, cb := range g.breakers {
		endpoints = append(endpoints, endpoint)
		breakers = append(breakers, cb)
	}
	g.mu.Unlock()

	out := make(map[string]Metrics, len(endpoints))
	for i, endpoint := range endpoints {
		out[endpoint] = breakers[i].Snapshot()
	}
	return out
}
