// Package breaker wraps outbound peer calls (the AMQP command bus's reply
// publishes, keyed by reply queue) in a gobreaker circuit breaker keyed by
// peer address, so one unreachable peer degrades to fast failures instead
// of piling up blocked retries.
package breaker

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// Registry hands out one circuit breaker per peer address, created lazily
// on first use and reused for the process lifetime.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	settings func(address string) gobreaker.Settings
}

// NewRegistry builds a Registry. settings, if nil, uses defaultSettings.
func NewRegistry(settings func(address string) gobreaker.Settings) *Registry {
	if settings == nil {
		settings = defaultSettings
	}
	return &Registry{breakers: make(map[string]*gobreaker.CircuitBreaker), settings: settings}
}

func defaultSettings(address string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        address,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
}

func (r *Registry) get(address string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[address]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(r.settings(address))
	r.breakers[address] = cb
	return cb
}

// Do runs fn through the breaker for address, short-circuiting with
// gobreaker.ErrOpenState once address has tripped open.
func (r *Registry) Do(address string, fn func() error) error {
	_, err := r.get(address).Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

// State reports a peer's current breaker state (closed/open/half-open).
func (r *Registry) State(address string) gobreaker.State {
	return r.get(address).State()
}
