package recovery

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/slawatch/slawatch/internal/model"
)

// breakerOpenFor is how long a tripped breaker stays open before probing
const breakerOpenFor = 60 * time.Second

// CircuitBreakerAdapter keeps a per-service breaker registry and trips the
// service's breaker open so integration callers shed load while it recovers.
// Repeated executions while the breaker is already open are no-ops.
type CircuitBreakerAdapter struct {
	logger   *zap.Logger
	mu       sync.Mutex
	breakers map[string]*gobreaker.TwoStepCircuitBreaker
}

// NewCircuitBreakerAdapter creates the adapter with an empty registry
func NewCircuitBreakerAdapter(logger *zap.Logger) *CircuitBreakerAdapter {
	return &CircuitBreakerAdapter{
		logger:   logger.Named("breaker"),
		breakers: make(map[string]*gobreaker.TwoStepCircuitBreaker),
	}
}

// Action implements RemediationAdapter.Action.
func (a *CircuitBreakerAdapter) Action() model.RecoveryAction {
	return model.ActionCircuitBreaker
}

// Execute implements RemediationAdapter.Execute.
func (a *CircuitBreakerAdapter) Execute(ctx context.Context, service string, _ model.RecoveryAction) (map[string]interface{}, error) {
	cb := a.breakerFor(service)

	// A single reported failure trips the breaker; when it is already open
	// Allow refuses and the state stands
	if done, err := cb.Allow(); err == nil {
		done(false)
	}

	state := cb.State()
	a.logger.Info("Circuit breaker engaged",
		zap.String("service", service),
		zap.String("state", state.String()))

	return map[string]interface{}{
		"service": service,
		"state":   state.String(),
	}, nil
}

// State reports the current breaker state for a service; services without a
// tripped breaker read as closed
func (a *CircuitBreakerAdapter) State(service string) gobreaker.State {
	a.mu.Lock()
	cb, ok := a.breakers[service]
	a.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}

func (a *CircuitBreakerAdapter) breakerFor(service string) *gobreaker.TwoStepCircuitBreaker {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cb, ok := a.breakers[service]; ok {
		return cb
	}

	cb := gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:    service,
		Timeout: breakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			a.logger.Info("Circuit breaker state changed",
				zap.String("service", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	a.breakers[service] = cb
	return cb
}
