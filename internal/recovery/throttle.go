package recovery

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/slawatch/slawatch/internal/model"
)

const (
	// initialThrottle applies on the first throttle of a service
	initialThrottle = rate.Limit(10)
	// minThrottle is the floor repeated throttles converge to
	minThrottle   = rate.Limit(1)
	throttleBurst = 5
)

// ThrottleAdapter keeps a per-service limiter registry. Each execution
// tightens the service's rate limit (halving down to the floor) and announces
// the new limit to the platform orchestrator, which applies it at the
// ingress.
type ThrottleAdapter struct {
	logger    *zap.Logger
	publisher CommandPublisher
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
}

// NewThrottleAdapter creates the adapter; a nil publisher keeps the limits
// local only
func NewThrottleAdapter(logger *zap.Logger, publisher CommandPublisher) *ThrottleAdapter {
	return &ThrottleAdapter{
		logger:    logger.Named("throttle"),
		publisher: publisher,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Action implements RemediationAdapter.Action.
func (a *ThrottleAdapter) Action() model.RecoveryAction {
	return model.ActionThrottleRequests
}

// Execute implements RemediationAdapter.Execute.
func (a *ThrottleAdapter) Execute(ctx context.Context, service string, action model.RecoveryAction) (map[string]interface{}, error) {
	limit := a.tighten(service)

	a.logger.Info("Service throttled",
		zap.String("service", service),
		zap.Float64("rate_per_second", float64(limit)))

	output := map[string]interface{}{
		"service":         service,
		"rate_per_second": float64(limit),
		"burst":           throttleBurst,
	}
	if a.publisher != nil {
		if err := a.publisher.RemedyCommand(action, service, output); err != nil {
			return output, fmt.Errorf("failed to announce throttle: %w", err)
		}
	}
	return output, nil
}

// Limit reports the rate currently imposed on a service; Inf means
// unthrottled
func (a *ThrottleAdapter) Limit(service string) rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()

	lim, ok := a.limiters[service]
	if !ok {
		return rate.Inf
	}
	return lim.Limit()
}

func (a *ThrottleAdapter) tighten(service string) rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()

	lim, ok := a.limiters[service]
	if !ok {
		lim = rate.NewLimiter(initialThrottle, throttleBurst)
		a.limiters[service] = lim
		return lim.Limit()
	}

	next := lim.Limit() / 2
	if next < minThrottle {
		next = minThrottle
	}
	lim.SetLimit(next)
	return next
}
