package recovery

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/slawatch/slawatch/internal/model"
)

// CommandPublisher hands remediation commands to the platform orchestrator
// over the event bus
type CommandPublisher interface {
	RemedyCommand(action model.RecoveryAction, service string, params map[string]interface{}) error
}

// RemedyCommandAdapter covers actions the engine cannot perform itself.
// Failover, scaling and release rollback belong to the platform orchestrator;
// the adapter publishes the command and reports success once it is on the bus.
type RemedyCommandAdapter struct {
	logger    *zap.Logger
	action    model.RecoveryAction
	publisher CommandPublisher
}

// NewRemedyCommandAdapter creates an adapter dispatching one action kind
func NewRemedyCommandAdapter(logger *zap.Logger, publisher CommandPublisher, action model.RecoveryAction) *RemedyCommandAdapter {
	return &RemedyCommandAdapter{
		logger:    logger.Named("remedy"),
		action:    action,
		publisher: publisher,
	}
}

// Action implements RemediationAdapter.Action.
func (a *RemedyCommandAdapter) Action() model.RecoveryAction {
	return a.action
}

// Execute implements RemediationAdapter.Execute.
func (a *RemedyCommandAdapter) Execute(ctx context.Context, service string, action model.RecoveryAction) (map[string]interface{}, error) {
	params := map[string]interface{}{
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	}
	if err := a.publisher.RemedyCommand(action, service, params); err != nil {
		return nil, fmt.Errorf("failed to publish remedy command: %w", err)
	}

	a.logger.Info("Remedy command dispatched",
		zap.String("service", service),
		zap.String("action", string(action)))

	return map[string]interface{}{
		"command":    string(action),
		"dispatched": true,
	}, nil
}
