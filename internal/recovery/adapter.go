package recovery

import (
	"context"

	"github.com/slawatch/slawatch/internal/model"
)

// RemediationAdapter performs one kind of recovery action against a degraded
// service. Execute returns adapter-specific output for the audit record; an
// error marks the attempt as failed.
type RemediationAdapter interface {
	Action() model.RecoveryAction
	Execute(ctx context.Context, service string, action model.RecoveryAction) (map[string]interface{}, error)
}
