package recovery

import (
	"context"
	"errors"

	"github.com/slawatch/slawatch/internal/model"
)

// ManualInterventionAdapter records that no automated remediation applies.
// It always reports failure so the incident keeps escalating toward a human.
type ManualInterventionAdapter struct{}

// NewManualInterventionAdapter creates the adapter
func NewManualInterventionAdapter() *ManualInterventionAdapter {
	return &ManualInterventionAdapter{}
}

// Action implements RemediationAdapter.Action.
func (a *ManualInterventionAdapter) Action() model.RecoveryAction {
	return model.ActionManualIntervention
}

// Execute implements RemediationAdapter.Execute.
func (a *ManualInterventionAdapter) Execute(ctx context.Context, service string, _ model.RecoveryAction) (map[string]interface{}, error) {
	return map[string]interface{}{
		"service": service,
		"reason":  "no automated remediation is defined for this service",
	}, errors.New("manual intervention required")
}
