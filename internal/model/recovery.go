package model

import "time"

// RecoveryAction represents an automated remediation step
type RecoveryAction string

const (
	ActionRestartService     RecoveryAction = "restart_service"
	ActionScaleResources     RecoveryAction = "scale_resources"
	ActionFailover           RecoveryAction = "failover"
	ActionCircuitBreaker     RecoveryAction = "circuit_breaker"
	ActionThrottleRequests   RecoveryAction = "throttle_requests"
	ActionClearCache         RecoveryAction = "clear_cache"
	ActionRollbackDeployment RecoveryAction = "rollback_deployment"
	ActionManualIntervention RecoveryAction = "manual_intervention"
)

// ServiceClass groups services that share a recovery strategy
type ServiceClass string

const (
	ClassReportGeneration ServiceClass = "report_generation"
	ClassDelivery         ServiceClass = "delivery"
	ClassScheduler        ServiceClass = "scheduler"
	ClassUnclassified     ServiceClass = "unclassified"
)

// RecoveryResult records one remediation attempt against an incident
type RecoveryResult struct {
	ID         string                 `json:"id"`
	IncidentID string                 `json:"incident_id"`
	Service    string                 `json:"service"`
	Action     RecoveryAction         `json:"action"`
	ExecutedAt time.Time              `json:"executed_at"`
	Success    bool                   `json:"success"`
	Duration   time.Duration          `json:"duration"`
	Output     map[string]interface{} `json:"output,omitempty"`
	Error      string                 `json:"error,omitempty"`
}
