package model

import "time"

// IncidentStatus represents the lifecycle state of an incident
type IncidentStatus string

const (
	IncidentOpen          IncidentStatus = "open"
	IncidentAcknowledged  IncidentStatus = "acknowledged"
	IncidentInvestigating IncidentStatus = "investigating"
	IncidentResolved      IncidentStatus = "resolved"
	IncidentClosed        IncidentStatus = "closed"
)

// Terminal reports whether the status permits no further transitions
func (s IncidentStatus) Terminal() bool {
	return s == IncidentResolved || s == IncidentClosed
}

// ImpactAssessment describes the estimated blast radius of an incident
type ImpactAssessment struct {
	AffectedServices []string `json:"affected_services"`
	EstimatedImpact  string   `json:"estimated_impact"`
	BusinessImpact   string   `json:"business_impact"`
}

// Incident wraps a violation with escalation and acknowledgment tracking
type Incident struct {
	ID              string            `json:"id"`
	ViolationID     string            `json:"violation_id"`
	Service         string            `json:"service"`
	Severity        Severity          `json:"severity"`
	Status          IncidentStatus    `json:"status"`
	EscalationLevel int               `json:"escalation_level"`
	CreatedAt       time.Time         `json:"created_at"`
	AcknowledgedAt  *time.Time        `json:"acknowledged_at,omitempty"`
	AcknowledgedBy  string            `json:"acknowledged_by,omitempty"`
	EscalatedAt     *time.Time        `json:"escalated_at,omitempty"`
	ResolvedAt      *time.Time        `json:"resolved_at,omitempty"`
	ResolutionNotes string            `json:"resolution_notes,omitempty"`
	RecoveryActions []RecoveryAction  `json:"recovery_actions,omitempty"`
	Impact          ImpactAssessment  `json:"impact"`
	Labels          map[string]string `json:"labels,omitempty"`
}

// EscalationAnchor returns the timestamp escalation delays are measured
// from: the last escalation if one happened, otherwise incident creation.
func (i *Incident) EscalationAnchor() time.Time {
	if i.EscalatedAt != nil {
		return *i.EscalatedAt
	}
	return i.CreatedAt
}
