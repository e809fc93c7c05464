package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/slawatch/slawatch/internal/metrics"
	"github.com/slawatch/slawatch/internal/model"
)

// Stream and subject layout for the engine's bus traffic
const (
	ViolationStream   = "SLA_VIOLATIONS"
	IncidentStream    = "SLA_INCIDENTS"
	RemedyStream      = "SLA_REMEDY"
	SubjectViolations = "violation.*"
	SubjectIncidents  = "incident.*"
	SubjectRemedy     = "remedy.*"
	SubjectFeed       = "notify.*"
)

// Publisher emits engine events to JetStream for dashboards and downstream
// agents. Events are emitted after the owning record is persisted; a publish
// failure is logged and counted, never propagated to lifecycle code.
type Publisher struct {
	logger  *zap.Logger
	js      nats.JetStreamContext
	metrics *metrics.Metrics
}

// NewPublisher creates a new event publisher
func NewPublisher(js nats.JetStreamContext, logger *zap.Logger, m *metrics.Metrics) *Publisher {
	return &Publisher{
		logger:  logger.Named("events"),
		js:      js,
		metrics: m,
	}
}

// Start creates the engine's streams if they do not exist yet
func (p *Publisher) Start() error {
	streams := []nats.StreamConfig{
		{Name: ViolationStream, Subjects: []string{SubjectViolations}, Storage: nats.FileStorage},
		{Name: IncidentStream, Subjects: []string{SubjectIncidents}, Storage: nats.FileStorage},
		{Name: RemedyStream, Subjects: []string{SubjectRemedy, SubjectFeed}, Storage: nats.FileStorage},
	}

	for _, cfg := range streams {
		info, err := p.js.StreamInfo(cfg.Name)
		if err != nil && err != nats.ErrStreamNotFound {
			return fmt.Errorf("failed to get stream info for %s: %w", cfg.Name, err)
		}
		if info == nil {
			if _, err := p.js.AddStream(&cfg); err != nil {
				return fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
			}
			p.logger.Info("Created stream", zap.String("name", cfg.Name))
		}
	}

	return nil
}

// publish marshals and publishes a flat payload, recording the outcome
func (p *Publisher) publish(subject string, payload map[string]interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = p.js.Publish(subject, data)
	if p.metrics != nil {
		p.metrics.EventPublished(err)
	}
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

// emit publishes and logs failures without surfacing them to the caller
func (p *Publisher) emit(subject string, payload map[string]interface{}) {
	if err := p.publish(subject, payload); err != nil {
		p.logger.Error("Failed to emit event",
			zap.String("subject", subject),
			zap.Error(err))
	}
}

func violationPayload(event string, v *model.Violation) map[string]interface{} {
	payload := map[string]interface{}{
		"event":      event,
		"id":         v.ID,
		"sla_id":     v.SLAID,
		"service":    v.Service,
		"metric":     string(v.Metric),
		"severity":   string(v.Severity),
		"threshold":  v.Threshold,
		"observed":   v.Observed,
		"breach_pct": v.BreachPct,
		"started_at": v.StartedAt.UTC().Format(time.RFC3339),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	if v.EndedAt != nil {
		payload["ended_at"] = v.EndedAt.UTC().Format(time.RFC3339)
		payload["duration_seconds"] = v.Duration.Seconds()
	}
	return payload
}

func incidentPayload(event string, inc *model.Incident) map[string]interface{} {
	payload := map[string]interface{}{
		"event":        event,
		"id":           inc.ID,
		"violation_id": inc.ViolationID,
		"service":      inc.Service,
		"severity":     string(inc.Severity),
		"status":       string(inc.Status),
		"level":        inc.EscalationLevel,
		"created_at":   inc.CreatedAt.UTC().Format(time.RFC3339),
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	}
	if inc.AcknowledgedBy != "" {
		payload["acknowledged_by"] = inc.AcknowledgedBy
	}
	return payload
}

// ViolationDetected emits violation.detected
func (p *Publisher) ViolationDetected(v *model.Violation) {
	p.emit("violation.detected", violationPayload("violation.detected", v))
}

// ViolationResolved emits violation.resolved
func (p *Publisher) ViolationResolved(v *model.Violation) {
	p.emit("violation.resolved", violationPayload("violation.resolved", v))
}

// ViolationAutoResolved emits violation.auto_resolved
func (p *Publisher) ViolationAutoResolved(v *model.Violation) {
	p.emit("violation.auto_resolved", violationPayload("violation.auto_resolved", v))
}

// IncidentCreated emits incident.created
func (p *Publisher) IncidentCreated(inc *model.Incident) {
	p.emit("incident.created", incidentPayload("incident.created", inc))
}

// IncidentEscalated emits incident.escalated
func (p *Publisher) IncidentEscalated(inc *model.Incident) {
	p.emit("incident.escalated", incidentPayload("incident.escalated", inc))
}

// IncidentAcknowledged emits incident.acknowledged
func (p *Publisher) IncidentAcknowledged(inc *model.Incident) {
	p.emit("incident.acknowledged", incidentPayload("incident.acknowledged", inc))
}

// IncidentResolved emits incident.resolved
func (p *Publisher) IncidentResolved(inc *model.Incident) {
	p.emit("incident.resolved", incidentPayload("incident.resolved", inc))
}

// IncidentClosed emits incident.closed
func (p *Publisher) IncidentClosed(inc *model.Incident) {
	p.emit("incident.closed", incidentPayload("incident.closed", inc))
}

// RemedyCommand publishes a remediation command for the platform
// orchestrator. Unlike lifecycle events the error surfaces to the caller:
// a command that never reached the bus is a failed recovery action.
func (p *Publisher) RemedyCommand(action model.RecoveryAction, service string, params map[string]interface{}) error {
	payload := map[string]interface{}{
		"event":     "remedy.requested",
		"action":    string(action),
		"service":   service,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range params {
		payload[k] = v
	}
	return p.publish("remedy."+string(action), payload)
}

// Feed publishes an in-app feed entry for UI consumers
func (p *Publisher) Feed(inc *model.Incident, recipientID string) error {
	payload := incidentPayload("notify.inapp", inc)
	payload["recipient_id"] = recipientID
	return p.publish("notify.inapp", payload)
}
