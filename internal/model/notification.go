package model

import "time"

// Channel represents a delivery medium for alert notifications
type Channel string

const (
	ChannelEmail     Channel = "email"
	ChannelSlack     Channel = "slack"
	ChannelPagerDuty Channel = "pagerduty"
	ChannelWebhook   Channel = "webhook"
	ChannelSMS       Channel = "sms"
	ChannelTeams     Channel = "teams"
	ChannelInApp     Channel = "inapp"
)

// NotificationStatus represents the delivery state of one notification
type NotificationStatus string

const (
	NotificationPending      NotificationStatus = "pending"
	NotificationSent         NotificationStatus = "sent"
	NotificationDelivered    NotificationStatus = "delivered"
	NotificationFailed       NotificationStatus = "failed"
	NotificationAcknowledged NotificationStatus = "acknowledged"
)

// MaxEscalationLevel is the highest tier an incident can escalate to
const MaxEscalationLevel = 5

// EscalationStep configures one tier of an escalation rule
type EscalationStep struct {
	Level      int           `json:"level"`
	Delay      time.Duration `json:"delay"`
	Channels   []Channel     `json:"channels"`
	Recipients []string      `json:"recipients"`
}

// EscalationRule maps a (service, severity) pair to its escalation ladder.
// Service may name one service or be the wildcard "all".
type EscalationRule struct {
	ID           string           `json:"id"`
	Service      string           `json:"service"`
	Severity     Severity         `json:"severity"`
	Levels       []EscalationStep `json:"levels"`
	MaxLevel     int              `json:"max_level"`
	AutoEscalate bool             `json:"auto_escalate"`
	Enabled      bool             `json:"enabled"`
}

// WildcardService matches every service in an escalation rule
const WildcardService = "all"

// Matches reports whether the rule applies to the given service and severity
func (r *EscalationRule) Matches(service string, severity Severity) bool {
	if !r.Enabled || r.Severity != severity {
		return false
	}
	return r.Service == service || r.Service == WildcardService
}

// Step returns the configuration for the given level, or nil when the rule
// defines no such tier.
func (r *EscalationRule) Step(level int) *EscalationStep {
	for i := range r.Levels {
		if r.Levels[i].Level == level {
			return &r.Levels[i]
		}
	}
	return nil
}

// MatchEscalationRule picks the rule governing (service, severity). An exact
// service match beats the wildcard; remaining ties go to the
// lexicographically smallest rule ID so repeated runs pick the same rule.
func MatchEscalationRule(rules []*EscalationRule, service string, severity Severity) *EscalationRule {
	var best *EscalationRule
	for _, r := range rules {
		if !r.Matches(service, severity) {
			continue
		}
		if best == nil || preferRule(r, best, service) {
			best = r
		}
	}
	return best
}

// preferRule reports whether a should replace b as the match for service
func preferRule(a, b *EscalationRule, service string) bool {
	aExact := a.Service == service
	bExact := b.Service == service
	if aExact != bExact {
		return aExact
	}
	return a.ID < b.ID
}

// Recipient is a person or team that receives escalation notifications
type Recipient struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Role     string             `json:"role"`
	Level    int                `json:"level"`
	Contacts map[Channel]string `json:"contacts"`
	Active   bool               `json:"active"`
}

// Notification tracks one delivery attempt chain to one recipient over one
// channel for one escalation level of an incident
type Notification struct {
	ID             string             `json:"id"`
	IncidentID     string             `json:"incident_id"`
	RecipientID    string             `json:"recipient_id"`
	Channel        Channel            `json:"channel"`
	Level          int                `json:"level"`
	Status         NotificationStatus `json:"status"`
	CreatedAt      time.Time          `json:"created_at"`
	SentAt         *time.Time         `json:"sent_at,omitempty"`
	DeliveredAt    *time.Time         `json:"delivered_at,omitempty"`
	AcknowledgedAt *time.Time         `json:"acknowledged_at,omitempty"`
	FailedAt       *time.Time         `json:"failed_at,omitempty"`
	RetryCount     int                `json:"retry_count"`
	MaxRetries     int                `json:"max_retries"`
	LastError      string             `json:"last_error,omitempty"`
}

// Exhausted reports whether the notification has consumed its retry budget
func (n *Notification) Exhausted() bool {
	return n.Status == NotificationFailed && n.RetryCount >= n.MaxRetries
}
