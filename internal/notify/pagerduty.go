package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/slawatch/slawatch/internal/model"
)

const defaultPagerDutyEventsURL = "https://events.pagerduty.com/v2/enqueue"

// PagerDutyConfig holds Events API settings for the PagerDuty adapter
type PagerDutyConfig struct {
	EventsURL    string
	DashboardURL string
}

// PagerDutyAdapter triggers PagerDuty incidents through the Events API v2.
// The recipient contact carries the integration routing key.
type PagerDutyAdapter struct {
	logger *zap.Logger
	cfg    PagerDutyConfig
	client *http.Client
}

// NewPagerDutyAdapter creates a PagerDuty adapter
func NewPagerDutyAdapter(logger *zap.Logger, cfg PagerDutyConfig) *PagerDutyAdapter {
	if cfg.EventsURL == "" {
		cfg.EventsURL = defaultPagerDutyEventsURL
	}
	return &PagerDutyAdapter{
		logger: logger.Named("pagerduty"),
		cfg:    cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type pagerDutyPayload struct {
	Summary       string            `json:"summary"`
	Source        string            `json:"source"`
	Severity      string            `json:"severity"`
	Timestamp     string            `json:"timestamp"`
	CustomDetails map[string]string `json:"custom_details,omitempty"`
}

type pagerDutyLink struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

type pagerDutyEvent struct {
	RoutingKey  string           `json:"routing_key"`
	EventAction string           `json:"event_action"`
	DedupKey    string           `json:"dedup_key"`
	Payload     pagerDutyPayload `json:"payload"`
	Links       []pagerDutyLink  `json:"links,omitempty"`
}

// Channel implements ChannelAdapter.Channel.
func (a *PagerDutyAdapter) Channel() model.Channel {
	return model.ChannelPagerDuty
}

// Deliver implements ChannelAdapter.Deliver.
func (a *PagerDutyAdapter) Deliver(ctx context.Context, inc *model.Incident, rcp *model.Recipient) (bool, error) {
	routingKey := rcp.Contacts[model.ChannelPagerDuty]
	if routingKey == "" {
		return false, fmt.Errorf("recipient %s has no pagerduty routing key", rcp.ID)
	}

	event := pagerDutyEvent{
		RoutingKey:  routingKey,
		EventAction: "trigger",
		// One PagerDuty incident per SLA incident across escalation levels
		DedupKey: "sla-incident-" + inc.ID,
		Payload: pagerDutyPayload{
			Summary:   subject(inc),
			Source:    inc.Service,
			Severity:  pagerDutySeverity(inc.Severity),
			Timestamp: inc.CreatedAt.UTC().Format(time.RFC3339),
			CustomDetails: map[string]string{
				"status":           string(inc.Status),
				"escalation_level": fmt.Sprintf("%d", inc.EscalationLevel),
				"description":      inc.Impact.EstimatedImpact,
			},
		},
	}
	if a.cfg.DashboardURL != "" {
		event.Links = []pagerDutyLink{{
			Href: incidentURL(a.cfg.DashboardURL, inc.ID),
			Text: "View incident",
		}}
	}

	body, err := json.Marshal(event)
	if err != nil {
		return false, fmt.Errorf("failed to marshal pagerduty event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.EventsURL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("pagerduty request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return false, fmt.Errorf("pagerduty returned status %d", resp.StatusCode)
	}

	a.logger.Debug("PagerDuty event triggered",
		zap.String("incident_id", inc.ID),
		zap.String("dedup_key", event.DedupKey))
	return true, nil
}

func pagerDutySeverity(s model.Severity) string {
	switch s {
	case model.SeverityEmergency, model.SeverityCritical:
		return "critical"
	case model.SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}
