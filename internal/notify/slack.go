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

// SlackConfig holds webhook settings for the Slack adapter
type SlackConfig struct {
	WebhookURL   string
	DashboardURL string
}

// SlackAdapter delivers alerts to Slack through an incoming webhook
type SlackAdapter struct {
	logger *zap.Logger
	cfg    SlackConfig
	client *http.Client
}

// NewSlackAdapter creates a Slack adapter; an empty webhook URL leaves it
// unconfigured
func NewSlackAdapter(logger *zap.Logger, cfg SlackConfig) *SlackAdapter {
	return &SlackAdapter{
		logger: logger.Named("slack"),
		cfg:    cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text"`
	Fields []slackField `json:"fields"`
	Footer string       `json:"footer"`
	TS     int64        `json:"ts"`
}

type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username"`
	Attachments []slackAttachment `json:"attachments"`
}

// Channel implements ChannelAdapter.Channel.
func (a *SlackAdapter) Channel() model.Channel {
	return model.ChannelSlack
}

// Deliver implements ChannelAdapter.Deliver.
func (a *SlackAdapter) Deliver(ctx context.Context, inc *model.Incident, rcp *model.Recipient) (bool, error) {
	if a.cfg.WebhookURL == "" {
		return false, nil
	}

	msg := slackMessage{
		// The contact value names the target channel, e.g. "#compliance-alerts"
		Channel:  rcp.Contacts[model.ChannelSlack],
		Username: "SLA Monitor",
		Attachments: []slackAttachment{{
			Color: severityColor(inc.Severity),
			Title: subject(inc),
			Text:  inc.Impact.EstimatedImpact,
			Fields: []slackField{
				{Title: "Service", Value: inc.Service, Short: true},
				{Title: "Severity", Value: string(inc.Severity), Short: true},
				{Title: "Status", Value: string(inc.Status), Short: true},
				{Title: "Escalation Level", Value: fmt.Sprintf("%d", inc.EscalationLevel), Short: true},
				{Title: "Incident", Value: incidentURL(a.cfg.DashboardURL, inc.ID), Short: false},
			},
			Footer: "slawatch",
			TS:     inc.CreatedAt.Unix(),
		}},
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return false, fmt.Errorf("failed to marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("slack request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return false, fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}

	a.logger.Debug("Slack message sent",
		zap.String("incident_id", inc.ID),
		zap.String("channel", rcp.Contacts[model.ChannelSlack]))
	return true, nil
}
