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

// WebhookAdapter posts incident JSON to a recipient-owned HTTP endpoint. The
// recipient contact carries the target URL.
type WebhookAdapter struct {
	logger *zap.Logger
	client *http.Client
}

// NewWebhookAdapter creates a generic webhook adapter
func NewWebhookAdapter(logger *zap.Logger) *WebhookAdapter {
	return &WebhookAdapter{
		logger: logger.Named("webhook"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type webhookPayload struct {
	Event     string          `json:"event"`
	Incident  *model.Incident `json:"incident"`
	Timestamp time.Time       `json:"timestamp"`
}

// Channel implements ChannelAdapter.Channel.
func (a *WebhookAdapter) Channel() model.Channel {
	return model.ChannelWebhook
}

// Deliver implements ChannelAdapter.Deliver.
func (a *WebhookAdapter) Deliver(ctx context.Context, inc *model.Incident, rcp *model.Recipient) (bool, error) {
	url := rcp.Contacts[model.ChannelWebhook]
	if url == "" {
		return false, fmt.Errorf("recipient %s has no webhook url", rcp.ID)
	}

	body, err := json.Marshal(webhookPayload{
		Event:     "sla.incident",
		Incident:  inc,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
	default:
		return false, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	a.logger.Debug("Webhook delivered",
		zap.String("incident_id", inc.ID),
		zap.String("url", url))
	return true, nil
}
