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

// SMSConfig holds gateway settings for the SMS adapter
type SMSConfig struct {
	GatewayURL string
	APIKey     string
	From       string
}

// SMSAdapter delivers short alerts through an HTTP SMS gateway
type SMSAdapter struct {
	logger *zap.Logger
	cfg    SMSConfig
	client *http.Client
}

// NewSMSAdapter creates an SMS adapter; an empty gateway URL leaves it
// unconfigured
func NewSMSAdapter(logger *zap.Logger, cfg SMSConfig) *SMSAdapter {
	return &SMSAdapter{
		logger: logger.Named("sms"),
		cfg:    cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type smsRequest struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Message string `json:"message"`
}

// Channel implements ChannelAdapter.Channel.
func (a *SMSAdapter) Channel() model.Channel {
	return model.ChannelSMS
}

// Deliver implements ChannelAdapter.Deliver.
func (a *SMSAdapter) Deliver(ctx context.Context, inc *model.Incident, rcp *model.Recipient) (bool, error) {
	if a.cfg.GatewayURL == "" {
		return false, nil
	}
	to := rcp.Contacts[model.ChannelSMS]
	if to == "" {
		return false, fmt.Errorf("recipient %s has no phone number", rcp.ID)
	}

	body, err := json.Marshal(smsRequest{
		To:      to,
		From:    a.cfg.From,
		Message: shortText(inc),
	})
	if err != nil {
		return false, fmt.Errorf("failed to marshal sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.GatewayURL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("sms gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return false, fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}

	a.logger.Debug("SMS sent",
		zap.String("incident_id", inc.ID),
		zap.String("to", to))
	return true, nil
}
