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

// TeamsConfig holds webhook settings for the Microsoft Teams adapter
type TeamsConfig struct {
	WebhookURL   string
	DashboardURL string
}

// TeamsAdapter delivers alerts to Microsoft Teams as MessageCards. A
// recipient contact overrides the shared webhook so teams can route alerts
// to their own channels.
type TeamsAdapter struct {
	logger *zap.Logger
	cfg    TeamsConfig
	client *http.Client
}

// NewTeamsAdapter creates a Teams adapter; without a webhook URL anywhere it
// reports unconfigured
func NewTeamsAdapter(logger *zap.Logger, cfg TeamsConfig) *TeamsAdapter {
	return &TeamsAdapter{
		logger: logger.Named("teams"),
		cfg:    cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type teamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type teamsSection struct {
	ActivityTitle string      `json:"activityTitle"`
	Facts         []teamsFact `json:"facts"`
	Text          string      `json:"text,omitempty"`
}

type teamsTarget struct {
	OS  string `json:"os"`
	URI string `json:"uri"`
}

type teamsAction struct {
	Type    string        `json:"@type"`
	Name    string        `json:"name"`
	Targets []teamsTarget `json:"targets"`
}

type teamsCard struct {
	Type            string         `json:"@type"`
	Context         string         `json:"@context"`
	ThemeColor      string         `json:"themeColor"`
	Summary         string         `json:"summary"`
	Sections        []teamsSection `json:"sections"`
	PotentialAction []teamsAction  `json:"potentialAction,omitempty"`
}

// Channel implements ChannelAdapter.Channel.
func (a *TeamsAdapter) Channel() model.Channel {
	return model.ChannelTeams
}

// Deliver implements ChannelAdapter.Deliver.
func (a *TeamsAdapter) Deliver(ctx context.Context, inc *model.Incident, rcp *model.Recipient) (bool, error) {
	url := rcp.Contacts[model.ChannelTeams]
	if url == "" {
		url = a.cfg.WebhookURL
	}
	if url == "" {
		return false, nil
	}

	card := teamsCard{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		ThemeColor: severityHex(inc.Severity),
		Summary:    subject(inc),
		Sections: []teamsSection{{
			ActivityTitle: subject(inc),
			Facts: []teamsFact{
				{Name: "Service", Value: inc.Service},
				{Name: "Severity", Value: string(inc.Severity)},
				{Name: "Status", Value: string(inc.Status)},
				{Name: "Escalation Level", Value: fmt.Sprintf("%d", inc.EscalationLevel)},
				{Name: "Created", Value: inc.CreatedAt.UTC().Format(time.RFC3339)},
			},
			Text: inc.Impact.EstimatedImpact,
		}},
	}
	if a.cfg.DashboardURL != "" {
		card.PotentialAction = []teamsAction{{
			Type: "OpenUri",
			Name: "View Incident",
			Targets: []teamsTarget{{
				OS:  "default",
				URI: incidentURL(a.cfg.DashboardURL, inc.ID),
			}},
		}}
	}

	body, err := json.Marshal(card)
	if err != nil {
		return false, fmt.Errorf("failed to marshal teams card: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("teams request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return false, fmt.Errorf("teams webhook returned status %d", resp.StatusCode)
	}

	a.logger.Debug("Teams card sent", zap.String("incident_id", inc.ID))
	return true, nil
}
