package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"go.uber.org/zap"

	"github.com/slawatch/slawatch/internal/model"
)

// EmailConfig holds SMTP settings for the email adapter
type EmailConfig struct {
	Host         string
	Port         int
	Username     string
	Password     string
	From         string
	DashboardURL string
}

// EmailAdapter delivers alerts over SMTP
type EmailAdapter struct {
	logger *zap.Logger
	cfg    EmailConfig
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailAdapter creates an email adapter; an empty host leaves it unconfigured
func NewEmailAdapter(logger *zap.Logger, cfg EmailConfig) *EmailAdapter {
	return &EmailAdapter{
		logger: logger.Named("email"),
		cfg:    cfg,
		send:   smtp.SendMail,
	}
}

// Channel implements ChannelAdapter.Channel.
func (a *EmailAdapter) Channel() model.Channel {
	return model.ChannelEmail
}

// Deliver implements ChannelAdapter.Deliver.
func (a *EmailAdapter) Deliver(ctx context.Context, inc *model.Incident, rcp *model.Recipient) (bool, error) {
	if a.cfg.Host == "" {
		return false, nil
	}
	to, ok := rcp.Contacts[model.ChannelEmail]
	if !ok || to == "" {
		return false, fmt.Errorf("recipient %s has no email address", rcp.ID)
	}

	msg := fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"Content-Type: text/plain; charset=UTF-8\r\n"+
		"\r\n"+
		"%s\r\n",
		a.cfg.From,
		to,
		subject(inc),
		bodyText(inc, a.cfg.DashboardURL))

	var auth smtp.Auth
	if a.cfg.Username != "" {
		auth = smtp.PlainAuth("", a.cfg.Username, a.cfg.Password, a.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", a.cfg.Host, a.cfg.Port)
	if err := a.send(addr, auth, a.cfg.From, []string{to}, []byte(msg)); err != nil {
		return false, fmt.Errorf("failed to send email: %w", err)
	}

	a.logger.Debug("Email sent",
		zap.String("incident_id", inc.ID),
		zap.String("to", to))
	return true, nil
}
