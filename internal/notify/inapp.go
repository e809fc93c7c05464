package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/slawatch/slawatch/internal/model"
)

// FeedPublisher pushes incidents onto the in-app alert feed
type FeedPublisher interface {
	Feed(inc *model.Incident, recipientID string) error
}

// InAppAdapter surfaces alerts on the dashboard feed. The notification row
// itself is the feed entry; delivery just announces it on the event stream.
type InAppAdapter struct {
	logger *zap.Logger
	feed   FeedPublisher
}

// NewInAppAdapter creates an in-app adapter; a nil publisher leaves it
// unconfigured
func NewInAppAdapter(logger *zap.Logger, feed FeedPublisher) *InAppAdapter {
	return &InAppAdapter{
		logger: logger.Named("inapp"),
		feed:   feed,
	}
}

// Channel implements ChannelAdapter.Channel.
func (a *InAppAdapter) Channel() model.Channel {
	return model.ChannelInApp
}

// Deliver implements ChannelAdapter.Deliver.
func (a *InAppAdapter) Deliver(ctx context.Context, inc *model.Incident, rcp *model.Recipient) (bool, error) {
	if a.feed == nil {
		return false, nil
	}
	if err := a.feed.Feed(inc, rcp.ID); err != nil {
		return false, fmt.Errorf("failed to publish feed entry: %w", err)
	}

	a.logger.Debug("Feed entry published",
		zap.String("incident_id", inc.ID),
		zap.String("recipient_id", rcp.ID))
	return true, nil
}
