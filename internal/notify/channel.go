package notify

import (
	"context"

	"github.com/slawatch/slawatch/internal/model"
)

// ChannelAdapter delivers one incident alert to one recipient over one
// medium. Deliver returns (true, nil) when the channel accepted the message,
// (false, err) when the attempt failed, and (false, nil) when the adapter is
// not configured for delivery at all.
type ChannelAdapter interface {
	Channel() model.Channel
	Deliver(ctx context.Context, inc *model.Incident, rcp *model.Recipient) (bool, error)
}
