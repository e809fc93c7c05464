package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

func (d *Dispatcher) retryLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case <-ticker.C:
			d.sweepRetries(ctx)
		}
	}
}

// sweepRetries re-queues failed notifications whose backoff window has
// elapsed. The retry counter advances once per sweep pickup, before the
// attempt runs.
func (d *Dispatcher) sweepRetries(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-d.cfg.RetryBackoff)
	retryable, err := d.store.RetryableNotifications(ctx, cutoff)
	if err != nil {
		d.logger.Error("Failed to list retryable notifications", zap.Error(err))
		return
	}

	for _, n := range retryable {
		inc, err := d.store.GetIncident(ctx, n.IncidentID)
		if err != nil || inc == nil {
			d.logger.Error("Failed to load incident for retry",
				zap.String("notification_id", n.ID),
				zap.String("incident_id", n.IncidentID),
				zap.Error(err))
			continue
		}
		rcp, err := d.store.GetRecipient(ctx, n.RecipientID)
		if err != nil || rcp == nil {
			d.logger.Error("Failed to load recipient for retry",
				zap.String("notification_id", n.ID),
				zap.String("recipient_id", n.RecipientID),
				zap.Error(err))
			continue
		}

		n.RetryCount++
		if err := d.store.UpdateNotification(ctx, n); err != nil {
			d.logger.Error("Failed to persist retry attempt",
				zap.String("notification_id", n.ID),
				zap.Error(err))
			continue
		}
		d.metrics.NotificationRetried()

		d.logger.Info("Retrying notification",
			zap.String("notification_id", n.ID),
			zap.String("channel", string(n.Channel)),
			zap.Int("retry_count", n.RetryCount),
			zap.Int("max_retries", n.MaxRetries))

		d.enqueue(ctx, job{notification: n, incident: inc, recipient: rcp})
	}
}
