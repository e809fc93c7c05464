package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/slawatch/slawatch/internal/model"
)

// NotificationStore defines the interface for notification persistence
type NotificationStore interface {
	// InsertNotification stores a new notification instance
	InsertNotification(ctx context.Context, n *model.Notification) error

	// UpdateNotification persists delivery state of an existing instance
	UpdateNotification(ctx context.Context, n *model.Notification) error

	// GetNotification retrieves a notification by ID; nil when absent
	GetNotification(ctx context.Context, id string) (*model.Notification, error)

	// GetNotificationByTuple retrieves the instance for a delivery tuple; nil when absent
	GetNotificationByTuple(ctx context.Context, incidentID, recipientID string, channel model.Channel, level int) (*model.Notification, error)

	// RetryableNotifications returns failed instances with retry budget left
	// whose last failure is older than the given time
	RetryableNotifications(ctx context.Context, failedBefore time.Time) ([]*model.Notification, error)

	// ListNotifications returns all instances for an incident
	ListNotifications(ctx context.Context, incidentID string) ([]*model.Notification, error)
}

const notificationColumns = "id, incident_id, recipient_id, channel, level, status, created_at, sent_at, delivered_at, acknowledged_at, failed_at, retry_count, max_retries, last_error"

func scanNotification(scan func(dest ...interface{}) error) (*model.Notification, error) {
	n := &model.Notification{}
	var channelStr, statusStr string
	var sentAt, deliveredAt, ackAt, failedAt sql.NullTime
	var lastError sql.NullString

	err := scan(
		&n.ID,
		&n.IncidentID,
		&n.RecipientID,
		&channelStr,
		&n.Level,
		&statusStr,
		&n.CreatedAt,
		&sentAt,
		&deliveredAt,
		&ackAt,
		&failedAt,
		&n.RetryCount,
		&n.MaxRetries,
		&lastError,
	)
	if err != nil {
		return nil, err
	}

	n.Channel = model.Channel(channelStr)
	n.Status = model.NotificationStatus(statusStr)
	if sentAt.Valid {
		n.SentAt = &sentAt.Time
	}
	if deliveredAt.Valid {
		n.DeliveredAt = &deliveredAt.Time
	}
	if ackAt.Valid {
		n.AcknowledgedAt = &ackAt.Time
	}
	if failedAt.Valid {
		n.FailedAt = &failedAt.Time
	}
	if lastError.Valid {
		n.LastError = lastError.String
	}

	return n, nil
}

// InsertNotification implements NotificationStore.InsertNotification
func (s *SQLiteStore) InsertNotification(ctx context.Context, n *model.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sla_notifications (
			id, incident_id, recipient_id, channel, level, status,
			created_at, retry_count, max_retries
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID,
		n.IncidentID,
		n.RecipientID,
		string(n.Channel),
		n.Level,
		string(n.Status),
		n.CreatedAt,
		n.RetryCount,
		n.MaxRetries,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// UpdateNotification implements NotificationStore.UpdateNotification
func (s *SQLiteStore) UpdateNotification(ctx context.Context, n *model.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sla_notifications SET
			status = ?,
			sent_at = ?,
			delivered_at = ?,
			acknowledged_at = ?,
			failed_at = ?,
			retry_count = ?,
			last_error = ?
		WHERE id = ?`,
		string(n.Status),
		nullTime(n.SentAt),
		nullTime(n.DeliveredAt),
		nullTime(n.AcknowledgedAt),
		nullTime(n.FailedAt),
		n.RetryCount,
		sql.NullString{String: n.LastError, Valid: n.LastError != ""},
		n.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	return nil
}

// GetNotification implements NotificationStore.GetNotification
func (s *SQLiteStore) GetNotification(ctx context.Context, id string) (*model.Notification, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+notificationColumns+" FROM sla_notifications WHERE id = ?", id)

	n, err := scanNotification(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan notification: %w", err)
	}
	return n, nil
}

// GetNotificationByTuple implements NotificationStore.GetNotificationByTuple
func (s *SQLiteStore) GetNotificationByTuple(ctx context.Context, incidentID, recipientID string, channel model.Channel, level int) (*model.Notification, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+notificationColumns+` FROM sla_notifications
		WHERE incident_id = ? AND recipient_id = ? AND channel = ? AND level = ?`,
		incidentID, recipientID, string(channel), level)

	n, err := scanNotification(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan notification: %w", err)
	}
	return n, nil
}

// RetryableNotifications implements NotificationStore.RetryableNotifications
func (s *SQLiteStore) RetryableNotifications(ctx context.Context, failedBefore time.Time) ([]*model.Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+notificationColumns+` FROM sla_notifications
		WHERE status = ? AND retry_count < max_retries AND failed_at IS NOT NULL AND failed_at <= ?
		ORDER BY failed_at ASC`,
		string(model.NotificationFailed), failedBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to query retryable notifications: %w", err)
	}
	defer rows.Close()

	return collectNotifications(rows)
}

// ListNotifications implements NotificationStore.ListNotifications
func (s *SQLiteStore) ListNotifications(ctx context.Context, incidentID string) ([]*model.Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+notificationColumns+` FROM sla_notifications
		WHERE incident_id = ?
		ORDER BY created_at ASC`,
		incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	return collectNotifications(rows)
}

func collectNotifications(rows *sql.Rows) ([]*model.Notification, error) {
	var notifications []*model.Notification
	for rows.Next() {
		n, err := scanNotification(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return notifications, nil
}
