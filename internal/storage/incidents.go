package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/slawatch/slawatch/internal/model"
)

// IncidentStore defines the interface for incident persistence
type IncidentStore interface {
	// InsertIncident stores a newly opened incident
	InsertIncident(ctx context.Context, inc *model.Incident) error

	// UpdateIncident persists mutable incident fields
	UpdateIncident(ctx context.Context, inc *model.Incident) error

	// GetIncident retrieves an incident by ID; nil when absent
	GetIncident(ctx context.Context, id string) (*model.Incident, error)

	// GetIncidentByViolation retrieves the incident for a violation; nil when absent
	GetIncidentByViolation(ctx context.Context, violationID string) (*model.Incident, error)

	// ActiveIncidents returns all incidents not in a terminal state
	ActiveIncidents(ctx context.Context) ([]*model.Incident, error)

	// ListIncidents retrieves incidents with filters and pagination
	ListIncidents(ctx context.Context, filters map[string]interface{}, offset, limit int) ([]*model.Incident, error)

	// DeleteClosedIncidentsBefore deletes terminal incidents created before the given time
	DeleteClosedIncidentsBefore(ctx context.Context, before time.Time) (int64, error)
}

const incidentColumns = "id, violation_id, service, severity, status, escalation_level, created_at, acknowledged_at, acknowledged_by, escalated_at, resolved_at, resolution_notes, recovery_actions, impact, labels"

func scanIncident(scan func(dest ...interface{}) error) (*model.Incident, error) {
	inc := &model.Incident{}
	var severityStr, statusStr string
	var ackAt, escAt, resAt sql.NullTime
	var ackBy, notes, actions, impact, labels sql.NullString

	err := scan(
		&inc.ID,
		&inc.ViolationID,
		&inc.Service,
		&severityStr,
		&statusStr,
		&inc.EscalationLevel,
		&inc.CreatedAt,
		&ackAt,
		&ackBy,
		&escAt,
		&resAt,
		&notes,
		&actions,
		&impact,
		&labels,
	)
	if err != nil {
		return nil, err
	}

	inc.Severity = model.Severity(severityStr)
	inc.Status = model.IncidentStatus(statusStr)
	if ackAt.Valid {
		inc.AcknowledgedAt = &ackAt.Time
	}
	if ackBy.Valid {
		inc.AcknowledgedBy = ackBy.String
	}
	if escAt.Valid {
		inc.EscalatedAt = &escAt.Time
	}
	if resAt.Valid {
		inc.ResolvedAt = &resAt.Time
	}
	if notes.Valid {
		inc.ResolutionNotes = notes.String
	}
	if actions.Valid && actions.String != "" {
		if err := json.Unmarshal([]byte(actions.String), &inc.RecoveryActions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal recovery actions: %w", err)
		}
	}
	if impact.Valid && impact.String != "" {
		if err := json.Unmarshal([]byte(impact.String), &inc.Impact); err != nil {
			return nil, fmt.Errorf("failed to unmarshal impact: %w", err)
		}
	}
	if labels.Valid && labels.String != "" {
		if err := json.Unmarshal([]byte(labels.String), &inc.Labels); err != nil {
			return nil, fmt.Errorf("failed to unmarshal labels: %w", err)
		}
	}

	return inc, nil
}

func incidentJSONFields(inc *model.Incident) (actions, impact, labels sql.NullString, err error) {
	if len(inc.RecoveryActions) > 0 {
		data, merr := json.Marshal(inc.RecoveryActions)
		if merr != nil {
			return actions, impact, labels, fmt.Errorf("failed to marshal recovery actions: %w", merr)
		}
		actions = sql.NullString{String: string(data), Valid: true}
	}
	data, merr := json.Marshal(inc.Impact)
	if merr != nil {
		return actions, impact, labels, fmt.Errorf("failed to marshal impact: %w", merr)
	}
	impact = sql.NullString{String: string(data), Valid: true}
	if len(inc.Labels) > 0 {
		data, merr := json.Marshal(inc.Labels)
		if merr != nil {
			return actions, impact, labels, fmt.Errorf("failed to marshal labels: %w", merr)
		}
		labels = sql.NullString{String: string(data), Valid: true}
	}
	return actions, impact, labels, nil
}

// InsertIncident implements IncidentStore.InsertIncident
func (s *SQLiteStore) InsertIncident(ctx context.Context, inc *model.Incident) error {
	actions, impact, labels, err := incidentJSONFields(inc)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sla_incidents (
			id, violation_id, service, severity, status, escalation_level,
			created_at, recovery_actions, impact, labels
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inc.ID,
		inc.ViolationID,
		inc.Service,
		string(inc.Severity),
		string(inc.Status),
		inc.EscalationLevel,
		inc.CreatedAt,
		actions,
		impact,
		labels,
	)
	if err != nil {
		return fmt.Errorf("failed to insert incident: %w", err)
	}
	return nil
}

// UpdateIncident implements IncidentStore.UpdateIncident
func (s *SQLiteStore) UpdateIncident(ctx context.Context, inc *model.Incident) error {
	actions, impact, labels, err := incidentJSONFields(inc)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE sla_incidents SET
			status = ?,
			escalation_level = ?,
			acknowledged_at = ?,
			acknowledged_by = ?,
			escalated_at = ?,
			resolved_at = ?,
			resolution_notes = ?,
			recovery_actions = ?,
			impact = ?,
			labels = ?
		WHERE id = ?`,
		string(inc.Status),
		inc.EscalationLevel,
		nullTime(inc.AcknowledgedAt),
		sql.NullString{String: inc.AcknowledgedBy, Valid: inc.AcknowledgedBy != ""},
		nullTime(inc.EscalatedAt),
		nullTime(inc.ResolvedAt),
		sql.NullString{String: inc.ResolutionNotes, Valid: inc.ResolutionNotes != ""},
		actions,
		impact,
		labels,
		inc.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update incident: %w", err)
	}
	return nil
}

// GetIncident implements IncidentStore.GetIncident
func (s *SQLiteStore) GetIncident(ctx context.Context, id string) (*model.Incident, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+incidentColumns+" FROM sla_incidents WHERE id = ?", id)

	inc, err := scanIncident(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan incident: %w", err)
	}
	return inc, nil
}

// GetIncidentByViolation implements IncidentStore.GetIncidentByViolation
func (s *SQLiteStore) GetIncidentByViolation(ctx context.Context, violationID string) (*model.Incident, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+incidentColumns+" FROM sla_incidents WHERE violation_id = ?", violationID)

	inc, err := scanIncident(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan incident: %w", err)
	}
	return inc, nil
}

// ActiveIncidents implements IncidentStore.ActiveIncidents
func (s *SQLiteStore) ActiveIncidents(ctx context.Context) ([]*model.Incident, error) {
	return s.queryIncidents(ctx,
		"SELECT "+incidentColumns+` FROM sla_incidents
		WHERE status NOT IN (?, ?)
		ORDER BY created_at ASC`,
		string(model.IncidentResolved), string(model.IncidentClosed))
}

// ListIncidents implements IncidentStore.ListIncidents
func (s *SQLiteStore) ListIncidents(ctx context.Context, filters map[string]interface{}, offset, limit int) ([]*model.Incident, error) {
	query := "SELECT " + incidentColumns + " FROM sla_incidents"
	args := make([]interface{}, 0)

	if len(filters) > 0 {
		query += " WHERE"
		first := true
		for key, value := range filters {
			if !first {
				query += " AND"
			}
			query += fmt.Sprintf(" %s = ?", key)
			args = append(args, value)
			first = false
		}
	}

	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	return s.queryIncidents(ctx, query, args...)
}

// DeleteClosedIncidentsBefore implements IncidentStore.DeleteClosedIncidentsBefore
func (s *SQLiteStore) DeleteClosedIncidentsBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM sla_incidents
		WHERE status IN (?, ?) AND created_at < ?`,
		string(model.IncidentResolved), string(model.IncidentClosed), before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete incidents: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected, nil
}

func (s *SQLiteStore) queryIncidents(ctx context.Context, query string, args ...interface{}) ([]*model.Incident, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}
	defer rows.Close()

	var incidents []*model.Incident
	for rows.Next() {
		inc, err := scanIncident(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		incidents = append(incidents, inc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return incidents, nil
}
