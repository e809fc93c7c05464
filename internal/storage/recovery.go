package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/slawatch/slawatch/internal/model"
)

// RecoveryStore defines the interface for recovery action records
type RecoveryStore interface {
	// InsertRecoveryResult stores one remediation attempt
	InsertRecoveryResult(ctx context.Context, r *model.RecoveryResult) error

	// RecoveryResultsForIncident returns all attempts for an incident, oldest first
	RecoveryResultsForIncident(ctx context.Context, incidentID string) ([]*model.RecoveryResult, error)
}

// InsertRecoveryResult implements RecoveryStore.InsertRecoveryResult
func (s *SQLiteStore) InsertRecoveryResult(ctx context.Context, r *model.RecoveryResult) error {
	var outputStr string
	if len(r.Output) > 0 {
		data, err := json.Marshal(r.Output)
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		outputStr = string(data)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sla_recovery_actions (
			id, incident_id, service, action, executed_at, success,
			duration_ns, output, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID,
		r.IncidentID,
		r.Service,
		string(r.Action),
		r.ExecutedAt,
		r.Success,
		int64(r.Duration),
		sql.NullString{String: outputStr, Valid: outputStr != ""},
		sql.NullString{String: r.Error, Valid: r.Error != ""},
	)
	if err != nil {
		return fmt.Errorf("failed to insert recovery result: %w", err)
	}
	return nil
}

// RecoveryResultsForIncident implements RecoveryStore.RecoveryResultsForIncident
func (s *SQLiteStore) RecoveryResultsForIncident(ctx context.Context, incidentID string) ([]*model.RecoveryResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, incident_id, service, action, executed_at, success, duration_ns, output, error
		FROM sla_recovery_actions
		WHERE incident_id = ?
		ORDER BY executed_at ASC`,
		incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query recovery results: %w", err)
	}
	defer rows.Close()

	var results []*model.RecoveryResult
	for rows.Next() {
		r := &model.RecoveryResult{}
		var actionStr string
		var durationNanos int64
		var output, errStr sql.NullString

		if err := rows.Scan(&r.ID, &r.IncidentID, &r.Service, &actionStr, &r.ExecutedAt, &r.Success, &durationNanos, &output, &errStr); err != nil {
			return nil, fmt.Errorf("failed to scan recovery result: %w", err)
		}

		r.Action = model.RecoveryAction(actionStr)
		r.Duration = time.Duration(durationNanos)
		if output.Valid && output.String != "" {
			if err := json.Unmarshal([]byte(output.String), &r.Output); err != nil {
				return nil, fmt.Errorf("failed to unmarshal output: %w", err)
			}
		}
		if errStr.Valid {
			r.Error = errStr.String
		}

		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return results, nil
}
