package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/slawatch/slawatch/internal/model"
)

// ViolationStore defines the interface for violation persistence
type ViolationStore interface {
	// InsertViolation stores a newly detected violation
	InsertViolation(ctx context.Context, v *model.Violation) error

	// UpdateViolation persists resolution fields of an existing violation
	UpdateViolation(ctx context.Context, v *model.Violation) error

	// GetViolation retrieves a violation by ID; nil when absent
	GetViolation(ctx context.Context, id string) (*model.Violation, error)

	// ActiveViolation returns the unresolved violation for a pair; nil when none
	ActiveViolation(ctx context.Context, slaID, service string) (*model.Violation, error)

	// ActiveViolations returns all unresolved violations
	ActiveViolations(ctx context.Context) ([]*model.Violation, error)

	// ListViolations retrieves violations with filters and pagination
	ListViolations(ctx context.Context, filters map[string]interface{}, offset, limit int) ([]*model.Violation, error)

	// ViolationsInRange returns violations for a service overlapping [from, to]
	ViolationsInRange(ctx context.Context, service string, from, to time.Time) ([]*model.Violation, error)

	// DeleteResolvedViolationsBefore deletes resolved violations older than the given time
	DeleteResolvedViolationsBefore(ctx context.Context, before time.Time) (int64, error)
}

const violationColumns = "id, sla_id, service, metric, threshold, observed, breach_pct, severity, started_at, ended_at, duration_ns, resolved, root_cause, resolution_notes"

func scanViolation(scan func(dest ...interface{}) error) (*model.Violation, error) {
	v := &model.Violation{}
	var metricStr, severityStr string
	var endedAt sql.NullTime
	var durationNanos sql.NullInt64
	var rootCause, notes sql.NullString

	err := scan(
		&v.ID,
		&v.SLAID,
		&v.Service,
		&metricStr,
		&v.Threshold,
		&v.Observed,
		&v.BreachPct,
		&severityStr,
		&v.StartedAt,
		&endedAt,
		&durationNanos,
		&v.Resolved,
		&rootCause,
		&notes,
	)
	if err != nil {
		return nil, err
	}

	v.Metric = model.MetricType(metricStr)
	v.Severity = model.Severity(severityStr)
	if endedAt.Valid {
		v.EndedAt = &endedAt.Time
	}
	if durationNanos.Valid {
		v.Duration = time.Duration(durationNanos.Int64)
	}
	if rootCause.Valid {
		v.RootCause = rootCause.String
	}
	if notes.Valid {
		v.ResolutionNotes = notes.String
	}

	return v, nil
}

// InsertViolation implements ViolationStore.InsertViolation
func (s *SQLiteStore) InsertViolation(ctx context.Context, v *model.Violation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sla_violations (
			id, sla_id, service, metric, threshold, observed, breach_pct,
			severity, started_at, resolved
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID,
		v.SLAID,
		v.Service,
		string(v.Metric),
		v.Threshold,
		v.Observed,
		v.BreachPct,
		string(v.Severity),
		v.StartedAt,
		v.Resolved,
	)
	if err != nil {
		return fmt.Errorf("failed to insert violation: %w", err)
	}
	return nil
}

// UpdateViolation implements ViolationStore.UpdateViolation
func (s *SQLiteStore) UpdateViolation(ctx context.Context, v *model.Violation) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sla_violations SET
			observed = ?,
			breach_pct = ?,
			ended_at = ?,
			duration_ns = ?,
			resolved = ?,
			root_cause = ?,
			resolution_notes = ?
		WHERE id = ?`,
		v.Observed,
		v.BreachPct,
		nullTime(v.EndedAt),
		sql.NullInt64{Int64: int64(v.Duration), Valid: v.Duration != 0},
		v.Resolved,
		sql.NullString{String: v.RootCause, Valid: v.RootCause != ""},
		sql.NullString{String: v.ResolutionNotes, Valid: v.ResolutionNotes != ""},
		v.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update violation: %w", err)
	}
	return nil
}

// GetViolation implements ViolationStore.GetViolation
func (s *SQLiteStore) GetViolation(ctx context.Context, id string) (*model.Violation, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+violationColumns+" FROM sla_violations WHERE id = ?", id)

	v, err := scanViolation(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan violation: %w", err)
	}
	return v, nil
}

// ActiveViolation implements ViolationStore.ActiveViolation
func (s *SQLiteStore) ActiveViolation(ctx context.Context, slaID, service string) (*model.Violation, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+violationColumns+" FROM sla_violations WHERE sla_id = ? AND service = ? AND resolved = 0", slaID, service)

	v, err := scanViolation(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan violation: %w", err)
	}
	return v, nil
}

// ActiveViolations implements ViolationStore.ActiveViolations
func (s *SQLiteStore) ActiveViolations(ctx context.Context) ([]*model.Violation, error) {
	return s.queryViolations(ctx,
		"SELECT "+violationColumns+" FROM sla_violations WHERE resolved = 0 ORDER BY started_at ASC")
}

// ListViolations implements ViolationStore.ListViolations
func (s *SQLiteStore) ListViolations(ctx context.Context, filters map[string]interface{}, offset, limit int) ([]*model.Violation, error) {
	query := "SELECT " + violationColumns + " FROM sla_violations"
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

	query += " ORDER BY started_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	return s.queryViolations(ctx, query, args...)
}

// ViolationsInRange implements ViolationStore.ViolationsInRange
func (s *SQLiteStore) ViolationsInRange(ctx context.Context, service string, from, to time.Time) ([]*model.Violation, error) {
	return s.queryViolations(ctx,
		"SELECT "+violationColumns+` FROM sla_violations
		WHERE service = ? AND started_at <= ? AND (ended_at IS NULL OR ended_at >= ?)
		ORDER BY started_at ASC`,
		service, to, from)
}

// DeleteResolvedViolationsBefore implements ViolationStore.DeleteResolvedViolationsBefore
func (s *SQLiteStore) DeleteResolvedViolationsBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM sla_violations WHERE resolved = 1 AND started_at < ?", before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete violations: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected, nil
}

func (s *SQLiteStore) queryViolations(ctx context.Context, query string, args ...interface{}) ([]*model.Violation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query violations: %w", err)
	}
	defer rows.Close()

	var violations []*model.Violation
	for rows.Next() {
		v, err := scanViolation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan violation: %w", err)
		}
		violations = append(violations, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return violations, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
