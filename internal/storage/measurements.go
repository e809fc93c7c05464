package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/slawatch/slawatch/internal/model"
)

// Series identifies one measured time series
type Series struct {
	Service string
	Metric  model.MetricType
}

// MeasurementStore defines the interface for the measurement time series
type MeasurementStore interface {
	// InsertMeasurement appends one measurement
	InsertMeasurement(ctx context.Context, m *model.Measurement) error

	// MeasurementsInRange returns measurements for a series within [from, to], oldest first
	MeasurementsInRange(ctx context.Context, service string, metric model.MetricType, from, to time.Time) ([]*model.Measurement, error)

	// ListSeries returns the distinct (service, metric) pairs with data in [from, to]
	ListSeries(ctx context.Context, from, to time.Time) ([]Series, error)

	// DeleteMeasurementsBefore deletes measurements older than the given time
	DeleteMeasurementsBefore(ctx context.Context, before time.Time) (int64, error)
}

// InsertMeasurement implements MeasurementStore.InsertMeasurement
func (s *SQLiteStore) InsertMeasurement(ctx context.Context, m *model.Measurement) error {
	var labelsStr string
	if len(m.Labels) > 0 {
		data, err := json.Marshal(m.Labels)
		if err != nil {
			return fmt.Errorf("failed to marshal labels: %w", err)
		}
		labelsStr = string(data)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sla_measurements (
			id, sla_id, service, metric, value, timestamp, labels
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID,
		sql.NullString{String: m.SLAID, Valid: m.SLAID != ""},
		m.Service,
		string(m.Metric),
		m.Value,
		m.Timestamp,
		sql.NullString{String: labelsStr, Valid: labelsStr != ""},
	)
	if err != nil {
		return fmt.Errorf("failed to insert measurement: %w", err)
	}
	return nil
}

// MeasurementsInRange implements MeasurementStore.MeasurementsInRange
func (s *SQLiteStore) MeasurementsInRange(ctx context.Context, service string, metric model.MetricType, from, to time.Time) ([]*model.Measurement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sla_id, service, metric, value, timestamp, labels
		FROM sla_measurements
		WHERE service = ? AND metric = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC`,
		service, string(metric), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query measurements: %w", err)
	}
	defer rows.Close()

	var measurements []*model.Measurement
	for rows.Next() {
		m := &model.Measurement{}
		var slaID, labels sql.NullString
		var metricStr string

		if err := rows.Scan(&m.ID, &slaID, &m.Service, &metricStr, &m.Value, &m.Timestamp, &labels); err != nil {
			return nil, fmt.Errorf("failed to scan measurement: %w", err)
		}

		m.Metric = model.MetricType(metricStr)
		if slaID.Valid {
			m.SLAID = slaID.String
		}
		if labels.Valid && labels.String != "" {
			if err := json.Unmarshal([]byte(labels.String), &m.Labels); err != nil {
				return nil, fmt.Errorf("failed to unmarshal labels: %w", err)
			}
		}

		measurements = append(measurements, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return measurements, nil
}

// ListSeries implements MeasurementStore.ListSeries
func (s *SQLiteStore) ListSeries(ctx context.Context, from, to time.Time) ([]Series, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT service, metric
		FROM sla_measurements
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY service, metric`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list series: %w", err)
	}
	defer rows.Close()

	var series []Series
	for rows.Next() {
		var sr Series
		var metricStr string
		if err := rows.Scan(&sr.Service, &metricStr); err != nil {
			return nil, fmt.Errorf("failed to scan series: %w", err)
		}
		sr.Metric = model.MetricType(metricStr)
		series = append(series, sr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return series, nil
}

// DeleteMeasurementsBefore implements MeasurementStore.DeleteMeasurementsBefore
func (s *SQLiteStore) DeleteMeasurementsBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM sla_measurements WHERE timestamp < ?", before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete measurements: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected, nil
}
