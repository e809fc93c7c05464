package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/slawatch/slawatch/internal/model"
)

// TrendStore defines the interface for persisted trend analysis results
type TrendStore interface {
	// InsertTrendRecord stores one analysis result
	InsertTrendRecord(ctx context.Context, t *model.TrendRecord) error

	// LatestTrend returns the most recent record for a series; nil when absent
	LatestTrend(ctx context.Context, service string, metric model.MetricType) (*model.TrendRecord, error)
}

// InsertTrendRecord implements TrendStore.InsertTrendRecord
func (s *SQLiteStore) InsertTrendRecord(ctx context.Context, t *model.TrendRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sla_trends (
			id, service, metric, direction, slope, mean, samples,
			window_start, window_end, computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.Service,
		string(t.Metric),
		string(t.Direction),
		t.Slope,
		t.Mean,
		t.Samples,
		t.WindowStart,
		t.WindowEnd,
		t.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trend record: %w", err)
	}
	return nil
}

// LatestTrend implements TrendStore.LatestTrend
func (s *SQLiteStore) LatestTrend(ctx context.Context, service string, metric model.MetricType) (*model.TrendRecord, error) {
	t := &model.TrendRecord{}
	var metricStr, directionStr string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, service, metric, direction, slope, mean, samples, window_start, window_end, computed_at
		FROM sla_trends
		WHERE service = ? AND metric = ?
		ORDER BY computed_at DESC
		LIMIT 1`,
		service, string(metric)).Scan(
		&t.ID,
		&t.Service,
		&metricStr,
		&directionStr,
		&t.Slope,
		&t.Mean,
		&t.Samples,
		&t.WindowStart,
		&t.WindowEnd,
		&t.ComputedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan trend record: %w", err)
	}

	t.Metric = model.MetricType(metricStr)
	t.Direction = model.TrendDirection(directionStr)
	return t, nil
}
