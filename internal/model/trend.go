package model

import "time"

// TrendDirection classifies the slope of a metric over the analysis window
type TrendDirection string

const (
	TrendImproving        TrendDirection = "improving"
	TrendDegrading        TrendDirection = "degrading"
	TrendStable           TrendDirection = "stable"
	TrendInsufficientData TrendDirection = "insufficient_data"
)

// TrendRecord is the persisted result of one trend analysis run for one
// (service, metric) pair
type TrendRecord struct {
	ID          string         `json:"id"`
	Service     string         `json:"service"`
	Metric      MetricType     `json:"metric"`
	Direction   TrendDirection `json:"direction"`
	Slope       float64        `json:"slope"`
	Mean        float64        `json:"mean"`
	Samples     int            `json:"samples"`
	WindowStart time.Time      `json:"window_start"`
	WindowEnd   time.Time      `json:"window_end"`
	ComputedAt  time.Time      `json:"computed_at"`
}
