package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/slawatch/slawatch/internal/metrics"
	"github.com/slawatch/slawatch/internal/model"
	"github.com/slawatch/slawatch/internal/storage"
)

// ErrEmptyWindow reports a compliance report over a range with no data
var ErrEmptyWindow = errors.New("no measurements in report range")

// QueryStore is the read surface the query service needs
type QueryStore interface {
	ActiveViolations(ctx context.Context) ([]*model.Violation, error)
	ActiveIncidents(ctx context.Context) ([]*model.Incident, error)
	ViolationsInRange(ctx context.Context, service string, from, to time.Time) ([]*model.Violation, error)
	ListSeries(ctx context.Context, from, to time.Time) ([]storage.Series, error)
	MeasurementsInRange(ctx context.Context, service string, metric model.MetricType, from, to time.Time) ([]*model.Measurement, error)
	ListDefinitions(ctx context.Context, enabledOnly bool) ([]*model.SLADefinition, error)
	LatestTrend(ctx context.Context, service string, metric model.MetricType) (*model.TrendRecord, error)
}

// Acknowledger is the slice of the incident manager the facade exposes
type Acknowledger interface {
	Acknowledge(ctx context.Context, id, actor string) (bool, error)
}

// Filter narrows violation and incident listings; zero values match everything
type Filter struct {
	Service  string
	Severity model.Severity
}

func (f Filter) matchViolation(v *model.Violation) bool {
	if f.Service != "" && v.Service != f.Service {
		return false
	}
	if f.Severity != "" && v.Severity != f.Severity {
		return false
	}
	return true
}

func (f Filter) matchIncident(inc *model.Incident) bool {
	if f.Service != "" && inc.Service != f.Service {
		return false
	}
	if f.Severity != "" && inc.Severity != f.Severity {
		return false
	}
	return true
}

// MetricReport aggregates one measured metric over the report range
type MetricReport struct {
	Metric        model.MetricType     `json:"metric"`
	Count         int                  `json:"count"`
	Mean          float64              `json:"mean"`
	Min           float64              `json:"min"`
	Max           float64              `json:"max"`
	P95           float64              `json:"p95"`
	P99           float64              `json:"p99"`
	CompliancePct *float64             `json:"compliance_pct,omitempty"`
	Trend         model.TrendDirection `json:"trend"`
}

// ViolationSummary aggregates the violations raised in the report range
type ViolationSummary struct {
	Total         int                    `json:"total"`
	Active        int                    `json:"active"`
	BySeverity    map[model.Severity]int `json:"by_severity"`
	TotalDowntime time.Duration          `json:"total_downtime"`
}

// Report summarizes a service's SLA posture over a period. Compliance is the
// share of samples meeting the SLA threshold; metrics without a definition
// report aggregates only.
type Report struct {
	Service         string           `json:"service"`
	From            time.Time        `json:"from"`
	To              time.Time        `json:"to"`
	GeneratedAt     time.Time        `json:"generated_at"`
	Metrics         []MetricReport   `json:"metrics"`
	Violations      ViolationSummary `json:"violations"`
	Recommendations []string         `json:"recommendations"`
}

// QueryService is the read facade consumed by the dashboard and API layers
type QueryService struct {
	logger    *zap.Logger
	store     QueryStore
	incidents Acknowledger
	metrics   *metrics.Metrics
}

// NewQueryService creates the facade
func NewQueryService(logger *zap.Logger, store QueryStore, incidents Acknowledger, m *metrics.Metrics) *QueryService {
	return &QueryService{
		logger:    logger.Named("query"),
		store:     store,
		incidents: incidents,
		metrics:   m,
	}
}

// ActiveViolations lists unresolved violations matching the filter
func (s *QueryService) ActiveViolations(ctx context.Context, f Filter) ([]*model.Violation, error) {
	violations, err := s.store.ActiveViolations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active violations: %w", err)
	}

	out := violations[:0]
	for _, v := range violations {
		if f.matchViolation(v) {
			out = append(out, v)
		}
	}
	return out, nil
}

// ActiveIncidents lists non-terminal incidents matching the filter
func (s *QueryService) ActiveIncidents(ctx context.Context, f Filter) ([]*model.Incident, error) {
	incidents, err := s.store.ActiveIncidents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active incidents: %w", err)
	}

	out := incidents[:0]
	for _, inc := range incidents {
		if f.matchIncident(inc) {
			out = append(out, inc)
		}
	}
	return out, nil
}

// AcknowledgeIncident records that an operator took ownership of an incident
func (s *QueryService) AcknowledgeIncident(ctx context.Context, id, actor string) (bool, error) {
	return s.incidents.Acknowledge(ctx, id, actor)
}

// MetricsSnapshot reports the engine's operational counters
func (s *QueryService) MetricsSnapshot() metrics.Snapshot {
	return s.metrics.Snapshot()
}

// Report builds the compliance report for one service over [from, to]
func (s *QueryService) Report(ctx context.Context, service string, from, to time.Time) (*Report, error) {
	series, err := s.store.ListSeries(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list series: %w", err)
	}

	defs, err := s.store.ListDefinitions(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	defsByMetric := make(map[model.MetricType]*model.SLADefinition)
	for _, def := range defs {
		if def.Service == service {
			defsByMetric[def.Metric] = def
		}
	}

	report := &Report{
		Service:     service,
		From:        from,
		To:          to,
		GeneratedAt: time.Now().UTC(),
	}

	for _, sr := range series {
		if sr.Service != service {
			continue
		}
		mr, err := s.metricReport(ctx, sr, from, to, defsByMetric[sr.Metric])
		if err != nil {
			return nil, err
		}
		report.Metrics = append(report.Metrics, mr)
	}
	if len(report.Metrics) == 0 {
		return nil, ErrEmptyWindow
	}

	if err := s.summarizeViolations(ctx, report); err != nil {
		return nil, err
	}
	report.Recommendations = recommendations(report)

	s.logger.Info("Report generated",
		zap.String("service", service),
		zap.Time("from", from),
		zap.Time("to", to),
		zap.Int("metrics", len(report.Metrics)))
	return report, nil
}

func (s *QueryService) metricReport(ctx context.Context, sr storage.Series, from, to time.Time, def *model.SLADefinition) (MetricReport, error) {
	measurements, err := s.store.MeasurementsInRange(ctx, sr.Service, sr.Metric, from, to)
	if err != nil {
		return MetricReport{}, fmt.Errorf("failed to load measurements: %w", err)
	}

	mr := MetricReport{
		Metric: sr.Metric,
		Count:  len(measurements),
		Trend:  model.TrendInsufficientData,
	}
	if len(measurements) == 0 {
		return mr, nil
	}

	values := make([]float64, len(measurements))
	var sum float64
	mr.Min = math.Inf(1)
	mr.Max = math.Inf(-1)
	compliant := 0
	for i, m := range measurements {
		values[i] = m.Value
		sum += m.Value
		if m.Value < mr.Min {
			mr.Min = m.Value
		}
		if m.Value > mr.Max {
			mr.Max = m.Value
		}
		if def != nil && def.Operator.Compare(m.Value, def.Threshold) {
			compliant++
		}
	}
	mr.Mean = sum / float64(len(values))

	sort.Float64s(values)
	mr.P95 = percentile(values, 0.95)
	mr.P99 = percentile(values, 0.99)

	if def != nil {
		pct := float64(compliant) / float64(len(values)) * 100
		mr.CompliancePct = &pct
	}

	trend, err := s.store.LatestTrend(ctx, sr.Service, sr.Metric)
	if err != nil {
		return MetricReport{}, fmt.Errorf("failed to load trend: %w", err)
	}
	if trend != nil {
		mr.Trend = trend.Direction
	}
	return mr, nil
}

func (s *QueryService) summarizeViolations(ctx context.Context, report *Report) error {
	violations, err := s.store.ViolationsInRange(ctx, report.Service, report.From, report.To)
	if err != nil {
		return fmt.Errorf("failed to load violations: %w", err)
	}

	summary := ViolationSummary{
		BySeverity: make(map[model.Severity]int),
	}
	for _, v := range violations {
		summary.Total++
		summary.BySeverity[v.Severity]++
		if !v.Resolved {
			summary.Active++
		}
		summary.TotalDowntime += v.Duration
	}
	report.Violations = summary
	return nil
}

// recommendations derives the report's action items from the aggregates
func recommendations(report *Report) []string {
	var recs []string
	for _, mr := range report.Metrics {
		if mr.Trend == model.TrendDegrading {
			recs = append(recs, fmt.Sprintf("%s is trending worse; review recent deployments and capacity", mr.Metric))
		}
		if mr.CompliancePct != nil && *mr.CompliancePct < 99 {
			recs = append(recs, fmt.Sprintf("%s compliance is %.2f%%; investigate the failing samples", mr.Metric, *mr.CompliancePct))
		}
	}
	if report.Violations.Active > 0 {
		recs = append(recs, fmt.Sprintf("%d violations are still active; resolve them before the next reporting deadline", report.Violations.Active))
	}
	if len(recs) == 0 {
		recs = append(recs, "No action required; service is meeting its SLAs")
	}
	return recs
}

// percentile is nearest-rank over a sorted slice
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(q * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}
