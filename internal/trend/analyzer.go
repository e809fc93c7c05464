package trend

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/slawatch/slawatch/internal/model"
	"github.com/slawatch/slawatch/internal/storage"
)

// retentionSchedule runs the data retention sweep daily at 03:00
const retentionSchedule = "0 0 3 * * *"

// Store is the persistence surface the analyzer needs
type Store interface {
	ListSeries(ctx context.Context, from, to time.Time) ([]storage.Series, error)
	MeasurementsInRange(ctx context.Context, service string, metric model.MetricType, from, to time.Time) ([]*model.Measurement, error)
	InsertTrendRecord(ctx context.Context, t *model.TrendRecord) error
	DeleteMeasurementsBefore(ctx context.Context, before time.Time) (int64, error)
	DeleteResolvedViolationsBefore(ctx context.Context, before time.Time) (int64, error)
	DeleteClosedIncidentsBefore(ctx context.Context, before time.Time) (int64, error)
}

// Config tunes trend analysis and data retention
type Config struct {
	Schedule      string
	Window        time.Duration
	MinSamples    int
	DeadBand      float64
	RetentionDays int
}

func (c *Config) withDefaults() {
	if c.Schedule == "" {
		c.Schedule = "0 0 * * * *"
	}
	if c.Window <= 0 {
		c.Window = 7 * 24 * time.Hour
	}
	if c.MinSamples <= 0 {
		c.MinSamples = 10
	}
	if c.DeadBand <= 0 {
		c.DeadBand = 0.1
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = 90
	}
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err))
}

// Analyzer classifies each measured series as improving, degrading or stable
// on a cron schedule and prunes data past its retention window. It reads the
// measurement history and writes trend records; violations and incidents are
// never touched.
type Analyzer struct {
	logger *zap.Logger
	cfg    Config
	store  Store
	cron   *cron.Cron
}

// NewAnalyzer creates a trend analyzer
func NewAnalyzer(logger *zap.Logger, cfg Config, store Store) *Analyzer {
	cfg.withDefaults()
	cl := &cronLogger{logger: logger.Named("cron")}

	return &Analyzer{
		logger: logger.Named("trend"),
		cfg:    cfg,
		store:  store,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cl)),
		),
	}
}

// Start schedules the analysis and retention jobs
func (a *Analyzer) Start(ctx context.Context) error {
	if _, err := a.cron.AddFunc(a.cfg.Schedule, func() { a.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid trend schedule: %w", err)
	}
	if _, err := a.cron.AddFunc(retentionSchedule, func() { a.enforceRetention(ctx) }); err != nil {
		return fmt.Errorf("invalid retention schedule: %w", err)
	}
	a.cron.Start()

	a.logger.Info("Trend analyzer started",
		zap.String("schedule", a.cfg.Schedule),
		zap.Duration("window", a.cfg.Window),
		zap.Int("retention_days", a.cfg.RetentionDays))
	return nil
}

// Stop waits for running jobs to finish
func (a *Analyzer) Stop() {
	ctx := a.cron.Stop()
	<-ctx.Done()
}

// RunOnce analyzes every series with data inside the window
func (a *Analyzer) RunOnce(ctx context.Context) {
	now := time.Now().UTC()
	from := now.Add(-a.cfg.Window)

	series, err := a.store.ListSeries(ctx, from, now)
	if err != nil {
		a.logger.Error("Failed to list series", zap.Error(err))
		return
	}

	for _, sr := range series {
		if err := a.analyzeSeries(ctx, sr, from, now); err != nil {
			a.logger.Error("Trend analysis failed",
				zap.String("service", sr.Service),
				zap.String("metric", string(sr.Metric)),
				zap.Error(err))
		}
	}

	a.logger.Info("Trend analysis completed", zap.Int("series", len(series)))
}

func (a *Analyzer) analyzeSeries(ctx context.Context, sr storage.Series, from, to time.Time) error {
	measurements, err := a.store.MeasurementsInRange(ctx, sr.Service, sr.Metric, from, to)
	if err != nil {
		return err
	}

	values := make([]float64, len(measurements))
	for i, m := range measurements {
		values[i] = m.Value
	}

	direction, slope, avg := a.classify(sr.Metric, values)
	record := &model.TrendRecord{
		ID:          uuid.New().String(),
		Service:     sr.Service,
		Metric:      sr.Metric,
		Direction:   direction,
		Slope:       slope,
		Mean:        avg,
		Samples:     len(values),
		WindowStart: from,
		WindowEnd:   to,
		ComputedAt:  time.Now().UTC(),
	}

	if err := a.store.InsertTrendRecord(ctx, record); err != nil {
		return err
	}

	if direction == model.TrendDegrading {
		a.logger.Warn("Metric degrading",
			zap.String("service", sr.Service),
			zap.String("metric", string(sr.Metric)),
			zap.Float64("slope", slope),
			zap.Int("samples", len(values)))
	}
	return nil
}

// classify fits a least-squares line over sample index and maps the slope to
// a direction by metric polarity: a rising error rate degrades, a rising
// success rate improves.
func (a *Analyzer) classify(metric model.MetricType, values []float64) (model.TrendDirection, float64, float64) {
	if len(values) < a.cfg.MinSamples {
		return model.TrendInsufficientData, 0, mean(values)
	}

	slope := leastSquaresSlope(values)
	avg := mean(values)

	if math.Abs(slope) <= a.cfg.DeadBand {
		return model.TrendStable, slope, avg
	}

	rising := slope > 0
	if metric.HigherIsBetter() == rising {
		return model.TrendImproving, slope, avg
	}
	return model.TrendDegrading, slope, avg
}

// enforceRetention deletes measurements, resolved violations and closed
// incidents older than the retention window
func (a *Analyzer) enforceRetention(ctx context.Context) {
	cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.RetentionDays)

	measurements, err := a.store.DeleteMeasurementsBefore(ctx, cutoff)
	if err != nil {
		a.logger.Error("Failed to prune measurements", zap.Error(err))
	}
	violations, err := a.store.DeleteResolvedViolationsBefore(ctx, cutoff)
	if err != nil {
		a.logger.Error("Failed to prune violations", zap.Error(err))
	}
	incidents, err := a.store.DeleteClosedIncidentsBefore(ctx, cutoff)
	if err != nil {
		a.logger.Error("Failed to prune incidents", zap.Error(err))
	}

	a.logger.Info("Retention cleanup completed",
		zap.Time("cutoff", cutoff),
		zap.Int64("measurements", measurements),
		zap.Int64("violations", violations),
		zap.Int64("incidents", incidents))
}

func leastSquaresSlope(values []float64) float64 {
	n := float64(len(values))
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
