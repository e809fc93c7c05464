package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/slawatch/slawatch/internal/metrics"
	"github.com/slawatch/slawatch/internal/model"
	"github.com/slawatch/slawatch/internal/storage"
)

// Store is the persistence surface the evaluator needs
type Store interface {
	storage.MeasurementStore
	storage.ViolationStore

	ListDefinitions(ctx context.Context, enabledOnly bool) ([]*model.SLADefinition, error)
}

// Events receives violation lifecycle events for publication
type Events interface {
	ViolationDetected(v *model.Violation)
	ViolationResolved(v *model.Violation)
	ViolationAutoResolved(v *model.Violation)
}

// IncidentSink reacts to violation transitions by driving the incident
// lifecycle
type IncidentSink interface {
	Open(ctx context.Context, v *model.Violation) (*model.Incident, error)
	ResolveForViolation(ctx context.Context, violationID, notes string) (bool, error)
}

// Config tunes the evaluator's loops
type Config struct {
	Interval         time.Duration
	BufferSize       int
	ResolverInterval time.Duration
	ViolationTimeout time.Duration
}

func (c *Config) withDefaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferCapacity
	}
	if c.ResolverInterval <= 0 {
		c.ResolverInterval = 5 * time.Minute
	}
	if c.ViolationTimeout <= 0 {
		c.ViolationTimeout = 30 * time.Minute
	}
}

// Evaluator periodically checks every enabled SLA definition against the
// measurement window and drives violations through detection and resolution.
type Evaluator struct {
	logger    *zap.Logger
	cfg       Config
	store     Store
	buffer    *MeasurementBuffer
	registry  *ViolationRegistry
	events    Events
	incidents IncidentSink
	metrics   *metrics.Metrics
	stop      chan struct{}
}

// NewEvaluator creates an evaluator. The events and incidents sinks may be
// nil; detection and resolution still persist, they just go unannounced.
func NewEvaluator(logger *zap.Logger, cfg Config, store Store, events Events, incidents IncidentSink, m *metrics.Metrics) *Evaluator {
	cfg.withDefaults()
	return &Evaluator{
		logger:    logger.Named("evaluator"),
		cfg:       cfg,
		store:     store,
		buffer:    NewMeasurementBuffer(cfg.BufferSize),
		registry:  NewViolationRegistry(),
		events:    events,
		incidents: incidents,
		metrics:   m,
		stop:      make(chan struct{}),
	}
}

// Start warms the registry from the store and launches the evaluation and
// auto-resolve loops
func (e *Evaluator) Start(ctx context.Context) error {
	active, err := e.store.ActiveViolations(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active violations: %w", err)
	}
	for _, v := range active {
		e.registry.Put(v)
	}
	e.metrics.SetActiveViolations(e.registry.Len())

	go e.evaluationLoop(ctx)
	go e.autoResolveLoop(ctx)

	e.logger.Info("SLA evaluator started",
		zap.Duration("interval", e.cfg.Interval),
		zap.Int("active_violations", len(active)))
	return nil
}

// Stop stops the evaluator's loops
func (e *Evaluator) Stop() {
	close(e.stop)
}

// RecordMeasurement persists one observation and buffers it for the hot
// window. Safe for concurrent use.
func (e *Evaluator) RecordMeasurement(ctx context.Context, service string, metric model.MetricType, value float64, labels map[string]string) error {
	m := model.Measurement{
		ID:        uuid.New().String(),
		Service:   service,
		Metric:    metric,
		Value:     value,
		Timestamp: time.Now().UTC(),
		Labels:    labels,
	}

	if err := e.store.InsertMeasurement(ctx, &m); err != nil {
		return fmt.Errorf("failed to persist measurement: %w", err)
	}
	e.buffer.Add(m)
	e.metrics.MeasurementIngested()
	return nil
}

// ActiveViolations returns the violations currently tracked as unresolved
func (e *Evaluator) ActiveViolations() []*model.Violation {
	return e.registry.Active()
}

// evaluationLoop runs one evaluation cycle per interval
func (e *Evaluator) evaluationLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case <-ticker.C:
			e.evaluateAll(ctx)
		}
	}
}

// evaluateAll checks every enabled definition. A failing definition is logged
// and skipped; it never stops the cycle.
func (e *Evaluator) evaluateAll(ctx context.Context) {
	defs, err := e.store.ListDefinitions(ctx, true)
	if err != nil {
		e.logger.Error("Failed to list SLA definitions", zap.Error(err))
		return
	}

	for _, def := range defs {
		start := time.Now()
		if err := e.evaluate(ctx, def); err != nil {
			e.logger.Error("Evaluation failed",
				zap.String("sla_id", def.ID),
				zap.String("service", def.Service),
				zap.Error(err))
		}
		e.metrics.EvaluationCompleted(time.Since(start).Seconds())
	}

	e.metrics.SetActiveViolations(e.registry.Len())
}

// evaluate checks one definition over its window. An empty window means the
// compliance state is unknown: it neither opens nor resolves anything.
func (e *Evaluator) evaluate(ctx context.Context, def *model.SLADefinition) error {
	now := time.Now().UTC()
	window, err := e.windowMeasurements(ctx, def, now.Add(-def.Window), now)
	if err != nil {
		return err
	}
	if len(window) == 0 {
		e.logger.Debug("No measurements in window",
			zap.String("sla_id", def.ID),
			zap.String("service", def.Service))
		return nil
	}

	failures := 0
	sum := 0.0
	for _, m := range window {
		sum += m.Value
		if !def.Operator.Compare(m.Value, def.Threshold) {
			failures++
		}
	}
	breachPct := float64(failures) / float64(len(window)) * 100
	mean := sum / float64(len(window))

	if breachPct > def.BreachThresholdPct {
		return e.handleBreach(ctx, def, mean, breachPct, now)
	}
	return e.handleCompliance(ctx, def, breachPct, now)
}

// windowMeasurements merges the hot ring buffer with the durable store,
// deduplicating by measurement ID
func (e *Evaluator) windowMeasurements(ctx context.Context, def *model.SLADefinition, from, to time.Time) ([]model.Measurement, error) {
	hot := e.buffer.Since(def.Service, def.Metric, from)

	cold, err := e.store.MeasurementsInRange(ctx, def.Service, def.Metric, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load measurements: %w", err)
	}

	seen := make(map[string]struct{}, len(hot))
	merged := make([]model.Measurement, 0, len(hot)+len(cold))
	for _, m := range hot {
		seen[m.ID] = struct{}{}
		merged = append(merged, m)
	}
	for _, m := range cold {
		if _, ok := seen[m.ID]; !ok {
			merged = append(merged, *m)
		}
	}
	return merged, nil
}

// handleBreach opens a violation for the pair unless one is already active
func (e *Evaluator) handleBreach(ctx context.Context, def *model.SLADefinition, mean, breachPct float64, now time.Time) error {
	key := def.ID + ":" + def.Service
	if _, ok := e.registry.Get(key); ok {
		return nil
	}

	// The registry is warmed at start, but the store stays authoritative
	existing, err := e.store.ActiveViolation(ctx, def.ID, def.Service)
	if err != nil {
		return err
	}
	if existing != nil {
		e.registry.Put(existing)
		return nil
	}

	v := &model.Violation{
		ID:        uuid.New().String(),
		SLAID:     def.ID,
		Service:   def.Service,
		Metric:    def.Metric,
		Threshold: def.Threshold,
		Observed:  mean,
		BreachPct: breachPct,
		Severity:  def.Severity,
		StartedAt: now,
	}

	if err := e.store.InsertViolation(ctx, v); err != nil {
		return fmt.Errorf("failed to persist violation: %w", err)
	}
	e.registry.Put(v)
	e.metrics.ViolationDetected()
	if e.events != nil {
		e.events.ViolationDetected(v)
	}

	e.logger.Warn("SLA violation detected",
		zap.String("violation_id", v.ID),
		zap.String("sla_id", def.ID),
		zap.String("service", def.Service),
		zap.String("severity", string(def.Severity)),
		zap.Float64("breach_pct", breachPct),
		zap.Float64("observed", mean),
		zap.Float64("threshold", def.Threshold))

	if e.incidents != nil {
		if _, err := e.incidents.Open(ctx, v); err != nil {
			e.logger.Error("Failed to open incident",
				zap.String("violation_id", v.ID),
				zap.Error(err))
		}
	}
	return nil
}

// handleCompliance resolves the pair's active violation, if any
func (e *Evaluator) handleCompliance(ctx context.Context, def *model.SLADefinition, breachPct float64, now time.Time) error {
	v, ok := e.registry.Get(def.ID + ":" + def.Service)
	if !ok {
		return nil
	}

	notes := fmt.Sprintf("SLA compliance restored - breach rate: %.2f%%", breachPct)
	if err := e.resolveViolation(ctx, v, now, notes); err != nil {
		return err
	}
	e.metrics.ViolationResolved()
	if e.events != nil {
		e.events.ViolationResolved(v)
	}

	e.logger.Info("SLA violation resolved",
		zap.String("violation_id", v.ID),
		zap.String("service", v.Service),
		zap.Float64("breach_pct", breachPct),
		zap.Duration("duration", v.Duration))

	e.resolveLinkedIncident(ctx, v.ID)
	return nil
}

// resolveViolation stamps the end of a violation and persists it
func (e *Evaluator) resolveViolation(ctx context.Context, v *model.Violation, now time.Time, notes string) error {
	ended := now
	v.EndedAt = &ended
	v.Duration = now.Sub(v.StartedAt)
	v.Resolved = true
	v.ResolutionNotes = notes

	if err := e.store.UpdateViolation(ctx, v); err != nil {
		return fmt.Errorf("failed to update violation: %w", err)
	}
	e.registry.Remove(v.Key())
	return nil
}

func (e *Evaluator) resolveLinkedIncident(ctx context.Context, violationID string) {
	if e.incidents == nil {
		return
	}
	if _, err := e.incidents.ResolveForViolation(ctx, violationID, "SLA violation automatically resolved"); err != nil {
		e.logger.Error("Failed to resolve incident",
			zap.String("violation_id", violationID),
			zap.Error(err))
	}
}

// autoResolveLoop sweeps for violations that outlived the timeout
func (e *Evaluator) autoResolveLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.ResolverInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case <-ticker.C:
			e.sweepStaleViolations(ctx)
		}
	}
}

// sweepStaleViolations force-resolves violations older than the configured
// timeout so a silent series cannot pin a violation open forever
func (e *Evaluator) sweepStaleViolations(ctx context.Context) {
	now := time.Now().UTC()
	for _, v := range e.registry.Active() {
		age := now.Sub(v.StartedAt)
		if age < e.cfg.ViolationTimeout {
			continue
		}

		if err := e.resolveViolation(ctx, v, now, "Auto-resolved due to timeout"); err != nil {
			e.logger.Error("Failed to auto-resolve violation",
				zap.String("violation_id", v.ID),
				zap.Error(err))
			continue
		}
		e.metrics.ViolationAutoResolved()
		if e.events != nil {
			e.events.ViolationAutoResolved(v)
		}

		e.logger.Warn("Violation auto-resolved due to timeout",
			zap.String("violation_id", v.ID),
			zap.String("service", v.Service),
			zap.Duration("age", age))

		e.resolveLinkedIncident(ctx, v.ID)
	}
	e.metrics.SetActiveViolations(e.registry.Len())
}
