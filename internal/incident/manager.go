package incident

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/slawatch/slawatch/internal/metrics"
	"github.com/slawatch/slawatch/internal/model"
	"github.com/slawatch/slawatch/internal/storage"
)

// Events receives incident lifecycle events for publication
type Events interface {
	IncidentCreated(inc *model.Incident)
	IncidentEscalated(inc *model.Incident)
	IncidentAcknowledged(inc *model.Incident)
	IncidentResolved(inc *model.Incident)
	IncidentClosed(inc *model.Incident)
}

// Notifier dispatches notifications for an incident at an escalation level
type Notifier interface {
	Send(ctx context.Context, inc *model.Incident, level int) error
}

// Recoverer runs remediation for a fresh incident and reports what it tried
type Recoverer interface {
	Execute(ctx context.Context, inc *model.Incident) []*model.RecoveryResult
}

// Config tunes the incident lifecycle
type Config struct {
	Timeout       time.Duration
	SweepInterval time.Duration
}

func (c *Config) withDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 24 * time.Hour
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 5 * time.Minute
	}
}

// Manager owns the incident state machine: open, acknowledged, investigating,
// resolved, closed. Transitions are serialized per incident through a keyed
// mutex; expected no-ops (already acknowledged, terminal state) return false
// with a nil error.
type Manager struct {
	logger   *zap.Logger
	cfg      Config
	store    storage.IncidentStore
	events   Events
	notifier Notifier
	recovery Recoverer
	metrics  *metrics.Metrics
	locks    *keyedMutex
	stop     chan struct{}

	mu     sync.RWMutex
	active map[string]string // violation ID -> incident ID
}

// NewManager creates a lifecycle manager. The events and notifier sinks may
// be nil; a nil recovery executor disables auto-recovery.
func NewManager(logger *zap.Logger, cfg Config, store storage.IncidentStore, events Events, notifier Notifier, recovery Recoverer, m *metrics.Metrics) *Manager {
	cfg.withDefaults()
	return &Manager{
		logger:   logger.Named("incidents"),
		cfg:      cfg,
		store:    store,
		events:   events,
		notifier: notifier,
		recovery: recovery,
		metrics:  m,
		locks:    newKeyedMutex(),
		stop:     make(chan struct{}),
		active:   make(map[string]string),
	}
}

// Start warms the registry from the store and launches the timeout sweep
func (m *Manager) Start(ctx context.Context) error {
	incidents, err := m.store.ActiveIncidents(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active incidents: %w", err)
	}
	for _, inc := range incidents {
		m.remember(inc)
	}
	m.metrics.SetActiveIncidents(len(incidents))

	go m.sweepLoop(ctx)

	m.logger.Info("Incident manager started",
		zap.Int("active_incidents", len(incidents)),
		zap.Duration("timeout", m.cfg.Timeout))
	return nil
}

// Stop stops the timeout sweep
func (m *Manager) Stop() {
	close(m.stop)
}

// Open creates the incident for a violation, or returns the existing one.
// Idempotent per violation ID: a breached pair never collects duplicates.
func (m *Manager) Open(ctx context.Context, v *model.Violation) (*model.Incident, error) {
	m.mu.RLock()
	id, ok := m.active[v.ID]
	m.mu.RUnlock()
	if ok {
		inc, err := m.store.GetIncident(ctx, id)
		if err != nil {
			return nil, err
		}
		if inc != nil {
			return inc, nil
		}
	}

	existing, err := m.store.GetIncidentByViolation(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if !existing.Status.Terminal() {
			m.remember(existing)
		}
		return existing, nil
	}

	inc := &model.Incident{
		ID:          uuid.New().String(),
		ViolationID: v.ID,
		Service:     v.Service,
		Severity:    v.Severity,
		Status:      model.IncidentOpen,
		CreatedAt:   time.Now().UTC(),
		Impact: model.ImpactAssessment{
			AffectedServices: []string{v.Service},
			EstimatedImpact:  "Service degradation",
			BusinessImpact:   "Potential regulatory compliance risk",
		},
	}

	if err := m.store.InsertIncident(ctx, inc); err != nil {
		return nil, fmt.Errorf("failed to persist incident: %w", err)
	}
	m.remember(inc)
	m.metrics.IncidentTransition("created")
	if m.events != nil {
		m.events.IncidentCreated(inc)
	}

	m.logger.Warn("Incident created",
		zap.String("incident_id", inc.ID),
		zap.String("violation_id", v.ID),
		zap.String("service", inc.Service),
		zap.String("severity", string(inc.Severity)))

	if m.notifier != nil {
		if err := m.notifier.Send(ctx, inc, 0); err != nil {
			m.logger.Error("Failed to dispatch notifications",
				zap.String("incident_id", inc.ID),
				zap.Error(err))
		}
	}
	if m.recovery != nil {
		go m.runRecovery(ctx, inc)
	}
	return inc, nil
}

// Acknowledge marks an open incident as acknowledged by actor. Returns false
// without error when the incident is past open.
func (m *Manager) Acknowledge(ctx context.Context, id, actor string) (bool, error) {
	unlock := m.locks.lock(id)
	defer unlock()

	inc, err := m.store.GetIncident(ctx, id)
	if err != nil {
		return false, err
	}
	if inc == nil {
		return false, ErrIncidentNotFound
	}
	if inc.Status != model.IncidentOpen {
		m.logger.Debug("Acknowledge skipped",
			zap.String("incident_id", id),
			zap.String("status", string(inc.Status)))
		return false, nil
	}

	now := time.Now().UTC()
	inc.Status = model.IncidentAcknowledged
	inc.AcknowledgedAt = &now
	inc.AcknowledgedBy = actor

	if err := m.store.UpdateIncident(ctx, inc); err != nil {
		return false, fmt.Errorf("failed to update incident: %w", err)
	}
	m.metrics.IncidentTransition("acknowledged")
	if m.events != nil {
		m.events.IncidentAcknowledged(inc)
	}

	m.logger.Info("Incident acknowledged",
		zap.String("incident_id", id),
		zap.String("actor", actor))
	return true, nil
}

// Investigate moves an acknowledged incident into investigation
func (m *Manager) Investigate(ctx context.Context, id string) (bool, error) {
	unlock := m.locks.lock(id)
	defer unlock()

	inc, err := m.store.GetIncident(ctx, id)
	if err != nil {
		return false, err
	}
	if inc == nil {
		return false, ErrIncidentNotFound
	}
	if inc.Status != model.IncidentAcknowledged {
		return false, nil
	}

	inc.Status = model.IncidentInvestigating
	if err := m.store.UpdateIncident(ctx, inc); err != nil {
		return false, fmt.Errorf("failed to update incident: %w", err)
	}
	m.metrics.IncidentTransition("investigating")

	m.logger.Info("Incident under investigation", zap.String("incident_id", id))
	return true, nil
}

// Resolve closes out a non-terminal incident with resolution notes
func (m *Manager) Resolve(ctx context.Context, id, notes string) (bool, error) {
	unlock := m.locks.lock(id)
	defer unlock()

	inc, err := m.store.GetIncident(ctx, id)
	if err != nil {
		return false, err
	}
	if inc == nil {
		return false, ErrIncidentNotFound
	}
	if inc.Status.Terminal() {
		m.logger.Debug("Resolve skipped",
			zap.String("incident_id", id),
			zap.String("status", string(inc.Status)))
		return false, nil
	}

	now := time.Now().UTC()
	inc.Status = model.IncidentResolved
	inc.ResolvedAt = &now
	inc.ResolutionNotes = notes

	if err := m.store.UpdateIncident(ctx, inc); err != nil {
		return false, fmt.Errorf("failed to update incident: %w", err)
	}
	m.forget(inc.ViolationID)
	m.metrics.IncidentTransition("resolved")
	if m.events != nil {
		m.events.IncidentResolved(inc)
	}

	m.logger.Info("Incident resolved",
		zap.String("incident_id", id),
		zap.String("notes", notes))
	return true, nil
}

// ResolveForViolation resolves the incident linked to a violation. A
// violation that never produced an incident is not an error.
func (m *Manager) ResolveForViolation(ctx context.Context, violationID, notes string) (bool, error) {
	m.mu.RLock()
	id, ok := m.active[violationID]
	m.mu.RUnlock()

	if !ok {
		inc, err := m.store.GetIncidentByViolation(ctx, violationID)
		if err != nil {
			return false, err
		}
		if inc == nil {
			return false, nil
		}
		id = inc.ID
	}
	return m.Resolve(ctx, id, notes)
}

// Close finishes an incident. Every state except closed may close; the
// timeout sweep uses this for the direct open to closed path.
func (m *Manager) Close(ctx context.Context, id, notes string) (bool, error) {
	unlock := m.locks.lock(id)
	defer unlock()

	inc, err := m.store.GetIncident(ctx, id)
	if err != nil {
		return false, err
	}
	if inc == nil {
		return false, ErrIncidentNotFound
	}
	if inc.Status == model.IncidentClosed {
		return false, nil
	}

	now := time.Now().UTC()
	inc.Status = model.IncidentClosed
	if inc.ResolvedAt == nil {
		inc.ResolvedAt = &now
	}
	if notes != "" {
		inc.ResolutionNotes = notes
	}

	if err := m.store.UpdateIncident(ctx, inc); err != nil {
		return false, fmt.Errorf("failed to update incident: %w", err)
	}
	m.forget(inc.ViolationID)
	m.metrics.IncidentTransition("closed")
	if m.events != nil {
		m.events.IncidentClosed(inc)
	}

	m.logger.Info("Incident closed",
		zap.String("incident_id", id),
		zap.String("notes", inc.ResolutionNotes))
	return true, nil
}

// Escalate raises an open incident to the given level and dispatches that
// level's notifications. Levels advance one at a time; anything else is a
// no-op returning false.
func (m *Manager) Escalate(ctx context.Context, id string, level int) (bool, error) {
	unlock := m.locks.lock(id)
	defer unlock()

	inc, err := m.store.GetIncident(ctx, id)
	if err != nil {
		return false, err
	}
	if inc == nil {
		return false, ErrIncidentNotFound
	}
	if inc.Status != model.IncidentOpen {
		return false, nil
	}
	if level != inc.EscalationLevel+1 || level > model.MaxEscalationLevel {
		m.logger.Debug("Escalation skipped",
			zap.String("incident_id", id),
			zap.Int("current_level", inc.EscalationLevel),
			zap.Int("requested_level", level))
		return false, nil
	}

	now := time.Now().UTC()
	inc.EscalationLevel = level
	inc.EscalatedAt = &now

	if err := m.store.UpdateIncident(ctx, inc); err != nil {
		return false, fmt.Errorf("failed to update incident: %w", err)
	}
	m.metrics.IncidentTransition("escalated")
	if m.events != nil {
		m.events.IncidentEscalated(inc)
	}

	m.logger.Warn("Incident escalated",
		zap.String("incident_id", id),
		zap.String("service", inc.Service),
		zap.Int("level", level))

	if m.notifier != nil {
		if err := m.notifier.Send(ctx, inc, level); err != nil {
			m.logger.Error("Failed to dispatch notifications",
				zap.String("incident_id", id),
				zap.Int("level", level),
				zap.Error(err))
		}
	}
	return true, nil
}

// runRecovery executes remediation and records what was attempted on the
// incident, under its lock
func (m *Manager) runRecovery(ctx context.Context, inc *model.Incident) {
	results := m.recovery.Execute(ctx, inc)
	if len(results) == 0 {
		return
	}

	unlock := m.locks.lock(inc.ID)
	defer unlock()

	current, err := m.store.GetIncident(ctx, inc.ID)
	if err != nil || current == nil {
		m.logger.Error("Failed to reload incident after recovery",
			zap.String("incident_id", inc.ID),
			zap.Error(err))
		return
	}
	for _, r := range results {
		current.RecoveryActions = append(current.RecoveryActions, r.Action)
	}
	if err := m.store.UpdateIncident(ctx, current); err != nil {
		m.logger.Error("Failed to record recovery actions",
			zap.String("incident_id", inc.ID),
			zap.Error(err))
	}
}

func (m *Manager) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweepTimeouts(ctx)
		}
	}
}

// sweepTimeouts closes incidents older than the configured timeout,
// acknowledged or not
func (m *Manager) sweepTimeouts(ctx context.Context) {
	incidents, err := m.store.ActiveIncidents(ctx)
	if err != nil {
		m.logger.Error("Failed to list active incidents", zap.Error(err))
		return
	}

	now := time.Now().UTC()
	remaining := len(incidents)
	for _, inc := range incidents {
		age := now.Sub(inc.CreatedAt)
		if age < m.cfg.Timeout {
			continue
		}

		closed, err := m.Close(ctx, inc.ID, "Incident timed out - auto-closed")
		if err != nil {
			m.logger.Error("Failed to auto-close incident",
				zap.String("incident_id", inc.ID),
				zap.Error(err))
			continue
		}
		if closed {
			remaining--
			m.logger.Warn("Incident auto-closed after timeout",
				zap.String("incident_id", inc.ID),
				zap.Duration("age", age))
		}
	}
	m.metrics.SetActiveIncidents(remaining)
}

func (m *Manager) remember(inc *model.Incident) {
	m.mu.Lock()
	m.active[inc.ViolationID] = inc.ID
	m.mu.Unlock()
}

func (m *Manager) forget(violationID string) {
	m.mu.Lock()
	delete(m.active, violationID)
	m.mu.Unlock()
}
