package escalation

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/slawatch/slawatch/internal/model"
)

// Store is the persistence surface the scheduler reads from
type Store interface {
	ActiveIncidents(ctx context.Context) ([]*model.Incident, error)
	ListEscalationRules(ctx context.Context) ([]*model.EscalationRule, error)
}

// Escalator advances an incident to the next level
type Escalator interface {
	Escalate(ctx context.Context, id string, level int) (bool, error)
}

// Scheduler walks open incidents on a fixed interval and advances each one
// level at a time once its matched rule's delay has elapsed. Acknowledged
// incidents pause; terminal incidents never appear.
type Scheduler struct {
	logger    *zap.Logger
	store     Store
	escalator Escalator
	interval  time.Duration
	stop      chan struct{}
}

// NewScheduler creates an escalation scheduler
func NewScheduler(logger *zap.Logger, store Store, escalator Escalator, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Scheduler{
		logger:    logger.Named("escalation"),
		store:     store,
		escalator: escalator,
		interval:  interval,
		stop:      make(chan struct{}),
	}
}

// Start launches the escalation loop
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Escalation scheduler started", zap.Duration("interval", s.interval))
	go s.run(ctx)
}

// Stop stops the escalation loop
func (s *Scheduler) Stop() {
	close(s.stop)
}

func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick evaluates every open incident against its escalation rule
func (s *Scheduler) tick(ctx context.Context) {
	incidents, err := s.store.ActiveIncidents(ctx)
	if err != nil {
		s.logger.Error("Failed to list active incidents", zap.Error(err))
		return
	}
	if len(incidents) == 0 {
		return
	}

	rules, err := s.store.ListEscalationRules(ctx)
	if err != nil {
		s.logger.Error("Failed to list escalation rules", zap.Error(err))
		return
	}

	now := time.Now().UTC()
	for _, inc := range incidents {
		if inc.Status != model.IncidentOpen {
			continue
		}
		if err := s.advance(ctx, inc, rules, now); err != nil {
			if errors.Is(err, ErrNoEscalationRule) {
				s.logger.Warn("No escalation rule for incident",
					zap.String("incident_id", inc.ID),
					zap.String("service", inc.Service),
					zap.String("severity", string(inc.Severity)))
				continue
			}
			s.logger.Error("Escalation failed",
				zap.String("incident_id", inc.ID),
				zap.Error(err))
		}
	}
}

// advance moves one incident up at most one level
func (s *Scheduler) advance(ctx context.Context, inc *model.Incident, rules []*model.EscalationRule, now time.Time) error {
	rule := model.MatchEscalationRule(rules, inc.Service, inc.Severity)
	if rule == nil {
		return ErrNoEscalationRule
	}
	if !rule.AutoEscalate {
		return nil
	}

	next := inc.EscalationLevel + 1
	if next > rule.MaxLevel || next > model.MaxEscalationLevel {
		return nil
	}
	step := rule.Step(next)
	if step == nil {
		return nil
	}
	if now.Sub(inc.EscalationAnchor()) < step.Delay {
		return nil
	}

	_, err := s.escalator.Escalate(ctx, inc.ID, next)
	return err
}
