package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/slawatch/slawatch/internal/metrics"
	"github.com/slawatch/slawatch/internal/model"
	"github.com/slawatch/slawatch/internal/storage"
)

// Store is the persistence surface the dispatcher needs
type Store interface {
	storage.NotificationStore

	GetIncident(ctx context.Context, id string) (*model.Incident, error)
	ListEscalationRules(ctx context.Context) ([]*model.EscalationRule, error)
	ListRecipients(ctx context.Context) ([]*model.Recipient, error)
	GetRecipient(ctx context.Context, id string) (*model.Recipient, error)
}

// Config tunes the dispatcher's pool and retry behavior
type Config struct {
	Workers         int
	QueueSize       int
	DeliveryTimeout time.Duration
	RetryInterval   time.Duration
	RetryBackoff    time.Duration
	MaxRetries      int
}

func (c *Config) withDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = 30 * time.Second
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 5 * time.Minute
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 15 * time.Minute
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
}

type job struct {
	notification *model.Notification
	incident     *model.Incident
	recipient    *model.Recipient
}

// Dispatcher fans incident alerts out to recipients. Deliveries run on a
// worker pool behind a buffered queue so scheduler loops never block on slow
// channels; each (incident, recipient, channel, level) tuple gets exactly one
// notification row, reused across retries.
type Dispatcher struct {
	logger   *zap.Logger
	cfg      Config
	store    Store
	adapters map[model.Channel]ChannelAdapter
	metrics  *metrics.Metrics
	queue    chan job
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher; adapters are registered separately
func NewDispatcher(logger *zap.Logger, cfg Config, store Store, m *metrics.Metrics) *Dispatcher {
	cfg.withDefaults()
	return &Dispatcher{
		logger:   logger.Named("notify"),
		cfg:      cfg,
		store:    store,
		adapters: make(map[model.Channel]ChannelAdapter),
		metrics:  m,
		queue:    make(chan job, cfg.QueueSize),
		stop:     make(chan struct{}),
	}
}

// RegisterAdapter wires a channel adapter into the dispatcher
func (d *Dispatcher) RegisterAdapter(a ChannelAdapter) {
	d.adapters[a.Channel()] = a
}

// Start launches the delivery workers and the retry sweep
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	go d.retryLoop(ctx)

	d.logger.Info("Notification dispatcher started",
		zap.Int("workers", d.cfg.Workers),
		zap.Int("queue_size", d.cfg.QueueSize),
		zap.Strings("channels", d.channelNames()))
}

// Stop stops the workers after they finish their current deliveries
func (d *Dispatcher) Stop() {
	close(d.stop)
	d.wg.Wait()
}

// Send dispatches an incident's notifications for one escalation level.
// Recipients are everyone engaged at or below the level; channels come from
// the level's own step.
func (d *Dispatcher) Send(ctx context.Context, inc *model.Incident, level int) error {
	rules, err := d.store.ListEscalationRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to list escalation rules: %w", err)
	}
	rule := model.MatchEscalationRule(rules, inc.Service, inc.Severity)
	if rule == nil {
		d.logger.Warn("No escalation rule for incident",
			zap.String("incident_id", inc.ID),
			zap.String("service", inc.Service),
			zap.String("severity", string(inc.Severity)))
		return nil
	}
	step := rule.Step(level)
	if step == nil {
		d.logger.Warn("Escalation rule defines no step for level",
			zap.String("rule_id", rule.ID),
			zap.Int("level", level))
		return nil
	}

	recipients, err := d.store.ListRecipients(ctx)
	if err != nil {
		return fmt.Errorf("failed to list recipients: %w", err)
	}
	byID := make(map[string]*model.Recipient, len(recipients))
	for _, r := range recipients {
		byID[r.ID] = r
	}

	for _, rcpID := range engagedRecipients(rule, level) {
		rcp, ok := byID[rcpID]
		if !ok {
			d.logger.Warn("Unknown recipient in escalation rule",
				zap.String("rule_id", rule.ID),
				zap.String("recipient_id", rcpID))
			continue
		}
		if !rcp.Active {
			continue
		}

		for _, ch := range step.Channels {
			if _, ok := rcp.Contacts[ch]; !ok {
				continue
			}
			if err := d.dispatch(ctx, inc, rcp, ch, level); err != nil {
				d.logger.Error("Failed to dispatch notification",
					zap.String("incident_id", inc.ID),
					zap.String("recipient_id", rcp.ID),
					zap.String("channel", string(ch)),
					zap.Error(err))
			}
		}
	}
	return nil
}

// engagedRecipients returns the union of step recipients for all steps at or
// below level, in first-engagement order. A recipient paged at a lower tier
// stays engaged as the incident climbs.
func engagedRecipients(rule *model.EscalationRule, level int) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, step := range rule.Levels {
		if step.Level > level {
			continue
		}
		for _, id := range step.Recipients {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// dispatch finds or creates the tuple's notification row and queues delivery
func (d *Dispatcher) dispatch(ctx context.Context, inc *model.Incident, rcp *model.Recipient, ch model.Channel, level int) error {
	n, err := d.store.GetNotificationByTuple(ctx, inc.ID, rcp.ID, ch, level)
	if err != nil {
		return err
	}
	switch {
	case n == nil:
		n = &model.Notification{
			ID:          uuid.New().String(),
			IncidentID:  inc.ID,
			RecipientID: rcp.ID,
			Channel:     ch,
			Level:       level,
			Status:      model.NotificationPending,
			CreatedAt:   time.Now().UTC(),
			MaxRetries:  d.cfg.MaxRetries,
		}
		if err := d.store.InsertNotification(ctx, n); err != nil {
			return fmt.Errorf("failed to persist notification: %w", err)
		}
	case n.Status != model.NotificationPending && n.Status != model.NotificationFailed:
		// Already on its way or delivered; never duplicate
		return nil
	case n.Exhausted():
		return nil
	}

	d.enqueue(ctx, job{notification: n, incident: inc, recipient: rcp})
	return nil
}

// enqueue hands a job to the pool; a full queue fails the row so the retry
// sweep picks it up once the backlog clears
func (d *Dispatcher) enqueue(ctx context.Context, j job) {
	select {
	case d.queue <- j:
		d.metrics.SetQueueDepth(len(d.queue))
	default:
		d.logger.Warn("Delivery queue full",
			zap.String("notification_id", j.notification.ID))
		d.markFailed(ctx, j.notification, "delivery queue full")
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case j := <-d.queue:
			d.metrics.SetQueueDepth(len(d.queue))
			d.deliver(ctx, j)
		}
	}
}

// deliver runs one delivery attempt under the configured timeout
func (d *Dispatcher) deliver(ctx context.Context, j job) {
	n := j.notification

	adapter, ok := d.adapters[n.Channel]
	if !ok {
		d.markFailed(ctx, n, ErrUnknownChannel.Error())
		return
	}

	dctx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
	defer cancel()

	start := time.Now()
	delivered, err := adapter.Deliver(dctx, j.incident, j.recipient)
	elapsed := time.Since(start)

	switch {
	case delivered:
		d.markSent(ctx, n, elapsed)
	case err != nil:
		d.markFailed(ctx, n, err.Error())
	default:
		d.markFailed(ctx, n, "channel not configured")
	}
}

func (d *Dispatcher) markSent(ctx context.Context, n *model.Notification, elapsed time.Duration) {
	now := time.Now().UTC()
	n.Status = model.NotificationSent
	n.SentAt = &now
	n.LastError = ""

	if err := d.store.UpdateNotification(ctx, n); err != nil {
		d.logger.Error("Failed to update notification",
			zap.String("notification_id", n.ID),
			zap.Error(err))
		return
	}
	d.metrics.NotificationSent(elapsed.Seconds())

	d.logger.Info("Notification sent",
		zap.String("notification_id", n.ID),
		zap.String("incident_id", n.IncidentID),
		zap.String("recipient_id", n.RecipientID),
		zap.String("channel", string(n.Channel)),
		zap.Int("level", n.Level),
		zap.Duration("elapsed", elapsed))
}

func (d *Dispatcher) markFailed(ctx context.Context, n *model.Notification, reason string) {
	now := time.Now().UTC()
	n.Status = model.NotificationFailed
	n.FailedAt = &now
	n.LastError = reason

	if err := d.store.UpdateNotification(ctx, n); err != nil {
		d.logger.Error("Failed to update notification",
			zap.String("notification_id", n.ID),
			zap.Error(err))
		return
	}
	d.metrics.NotificationFailed()

	if n.Exhausted() {
		d.metrics.NotificationExhausted()
		d.logger.Warn("Notification retries exhausted",
			zap.String("notification_id", n.ID),
			zap.String("recipient_id", n.RecipientID),
			zap.String("channel", string(n.Channel)),
			zap.String("last_error", reason))
		return
	}

	d.logger.Warn("Notification delivery failed",
		zap.String("notification_id", n.ID),
		zap.String("channel", string(n.Channel)),
		zap.Int("retry_count", n.RetryCount),
		zap.String("error", reason))
}

func (d *Dispatcher) channelNames() []string {
	names := make([]string, 0, len(d.adapters))
	for ch := range d.adapters {
		names = append(names, string(ch))
	}
	sort.Strings(names)
	return names
}
