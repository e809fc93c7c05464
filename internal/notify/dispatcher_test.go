package notify

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/slawatch/slawatch/internal/metrics"
	"github.com/slawatch/slawatch/internal/model"
	"github.com/slawatch/slawatch/internal/storage"
)

type stubAdapter struct {
	channel model.Channel

	mu        sync.Mutex
	delivered bool
	err       error
	calls     int
}

func (a *stubAdapter) Channel() model.Channel { return a.channel }

func (a *stubAdapter) Deliver(ctx context.Context, inc *model.Incident, rcp *model.Recipient) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return a.delivered, a.err
}

func (a *stubAdapter) setResult(delivered bool, err error) {
	a.mu.Lock()
	a.delivered = delivered
	a.err = err
	a.mu.Unlock()
}

func (a *stubAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func newTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()

	logger, _ := zap.NewDevelopment()
	store, err := storage.NewSQLiteStore(logger, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// seedEscalation installs a two-tier rule and two recipients: the compliance
// team engages at level 0 over email and slack, the team lead joins at level 1
// over slack only.
func seedEscalation(t *testing.T, store *storage.SQLiteStore) {
	t.Helper()
	ctx := context.Background()

	rule := &model.EscalationRule{
		ID:       "finrep_critical",
		Service:  "finrep_generator",
		Severity: model.SeverityCritical,
		Levels: []model.EscalationStep{
			{Level: 0, Delay: 0, Channels: []model.Channel{model.ChannelEmail, model.ChannelSlack}, Recipients: []string{"compliance_team"}},
			{Level: 1, Delay: 15 * time.Minute, Channels: []model.Channel{model.ChannelSlack}, Recipients: []string{"team_lead"}},
		},
		MaxLevel:     1,
		AutoEscalate: true,
		Enabled:      true,
	}
	require.NoError(t, store.SaveEscalationRule(ctx, rule))

	require.NoError(t, store.SaveRecipient(ctx, &model.Recipient{
		ID:     "compliance_team",
		Name:   "Compliance Team",
		Role:   "team",
		Level:  0,
		Active: true,
		Contacts: map[model.Channel]string{
			model.ChannelEmail: "compliance@example.com",
			model.ChannelSlack: "#compliance-alerts",
		},
	}))
	require.NoError(t, store.SaveRecipient(ctx, &model.Recipient{
		ID:     "team_lead",
		Name:   "Team Lead",
		Role:   "lead",
		Level:  1,
		Active: true,
		Contacts: map[model.Channel]string{
			model.ChannelSlack: "@team-lead",
		},
	}))
}

func openTestIncident(t *testing.T, store *storage.SQLiteStore) *model.Incident {
	t.Helper()

	inc := &model.Incident{
		ID:          uuid.New().String(),
		ViolationID: uuid.New().String(),
		Service:     "finrep_generator",
		Severity:    model.SeverityCritical,
		Status:      model.IncidentOpen,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, store.InsertIncident(context.Background(), inc))
	return inc
}

func waitForStatus(t *testing.T, store *storage.SQLiteStore, incID, rcpID string, ch model.Channel, level int, status model.NotificationStatus) *model.Notification {
	t.Helper()

	var n *model.Notification
	require.Eventually(t, func() bool {
		var err error
		n, err = store.GetNotificationByTuple(context.Background(), incID, rcpID, ch, level)
		return err == nil && n != nil && n.Status == status
	}, 2*time.Second, 10*time.Millisecond)
	return n
}

func TestDispatcher_SendDeliversOncePerTuple(t *testing.T) {
	// Setup
	logger, _ := zap.NewDevelopment()
	store := newTestStore(t)
	seedEscalation(t, store)
	inc := openTestIncident(t, store)
	ctx := context.Background()

	email := &stubAdapter{channel: model.ChannelEmail, delivered: true}
	slack := &stubAdapter{channel: model.ChannelSlack, delivered: true}

	d := NewDispatcher(logger, Config{Workers: 2, RetryInterval: time.Hour}, store, metrics.New())
	d.RegisterAdapter(email)
	d.RegisterAdapter(slack)
	d.Start(ctx)
	defer d.Stop()

	require.NoError(t, d.Send(ctx, inc, 0))

	n := waitForStatus(t, store, inc.ID, "compliance_team", model.ChannelEmail, 0, model.NotificationSent)
	require.NotNil(t, n.SentAt)
	require.Empty(t, n.LastError)
	waitForStatus(t, store, inc.ID, "compliance_team", model.ChannelSlack, 0, model.NotificationSent)

	// Resending the level never duplicates a delivered tuple
	require.NoError(t, d.Send(ctx, inc, 0))
	time.Sleep(100 * time.Millisecond)

	all, err := store.ListNotifications(ctx, inc.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, 1, email.callCount())
	require.Equal(t, 1, slack.callCount())
}

func TestDispatcher_EscalatedLevelKeepsLowerTiersEngaged(t *testing.T) {
	// Setup
	logger, _ := zap.NewDevelopment()
	store := newTestStore(t)
	seedEscalation(t, store)
	inc := openTestIncident(t, store)
	inc.EscalationLevel = 1
	ctx := context.Background()

	slack := &stubAdapter{channel: model.ChannelSlack, delivered: true}

	d := NewDispatcher(logger, Config{Workers: 2, RetryInterval: time.Hour}, store, metrics.New())
	d.RegisterAdapter(slack)
	d.Start(ctx)
	defer d.Stop()

	require.NoError(t, d.Send(ctx, inc, 1))

	// Both the level 0 team and the level 1 lead get the level 1 page, over
	// the level 1 step's channels only
	waitForStatus(t, store, inc.ID, "compliance_team", model.ChannelSlack, 1, model.NotificationSent)
	waitForStatus(t, store, inc.ID, "team_lead", model.ChannelSlack, 1, model.NotificationSent)

	all, err := store.ListNotifications(ctx, inc.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, n := range all {
		require.Equal(t, model.ChannelSlack, n.Channel)
		require.Equal(t, 1, n.Level)
	}
}

func TestDispatcher_SkipsInactiveAndUncontactableRecipients(t *testing.T) {
	// Setup
	logger, _ := zap.NewDevelopment()
	store := newTestStore(t)
	seedEscalation(t, store)
	ctx := context.Background()

	// The team lead goes inactive; the compliance team loses its slack contact
	require.NoError(t, store.SaveRecipient(ctx, &model.Recipient{
		ID: "team_lead", Name: "Team Lead", Role: "lead", Level: 1, Active: false,
		Contacts: map[model.Channel]string{model.ChannelSlack: "@team-lead"},
	}))
	require.NoError(t, store.SaveRecipient(ctx, &model.Recipient{
		ID: "compliance_team", Name: "Compliance Team", Role: "team", Level: 0, Active: true,
		Contacts: map[model.Channel]string{model.ChannelEmail: "compliance@example.com"},
	}))
	inc := openTestIncident(t, store)
	inc.EscalationLevel = 1

	slack := &stubAdapter{channel: model.ChannelSlack, delivered: true}

	d := NewDispatcher(logger, Config{Workers: 2, RetryInterval: time.Hour}, store, metrics.New())
	d.RegisterAdapter(slack)
	d.Start(ctx)
	defer d.Stop()

	require.NoError(t, d.Send(ctx, inc, 1))
	time.Sleep(100 * time.Millisecond)

	all, err := store.ListNotifications(ctx, inc.ID)
	require.NoError(t, err)
	require.Empty(t, all)
	require.Equal(t, 0, slack.callCount())
}

func TestDispatcher_UnconfiguredChannel(t *testing.T) {
	// Setup
	logger, _ := zap.NewDevelopment()
	store := newTestStore(t)
	seedEscalation(t, store)
	inc := openTestIncident(t, store)
	ctx := context.Background()

	email := &stubAdapter{channel: model.ChannelEmail, delivered: true}
	slack := &stubAdapter{channel: model.ChannelSlack} // (false, nil): not configured

	d := NewDispatcher(logger, Config{Workers: 2, RetryInterval: time.Hour}, store, metrics.New())
	d.RegisterAdapter(email)
	d.RegisterAdapter(slack)
	d.Start(ctx)
	defer d.Stop()

	require.NoError(t, d.Send(ctx, inc, 0))

	n := waitForStatus(t, store, inc.ID, "compliance_team", model.ChannelSlack, 0, model.NotificationFailed)
	require.Equal(t, "channel not configured", n.LastError)
	waitForStatus(t, store, inc.ID, "compliance_team", model.ChannelEmail, 0, model.NotificationSent)
}

func TestDispatcher_MissingAdapterFailsDelivery(t *testing.T) {
	// Setup: no slack adapter registered at all
	logger, _ := zap.NewDevelopment()
	store := newTestStore(t)
	seedEscalation(t, store)
	inc := openTestIncident(t, store)
	ctx := context.Background()

	email := &stubAdapter{channel: model.ChannelEmail, delivered: true}

	d := NewDispatcher(logger, Config{Workers: 2, RetryInterval: time.Hour}, store, metrics.New())
	d.RegisterAdapter(email)
	d.Start(ctx)
	defer d.Stop()

	require.NoError(t, d.Send(ctx, inc, 0))

	n := waitForStatus(t, store, inc.ID, "compliance_team", model.ChannelSlack, 0, model.NotificationFailed)
	require.Equal(t, ErrUnknownChannel.Error(), n.LastError)
}

func TestDispatcher_FullQueueFailsForRetry(t *testing.T) {
	// Setup: a one-slot queue and no workers to drain it
	logger, _ := zap.NewDevelopment()
	store := newTestStore(t)
	seedEscalation(t, store)
	inc := openTestIncident(t, store)
	ctx := context.Background()

	d := NewDispatcher(logger, Config{Workers: 1, QueueSize: 1, RetryInterval: time.Hour}, store, metrics.New())
	d.RegisterAdapter(&stubAdapter{channel: model.ChannelEmail, delivered: true})
	d.RegisterAdapter(&stubAdapter{channel: model.ChannelSlack, delivered: true})

	require.NoError(t, d.Send(ctx, inc, 0))

	// The email tuple took the only slot; the slack tuple fell to the sweep
	emailRow, err := store.GetNotificationByTuple(ctx, inc.ID, "compliance_team", model.ChannelEmail, 0)
	require.NoError(t, err)
	require.NotNil(t, emailRow)
	require.Equal(t, model.NotificationPending, emailRow.Status)

	slackRow, err := store.GetNotificationByTuple(ctx, inc.ID, "compliance_team", model.ChannelSlack, 0)
	require.NoError(t, err)
	require.NotNil(t, slackRow)
	require.Equal(t, model.NotificationFailed, slackRow.Status)
	require.Equal(t, "delivery queue full", slackRow.LastError)
}

func TestDispatcher_RetrySweepRedelivers(t *testing.T) {
	// Setup
	logger, _ := zap.NewDevelopment()
	store := newTestStore(t)
	seedEscalation(t, store)
	inc := openTestIncident(t, store)
	ctx := context.Background()

	email := &stubAdapter{channel: model.ChannelEmail, err: errors.New("smtp connect refused")}
	slack := &stubAdapter{channel: model.ChannelSlack, delivered: true}

	d := NewDispatcher(logger, Config{
		Workers:       2,
		RetryInterval: time.Hour,
		RetryBackoff:  time.Millisecond,
		MaxRetries:    3,
	}, store, metrics.New())
	d.RegisterAdapter(email)
	d.RegisterAdapter(slack)
	d.Start(ctx)
	defer d.Stop()

	require.NoError(t, d.Send(ctx, inc, 0))

	n := waitForStatus(t, store, inc.ID, "compliance_team", model.ChannelEmail, 0, model.NotificationFailed)
	require.Equal(t, 0, n.RetryCount)
	require.Equal(t, "smtp connect refused", n.LastError)

	// First retry fails again; the counter moves before the attempt
	time.Sleep(20 * time.Millisecond)
	d.sweepRetries(ctx)
	require.Eventually(t, func() bool {
		n, err := store.GetNotificationByTuple(ctx, inc.ID, "compliance_team", model.ChannelEmail, 0)
		return err == nil && n != nil && n.Status == model.NotificationFailed && n.RetryCount == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The outage clears; the next sweep delivers
	email.setResult(true, nil)
	time.Sleep(20 * time.Millisecond)
	d.sweepRetries(ctx)

	final := waitForStatus(t, store, inc.ID, "compliance_team", model.ChannelEmail, 0, model.NotificationSent)
	require.Equal(t, 2, final.RetryCount)
	require.Empty(t, final.LastError)
}

func TestDispatcher_ExhaustedNotificationsStopRetrying(t *testing.T) {
	// Setup
	logger, _ := zap.NewDevelopment()
	store := newTestStore(t)
	seedEscalation(t, store)
	inc := openTestIncident(t, store)
	ctx := context.Background()

	email := &stubAdapter{channel: model.ChannelEmail, err: errors.New("smtp connect refused")}
	slack := &stubAdapter{channel: model.ChannelSlack, delivered: true}

	d := NewDispatcher(logger, Config{
		Workers:       2,
		RetryInterval: time.Hour,
		RetryBackoff:  time.Millisecond,
		MaxRetries:    1,
	}, store, metrics.New())
	d.RegisterAdapter(email)
	d.RegisterAdapter(slack)
	d.Start(ctx)
	defer d.Stop()

	require.NoError(t, d.Send(ctx, inc, 0))
	waitForStatus(t, store, inc.ID, "compliance_team", model.ChannelEmail, 0, model.NotificationFailed)

	// One retry allowed, then the tuple is exhausted
	time.Sleep(20 * time.Millisecond)
	d.sweepRetries(ctx)
	require.Eventually(t, func() bool {
		n, err := store.GetNotificationByTuple(ctx, inc.ID, "compliance_team", model.ChannelEmail, 0)
		return err == nil && n != nil && n.RetryCount == 1 && n.Status == model.NotificationFailed
	}, 2*time.Second, 10*time.Millisecond)

	calls := email.callCount()
	require.Equal(t, 2, calls)

	time.Sleep(20 * time.Millisecond)
	d.sweepRetries(ctx)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, calls, email.callCount())
}

func TestEngagedRecipients(t *testing.T) {
	rule := &model.EscalationRule{
		Levels: []model.EscalationStep{
			{Level: 0, Recipients: []string{"compliance_team"}},
			{Level: 1, Recipients: []string{"team_lead", "compliance_team"}},
			{Level: 2, Recipients: []string{"manager"}},
		},
	}

	require.Equal(t, []string{"compliance_team"}, engagedRecipients(rule, 0))
	require.Equal(t, []string{"compliance_team", "team_lead"}, engagedRecipients(rule, 1))
	require.Equal(t, []string{"compliance_team", "team_lead", "manager"}, engagedRecipients(rule, 2))
}
