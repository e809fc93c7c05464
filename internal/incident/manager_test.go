package incident

import (
	"context"
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

type eventCounts struct {
	created      int
	escalated    int
	acknowledged int
	resolved     int
	closed       int
}

type fakeEvents struct {
	mu     sync.Mutex
	counts eventCounts
}

func (f *fakeEvents) IncidentCreated(inc *model.Incident) {
	f.mu.Lock()
	f.counts.created++
	f.mu.Unlock()
}

func (f *fakeEvents) IncidentEscalated(inc *model.Incident) {
	f.mu.Lock()
	f.counts.escalated++
	f.mu.Unlock()
}

func (f *fakeEvents) IncidentAcknowledged(inc *model.Incident) {
	f.mu.Lock()
	f.counts.acknowledged++
	f.mu.Unlock()
}

func (f *fakeEvents) IncidentResolved(inc *model.Incident) {
	f.mu.Lock()
	f.counts.resolved++
	f.mu.Unlock()
}

func (f *fakeEvents) IncidentClosed(inc *model.Incident) {
	f.mu.Lock()
	f.counts.closed++
	f.mu.Unlock()
}

func (f *fakeEvents) snapshot() eventCounts {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts
}

type sentNotification struct {
	incidentID string
	level      int
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (f *fakeNotifier) Send(ctx context.Context, inc *model.Incident, level int) error {
	f.mu.Lock()
	f.sent = append(f.sent, sentNotification{incidentID: inc.ID, level: level})
	f.mu.Unlock()
	return nil
}

func (f *fakeNotifier) all() []sentNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentNotification(nil), f.sent...)
}

type fakeRecoverer struct {
	actions []model.RecoveryAction
}

func (f *fakeRecoverer) Execute(ctx context.Context, inc *model.Incident) []*model.RecoveryResult {
	results := make([]*model.RecoveryResult, 0, len(f.actions))
	for _, a := range f.actions {
		results = append(results, &model.RecoveryResult{
			ID:         uuid.New().String(),
			IncidentID: inc.ID,
			Service:    inc.Service,
			Action:     a,
			ExecutedAt: time.Now().UTC(),
			Success:    true,
		})
	}
	return results
}

func newTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()

	logger, _ := zap.NewDevelopment()
	store, err := storage.NewSQLiteStore(logger, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestManager(t *testing.T, store storage.IncidentStore, events Events, notifier Notifier, recovery Recoverer) *Manager {
	t.Helper()

	logger, _ := zap.NewDevelopment()
	return NewManager(logger, Config{Timeout: time.Hour, SweepInterval: time.Hour}, store, events, notifier, recovery, metrics.New())
}

func testViolation() *model.Violation {
	return &model.Violation{
		ID:       uuid.New().String(),
		SLAID:    "report_latency",
		Service:  "finrep_generator",
		Metric:   model.MetricResponseTime,
		Severity: model.SeverityCritical,
	}
}

func TestManager_OpenIsIdempotent(t *testing.T) {
	// Setup
	store := newTestStore(t)
	events := &fakeEvents{}
	notifier := &fakeNotifier{}
	m := newTestManager(t, store, events, notifier, nil)
	ctx := context.Background()

	v := testViolation()

	first, err := m.Open(ctx, v)
	require.NoError(t, err)
	require.Equal(t, model.IncidentOpen, first.Status)
	require.Equal(t, v.Service, first.Service)
	require.Equal(t, model.SeverityCritical, first.Severity)
	require.Equal(t, []string{v.Service}, first.Impact.AffectedServices)

	second, err := m.Open(ctx, v)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	require.Equal(t, 1, events.snapshot().created)

	// Level zero notifications go out exactly once
	sent := notifier.all()
	require.Len(t, sent, 1)
	require.Equal(t, sentNotification{incidentID: first.ID, level: 0}, sent[0])
}

func TestManager_OpenFindsExistingAfterRestart(t *testing.T) {
	// Setup
	store := newTestStore(t)
	ctx := context.Background()

	v := testViolation()
	m1 := newTestManager(t, store, nil, nil, nil)
	inc, err := m1.Open(ctx, v)
	require.NoError(t, err)

	// A fresh manager has an empty registry but the store still knows
	m2 := newTestManager(t, store, nil, nil, nil)
	again, err := m2.Open(ctx, v)
	require.NoError(t, err)
	require.Equal(t, inc.ID, again.ID)
}

func TestManager_OpenRecordsRecoveryActions(t *testing.T) {
	// Setup
	store := newTestStore(t)
	recovery := &fakeRecoverer{actions: []model.RecoveryAction{model.ActionClearCache, model.ActionRestartService}}
	m := newTestManager(t, store, nil, nil, recovery)
	ctx := context.Background()

	inc, err := m.Open(ctx, testViolation())
	require.NoError(t, err)

	// Recovery runs async and appends its attempts under the incident lock
	require.Eventually(t, func() bool {
		current, err := store.GetIncident(ctx, inc.ID)
		if err != nil || current == nil {
			return false
		}
		return len(current.RecoveryActions) == 2
	}, 2*time.Second, 10*time.Millisecond)

	current, err := store.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	require.Equal(t, []model.RecoveryAction{model.ActionClearCache, model.ActionRestartService}, current.RecoveryActions)
}

func TestManager_Acknowledge(t *testing.T) {
	// Setup
	store := newTestStore(t)
	events := &fakeEvents{}
	m := newTestManager(t, store, events, nil, nil)
	ctx := context.Background()

	inc, err := m.Open(ctx, testViolation())
	require.NoError(t, err)

	ok, err := m.Acknowledge(ctx, inc.ID, "ops@example.com")
	require.NoError(t, err)
	require.True(t, ok)

	stored, err := store.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	require.Equal(t, model.IncidentAcknowledged, stored.Status)
	require.Equal(t, "ops@example.com", stored.AcknowledgedBy)
	require.NotNil(t, stored.AcknowledgedAt)

	// Acknowledging twice is an expected no-op
	ok, err = m.Acknowledge(ctx, inc.ID, "ops@example.com")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 1, events.snapshot().acknowledged)

	_, err = m.Acknowledge(ctx, "no-such-incident", "ops@example.com")
	require.ErrorIs(t, err, ErrIncidentNotFound)
}

func TestManager_Investigate(t *testing.T) {
	// Setup
	store := newTestStore(t)
	m := newTestManager(t, store, nil, nil, nil)
	ctx := context.Background()

	inc, err := m.Open(ctx, testViolation())
	require.NoError(t, err)

	// Investigation requires an acknowledgment first
	ok, err := m.Investigate(ctx, inc.ID)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = m.Acknowledge(ctx, inc.ID, "ops@example.com")
	require.NoError(t, err)

	ok, err = m.Investigate(ctx, inc.ID)
	require.NoError(t, err)
	require.True(t, ok)

	stored, err := store.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	require.Equal(t, model.IncidentInvestigating, stored.Status)
}

func TestManager_ResolveAndClose(t *testing.T) {
	// Setup
	store := newTestStore(t)
	events := &fakeEvents{}
	m := newTestManager(t, store, events, nil, nil)
	ctx := context.Background()

	inc, err := m.Open(ctx, testViolation())
	require.NoError(t, err)

	ok, err := m.Resolve(ctx, inc.ID, "Latency back under threshold")
	require.NoError(t, err)
	require.True(t, ok)

	stored, err := store.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	require.Equal(t, model.IncidentResolved, stored.Status)
	require.Equal(t, "Latency back under threshold", stored.ResolutionNotes)
	require.NotNil(t, stored.ResolvedAt)

	// Resolving a terminal incident is a no-op
	ok, err = m.Resolve(ctx, inc.ID, "again")
	require.NoError(t, err)
	require.False(t, ok)

	// A resolved incident may still close
	ok, err = m.Close(ctx, inc.ID, "")
	require.NoError(t, err)
	require.True(t, ok)

	stored, err = store.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	require.Equal(t, model.IncidentClosed, stored.Status)
	require.Equal(t, "Latency back under threshold", stored.ResolutionNotes)

	ok, err = m.Close(ctx, inc.ID, "")
	require.NoError(t, err)
	require.False(t, ok)

	counts := events.snapshot()
	require.Equal(t, 1, counts.resolved)
	require.Equal(t, 1, counts.closed)
}

func TestManager_CloseFromOpen(t *testing.T) {
	// Setup
	store := newTestStore(t)
	m := newTestManager(t, store, nil, nil, nil)
	ctx := context.Background()

	inc, err := m.Open(ctx, testViolation())
	require.NoError(t, err)

	ok, err := m.Close(ctx, inc.ID, "Operator closed without resolution")
	require.NoError(t, err)
	require.True(t, ok)

	stored, err := store.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	require.Equal(t, model.IncidentClosed, stored.Status)
	require.NotNil(t, stored.ResolvedAt)
	require.Equal(t, "Operator closed without resolution", stored.ResolutionNotes)
}

func TestManager_Escalate(t *testing.T) {
	// Setup
	store := newTestStore(t)
	events := &fakeEvents{}
	notifier := &fakeNotifier{}
	m := newTestManager(t, store, events, notifier, nil)
	ctx := context.Background()

	inc, err := m.Open(ctx, testViolation())
	require.NoError(t, err)

	// Levels advance one at a time
	ok, err := m.Escalate(ctx, inc.ID, 2)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = m.Escalate(ctx, inc.ID, 1)
	require.NoError(t, err)
	require.True(t, ok)

	stored, err := store.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stored.EscalationLevel)
	require.NotNil(t, stored.EscalatedAt)

	// Repeating the same level is a no-op
	ok, err = m.Escalate(ctx, inc.ID, 1)
	require.NoError(t, err)
	require.False(t, ok)

	require.Equal(t, 1, events.snapshot().escalated)

	// The escalated level's notifications went out
	sent := notifier.all()
	require.Len(t, sent, 2)
	require.Equal(t, sentNotification{incidentID: inc.ID, level: 0}, sent[0])
	require.Equal(t, sentNotification{incidentID: inc.ID, level: 1}, sent[1])

	// Acknowledged incidents stop escalating
	_, err = m.Acknowledge(ctx, inc.ID, "ops@example.com")
	require.NoError(t, err)
	ok, err = m.Escalate(ctx, inc.ID, 2)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestManager_EscalateRespectsMaxLevel(t *testing.T) {
	// Setup
	store := newTestStore(t)
	m := newTestManager(t, store, nil, nil, nil)
	ctx := context.Background()

	inc, err := m.Open(ctx, testViolation())
	require.NoError(t, err)

	for level := 1; level <= model.MaxEscalationLevel; level++ {
		ok, err := m.Escalate(ctx, inc.ID, level)
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := m.Escalate(ctx, inc.ID, model.MaxEscalationLevel+1)
	require.NoError(t, err)
	require.False(t, ok)

	stored, err := store.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	require.Equal(t, model.MaxEscalationLevel, stored.EscalationLevel)
}

func TestManager_ResolveForViolation(t *testing.T) {
	// Setup
	store := newTestStore(t)
	m := newTestManager(t, store, nil, nil, nil)
	ctx := context.Background()

	v := testViolation()
	inc, err := m.Open(ctx, v)
	require.NoError(t, err)

	ok, err := m.ResolveForViolation(ctx, v.ID, "SLA violation automatically resolved")
	require.NoError(t, err)
	require.True(t, ok)

	stored, err := store.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	require.Equal(t, model.IncidentResolved, stored.Status)
	require.Equal(t, "SLA violation automatically resolved", stored.ResolutionNotes)

	// A violation that never produced an incident is not an error
	ok, err = m.ResolveForViolation(ctx, "no-such-violation", "notes")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestManager_SweepTimeouts(t *testing.T) {
	// Setup
	store := newTestStore(t)
	m := newTestManager(t, store, nil, nil, nil)
	ctx := context.Background()

	fresh, err := m.Open(ctx, testViolation())
	require.NoError(t, err)

	stale := &model.Incident{
		ID:          uuid.New().String(),
		ViolationID: uuid.New().String(),
		Service:     "sftp_delivery",
		Severity:    model.SeverityWarning,
		Status:      model.IncidentOpen,
		CreatedAt:   time.Now().UTC().Add(-2 * time.Hour),
	}
	require.NoError(t, store.InsertIncident(ctx, stale))

	m.sweepTimeouts(ctx)

	staleStored, err := store.GetIncident(ctx, stale.ID)
	require.NoError(t, err)
	require.Equal(t, model.IncidentClosed, staleStored.Status)
	require.Equal(t, "Incident timed out - auto-closed", staleStored.ResolutionNotes)

	freshStored, err := store.GetIncident(ctx, fresh.ID)
	require.NoError(t, err)
	require.Equal(t, model.IncidentOpen, freshStored.Status)
}

func TestManager_StartWarmsRegistry(t *testing.T) {
	// Setup
	store := newTestStore(t)
	ctx := context.Background()

	v := testViolation()
	m1 := newTestManager(t, store, nil, nil, nil)
	inc, err := m1.Open(ctx, v)
	require.NoError(t, err)

	m2 := newTestManager(t, store, nil, nil, nil)
	require.NoError(t, m2.Start(ctx))
	defer m2.Stop()

	ok, err := m2.ResolveForViolation(ctx, v.ID, "restored")
	require.NoError(t, err)
	require.True(t, ok)

	stored, err := store.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	require.Equal(t, model.IncidentResolved, stored.Status)
}
