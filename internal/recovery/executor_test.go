package recovery

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/slawatch/slawatch/internal/metrics"
	"github.com/slawatch/slawatch/internal/model"
	"github.com/slawatch/slawatch/internal/storage"
)

type fakeAdapter struct {
	action model.RecoveryAction
	output map[string]interface{}
	err    error
	calls  int
}

func (f *fakeAdapter) Action() model.RecoveryAction {
	return f.action
}

func (f *fakeAdapter) Execute(ctx context.Context, service string, action model.RecoveryAction) (map[string]interface{}, error) {
	f.calls++
	return f.output, f.err
}

func newTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()

	logger, _ := zap.NewDevelopment()
	store, err := storage.NewSQLiteStore(logger, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func recoveryIncident(service string, severity model.Severity) *model.Incident {
	return &model.Incident{
		ID:        uuid.New().String(),
		Service:   service,
		Severity:  severity,
		Status:    model.IncidentOpen,
		CreatedAt: time.Now().UTC(),
	}
}

func TestActionsFor(t *testing.T) {
	tests := []struct {
		name     string
		class    model.ServiceClass
		severity model.Severity
		want     []model.RecoveryAction
	}{
		{"report generation warning", model.ClassReportGeneration, model.SeverityWarning, []model.RecoveryAction{model.ActionClearCache}},
		{"report generation critical", model.ClassReportGeneration, model.SeverityCritical, []model.RecoveryAction{model.ActionClearCache, model.ActionRestartService}},
		{"report generation emergency", model.ClassReportGeneration, model.SeverityEmergency, []model.RecoveryAction{model.ActionClearCache, model.ActionRestartService}},
		{"delivery warning", model.ClassDelivery, model.SeverityWarning, []model.RecoveryAction{model.ActionCircuitBreaker}},
		{"delivery critical", model.ClassDelivery, model.SeverityCritical, []model.RecoveryAction{model.ActionCircuitBreaker}},
		{"delivery emergency", model.ClassDelivery, model.SeverityEmergency, []model.RecoveryAction{model.ActionCircuitBreaker, model.ActionFailover}},
		{"scheduler warning", model.ClassScheduler, model.SeverityWarning, []model.RecoveryAction{model.ActionThrottleRequests, model.ActionRestartService}},
		{"scheduler emergency", model.ClassScheduler, model.SeverityEmergency, []model.RecoveryAction{model.ActionThrottleRequests, model.ActionRestartService}},
		{"unclassified warning", model.ClassUnclassified, model.SeverityWarning, []model.RecoveryAction{model.ActionRestartService}},
		{"unclassified critical", model.ClassUnclassified, model.SeverityCritical, []model.RecoveryAction{model.ActionRestartService}},
		{"unclassified emergency", model.ClassUnclassified, model.SeverityEmergency, []model.RecoveryAction{model.ActionManualIntervention}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, actionsFor(tt.class, tt.severity))
		})
	}
}

func TestExecutor_Classify(t *testing.T) {
	// Setup
	logger, _ := zap.NewDevelopment()
	store := newTestStore(t)

	e := NewExecutor(logger, Config{Enabled: true}, store, metrics.New())

	require.Equal(t, model.ClassReportGeneration, e.Classify("finrep_generator"))
	require.Equal(t, model.ClassReportGeneration, e.Classify("corep_generator"))
	require.Equal(t, model.ClassReportGeneration, e.Classify("dora_generator"))
	require.Equal(t, model.ClassDelivery, e.Classify("sftp_delivery"))
	require.Equal(t, model.ClassDelivery, e.Classify("eba_api_client"))
	require.Equal(t, model.ClassScheduler, e.Classify("report_scheduler"))
	require.Equal(t, model.ClassUnclassified, e.Classify("something_else"))
}

func TestExecutor_ClassifyOverride(t *testing.T) {
	// Setup
	logger, _ := zap.NewDevelopment()
	store := newTestStore(t)

	e := NewExecutor(logger, Config{
		Enabled: true,
		ServiceClasses: map[string]string{
			"custom_reporter":  "report_generation",
			"finrep_generator": "delivery",
		},
	}, store, metrics.New())

	require.Equal(t, model.ClassReportGeneration, e.Classify("custom_reporter"))
	require.Equal(t, model.ClassDelivery, e.Classify("finrep_generator"))
}

func TestExecutor_Execute(t *testing.T) {
	// Setup
	logger, _ := zap.NewDevelopment()
	store := newTestStore(t)
	ctx := context.Background()

	clearCache := &fakeAdapter{action: model.ActionClearCache, output: map[string]interface{}{"cleared_keys": 12}}
	restart := &fakeAdapter{action: model.ActionRestartService, output: map[string]interface{}{"restarted": "finrep_generator"}}

	e := NewExecutor(logger, Config{Enabled: true}, store, metrics.New())
	e.RegisterAdapter(clearCache)
	e.RegisterAdapter(restart)

	inc := recoveryIncident("finrep_generator", model.SeverityCritical)
	results := e.Execute(ctx, inc)

	require.Len(t, results, 2)
	require.Equal(t, model.ActionClearCache, results[0].Action)
	require.True(t, results[0].Success)
	require.Equal(t, model.ActionRestartService, results[1].Action)
	require.True(t, results[1].Success)
	require.Equal(t, 1, clearCache.calls)
	require.Equal(t, 1, restart.calls)

	// Every attempt lands in the audit trail
	stored, err := store.RecoveryResultsForIncident(ctx, inc.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
}

func TestExecutor_UnregisteredActionFails(t *testing.T) {
	// Setup: the restart adapter is missing
	logger, _ := zap.NewDevelopment()
	store := newTestStore(t)
	ctx := context.Background()

	clearCache := &fakeAdapter{action: model.ActionClearCache}

	e := NewExecutor(logger, Config{Enabled: true}, store, metrics.New())
	e.RegisterAdapter(clearCache)

	inc := recoveryIncident("finrep_generator", model.SeverityCritical)
	results := e.Execute(ctx, inc)

	require.Len(t, results, 2)
	require.True(t, results[0].Success)
	require.False(t, results[1].Success)
	require.Equal(t, ErrUnknownAction.Error(), results[1].Error)
}

func TestExecutor_AdapterFailureIsRecorded(t *testing.T) {
	// Setup
	logger, _ := zap.NewDevelopment()
	store := newTestStore(t)
	ctx := context.Background()

	broken := &fakeAdapter{action: model.ActionRestartService, err: errors.New("docker daemon unreachable")}

	e := NewExecutor(logger, Config{Enabled: true}, store, metrics.New())
	e.RegisterAdapter(broken)

	inc := recoveryIncident("unknown_service", model.SeverityCritical)
	results := e.Execute(ctx, inc)

	require.Len(t, results, 1)
	require.False(t, results[0].Success)
	require.Equal(t, "docker daemon unreachable", results[0].Error)

	stored, err := store.RecoveryResultsForIncident(ctx, inc.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.False(t, stored[0].Success)
	require.Equal(t, "docker daemon unreachable", stored[0].Error)
}

func TestExecutor_DisabledDoesNothing(t *testing.T) {
	// Setup
	logger, _ := zap.NewDevelopment()
	store := newTestStore(t)
	ctx := context.Background()

	adapter := &fakeAdapter{action: model.ActionClearCache}

	e := NewExecutor(logger, Config{Enabled: false}, store, metrics.New())
	e.RegisterAdapter(adapter)

	results := e.Execute(ctx, recoveryIncident("finrep_generator", model.SeverityCritical))
	require.Nil(t, results)
	require.Equal(t, 0, adapter.calls)
}
