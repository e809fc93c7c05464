package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/slawatch/slawatch/internal/model"
)

func TestSnapshotCounts(t *testing.T) {
	m := New()

	m.MeasurementIngested()
	m.MeasurementIngested()
	m.EvaluationCompleted(0.01)
	m.EvaluationCompleted(0.02)
	m.ViolationDetected()
	m.ViolationResolved()
	m.ViolationAutoResolved()
	m.IncidentTransition("created")
	m.IncidentTransition("created")
	m.IncidentTransition("escalated")
	m.IncidentTransition("acknowledged")
	m.IncidentTransition("resolved")
	m.IncidentTransition("closed")
	m.NotificationSent(0.1)
	m.NotificationFailed()
	m.NotificationRetried()
	m.NotificationExhausted()
	m.RecoveryExecuted(model.ActionClearCache, true, 0.2)
	m.RecoveryExecuted(model.ActionRestartService, false, 0.3)

	s := m.Snapshot()
	require.Equal(t, int64(2), s.MeasurementsIngested)
	require.Equal(t, int64(2), s.Evaluations)
	require.Equal(t, int64(1), s.ViolationsDetected)
	require.Equal(t, int64(1), s.ViolationsResolved)
	require.Equal(t, int64(1), s.ViolationsAutoResolved)
	require.Equal(t, int64(2), s.IncidentsCreated)
	require.Equal(t, int64(1), s.IncidentsEscalated)
	require.Equal(t, int64(1), s.IncidentsAcknowledged)
	require.Equal(t, int64(1), s.IncidentsResolved)
	require.Equal(t, int64(1), s.IncidentsClosed)
	require.Equal(t, int64(1), s.NotificationsSent)
	require.Equal(t, int64(1), s.NotificationsFailed)
	require.Equal(t, int64(1), s.NotificationsRetried)
	require.Equal(t, int64(1), s.NotificationsExhausted)
	require.Equal(t, int64(2), s.RecoveryExecuted)
	require.Equal(t, int64(1), s.RecoveryFailed)

	// Derived rates
	require.InDelta(t, 0.5, s.ViolationRate, 1e-9)
	require.InDelta(t, 1.0, s.ResolutionRate, 1e-9)
}

func TestSnapshotZeroRates(t *testing.T) {
	s := New().Snapshot()
	require.Zero(t, s.ViolationRate)
	require.Zero(t, s.ResolutionRate)
}

func TestRegister(t *testing.T) {
	m := New()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	// Re-registering the same bundle is tolerated
	require.NoError(t, m.Register(reg))

	m.ViolationDetected()
	m.SetQueueDepth(3)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["slawatch_violations_total"])
	require.True(t, names["slawatch_notification_queue_depth"])
	require.True(t, names["slawatch_evaluation_seconds"])
}
