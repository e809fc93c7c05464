package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIncidentStatus_Terminal(t *testing.T) {
	require.False(t, IncidentOpen.Terminal())
	require.False(t, IncidentAcknowledged.Terminal())
	require.False(t, IncidentInvestigating.Terminal())
	require.True(t, IncidentResolved.Terminal())
	require.True(t, IncidentClosed.Terminal())
}

func TestIncident_EscalationAnchor(t *testing.T) {
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	inc := &Incident{CreatedAt: created}
	require.Equal(t, created, inc.EscalationAnchor())

	escalated := created.Add(30 * time.Minute)
	inc.EscalatedAt = &escalated
	require.Equal(t, escalated, inc.EscalationAnchor())
}
