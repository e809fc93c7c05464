package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/slawatch/slawatch/internal/model"
)

func TestSeedDefaults(t *testing.T) {
	// Setup
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SeedDefaults(ctx))

	defs, err := store.ListDefinitions(ctx, false)
	require.NoError(t, err)
	require.Len(t, defs, 9)
	for _, def := range defs {
		require.True(t, def.Enabled, def.ID)
	}

	rules, err := store.ListEscalationRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 5)

	recs, err := store.ListRecipients(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 4)

	// The regulatory generators carry the strictest latency objectives
	finrep, err := store.GetDefinition(ctx, "finrep_generation_time")
	require.NoError(t, err)
	require.NotNil(t, finrep)
	require.Equal(t, "finrep_generator", finrep.Service)
	require.Equal(t, model.MetricResponseTime, finrep.Metric)
	require.Equal(t, model.OperatorLessEqual, finrep.Operator)
	require.Equal(t, 300000.0, finrep.Threshold)
	require.Equal(t, time.Hour, finrep.Window)
	require.Equal(t, model.SeverityCritical, finrep.Severity)

	critical := model.MatchEscalationRule(rules, "finrep_generator", model.SeverityCritical)
	require.NotNil(t, critical)
	require.Equal(t, "finrep_generator_critical", critical.ID)
	require.Len(t, critical.Levels, 4)
	require.Equal(t, 3, critical.MaxLevel)
	require.True(t, critical.AutoEscalate)

	// Unlisted services fall through to the wildcard ladder
	fallback := model.MatchEscalationRule(rules, "report_scheduler", model.SeverityWarning)
	require.NotNil(t, fallback)
	require.Equal(t, "default_warning", fallback.ID)

	team, err := store.GetRecipient(ctx, "compliance_team")
	require.NoError(t, err)
	require.NotNil(t, team)
	require.True(t, team.Active)
	require.Contains(t, team.Contacts, model.ChannelEmail)
	require.Contains(t, team.Contacts, model.ChannelSlack)
}

func TestSeedDefaultsPreservesOperatorEdits(t *testing.T) {
	// Setup
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SeedDefaults(ctx))
	require.NoError(t, store.SetDefinitionEnabled(ctx, "dora_generation_time", false))
	require.NoError(t, store.DeleteRecipient(ctx, "executive"))

	// A second seeding run must not reintroduce or reset anything
	require.NoError(t, store.SeedDefaults(ctx))

	dora, err := store.GetDefinition(ctx, "dora_generation_time")
	require.NoError(t, err)
	require.NotNil(t, dora)
	require.False(t, dora.Enabled)

	defs, err := store.ListDefinitions(ctx, false)
	require.NoError(t, err)
	require.Len(t, defs, 9)

	recs, err := store.ListRecipients(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 3)
}
