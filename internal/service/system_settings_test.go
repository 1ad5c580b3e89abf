package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDefaultSwitchesKeepsStoredValues(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := &SystemSettingsService{Repo: store, Now: fixedNow}

	require.NoError(t, svc.SetEnabled(ctx, FeatureEnrichment, false))
	require.NoError(t, svc.EnsureDefaultSwitches(ctx))

	assert.False(t, svc.IsEnabled(ctx, FeatureEnrichment, true))
	assert.True(t, svc.IsEnabled(ctx, FeatureDiscovery, false))
	assert.True(t, svc.IsEnabled(ctx, FeatureTimetableExtract, false))
}

func TestIsEnabledFallsBack(t *testing.T) {
	var nilSvc *SystemSettingsService
	assert.True(t, nilSvc.IsEnabled(context.Background(), FeatureDiscovery, true))

	svc := &SystemSettingsService{Repo: newTestStore(t)}
	assert.False(t, svc.IsEnabled(context.Background(), "feature.unknown", false))
	assert.True(t, svc.IsEnabled(context.Background(), " ", true))
}

func TestSetEnabledRejectsUnknownSwitch(t *testing.T) {
	svc := &SystemSettingsService{Repo: newTestStore(t), Now: fixedNow}
	err := svc.SetEnabled(context.Background(), "feature.trading", true)
	assert.ErrorIs(t, err, ErrUnknownSwitch)
}

func TestSwitchesReportEffectiveState(t *testing.T) {
	ctx := context.Background()
	svc := &SystemSettingsService{Repo: newTestStore(t), Now: fixedNow}
	require.NoError(t, svc.SetEnabled(ctx, FeatureTimetableExtract, false))

	got := map[string]bool{}
	for _, sw := range svc.Switches(ctx) {
		got[sw.Key] = sw.Enabled
	}
	assert.Equal(t, map[string]bool{
		FeatureDiscovery:        true,
		FeatureReconciliation:   true,
		FeatureEnrichment:       true,
		FeatureTimetableExtract: false,
	}, got)
}
