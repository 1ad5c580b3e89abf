package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ipotracker/internal/client/exchange"
	"ipotracker/internal/models"
	"ipotracker/internal/repository"
)

func stage(t *testing.T, store repository.Repository, sources ...exchange.Client) {
	t.Helper()
	svc := &DiscoveryService{
		Repo:     store,
		Sources:  sources,
		Calendar: newTestCalendar(t),
		Now:      fixedNow,
	}
	_, err := svc.RunDiscovery(context.Background())
	require.NoError(t, err)
}

func listing(source exchange.Source, symbol, name string) exchange.Listing {
	return exchange.Listing{Source: source, Symbol: symbol, CompanyName: name, IssueStart: day(2025, 12, 9), IssueEnd: day(2025, 12, 11)}
}

func TestReconcileLinksBothExchangesToOneOffering(t *testing.T) {
	orders := []struct {
		name    string
		sources []exchange.Client
	}{
		{"nse first", []exchange.Client{
			&stubClient{source: exchange.SourceNSE, current: []exchange.Listing{listing(exchange.SourceNSE, "ALPHA", "Alpha Industries Limited")}},
		}},
		{"bse first", []exchange.Client{
			&stubClient{source: exchange.SourceBSE, current: []exchange.Listing{listing(exchange.SourceBSE, "544321", "Alpha Industries")}},
		}},
	}
	for _, tc := range orders {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			store := newTestStore(t)
			svc := &ReconciliationService{Repo: store, Now: fixedNow}

			stage(t, store, tc.sources...)
			first, err := svc.Reconcile(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, first.Created)

			stage(t, store,
				&stubClient{source: exchange.SourceNSE, current: []exchange.Listing{listing(exchange.SourceNSE, "ALPHA", "Alpha Industries Limited")}},
				&stubClient{source: exchange.SourceBSE, current: []exchange.Listing{listing(exchange.SourceBSE, "544321", "Alpha Industries")}},
			)
			second, err := svc.Reconcile(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, second.Matched)
			assert.Zero(t, second.Created)

			offerings, err := store.ListAllOfferings(ctx)
			require.NoError(t, err)
			require.Len(t, offerings, 1)
			o := offerings[0]
			require.NotNil(t, o.NSESymbol)
			require.NotNil(t, o.BSECode)
			assert.Equal(t, "ALPHA", *o.NSESymbol)
			assert.Equal(t, "544321", *o.BSECode)
			assert.Equal(t, models.StatusOpen, o.Status)

			left, err := store.ListUnresolvedFindings(ctx)
			require.NoError(t, err)
			assert.Empty(t, left)
		})
	}
}

func TestReconcileMatchesWithinOneRun(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	stage(t, store,
		&stubClient{source: exchange.SourceNSE, current: []exchange.Listing{listing(exchange.SourceNSE, "ALPHA", "Alpha Industries Limited")}},
		&stubClient{source: exchange.SourceBSE, current: []exchange.Listing{listing(exchange.SourceBSE, "544321", "Alpha Industries Ltd.")}},
	)

	result, err := (&ReconciliationService{Repo: store, Now: fixedNow}).Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Matched: 1, Created: 1}, result)

	offerings, err := store.ListAllOfferings(ctx)
	require.NoError(t, err)
	require.Len(t, offerings, 1)
	dates, err := store.GetOfferingDates(ctx, offerings[0].ID)
	require.NoError(t, err)
	require.NotNil(t, dates)
	require.NotNil(t, dates.IssueEnd)
	assert.True(t, dates.IssueEnd.Equal(*day(2025, 12, 11)))
}

func TestReconcilePrefersExactLinkage(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := &ReconciliationService{Repo: store, Now: fixedNow}

	stage(t, store, &stubClient{source: exchange.SourceNSE, current: []exchange.Listing{
		listing(exchange.SourceNSE, "BETA", "Beta Chemicals Limited"),
		listing(exchange.SourceNSE, "ZETA", "Zeta Pharma Limited"),
	}})
	_, err := svc.Reconcile(ctx)
	require.NoError(t, err)

	// Same symbol under a new name resolves by linkage, not by name.
	stage(t, store, &stubClient{source: exchange.SourceNSE, current: []exchange.Listing{
		listing(exchange.SourceNSE, "ZETA", "Beta Chemicals"),
	}})
	result, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Matched)

	items, err := store.ListFindings(ctx, repository.ListFindingsParams{})
	require.NoError(t, err)
	offerings, err := store.ListAllOfferings(ctx)
	require.NoError(t, err)
	zetaID := uint64(0)
	for _, o := range offerings {
		if o.NSESymbol != nil && *o.NSESymbol == "ZETA" {
			zetaID = o.ID
		}
	}
	require.NotZero(t, zetaID)
	for _, f := range items {
		if f.CompanyName == "Beta Chemicals" {
			require.NotNil(t, f.ResolvedOfferingID)
			assert.Equal(t, zetaID, *f.ResolvedOfferingID)
		}
	}
}

func TestReconcileLeavesNamelessFindingUnresolved(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	stage(t, store, &stubClient{source: exchange.SourceBSE, current: []exchange.Listing{
		listing(exchange.SourceBSE, "544999", "Limited"),
	}})

	result, err := (&ReconciliationService{Repo: store, Now: fixedNow}).Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Unresolved)

	offerings, err := store.ListAllOfferings(ctx)
	require.NoError(t, err)
	assert.Empty(t, offerings)
	left, err := store.ListUnresolvedFindings(ctx)
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestReconcileNeverReplacesLinkage(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := &ReconciliationService{Repo: store, Now: fixedNow}

	stage(t, store, &stubClient{source: exchange.SourceBSE, current: []exchange.Listing{
		listing(exchange.SourceBSE, "544321", "Delta Power Limited"),
	}})
	_, err := svc.Reconcile(ctx)
	require.NoError(t, err)

	// A second scrip code under the same name resolves to the existing
	// offering without replacing its code.
	stage(t, store, &stubClient{source: exchange.SourceBSE, current: []exchange.Listing{
		listing(exchange.SourceBSE, "544322", "Delta Power Limited"),
	}})
	result, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Matched)

	offerings, err := store.ListAllOfferings(ctx)
	require.NoError(t, err)
	require.Len(t, offerings, 1)
	require.NotNil(t, offerings[0].BSECode)
	assert.Equal(t, "544321", *offerings[0].BSECode)
}
