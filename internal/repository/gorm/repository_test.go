package gormrepository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"ipotracker/internal/models"
	"ipotracker/internal/repository"
	"ipotracker/internal/testutil"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return New(testutil.NewSQLiteDB(t).Gorm)
}

func strPtr(v string) *string { return &v }

func finding(source, symbol, name string, seen time.Time) *models.DiscoveryFinding {
	return &models.DiscoveryFinding{
		Source:         source,
		SourceSymbol:   symbol,
		CompanyName:    name,
		InferredStatus: models.StatusUpcoming,
		RawPayload:     datatypes.JSON(`{}`),
		FirstSeenAt:    seen,
		LastSeenAt:     seen,
	}
}

func TestUpsertFindingKeepsResolution(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	t0 := time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertFinding(ctx, finding("nse", "ACME", "Acme Ltd", t0)))
	items, err := s.ListUnresolvedFindings(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)

	off := &models.Offering{CompanyName: "Acme Ltd", Symbol: "ACME", Status: models.StatusUpcoming, UpdatedAt: t0}
	require.NoError(t, s.CreateOfferingForFinding(ctx, off, nil, items[0].ID, t0))

	again := finding("nse", "ACME", "Acme Ltd", t0.Add(time.Hour))
	again.InferredStatus = models.StatusOpen
	again.RawPayload = datatypes.JSON(`{"symbol":"ACME"}`)
	require.NoError(t, s.UpsertFinding(ctx, again))

	all, err := s.ListFindings(ctx, repository.ListFindingsParams{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	got := all[0]
	assert.Equal(t, models.StatusOpen, got.InferredStatus)
	assert.True(t, got.LastSeenAt.Equal(t0.Add(time.Hour)))
	assert.True(t, got.FirstSeenAt.Equal(t0))
	require.NotNil(t, got.ResolvedOfferingID)
	assert.Equal(t, off.ID, *got.ResolvedOfferingID)

	unresolved, err := s.ListUnresolvedFindings(ctx)
	require.NoError(t, err)
	assert.Empty(t, unresolved)
}

func TestResolveFindingFillsOnlyNullLinkage(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := time.Now().UTC()

	require.NoError(t, s.UpsertFinding(ctx, finding("nse", "ACME", "Acme Ltd", now)))
	require.NoError(t, s.UpsertFinding(ctx, finding("bse", "544321", "ACME LIMITED", now)))
	items, err := s.ListUnresolvedFindings(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)

	off := &models.Offering{
		CompanyName: "Acme Ltd",
		Symbol:      "ACME",
		NSESymbol:   strPtr("ACME"),
		Status:      models.StatusUpcoming,
		UpdatedAt:   now,
	}
	require.NoError(t, s.CreateOfferingForFinding(ctx, off, &models.OfferingDates{}, items[0].ID, now))

	link := repository.Linkage{NSESymbol: "OTHER", BSECode: "544321", BSESeqNo: "77"}
	require.NoError(t, s.ResolveFinding(ctx, items[1].ID, off.ID, link, now))

	stored, err := s.GetOffering(ctx, off.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "ACME", *stored.NSESymbol)
	require.NotNil(t, stored.BSECode)
	assert.Equal(t, "544321", *stored.BSECode)
	assert.Equal(t, "77", *stored.BSESeqNo)

	dates, err := s.GetOfferingDates(ctx, off.ID)
	require.NoError(t, err)
	assert.NotNil(t, dates)
}

func TestLinkageConflictRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := time.Now().UTC()

	require.NoError(t, s.UpsertFinding(ctx, finding("nse", "ACME", "Acme Ltd", now)))
	require.NoError(t, s.UpsertFinding(ctx, finding("nse", "ACME", "Acme Holdings", now)))
	items, err := s.ListUnresolvedFindings(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)

	first := &models.Offering{CompanyName: "Acme Ltd", Symbol: "ACME", NSESymbol: strPtr("ACME"), Status: models.StatusUpcoming, UpdatedAt: now}
	require.NoError(t, s.CreateOfferingForFinding(ctx, first, nil, items[0].ID, now))

	dup := &models.Offering{CompanyName: "Acme Holdings", Symbol: "ACME", NSESymbol: strPtr("ACME"), Status: models.StatusUpcoming, UpdatedAt: now}
	err = s.CreateOfferingForFinding(ctx, dup, nil, items[1].ID, now)
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrLinkageConflict), "got %v", err)

	all, err := s.ListAllOfferings(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	unresolved, err := s.ListUnresolvedFindings(ctx)
	require.NoError(t, err)
	assert.Len(t, unresolved, 1)
}

func TestListOfferingsForEnrichmentOrdering(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := time.Now().UTC()
	fresh := now.Add(-time.Minute)
	ten := decimal.NewFromInt(10)
	lot := 100
	complete := func(o *models.Offering) {
		o.FaceValue = &ten
		o.LotSize = &lot
		o.LeadManagers = datatypes.JSON(`["Axis"]`)
		id := uint64(1)
		o.RegistrarID = &id
	}

	mk := func(name, status string, updated time.Time, full bool, listing *time.Time) uint64 {
		require.NoError(t, s.UpsertFinding(ctx, finding("nse", name, name, now)))
		items, err := s.ListUnresolvedFindings(ctx)
		require.NoError(t, err)
		o := &models.Offering{CompanyName: name, Symbol: name, Status: status, UpdatedAt: updated}
		if full {
			complete(o)
		}
		require.NoError(t, s.CreateOfferingForFinding(ctx, o, &models.OfferingDates{ListingDate: listing}, items[0].ID, now))
		return o.ID
	}

	listing := time.Date(2025, 12, 22, 0, 0, 0, 0, time.UTC)
	closedOld := mk("CLOSEDOLD", models.StatusClosed, now.Add(-48*time.Hour), true, &listing)
	upcoming := mk("UPCOMING", models.StatusUpcoming, fresh, false, nil)
	openNew := mk("OPENNEW", models.StatusOpen, fresh, false, nil)
	openOld := mk("OPENOLD", models.StatusOpen, now.Add(-2*time.Hour), true, nil)
	mk("DONE", models.StatusListed, fresh, true, &listing)
	mk("GONE", models.StatusWithdrawn, now.Add(-48*time.Hour), false, nil)

	items, err := s.ListOfferingsForEnrichment(ctx, now.Add(-6*time.Hour), 10)
	require.NoError(t, err)
	ids := make([]uint64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	assert.Equal(t, []uint64{openOld, openNew, upcoming, closedOld}, ids)

	limited, err := s.ListOfferingsForEnrichment(ctx, now.Add(-6*time.Hour), 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestUpdateOfferingDatesNeverInserts(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	day := time.Date(2025, 12, 17, 0, 0, 0, 0, time.UTC)

	n, err := s.UpdateOfferingDates(ctx, 99, map[string]time.Time{models.ColAllotmentDate: day})
	require.NoError(t, err)
	assert.Zero(t, n)
	dates, err := s.GetOfferingDates(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, dates)

	require.NoError(t, s.EnsureOfferingDates(ctx, 99))
	require.NoError(t, s.EnsureOfferingDates(ctx, 99))
	n, err = s.UpdateOfferingDates(ctx, 99, map[string]time.Time{models.ColAllotmentDate: day})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	dates, err = s.GetOfferingDates(ctx, 99)
	require.NoError(t, err)
	require.NotNil(t, dates.AllotmentDate)
	assert.True(t, dates.AllotmentDate.Equal(day))
}

func TestUpsertRegistrarDeduplicates(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	a, err := s.UpsertRegistrar(ctx, "Link Intime India Pvt Ltd", "linkintimeindia")
	require.NoError(t, err)
	b, err := s.UpsertRegistrar(ctx, "LINK INTIME INDIA PRIVATE LIMITED", "linkintimeindia")
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, "Link Intime India Pvt Ltd", b.Name)

	none, err := s.UpsertRegistrar(ctx, "  ", "")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSyncStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := time.Now().UTC()
	msg := "nse unavailable"

	require.NoError(t, s.SaveSyncState(ctx, &models.SyncState{Scope: models.StageDiscovery, LastAttemptAt: &now, LastError: &msg}))
	require.NoError(t, s.SaveSyncState(ctx, &models.SyncState{Scope: models.StageDiscovery, LastAttemptAt: &now, LastSuccessAt: &now}))

	state, err := s.GetSyncState(ctx, models.StageDiscovery)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Nil(t, state.LastError)
	assert.NotNil(t, state.LastSuccessAt)

	states, err := s.ListSyncStates(ctx)
	require.NoError(t, err)
	assert.Len(t, states, 1)
}
