package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ipotracker/internal/models"
	"ipotracker/internal/sebi"
)

func TestApplyIfMissingFillsOnlyUnusableDates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	offering := seedOffering(t, store)
	// Allotment stored on a Saturday, listing on a valid Wednesday.
	_, err := store.UpdateOfferingDates(ctx, offering.ID, map[string]time.Time{
		models.ColAllotmentDate: *day(2025, 12, 13),
		models.ColListingDate:   *day(2025, 12, 17),
	})
	require.NoError(t, err)

	svc := &DateFallbackService{Repo: store, Calendar: newTestCalendar(t)}
	applied, err := svc.ApplyIfMissing(ctx, offering.ID, *day(2025, 12, 11))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{models.ColAllotmentDate, models.ColRefundDate, models.ColDematCreditDate}, applied)

	dates, err := store.GetOfferingDates(ctx, offering.ID)
	require.NoError(t, err)
	assert.True(t, dates.AllotmentDate.Equal(*day(2025, 12, 12)))
	assert.True(t, dates.RefundDate.Equal(*day(2025, 12, 15)))
	assert.True(t, dates.DematCreditDate.Equal(*day(2025, 12, 16)))
	assert.True(t, dates.ListingDate.Equal(*day(2025, 12, 17)))

	// A second pass has nothing left to do.
	again, err := svc.ApplyIfMissing(ctx, offering.ID, *day(2025, 12, 11))
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestApplyIfMissingSkipsHolidays(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	offering := seedOffering(t, store)
	svc := &DateFallbackService{Repo: store, Calendar: newTestCalendar(t, "2025-12-15")}

	_, err := svc.ApplyIfMissing(ctx, offering.ID, *day(2025, 12, 11))
	require.NoError(t, err)

	dates, err := store.GetOfferingDates(ctx, offering.ID)
	require.NoError(t, err)
	assert.True(t, dates.AllotmentDate.Equal(*day(2025, 12, 12)))
	assert.True(t, dates.RefundDate.Equal(*day(2025, 12, 16)))
	assert.True(t, dates.ListingDate.Equal(*day(2025, 12, 17)))
}

func TestApplyIfMissingWithoutDatesRowWritesNothing(t *testing.T) {
	store := newTestStore(t)
	svc := &DateFallbackService{Repo: store, Calendar: newTestCalendar(t)}
	applied, err := svc.ApplyIfMissing(context.Background(), 999, *day(2025, 12, 11))
	require.NoError(t, err)
	assert.Empty(t, applied)

	dates, err := store.GetOfferingDates(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, dates)
}

func TestApplyIfMissingRawRejectsMalformedDate(t *testing.T) {
	store := newTestStore(t)
	svc := &DateFallbackService{Repo: store, Calendar: newTestCalendar(t)}
	_, err := svc.ApplyIfMissingRaw(context.Background(), 1, "next thursday")
	assert.ErrorIs(t, err, sebi.ErrInvalidCloseDate)
}

func TestApplyIfMissingRawUsesParsedCloseDay(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	offering := seedOffering(t, store)
	svc := &DateFallbackService{Repo: store, Calendar: newTestCalendar(t)}

	applied, err := svc.ApplyIfMissingRaw(ctx, offering.ID, "11-Dec-2025")
	require.NoError(t, err)
	assert.Len(t, applied, 4)

	dates, err := store.GetOfferingDates(ctx, offering.ID)
	require.NoError(t, err)
	assert.True(t, dates.AllotmentDate.Equal(*day(2025, 12, 12)))
	assert.True(t, dates.ListingDate.Equal(*day(2025, 12, 16)))
}

func TestApplyIfMissingInZoneBehindUTC(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	offering := seedOffering(t, store)
	cal, err := sebi.NewCalendar("America/New_York", nil)
	require.NoError(t, err)
	svc := &DateFallbackService{Repo: store, Calendar: cal}

	_, err = svc.ApplyIfMissing(ctx, offering.ID, *day(2025, 12, 11))
	require.NoError(t, err)

	dates, err := store.GetOfferingDates(ctx, offering.ID)
	require.NoError(t, err)
	assert.True(t, dates.AllotmentDate.Equal(*day(2025, 12, 12)))
	assert.True(t, dates.RefundDate.Equal(*day(2025, 12, 15)))
}
