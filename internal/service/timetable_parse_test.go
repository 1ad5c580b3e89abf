package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTimetable = `
The Issue is being made through the Book Building Process.

INDICATIVE TIMETABLE
Bid/Issue Opening Date             Friday, December 12, 2025
Bid/Issue Closing Date             Tuesday, December 16, 2025
Finalisation of Basis of Allotment with the Designated Stock Exchange
on or about                        Wednesday, December 17, 2025
Initiation of Refunds (if any, for Anchor Investors) / unblocking of funds
from ASBA Account on or about      Thursday, December 18, 2025
Credit of the Equity Shares to demat accounts of Allottees on or about
                                   Thursday, December 18, 2025
Commencement of trading of the Equity Shares on the Stock Exchanges on or
about                              Friday, December 19, 2025
`

func TestParseTimetable(t *testing.T) {
	got := ParseTimetable(sampleTimetable, 0)
	require.Len(t, got, 4)

	want := []struct {
		field string
		date  time.Time
	}{
		{FieldAllotmentFinalization, *day(2025, 12, 17)},
		{FieldRefundInitiation, *day(2025, 12, 18)},
		{FieldDematCredit, *day(2025, 12, 18)},
		{FieldListingCommencement, *day(2025, 12, 19)},
	}
	for _, w := range want {
		d, ok := got.Get(w.field)
		require.True(t, ok, w.field)
		assert.True(t, d.Equal(w.date), "%s = %s", w.field, d)
	}
}

func TestParseTimetableSingleLine(t *testing.T) {
	text := "Indicative Time Table: Finalisation of Basis of Allotment on or about Wednesday, December 17, 2025."
	got := ParseTimetable(text, 0)
	d, ok := got.Get(FieldAllotmentFinalization)
	require.True(t, ok)
	assert.Equal(t, "2025-12-17", d.Format(time.DateOnly))
}

func TestParseTimetableDayFirstDates(t *testing.T) {
	text := "INDICATIVE TIMETABLE finalization of the basis of allotment on or before 17th Sept, 2025 " +
		"commencement of trading 22-Sep-2025"
	got := ParseTimetable(text, 0)
	allotment, ok := got.Get(FieldAllotmentFinalization)
	require.True(t, ok)
	assert.Equal(t, "2025-09-17", allotment.Format(time.DateOnly))
	listing, ok := got.Get(FieldListingCommencement)
	require.True(t, ok)
	assert.Equal(t, "2025-09-22", listing.Format(time.DateOnly))
}

func TestParseTimetableWithoutHeading(t *testing.T) {
	text := "Finalisation of Basis of Allotment on or about Wednesday, December 17, 2025"
	assert.Empty(t, ParseTimetable(text, 0))
}

func TestParseTimetableOutsideWindow(t *testing.T) {
	text := "INDICATIVE TIMETABLE" + string(make([]byte, 300)) +
		"Finalisation of Basis of Allotment on or about Wednesday, December 17, 2025"
	assert.Empty(t, ParseTimetable(text, 100))
}
