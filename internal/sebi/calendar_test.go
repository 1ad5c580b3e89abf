package sebi

import (
	"errors"
	"testing"
	"time"
)

func mustCalendar(t *testing.T, holidays ...string) *Calendar {
	t.Helper()
	c, err := NewCalendar(DefaultTimezone, holidays)
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}
	return c
}

func day(c *Calendar, raw string) time.Time {
	t, err := time.ParseInLocation(time.DateOnly, raw, c.Location())
	if err != nil {
		panic(err)
	}
	return t
}

func TestFallbackSkipsWeekendAndHolidayMonday(t *testing.T) {
	c := mustCalendar(t, "2025-12-22")
	got := c.Fallback(day(c, "2025-12-19"))

	checks := []struct {
		name string
		got  time.Time
		want string
	}{
		{"allotment", got.Allotment, "2025-12-23"},
		{"refund", got.Refund, "2025-12-24"},
		{"demat_credit", got.DematCredit, "2025-12-25"},
		{"listing", got.Listing, "2025-12-25"},
	}
	for _, tc := range checks {
		if s := tc.got.Format(time.DateOnly); s != tc.want {
			t.Fatalf("%s = %s, want %s", tc.name, s, tc.want)
		}
	}
}

func TestFallbackDefaultHolidays(t *testing.T) {
	c, err := DefaultCalendar()
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}
	// Good Friday 2026-04-03 follows the close date.
	got := c.Fallback(day(c, "2026-04-02"))
	if s := got.Allotment.Format(time.DateOnly); s != "2026-04-06" {
		t.Fatalf("allotment = %s", s)
	}
	if s := got.Listing.Format(time.DateOnly); s != "2026-04-08" {
		t.Fatalf("listing = %s", s)
	}
}

func TestFallbackFromWeekendClose(t *testing.T) {
	c := mustCalendar(t)
	got := c.Fallback(day(c, "2025-12-20"))
	if s := got.Allotment.Format(time.DateOnly); s != "2025-12-22" {
		t.Fatalf("allotment = %s", s)
	}
}

func TestIsBusinessDayUsesCalendarZone(t *testing.T) {
	c := mustCalendar(t)
	// 2025-12-19 20:00 UTC is already Saturday in IST.
	ts := time.Date(2025, 12, 19, 20, 0, 0, 0, time.UTC)
	if c.IsBusinessDay(ts) {
		t.Fatalf("expected saturday in IST to be a non-business day")
	}
	if !c.IsBusinessDay(time.Date(2025, 12, 19, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected friday to be a business day")
	}
}

func TestStorageRoundTrip(t *testing.T) {
	c := mustCalendar(t)
	d := day(c, "2025-12-17")
	stored := c.Storage(d)
	if stored.Location() != time.UTC || stored.Hour() != 0 {
		t.Fatalf("stored = %s", stored)
	}
	if !c.SameDay(c.FromStorage(stored), d) {
		t.Fatalf("round trip changed the day: %s", c.FromStorage(stored))
	}
}

func TestParseCloseDate(t *testing.T) {
	c := mustCalendar(t)
	for _, raw := range []string{"2025-12-19", "19-Dec-2025", "19/12/2025", "Dec 19, 2025"} {
		got, err := c.ParseCloseDate(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if s := got.Format(time.DateOnly); s != "2025-12-19" {
			t.Fatalf("parse %q = %s", raw, s)
		}
	}
	if _, err := c.ParseCloseDate("soon"); !errors.Is(err, ErrInvalidCloseDate) {
		t.Fatalf("expected ErrInvalidCloseDate, got %v", err)
	}
	if _, err := c.FallbackFor(""); !errors.Is(err, ErrInvalidCloseDate) {
		t.Fatalf("expected ErrInvalidCloseDate for empty input, got %v", err)
	}
}

func TestNewCalendarRejectsBadHoliday(t *testing.T) {
	if _, err := NewCalendar(DefaultTimezone, []string{"2025-13-01"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoadCalendarKeepsExchangeHolidays(t *testing.T) {
	c, err := LoadCalendar("Asia/Kolkata", []string{})
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}
	if c.IsBusinessDay(day(c, "2025-12-25")) {
		t.Fatalf("expected 2025-12-25 to be an exchange holiday")
	}
	if s := c.Fallback(day(c, "2025-12-22")).Listing.Format(time.DateOnly); s != "2025-12-26" {
		t.Fatalf("listing = %s, want 2025-12-26", s)
	}

	extended, err := LoadCalendar("", []string{"2025-12-26"})
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}
	if s := extended.Fallback(day(extended, "2025-12-22")).Listing.Format(time.DateOnly); s != "2025-12-29" {
		t.Fatalf("listing with configured holiday = %s, want 2025-12-29", s)
	}
}

func TestFromStorageKeepsDayInZonesBehindUTC(t *testing.T) {
	c, err := NewCalendar("America/New_York", nil)
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}
	stored := time.Date(2025, 12, 19, 0, 0, 0, 0, time.UTC)
	got := c.FromStorage(stored)
	if got.Format(time.DateOnly) != "2025-12-19" || got.Location() != c.Location() {
		t.Fatalf("from storage = %s", got)
	}
	if !c.IsBusinessDay(got) {
		t.Fatalf("expected friday 2025-12-19 to be a business day")
	}
	if !c.Storage(got).Equal(stored) {
		t.Fatalf("storage round trip = %s", c.Storage(got))
	}
}
