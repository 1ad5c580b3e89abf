// Package sebi computes the regulatory T+N settlement dates of an IPO from its
// issue close date, counting only exchange business days in a fixed time zone.
package sebi

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"
)

const DefaultTimezone = "Asia/Kolkata"

var ErrInvalidCloseDate = errors.New("invalid issue close date")

// Calendar decides which civil days are business days. Weekends and listed
// holidays are not.
type Calendar struct {
	loc      *time.Location
	holidays map[string]struct{}
}

// NewCalendar builds a calendar for the given IANA zone and YYYY-MM-DD holidays.
// An empty zone falls back to Asia/Kolkata.
func NewCalendar(zone string, holidays []string) (*Calendar, error) {
	zone = strings.TrimSpace(zone)
	if zone == "" {
		zone = DefaultTimezone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load calendar zone %q: %w", zone, err)
	}
	c := &Calendar{loc: loc, holidays: make(map[string]struct{}, len(holidays))}
	for _, raw := range holidays {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		day, err := time.ParseInLocation(time.DateOnly, raw, loc)
		if err != nil {
			return nil, fmt.Errorf("parse holiday %q: %w", raw, err)
		}
		c.holidays[day.Format(time.DateOnly)] = struct{}{}
	}
	return c, nil
}

// LoadCalendar builds the calendar the service runs with: the built-in
// exchange holidays plus any extra dates supplied by configuration.
func LoadCalendar(zone string, extra []string) (*Calendar, error) {
	all := make([]string, 0, len(exchangeHolidays)+len(extra))
	all = append(all, exchangeHolidays...)
	all = append(all, extra...)
	return NewCalendar(zone, all)
}

// DefaultCalendar is LoadCalendar in IST.
func DefaultCalendar(extra ...string) (*Calendar, error) {
	return LoadCalendar(DefaultTimezone, extra)
}

func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Civil returns midnight of t's calendar day in the calendar zone.
func (c *Calendar) Civil(t time.Time) time.Time {
	in := t.In(c.loc)
	return time.Date(in.Year(), in.Month(), in.Day(), 0, 0, 0, 0, c.loc)
}

// Today is the current civil day in the calendar zone.
func (c *Calendar) Today(now time.Time) time.Time {
	return c.Civil(now)
}

func (c *Calendar) IsHoliday(t time.Time) bool {
	_, ok := c.holidays[c.Civil(t).Format(time.DateOnly)]
	return ok
}

func (c *Calendar) IsBusinessDay(t time.Time) bool {
	day := c.Civil(t)
	switch day.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !c.IsHoliday(day)
}

// AddBusinessDays walks forward from t one civil day at a time and returns the
// n-th business day after it. t itself never counts.
func (c *Calendar) AddBusinessDays(t time.Time, n int) time.Time {
	day := c.Civil(t)
	for n > 0 {
		day = day.AddDate(0, 0, 1)
		if c.IsBusinessDay(day) {
			n--
		}
	}
	return day
}

// SameDay compares the civil days of a and b in the calendar zone.
func (c *Calendar) SameDay(a, b time.Time) bool {
	return c.Civil(a).Equal(c.Civil(b))
}

// Holidays lists the configured holidays in ascending order.
func (c *Calendar) Holidays() []string {
	out := make([]string, 0, len(c.holidays))
	for day := range c.holidays {
		out = append(out, day)
	}
	sort.Strings(out)
	return out
}

// Storage converts a civil day into the UTC-midnight form kept in the store.
func (c *Calendar) Storage(t time.Time) time.Time {
	day := c.Civil(t)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
}

// FromStorage turns a stored UTC-midnight date back into that civil day in
// the calendar zone, whichever side of UTC the zone is on.
func (c *Calendar) FromStorage(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, c.loc)
}
