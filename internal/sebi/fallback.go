package sebi

import (
	"fmt"
	"strings"
	"time"
)

// Offsets in business days after the issue close date (SEBI T+3 timeline).
const (
	AllotmentOffset   = 1
	RefundOffset      = 2
	DematCreditOffset = 3
	ListingOffset     = 3
)

type Dates struct {
	Allotment   time.Time
	Refund      time.Time
	DematCredit time.Time
	Listing     time.Time
}

// Fallback computes the regulatory dates for an issue closing on closeDate.
func (c *Calendar) Fallback(closeDate time.Time) Dates {
	return Dates{
		Allotment:   c.AddBusinessDays(closeDate, AllotmentOffset),
		Refund:      c.AddBusinessDays(closeDate, RefundOffset),
		DematCredit: c.AddBusinessDays(closeDate, DematCreditOffset),
		Listing:     c.AddBusinessDays(closeDate, ListingOffset),
	}
}

var closeDateLayouts = []string{
	time.DateOnly,
	"02-01-2006",
	"02/01/2006",
	"02-Jan-2006",
	"2-Jan-2006",
	"02 Jan 2006",
	"Jan 2, 2006",
	time.RFC3339,
}

// ParseCloseDate parses a close date in the calendar zone. Anything that is not
// a recognizable date is a caller error.
func (c *Calendar) ParseCloseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidCloseDate)
	}
	for _, layout := range closeDateLayouts {
		if t, err := time.ParseInLocation(layout, raw, c.loc); err == nil {
			return c.Civil(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidCloseDate, raw)
}

// FallbackFor parses raw and returns its fallback dates.
func (c *Calendar) FallbackFor(raw string) (Dates, error) {
	closeDate, err := c.ParseCloseDate(raw)
	if err != nil {
		return Dates{}, err
	}
	return c.Fallback(closeDate), nil
}
