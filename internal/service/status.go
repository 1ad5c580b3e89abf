package service

import (
	"strings"
	"time"

	"ipotracker/internal/models"
	"ipotracker/internal/sebi"
)

// DeriveStatus computes an offering's lifecycle status from its stored dates
// against today in the calendar zone. hint is the upstream status string: it
// decides only when the dates say nothing, except for withdrawn, which no date
// can express.
func DeriveStatus(cal *sebi.Calendar, now time.Time, start, end, listing *time.Time, hint string) string {
	normalized := NormalizeStatusHint(hint)
	if normalized == models.StatusWithdrawn {
		return models.StatusWithdrawn
	}
	today := cal.Today(now)
	if listing != nil && !cal.FromStorage(*listing).After(today) {
		return models.StatusListed
	}
	if end != nil && cal.FromStorage(*end).Before(today) {
		return models.StatusClosed
	}
	if start != nil {
		if cal.FromStorage(*start).After(today) {
			return models.StatusUpcoming
		}
		return models.StatusOpen
	}
	if normalized != "" {
		return normalized
	}
	return models.StatusUpcoming
}

// NormalizeStatusHint maps the exchanges' free-form status strings onto the
// lifecycle vocabulary. Unknown strings map to "".
func NormalizeStatusHint(hint string) string {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "active", "open", "live", "l":
		return models.StatusOpen
	case "forthcoming", "upcoming", "f":
		return models.StatusUpcoming
	case "closed", "close", "c":
		return models.StatusClosed
	case "listed":
		return models.StatusListed
	case "withdrawn", "cancelled", "canceled", "withdrawal":
		return models.StatusWithdrawn
	}
	return ""
}
