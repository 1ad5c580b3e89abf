package exchange

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var dateLayouts = []string{
	"02-Jan-2006",
	"2-Jan-2006",
	"02-Jan-06",
	"02 Jan 2006",
	"2 Jan 2006",
	"02 January 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 02, 2006",
	"02/01/2006",
	"02-01-2006",
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"02-Jan-2006 15:04:05",
	"02 Jan 2006 15:04",
	time.RFC3339,
}

// ParseDate reads an exchange date and returns the civil day it names as UTC
// midnight. Empty or unrecognized input yields nil.
func ParseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "-" || strings.EqualFold(raw, "NA") {
		return nil
	}
	raw = strings.Join(strings.Fields(raw), " ")
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return &day
	}
	return nil
}

var numberPattern = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

// ParseMoney takes the first number in raw ("Rs. 1,234.50 per share").
func ParseMoney(raw string) *decimal.Decimal {
	m := numberPattern.FindString(raw)
	if m == "" {
		return nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(m, ",", ""))
	if err != nil {
		return nil
	}
	return &d
}

// ParsePriceBand splits "Rs.95 to Rs.100" or "95-100". A single number is
// both ends of the band.
func ParsePriceBand(raw string) (low, high *decimal.Decimal) {
	matches := numberPattern.FindAllString(raw, -1)
	values := make([]decimal.Decimal, 0, 2)
	for _, m := range matches {
		d, err := decimal.NewFromString(strings.ReplaceAll(m, ",", ""))
		if err != nil {
			continue
		}
		values = append(values, d)
		if len(values) == 2 {
			break
		}
	}
	switch len(values) {
	case 0:
		return nil, nil
	case 1:
		v := values[0]
		return &v, &v
	}
	lo, hi := values[0], values[1]
	if lo.GreaterThan(hi) {
		lo, hi = hi, lo
	}
	return &lo, &hi
}

// ParseInt takes the first whole number in raw.
func ParseInt(raw string) *int {
	m := numberPattern.FindString(raw)
	if m == "" {
		return nil
	}
	if i := strings.IndexByte(m, '.'); i >= 0 {
		m = m[:i]
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
	if err != nil {
		return nil
	}
	return &n
}

// SplitNames turns a delimited list of names into a deduplicated slice.
func SplitNames(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '|' || r == '\n' || r == '\r'
	})
	out := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		name := strings.Join(strings.Fields(f), " ")
		if name == "" || name == "-" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// IsPlaceholder reports identifiers the exchanges print for "not assigned yet".
func IsPlaceholder(v string) bool {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "", "-", "NA", "N/A", "TBA":
		return true
	}
	return false
}
