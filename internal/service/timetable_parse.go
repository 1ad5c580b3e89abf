package service

import (
	"regexp"
	"strings"
	"time"

	"ipotracker/internal/models"
)

// TimetableDate is one settlement event found in a prospectus.
type TimetableDate struct {
	Field  string    `json:"field"`
	Column string    `json:"column"`
	Date   time.Time `json:"date"`
}

type Timetable []TimetableDate

func (t Timetable) Get(field string) (time.Time, bool) {
	for _, d := range t {
		if d.Field == field {
			return d.Date, true
		}
	}
	return time.Time{}, false
}

const (
	FieldAllotmentFinalization = "allotment_finalization_date"
	FieldRefundInitiation      = "refund_initiation_date"
	FieldDematCredit           = "demat_credit_date"
	FieldListingCommencement   = "listing_date"
)

const defaultTimetableWindow = 2500

const (
	monthPattern   = `(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`
	weekdayPattern = `(?:(?:mon|tue|tues|wed|wednes|thu|thur|thurs|fri|sat|satur|sun)(?:day)?\.?,?\s+)?`
	// 17-Dec-2025, 17 December 2025, 17th Dec, 2025
	dayMonthYear = `\d{1,2}(?:st|nd|rd|th)?[\s\-./]+` + monthPattern + `\.?[\s\-.,/]+\d{4}`
	// December 17, 2025
	monthDayYear = monthPattern + `\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}`
	datePattern  = `(` + dayMonthYear + `|` + monthDayYear + `)`
)

var timetableHeading = regexp.MustCompile(`(?i)indicative\s+time\s*table`)

// timetableField describes how to find one event inside the timetable window.
type timetableField struct {
	Field   string
	Column  string
	Pattern *regexp.Regexp
}

func eventPattern(keyword string) *regexp.Regexp {
	return regexp.MustCompile(`(?is)` + keyword + `.{0,160}?(?:on\s+or\s+(?:about|before)\s+)?` + weekdayPattern + datePattern)
}

// timetableFields are applied independently to the window, in order.
var timetableFields = []timetableField{
	{
		Field:   FieldAllotmentFinalization,
		Column:  models.ColAllotmentDate,
		Pattern: eventPattern(`finali[sz]ation\s+of\s+(?:the\s+)?basis\s+of\s+allotment`),
	},
	{
		Field:   FieldRefundInitiation,
		Column:  models.ColRefundDate,
		Pattern: eventPattern(`initiation\s+of\s+refunds?`),
	},
	{
		Field:   FieldDematCredit,
		Column:  models.ColDematCreditDate,
		Pattern: eventPattern(`credit\s+of\s+(?:the\s+)?(?:equity\s+)?shares\s+to\s+(?:the\s+)?demat`),
	},
	{
		Field:   FieldListingCommencement,
		Column:  models.ColListingDate,
		Pattern: eventPattern(`(?:commencement\s+of\s+trading|listing\s+and\s+trading|listing\s+date)`),
	},
}

// ParseTimetable finds the indicative timetable heading in text and extracts
// every known event from the window that follows it. Missing heading, missing
// events and unparseable dates all yield fewer entries, never an error.
func ParseTimetable(text string, windowSize int) Timetable {
	if windowSize <= 0 {
		windowSize = defaultTimetableWindow
	}
	loc := timetableHeading.FindStringIndex(text)
	if loc == nil {
		return nil
	}
	end := loc[0] + windowSize
	if end > len(text) {
		end = len(text)
	}
	window := strings.ToValidUTF8(text[loc[0]:end], " ")

	var out Timetable
	for _, f := range timetableFields {
		m := f.Pattern.FindStringSubmatch(window)
		if m == nil {
			continue
		}
		day, ok := parseTimetableDate(m[len(m)-1])
		if !ok {
			continue
		}
		out = append(out, TimetableDate{Field: f.Field, Column: f.Column, Date: day})
	}
	return out
}

var (
	ordinalSuffix   = regexp.MustCompile(`(?i)(\d)(st|nd|rd|th)\b`)
	dateSeparators  = strings.NewReplacer("-", " ", ".", " ", "/", " ", ",", " ")
	timetableLayout = []string{
		"2 January 2006",
		"2 Jan 2006",
		"January 2 2006",
		"Jan 2 2006",
	}
)

// parseTimetableDate normalizes a matched date string to UTC midnight of the
// civil day it names.
func parseTimetableDate(raw string) (time.Time, bool) {
	s := ordinalSuffix.ReplaceAllString(raw, "$1")
	s = dateSeparators.Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Replace(strings.ToLower(s), "sept ", "sep ", 1)
	for _, layout := range timetableLayout {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}
