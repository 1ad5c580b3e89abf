package models

import "time"

// OfferingDates holds the settlement timetable of an Offering. Every value is
// a civil date stored as UTC midnight.
type OfferingDates struct {
	OfferingID      uint64 `gorm:"primaryKey;autoIncrement:false"`
	IssueStart      *time.Time
	IssueEnd        *time.Time
	ListingDate     *time.Time `gorm:"index"`
	AllotmentDate   *time.Time
	RefundDate      *time.Time
	DematCreditDate *time.Time
	UpdatedAt       time.Time `gorm:"not null"`
}

func (OfferingDates) TableName() string {
	return "offering_dates"
}

// Column names shared by the enrichment, timetable and fallback writers.
const (
	ColIssueStart      = "issue_start"
	ColIssueEnd        = "issue_end"
	ColListingDate     = "listing_date"
	ColAllotmentDate   = "allotment_date"
	ColRefundDate      = "refund_date"
	ColDematCreditDate = "demat_credit_date"
)

// Get returns the stored value of a date column, nil when unknown or unset.
func (d *OfferingDates) Get(column string) *time.Time {
	if d == nil {
		return nil
	}
	switch column {
	case ColIssueStart:
		return d.IssueStart
	case ColIssueEnd:
		return d.IssueEnd
	case ColListingDate:
		return d.ListingDate
	case ColAllotmentDate:
		return d.AllotmentDate
	case ColRefundDate:
		return d.RefundDate
	case ColDematCreditDate:
		return d.DematCreditDate
	default:
		return nil
	}
}
