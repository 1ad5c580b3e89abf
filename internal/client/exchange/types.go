// Package exchange holds the shared contract and HTTP plumbing of the
// per-exchange IPO clients.
package exchange

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Source string

const (
	SourceNSE Source = "nse"
	SourceBSE Source = "bse"
)

// Listing is one row of an exchange's IPO list in a common shape.
type Listing struct {
	Source      Source          `json:"source"`
	Symbol      string          `json:"symbol,omitempty"`
	SeqNo       string          `json:"seq_no,omitempty"`
	CompanyName string          `json:"company_name"`
	Series      string          `json:"series,omitempty"`
	Segment     string          `json:"segment,omitempty"`
	StatusHint  string          `json:"status_hint,omitempty"`
	IssueStart  *time.Time      `json:"issue_start,omitempty"`
	IssueEnd    *time.Time      `json:"issue_end,omitempty"`
	PriceBand   string          `json:"price_band,omitempty"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

type IssueSize struct {
	Total *decimal.Decimal `json:"total,omitempty"`
	Fresh *decimal.Decimal `json:"fresh,omitempty"`
	OFS   *decimal.Decimal `json:"ofs,omitempty"`
}

// Detail is the per-offering payload. Nil pointers mean the exchange did not
// report the field.
type Detail struct {
	Source          Source
	Symbol          string
	CompanyName     string
	FaceValue       *decimal.Decimal
	PriceBandLow    *decimal.Decimal
	PriceBandHigh   *decimal.Decimal
	LotSize         *int
	LeadManagers    []string
	IssueSize       IssueSize
	Registrar       string
	IssueStart      *time.Time
	IssueEnd        *time.Time
	AllotmentDate   *time.Time
	RefundDate      *time.Time
	DematCreditDate *time.Time
	ListingDate     *time.Time
	ProspectusURL   string
	Raw             json.RawMessage
}

// Client is implemented by each exchange. List and detail calls return nil
// with no error when the exchange kept refusing requests; callers treat that
// as "no data this cycle".
type Client interface {
	Source() Source
	ListCurrent(ctx context.Context) ([]Listing, error)
	ListUpcoming(ctx context.Context) ([]Listing, error)
	ListPast(ctx context.Context) ([]Listing, error)
	FetchDetail(ctx context.Context, symbolOrCode, seriesHint string) (*Detail, error)
}
