// Package nse reads IPO listings and issue details from the National Stock
// Exchange JSON endpoints.
package nse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"ipotracker/internal/client/exchange"
	"ipotracker/internal/models"
)

const (
	pathCurrent  = "/api/ipo-current-issue"
	pathUpcoming = "/api/all-upcoming-issues"
	pathPast     = "/api/public-past-issues"
	pathDetail   = "/api/ipo-detail"
)

type Client struct {
	fetcher *exchange.Fetcher
	logger  *zap.Logger
}

func New(cfg exchange.FetcherConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WarmupURL == "" {
		cfg.WarmupURL = strings.TrimRight(cfg.BaseURL, "/") + "/market-data/all-upcoming-issues-ipo"
	}
	f, err := exchange.NewFetcher(cfg, logger.With(zap.String("source", string(exchange.SourceNSE))))
	if err != nil {
		return nil, fmt.Errorf("nse fetcher: %w", err)
	}
	return &Client{fetcher: f, logger: logger}, nil
}

func (c *Client) Source() exchange.Source {
	return exchange.SourceNSE
}

func (c *Client) ListCurrent(ctx context.Context) ([]exchange.Listing, error) {
	return c.list(ctx, "current", pathCurrent, nil, "")
}

func (c *Client) ListUpcoming(ctx context.Context) ([]exchange.Listing, error) {
	return c.list(ctx, "upcoming", pathUpcoming, url.Values{"category": {"ipo"}}, "")
}

func (c *Client) ListPast(ctx context.Context) ([]exchange.Listing, error) {
	return c.list(ctx, "past", pathPast, nil, "listed")
}

type listRow struct {
	Symbol         string `json:"symbol"`
	CompanyName    string `json:"companyName"`
	Series         string `json:"series"`
	SecurityType   string `json:"securityType"`
	Status         string `json:"status"`
	IssueStartDate string `json:"issueStartDate"`
	IssueEndDate   string `json:"issueEndDate"`
	IPOStartDate   string `json:"ipoStartDate"`
	IPOEndDate     string `json:"ipoEndDate"`
	IssuePrice     string `json:"issuePrice"`
	PriceRange     string `json:"priceRange"`
}

func (c *Client) list(ctx context.Context, kind, path string, query url.Values, defaultHint string) ([]exchange.Listing, error) {
	body, err := c.fetcher.Get(ctx, path, query)
	if err != nil {
		return nil, exchange.SwallowBlocked(err, c.logger, zap.String("source", "nse"), zap.String("list", kind))
	}
	rows, err := exchange.DecodeRows(body, "data", "Table")
	if err != nil {
		return nil, fmt.Errorf("nse %s list: %w", kind, err)
	}
	out := make([]exchange.Listing, 0, len(rows))
	for _, raw := range rows {
		var row listRow
		if err := json.Unmarshal(raw, &row); err != nil {
			c.logger.Warn("nse list row skipped", zap.String("list", kind), zap.Error(err))
			continue
		}
		name := strings.TrimSpace(row.CompanyName)
		if name == "" {
			continue
		}
		hint := strings.TrimSpace(row.Status)
		if hint == "" {
			hint = defaultHint
		}
		series := strings.ToUpper(strings.TrimSpace(firstNonEmpty(row.Series, row.SecurityType)))
		out = append(out, exchange.Listing{
			Source:      exchange.SourceNSE,
			Symbol:      strings.ToUpper(strings.TrimSpace(row.Symbol)),
			CompanyName: name,
			Series:      series,
			Segment:     segmentForSeries(series),
			StatusHint:  hint,
			IssueStart:  exchange.ParseDate(firstNonEmpty(row.IssueStartDate, row.IPOStartDate)),
			IssueEnd:    exchange.ParseDate(firstNonEmpty(row.IssueEndDate, row.IPOEndDate)),
			PriceBand:   strings.TrimSpace(firstNonEmpty(row.IssuePrice, row.PriceRange)),
			Raw:         raw,
		})
	}
	return out, nil
}

type detailPayload struct {
	IssueInfo struct {
		DataList []titleValue `json:"dataList"`
	} `json:"issueInfo"`
	RHPLink     string `json:"rhpLink"`
	CompanyName string `json:"companyName"`
}

type titleValue struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// FetchDetail returns the issue information of symbol. seriesHint is "EQ"
// for mainboard issues and "SME" for the emerge platform.
func (c *Client) FetchDetail(ctx context.Context, symbol, seriesHint string) (*exchange.Detail, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if exchange.IsPlaceholder(symbol) {
		return nil, nil
	}
	if seriesHint == "" {
		seriesHint = "EQ"
	}
	body, err := c.fetcher.Get(ctx, pathDetail, url.Values{"symbol": {symbol}, "series": {seriesHint}})
	if err != nil {
		return nil, exchange.SwallowBlocked(err, c.logger, zap.String("source", "nse"), zap.String("symbol", symbol))
	}
	var payload detailPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("nse detail %s: %w", symbol, err)
	}
	if len(payload.IssueInfo.DataList) == 0 {
		return nil, nil
	}

	d := &exchange.Detail{
		Source:        exchange.SourceNSE,
		Symbol:        symbol,
		CompanyName:   strings.TrimSpace(payload.CompanyName),
		ProspectusURL: strings.TrimSpace(payload.RHPLink),
		Raw:           body,
	}
	for _, item := range payload.IssueInfo.DataList {
		value := strings.TrimSpace(item.Value)
		if value == "" || value == "-" {
			continue
		}
		applyField(d, normalizeTitle(item.Title), value)
	}
	return d, nil
}

// applyField maps a normalized dataList title onto the detail field it fills.
// Unknown titles are ignored.
func applyField(d *exchange.Detail, title, v string) {
	switch title {
	case "company name":
		d.CompanyName = v
	case "face value":
		d.FaceValue = exchange.ParseMoney(v)
	case "price range", "issue price", "price band":
		d.PriceBandLow, d.PriceBandHigh = exchange.ParsePriceBand(v)
	case "bid lot", "lot size", "market lot":
		d.LotSize = exchange.ParseInt(v)
	case "minimum bid quantity":
		if d.LotSize == nil {
			d.LotSize = exchange.ParseInt(v)
		}
	case "book running lead managers", "book running lead manager", "lead managers":
		d.LeadManagers = exchange.SplitNames(v)
	case "name of the registrar", "registrar", "registrar to the issue":
		d.Registrar = v
	case "issue start date", "bid/offer opens on":
		d.IssueStart = exchange.ParseDate(v)
	case "issue end date", "issue close date", "bid/offer closes on":
		d.IssueEnd = exchange.ParseDate(v)
	case "issue period":
		setIssuePeriod(d, v)
	case "tentative date of finalisation of basis of allotment", "basis of allotment date":
		d.AllotmentDate = exchange.ParseDate(v)
	case "tentative date of initiation of refunds", "refund date":
		d.RefundDate = exchange.ParseDate(v)
	case "tentative date of credit of shares to demat account", "credit of shares to demat account":
		d.DematCreditDate = exchange.ParseDate(v)
	case "tentative listing date", "listing date":
		d.ListingDate = exchange.ParseDate(v)
	case "total issue size", "issue size":
		d.IssueSize.Total = exchange.ParseMoney(v)
	case "fresh issue size":
		d.IssueSize.Fresh = exchange.ParseMoney(v)
	case "offer for sale size":
		d.IssueSize.OFS = exchange.ParseMoney(v)
	case "rhp", "red herring prospectus":
		d.ProspectusURL = v
	}
}

// setIssuePeriod handles "15-Dec-2025 to 17-Dec-2025".
func setIssuePeriod(d *exchange.Detail, v string) {
	parts := strings.SplitN(strings.ToLower(v), " to ", 2)
	if len(parts) != 2 {
		return
	}
	if start := exchange.ParseDate(parts[0]); start != nil {
		d.IssueStart = start
	}
	if end := exchange.ParseDate(parts[1]); end != nil {
		d.IssueEnd = end
	}
}

func normalizeTitle(title string) string {
	title = strings.ToLower(strings.TrimSpace(title))
	title = strings.TrimRight(title, ":*")
	return strings.Join(strings.Fields(title), " ")
}

func segmentForSeries(series string) string {
	switch series {
	case "SME", "ST", "SM":
		return models.SegmentSME
	}
	return models.SegmentMainboard
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
