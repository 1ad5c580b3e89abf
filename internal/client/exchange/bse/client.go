// Package bse reads IPO listings and issue details from the Bombay Stock
// Exchange public issue API.
package bse

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
	pathList   = "/BseIndiaAPI/api/PublicIssueData/w"
	pathDetail = "/BseIndiaAPI/api/PublicIssueDetails/w"
)

// List kinds accepted by the PublicIssueData endpoint.
const (
	listCurrent  = "current"
	listUpcoming = "forthcoming"
	listPast     = "closed"
)

type Client struct {
	fetcher *exchange.Fetcher
	logger  *zap.Logger
}

func New(cfg exchange.FetcherConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := exchange.NewFetcher(cfg, logger.With(zap.String("source", string(exchange.SourceBSE))))
	if err != nil {
		return nil, fmt.Errorf("bse fetcher: %w", err)
	}
	return &Client{fetcher: f, logger: logger}, nil
}

func (c *Client) Source() exchange.Source {
	return exchange.SourceBSE
}

func (c *Client) ListCurrent(ctx context.Context) ([]exchange.Listing, error) {
	return c.list(ctx, listCurrent)
}

func (c *Client) ListUpcoming(ctx context.Context) ([]exchange.Listing, error) {
	return c.list(ctx, listUpcoming)
}

func (c *Client) ListPast(ctx context.Context) ([]exchange.Listing, error) {
	return c.list(ctx, listPast)
}

type listRow struct {
	ScripCode        exchange.FlexString `json:"Scrip_cd"`
	SeqNo            exchange.FlexString `json:"SeqNo"`
	ScripName        string              `json:"Scrip_Name"`
	StartDate        string              `json:"Start_Dt"`
	EndDate          string              `json:"End_Dt"`
	PriceBand        string              `json:"Price_Band"`
	ExchangePlatform string              `json:"Exchange_Platform"`
	Status           string              `json:"Status"`
}

func (c *Client) list(ctx context.Context, kind string) ([]exchange.Listing, error) {
	query := url.Values{"type": {"IPO"}, "status": {kind}}
	body, err := c.fetcher.Get(ctx, pathList, query)
	if err != nil {
		return nil, exchange.SwallowBlocked(err, c.logger, zap.String("source", "bse"), zap.String("list", kind))
	}
	rows, err := exchange.DecodeRows(body, "Table", "data")
	if err != nil {
		return nil, fmt.Errorf("bse %s list: %w", kind, err)
	}
	out := make([]exchange.Listing, 0, len(rows))
	for _, raw := range rows {
		var row listRow
		if err := json.Unmarshal(raw, &row); err != nil {
			c.logger.Warn("bse list row skipped", zap.String("list", kind), zap.Error(err))
			continue
		}
		name := strings.TrimSpace(row.ScripName)
		if name == "" {
			continue
		}
		out = append(out, exchange.Listing{
			Source:      exchange.SourceBSE,
			Symbol:      row.ScripCode.String(),
			SeqNo:       row.SeqNo.String(),
			CompanyName: name,
			Segment:     segmentForPlatform(row.ExchangePlatform),
			StatusHint:  strings.TrimSpace(row.Status),
			IssueStart:  exchange.ParseDate(row.StartDate),
			IssueEnd:    exchange.ParseDate(row.EndDate),
			PriceBand:   strings.TrimSpace(row.PriceBand),
			Raw:         raw,
		})
	}
	return out, nil
}

type detailRow struct {
	ScripName            string              `json:"Scrip_Name"`
	FaceValue            string              `json:"FaceValue"`
	PriceBand            string              `json:"PriceBand"`
	MarketLot            exchange.FlexString `json:"MarketLot"`
	Registrar            string              `json:"Registrar"`
	LeadManagers         string              `json:"LeadManagers"`
	StartDate            string              `json:"Start_Dt"`
	EndDate              string              `json:"End_Dt"`
	BasisOfAllotmentDate string              `json:"BasisOfAllotmentDate"`
	RefundDate           string              `json:"RefundDate"`
	DematCreditDate      string              `json:"DematCreditDate"`
	ListingDate          string              `json:"ListingDate"`
	IssueSize            string              `json:"IssueSize"`
	FreshIssueSize       string              `json:"FreshIssueSize"`
	OFSSize              string              `json:"OFSSize"`
	RHPLink              string              `json:"RHPLink"`
}

// FetchDetail returns the issue detail of a scrip code. seqNo distinguishes
// successive issues of the same scrip and may be empty.
func (c *Client) FetchDetail(ctx context.Context, code, seqNo string) (*exchange.Detail, error) {
	code = strings.TrimSpace(code)
	if exchange.IsPlaceholder(code) {
		return nil, nil
	}
	query := url.Values{"scripcode": {code}}
	if seqNo = strings.TrimSpace(seqNo); seqNo != "" {
		query.Set("seqno", seqNo)
	}
	body, err := c.fetcher.Get(ctx, pathDetail, query)
	if err != nil {
		return nil, exchange.SwallowBlocked(err, c.logger, zap.String("source", "bse"), zap.String("symbol", code))
	}
	rows, err := exchange.DecodeRows(body, "Table", "data")
	if err != nil {
		return nil, fmt.Errorf("bse detail %s: %w", code, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	var row detailRow
	if err := json.Unmarshal(rows[0], &row); err != nil {
		return nil, fmt.Errorf("bse detail %s: %w", code, err)
	}

	d := &exchange.Detail{
		Source:          exchange.SourceBSE,
		Symbol:          code,
		CompanyName:     strings.TrimSpace(row.ScripName),
		FaceValue:       exchange.ParseMoney(row.FaceValue),
		LotSize:         exchange.ParseInt(row.MarketLot.String()),
		LeadManagers:    exchange.SplitNames(row.LeadManagers),
		Registrar:       strings.TrimSpace(row.Registrar),
		IssueStart:      exchange.ParseDate(row.StartDate),
		IssueEnd:        exchange.ParseDate(row.EndDate),
		AllotmentDate:   exchange.ParseDate(row.BasisOfAllotmentDate),
		RefundDate:      exchange.ParseDate(row.RefundDate),
		DematCreditDate: exchange.ParseDate(row.DematCreditDate),
		ListingDate:     exchange.ParseDate(row.ListingDate),
		ProspectusURL:   strings.TrimSpace(row.RHPLink),
		IssueSize: exchange.IssueSize{
			Total: exchange.ParseMoney(row.IssueSize),
			Fresh: exchange.ParseMoney(row.FreshIssueSize),
			OFS:   exchange.ParseMoney(row.OFSSize),
		},
		Raw: body,
	}
	d.PriceBandLow, d.PriceBandHigh = exchange.ParsePriceBand(row.PriceBand)
	return d, nil
}

func segmentForPlatform(platform string) string {
	if strings.Contains(strings.ToUpper(platform), "SME") {
		return models.SegmentSME
	}
	return models.SegmentMainboard
}
