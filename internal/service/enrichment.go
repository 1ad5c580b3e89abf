package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"ipotracker/internal/client/exchange"
	"ipotracker/internal/metrics"
	"ipotracker/internal/models"
	"ipotracker/internal/repository"
	"ipotracker/internal/sebi"
)

// TimetableRunner fills settlement dates from a prospectus document.
type TimetableRunner interface {
	Extract(ctx context.Context, offeringID uint64, documentURL string) (Timetable, error)
}

// EnrichmentService refreshes offering details from the exchanges. At most
// one refresh per offering runs at a time: concurrent requests for the same
// offering wait for the running refresh and share its result.
type EnrichmentService struct {
	Repo      repository.Repository
	NSE       exchange.Client
	BSE       exchange.Client
	Timetable TimetableRunner
	Fallback  *DateFallbackService
	Calendar  *sebi.Calendar
	Flags     *SystemSettingsService
	Metrics   *metrics.Pipeline
	Logger    *zap.Logger
	Now       func() time.Time

	BatchSize int
	Freshness time.Duration
	// Pacing is the pause between offerings of one batch.
	Pacing time.Duration

	inflight singleflight.Group
}

type EnrichBatchResult struct {
	Selected  int `json:"selected"`
	Refreshed int `json:"refreshed"`
	Failed    int `json:"failed"`
}

// EnrichOne refreshes a single offering. A caller that finds a refresh of the
// same offering in flight joins it instead of fetching again. The refresh is
// detached from the caller's cancellation so a caller that gives up does not
// abort it for the others; each caller still returns on its own ctx.
func (s *EnrichmentService) EnrichOne(ctx context.Context, offeringID uint64) error {
	if s == nil || s.Repo == nil {
		return fmt.Errorf("enrichment service not configured")
	}
	key := strconv.FormatUint(offeringID, 10)
	detached := context.WithoutCancel(ctx)
	leader := false
	ch := s.inflight.DoChan(key, func() (v any, err error) {
		leader = true
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("refresh of offering %d panicked: %v", offeringID, r)
			}
		}()
		return nil, s.refresh(detached, offeringID)
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Shared && !leader {
			s.Metrics.Coalesced()
		}
		return res.Err
	}
}

// EnrichBatch refreshes the offerings most in need of it, one at a time with
// a fixed pause between them. Per-offering failures are logged and counted;
// only a failed selection aborts the run.
func (s *EnrichmentService) EnrichBatch(ctx context.Context) (EnrichBatchResult, error) {
	var result EnrichBatchResult
	if s == nil || s.Repo == nil {
		return result, fmt.Errorf("enrichment service not configured")
	}
	logger := nopLogger(s.Logger)
	startedAt := nowFunc(s.Now)

	freshness := s.Freshness
	if freshness <= 0 {
		freshness = 6 * time.Hour
	}
	batch := s.BatchSize
	if batch <= 0 {
		batch = 25
	}
	items, err := s.Repo.ListOfferingsForEnrichment(ctx, startedAt.Add(-freshness), batch)
	if err != nil {
		err = fmt.Errorf("select offerings for enrichment: %w", err)
		recordStage(ctx, s.Repo, logger, models.StageEnrichment, startedAt, result, err)
		return result, err
	}
	result.Selected = len(items)

	for i, item := range items {
		if i > 0 && s.Pacing > 0 {
			select {
			case <-ctx.Done():
				recordStage(ctx, s.Repo, logger, models.StageEnrichment, startedAt, result, ctx.Err())
				return result, ctx.Err()
			case <-time.After(s.Pacing):
			}
		}
		if err := ctx.Err(); err != nil {
			recordStage(ctx, s.Repo, logger, models.StageEnrichment, startedAt, result, err)
			return result, err
		}
		if err := s.EnrichOne(ctx, item.ID); err != nil {
			result.Failed++
			logger.Warn("offering enrichment failed",
				zap.Uint64("offering_id", item.ID),
				zap.String("symbol", item.Symbol),
				zap.Error(err),
			)
			continue
		}
		result.Refreshed++
	}

	s.Metrics.ObserveStage(models.StageEnrichment, time.Since(startedAt).Seconds())
	recordStage(ctx, s.Repo, logger, models.StageEnrichment, startedAt, result, nil)
	logger.Info("enrichment batch finished",
		zap.Int("selected", result.Selected),
		zap.Int("refreshed", result.Refreshed),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// refresh is the body of one coalesced refresh.
func (s *EnrichmentService) refresh(ctx context.Context, offeringID uint64) error {
	logger := nopLogger(s.Logger).With(zap.Uint64("offering_id", offeringID))
	offering, err := s.Repo.GetOffering(ctx, offeringID)
	if err != nil {
		s.Metrics.Enriched(metrics.OutcomeFailed)
		return fmt.Errorf("load offering %d: %w", offeringID, err)
	}
	if offering == nil {
		return fmt.Errorf("%w: %d", ErrOfferingNotFound, offeringID)
	}

	type fetch struct {
		source exchange.Source
		client exchange.Client
		key    string
		hint   string
	}
	var fetches []fetch
	if offering.NSESymbol != nil && !exchange.IsPlaceholder(*offering.NSESymbol) && s.NSE != nil {
		fetches = append(fetches, fetch{exchange.SourceNSE, s.NSE, *offering.NSESymbol, nseSeriesHint(offering.Segment)})
	}
	if offering.BSECode != nil && !exchange.IsPlaceholder(*offering.BSECode) && s.BSE != nil {
		seq := ""
		if offering.BSESeqNo != nil {
			seq = *offering.BSESeqNo
		}
		fetches = append(fetches, fetch{exchange.SourceBSE, s.BSE, *offering.BSECode, seq})
	}

	var errs []error
	failed := 0
	extracted := map[string]struct{}{}
	for _, f := range fetches {
		detail, err := f.client.FetchDetail(ctx, f.key, f.hint)
		if err != nil {
			s.Metrics.SourceFailure(string(f.source), "detail")
			logger.Warn("detail fetch failed", zap.String("source", string(f.source)), zap.String("symbol", f.key), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s detail %s: %w", f.source, f.key, err))
			failed++
			continue
		}
		if detail == nil {
			continue
		}
		if err := s.applyDetail(ctx, offering, detail); err != nil {
			logger.Warn("apply detail failed", zap.String("source", string(f.source)), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s apply: %w", f.source, err))
			failed++
			continue
		}
		url := strings.TrimSpace(detail.ProspectusURL)
		if url == "" {
			continue
		}
		if _, done := extracted[url]; done {
			continue
		}
		extracted[url] = struct{}{}
		s.runTimetable(ctx, logger, offeringID, url)
	}

	dates, err := s.Repo.GetOfferingDates(ctx, offeringID)
	if err != nil {
		errs = append(errs, fmt.Errorf("load dates: %w", err))
	}
	if dates != nil && dates.IssueEnd != nil && s.Fallback != nil {
		if _, err := s.Fallback.ApplyIfMissing(ctx, offeringID, *dates.IssueEnd); err != nil {
			logger.Warn("fallback dates failed", zap.Error(err))
		} else if dates, err = s.Repo.GetOfferingDates(ctx, offeringID); err != nil {
			errs = append(errs, fmt.Errorf("reload dates: %w", err))
		}
	}

	touch := map[string]any{"updated_at": nowFunc(s.Now)}
	if s.Calendar != nil && offering.Status != models.StatusWithdrawn {
		var start, end, listing *time.Time
		if dates != nil {
			start, end, listing = dates.IssueStart, dates.IssueEnd, dates.ListingDate
		}
		if status := DeriveStatus(s.Calendar, nowFunc(s.Now), start, end, listing, offering.Status); status != offering.Status {
			touch["status"] = status
		}
	}
	if err := s.Repo.UpdateOffering(ctx, offeringID, touch); err != nil {
		errs = append(errs, fmt.Errorf("touch offering: %w", err))
	}

	if len(fetches) > 0 && failed == len(fetches) {
		s.Metrics.Enriched(metrics.OutcomeFailed)
		return errors.Join(errs...)
	}
	if len(fetches) == 0 {
		s.Metrics.Enriched(metrics.OutcomeSkipped)
		return nil
	}
	s.Metrics.Enriched(metrics.OutcomeOK)
	return nil
}

// applyDetail overwrites every field the exchange reported and writes the
// exchange's dates to the dates row.
func (s *EnrichmentService) applyDetail(ctx context.Context, offering *models.Offering, d *exchange.Detail) error {
	fields := map[string]any{}
	if d.FaceValue != nil {
		fields["face_value"] = *d.FaceValue
		offering.FaceValue = d.FaceValue
	}
	if d.PriceBandLow != nil {
		fields["price_band_low"] = *d.PriceBandLow
		offering.PriceBandLow = d.PriceBandLow
	}
	if d.PriceBandHigh != nil {
		fields["price_band_high"] = *d.PriceBandHigh
		offering.PriceBandHigh = d.PriceBandHigh
	}
	if d.LotSize != nil {
		fields["lot_size"] = *d.LotSize
		offering.LotSize = d.LotSize
	}
	if len(d.LeadManagers) > 0 {
		raw := mustJSON(d.LeadManagers)
		fields["lead_managers"] = raw
		offering.LeadManagers = raw
	}
	if d.IssueSize.Total != nil {
		fields["issue_size_total"] = *d.IssueSize.Total
	}
	if d.IssueSize.Fresh != nil {
		fields["issue_size_fresh"] = *d.IssueSize.Fresh
	}
	if d.IssueSize.OFS != nil {
		fields["issue_size_ofs"] = *d.IssueSize.OFS
	}
	if url := strings.TrimSpace(d.ProspectusURL); url != "" {
		fields["prospectus_url"] = url
	}
	if name := strings.TrimSpace(d.Registrar); name != "" {
		registrar, err := s.Repo.UpsertRegistrar(ctx, name, NormalizeCompanyName(name))
		if err != nil {
			return fmt.Errorf("upsert registrar: %w", err)
		}
		if registrar != nil {
			fields["registrar_id"] = registrar.ID
			offering.RegistrarID = &registrar.ID
		}
	}
	if err := s.Repo.UpdateOffering(ctx, offering.ID, fields); err != nil {
		return err
	}

	reported := map[string]*time.Time{
		models.ColIssueStart:      d.IssueStart,
		models.ColIssueEnd:        d.IssueEnd,
		models.ColAllotmentDate:   d.AllotmentDate,
		models.ColRefundDate:      d.RefundDate,
		models.ColDematCreditDate: d.DematCreditDate,
		models.ColListingDate:     d.ListingDate,
	}
	values := map[string]time.Time{}
	for column, value := range reported {
		if value != nil {
			values[column] = *value
		}
	}
	if len(values) == 0 {
		return nil
	}
	if err := s.Repo.EnsureOfferingDates(ctx, offering.ID); err != nil {
		return fmt.Errorf("ensure dates row: %w", err)
	}
	if _, err := s.Repo.UpdateOfferingDates(ctx, offering.ID, values); err != nil {
		return fmt.Errorf("write reported dates: %w", err)
	}
	return nil
}

func (s *EnrichmentService) runTimetable(ctx context.Context, logger *zap.Logger, offeringID uint64, url string) {
	if s.Timetable == nil {
		return
	}
	if s.Flags != nil && !s.Flags.IsEnabled(ctx, FeatureTimetableExtract, true) {
		return
	}
	if _, err := s.Timetable.Extract(ctx, offeringID, url); err != nil {
		logger.Warn("timetable extraction failed", zap.String("url", url), zap.Error(err))
	}
}

func nseSeriesHint(segment string) string {
	if segment == models.SegmentSME {
		return "SME"
	}
	return "EQ"
}
