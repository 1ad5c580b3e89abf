package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"ipotracker/internal/client/exchange"
	"ipotracker/internal/metrics"
	"ipotracker/internal/models"
	"ipotracker/internal/repository"
)

// ReconciliationService resolves staged findings to canonical offerings,
// creating an offering when nothing matches.
type ReconciliationService struct {
	Repo    repository.Repository
	Metrics *metrics.Pipeline
	Logger  *zap.Logger
	Now     func() time.Time
}

type ReconcileResult struct {
	Matched    int `json:"matched"`
	Created    int `json:"created"`
	Skipped    int `json:"skipped"`
	Unresolved int `json:"unresolved"`
}

// candidate is one offering of the run-local snapshot.
type candidate struct {
	offering   models.Offering
	normalized string
}

// RunReconciliation is the trigger entry point.
func (s *ReconciliationService) RunReconciliation(ctx context.Context) (ReconcileResult, error) {
	return s.Reconcile(ctx)
}

// Reconcile processes every unresolved finding in insertion order against a
// snapshot of the offerings loaded once per run. Offerings created during the
// run join the snapshot so later findings of the same run can match them.
func (s *ReconciliationService) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var result ReconcileResult
	if s == nil || s.Repo == nil {
		return result, fmt.Errorf("reconciliation service not configured")
	}
	logger := nopLogger(s.Logger)
	startedAt := nowFunc(s.Now)

	findings, err := s.Repo.ListUnresolvedFindings(ctx)
	if err != nil {
		err = fmt.Errorf("load unresolved findings: %w", err)
		recordStage(ctx, s.Repo, logger, models.StageReconciliation, startedAt, result, err)
		return result, err
	}
	offerings, err := s.Repo.ListAllOfferings(ctx)
	if err != nil {
		err = fmt.Errorf("load offerings: %w", err)
		recordStage(ctx, s.Repo, logger, models.StageReconciliation, startedAt, result, err)
		return result, err
	}
	snapshot := make([]*candidate, 0, len(offerings)+len(findings))
	for _, o := range offerings {
		snapshot = append(snapshot, &candidate{offering: o, normalized: NormalizeCompanyName(o.CompanyName)})
	}

	for i := range findings {
		if err := ctx.Err(); err != nil {
			recordStage(ctx, s.Repo, logger, models.StageReconciliation, startedAt, result, err)
			return result, err
		}
		f := &findings[i]
		outcome, err := s.reconcileOne(ctx, f, &snapshot)
		switch {
		case err != nil:
			result.Skipped++
			s.Metrics.Reconciled(metrics.OutcomeSkipped)
			fields := []zap.Field{
				zap.Uint64("finding_id", f.ID),
				zap.String("source", f.Source),
				zap.String("symbol", f.SourceSymbol),
				zap.Error(err),
			}
			if errors.Is(err, repository.ErrLinkageConflict) {
				logger.Warn("finding skipped on linkage conflict", fields...)
			} else {
				logger.Warn("finding reconciliation failed", fields...)
			}
			continue
		case outcome == metrics.OutcomeCreated:
			result.Created++
		case outcome == metrics.OutcomeUnresolved:
			result.Unresolved++
		default:
			result.Matched++
		}
		s.Metrics.Reconciled(outcome)
	}

	s.Metrics.ObserveStage(models.StageReconciliation, time.Since(startedAt).Seconds())
	recordStage(ctx, s.Repo, logger, models.StageReconciliation, startedAt, result, nil)
	logger.Info("reconciliation finished",
		zap.Int("findings", len(findings)),
		zap.Int("matched", result.Matched),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
		zap.Int("unresolved", result.Unresolved),
	)
	return result, nil
}

func (s *ReconciliationService) reconcileOne(ctx context.Context, f *models.DiscoveryFinding, snapshot *[]*candidate) (string, error) {
	var payload exchange.Listing
	if len(f.RawPayload) > 0 {
		if err := json.Unmarshal(f.RawPayload, &payload); err != nil {
			nopLogger(s.Logger).Debug("finding payload unreadable", zap.Uint64("finding_id", f.ID), zap.Error(err))
		}
	}
	link := linkageFor(f, payload)
	normalized := NormalizeCompanyName(f.CompanyName)
	now := nowFunc(s.Now)

	if match, outcome := findCandidate(*snapshot, link, normalized); match != nil {
		if err := s.Repo.ResolveFinding(ctx, f.ID, match.offering.ID, link, now); err != nil {
			return "", err
		}
		fillLinkage(&match.offering, link)
		return outcome, nil
	}

	if normalized == "" {
		return metrics.OutcomeUnresolved, nil
	}

	offering := newOfferingFromFinding(f, payload, link, normalized, now)
	dates := &models.OfferingDates{
		IssueStart: payload.IssueStart,
		IssueEnd:   payload.IssueEnd,
		UpdatedAt:  now,
	}
	if err := s.Repo.CreateOfferingForFinding(ctx, offering, dates, f.ID, now); err != nil {
		return "", err
	}
	*snapshot = append(*snapshot, &candidate{offering: *offering, normalized: normalized})
	return metrics.OutcomeCreated, nil
}

// findCandidate applies the matching rules in order: exact exchange linkage,
// then the first snapshot entry whose normalized name equals or contains (or
// is contained in) the finding's.
func findCandidate(snapshot []*candidate, link repository.Linkage, normalized string) (*candidate, string) {
	if link.NSESymbol != "" || link.BSECode != "" {
		for _, c := range snapshot {
			if link.NSESymbol != "" && c.offering.NSESymbol != nil && *c.offering.NSESymbol == link.NSESymbol {
				return c, metrics.OutcomeMatchedExact
			}
			if link.BSECode != "" && c.offering.BSECode != nil && *c.offering.BSECode == link.BSECode {
				return c, metrics.OutcomeMatchedExact
			}
		}
	}
	for _, c := range snapshot {
		if namesMatch(normalized, c.normalized) {
			return c, metrics.OutcomeMatchedName
		}
	}
	return nil, ""
}

func linkageFor(f *models.DiscoveryFinding, payload exchange.Listing) repository.Linkage {
	symbol := strings.TrimSpace(f.SourceSymbol)
	if exchange.IsPlaceholder(symbol) {
		symbol = ""
	}
	switch exchange.Source(f.Source) {
	case exchange.SourceNSE:
		return repository.Linkage{NSESymbol: strings.ToUpper(symbol)}
	case exchange.SourceBSE:
		link := repository.Linkage{BSECode: symbol}
		if symbol != "" && !exchange.IsPlaceholder(payload.SeqNo) {
			link.BSESeqNo = strings.TrimSpace(payload.SeqNo)
		}
		return link
	}
	return repository.Linkage{}
}

func fillLinkage(o *models.Offering, link repository.Linkage) {
	if o.NSESymbol == nil && link.NSESymbol != "" {
		v := link.NSESymbol
		o.NSESymbol = &v
	}
	if o.BSECode == nil && link.BSECode != "" {
		v := link.BSECode
		o.BSECode = &v
	}
	if o.BSESeqNo == nil && link.BSESeqNo != "" {
		v := link.BSESeqNo
		o.BSESeqNo = &v
	}
}

func newOfferingFromFinding(f *models.DiscoveryFinding, payload exchange.Listing, link repository.Linkage, normalized string, now time.Time) *models.Offering {
	symbol := link.NSESymbol
	if symbol == "" {
		symbol = generatedSymbol(normalized)
	}
	segment := payload.Segment
	if segment != models.SegmentSME {
		segment = models.SegmentMainboard
	}
	status := f.InferredStatus
	if status == "" {
		status = models.StatusUpcoming
	}
	o := &models.Offering{
		CompanyName: strings.TrimSpace(f.CompanyName),
		Symbol:      symbol,
		Segment:     segment,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	fillLinkage(o, link)
	if low, high := exchange.ParsePriceBand(payload.PriceBand); low != nil {
		o.PriceBandLow, o.PriceBandHigh = low, high
	}
	return o
}
