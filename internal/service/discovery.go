package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ipotracker/internal/client/exchange"
	"ipotracker/internal/metrics"
	"ipotracker/internal/models"
	"ipotracker/internal/repository"
	"ipotracker/internal/sebi"
)

// DiscoveryService stages the current and upcoming listings of every exchange
// client. It never touches canonical offerings.
type DiscoveryService struct {
	Repo     repository.Repository
	Sources  []exchange.Client
	Calendar *sebi.Calendar
	Metrics  *metrics.Pipeline
	Logger   *zap.Logger
	Now      func() time.Time
}

type DiscoveryResult struct {
	Listings     int               `json:"listings"`
	Staged       int               `json:"staged"`
	Failed       int               `json:"failed"`
	SourceErrors map[string]string `json:"source_errors,omitempty"`
}

// RunDiscovery is the trigger entry point: it stages findings and reports
// counters instead of rows.
func (s *DiscoveryService) RunDiscovery(ctx context.Context) (DiscoveryResult, error) {
	_, result, err := s.discover(ctx)
	return result, err
}

// Discover queries every source concurrently and upserts what they return.
// A failing source only drops its own listings; an error is returned when no
// source produced anything usable.
func (s *DiscoveryService) Discover(ctx context.Context) ([]models.DiscoveryFinding, error) {
	findings, _, err := s.discover(ctx)
	return findings, err
}

func (s *DiscoveryService) discover(ctx context.Context) ([]models.DiscoveryFinding, DiscoveryResult, error) {
	result := DiscoveryResult{SourceErrors: map[string]string{}}
	if s == nil || s.Repo == nil {
		return nil, result, fmt.Errorf("discovery service not configured")
	}
	if s.Calendar == nil {
		return nil, result, fmt.Errorf("discovery calendar is nil")
	}
	logger := nopLogger(s.Logger)
	startedAt := nowFunc(s.Now)

	perSource := make([][]exchange.Listing, len(s.Sources))
	var mu sync.Mutex
	var sourceErrs []error
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range s.Sources {
		if src == nil {
			continue
		}
		g.Go(func() error {
			listings, err := s.collect(gctx, src)
			perSource[i] = listings
			if err != nil {
				name := string(src.Source())
				logger.Warn("discovery source failed", zap.String("source", name), zap.Error(err))
				mu.Lock()
				result.SourceErrors[name] = err.Error()
				sourceErrs = append(sourceErrs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, result, err
	}

	findings := make([]models.DiscoveryFinding, 0)
	for _, listings := range perSource {
		for _, l := range listings {
			result.Listings++
			item := s.toFinding(l, startedAt)
			if err := s.Repo.UpsertFinding(ctx, &item); err != nil {
				result.Failed++
				s.Metrics.Finding(string(l.Source), metrics.OutcomeFailed)
				logger.Warn("stage finding failed",
					zap.String("source", item.Source),
					zap.String("symbol", item.SourceSymbol),
					zap.String("company", item.CompanyName),
					zap.Error(err),
				)
				continue
			}
			result.Staged++
			s.Metrics.Finding(string(l.Source), metrics.OutcomeOK)
			findings = append(findings, item)
		}
	}

	var runErr error
	if len(sourceErrs) > 0 && len(sourceErrs) == len(s.Sources) {
		runErr = errors.Join(sourceErrs...)
	}
	if len(result.SourceErrors) == 0 {
		result.SourceErrors = nil
	}
	s.Metrics.ObserveStage(models.StageDiscovery, time.Since(startedAt).Seconds())
	recordStage(ctx, s.Repo, logger, models.StageDiscovery, startedAt, result, runErr)
	logger.Info("discovery finished",
		zap.Int("listings", result.Listings),
		zap.Int("staged", result.Staged),
		zap.Int("failed", result.Failed),
		zap.Int("source_errors", len(sourceErrs)),
	)
	return findings, result, runErr
}

// collect reads the current and upcoming lists of one source. Duplicate rows
// across the two lists are dropped. A failure of one list still returns the
// other.
func (s *DiscoveryService) collect(ctx context.Context, src exchange.Client) ([]exchange.Listing, error) {
	source := string(src.Source())
	var errs []error
	seen := map[string]struct{}{}
	var out []exchange.Listing
	lists := []struct {
		name string
		fn   func(context.Context) ([]exchange.Listing, error)
	}{
		{"current", src.ListCurrent},
		{"upcoming", src.ListUpcoming},
	}
	for _, list := range lists {
		rows, err := list.fn(ctx)
		if err != nil {
			s.Metrics.SourceFailure(source, "list_"+list.name)
			errs = append(errs, fmt.Errorf("list %s: %w", list.name, err))
			continue
		}
		for _, row := range rows {
			key := stagingKey(row)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, row)
		}
	}
	if len(errs) == len(lists) {
		return nil, errors.Join(errs...)
	}
	if len(errs) > 0 {
		nopLogger(s.Logger).Warn("discovery list partially failed", zap.String("source", source), zap.Error(errors.Join(errs...)))
	}
	return out, nil
}

func (s *DiscoveryService) toFinding(l exchange.Listing, seenAt time.Time) models.DiscoveryFinding {
	symbol := strings.TrimSpace(l.Symbol)
	if exchange.IsPlaceholder(symbol) {
		symbol = ""
	}
	hint := l.StatusHint
	if l.Source == exchange.SourceBSE {
		hint = ""
	}
	return models.DiscoveryFinding{
		Source:         string(l.Source),
		SourceSymbol:   symbol,
		CompanyName:    strings.TrimSpace(l.CompanyName),
		InferredStatus: DeriveStatus(s.Calendar, seenAt, l.IssueStart, l.IssueEnd, nil, hint),
		RawPayload:     mustJSON(l),
		FirstSeenAt:    seenAt,
		LastSeenAt:     seenAt,
	}
}

func stagingKey(l exchange.Listing) string {
	symbol := strings.TrimSpace(l.Symbol)
	if exchange.IsPlaceholder(symbol) {
		symbol = ""
	}
	return string(l.Source) + "|" + symbol + "|" + strings.TrimSpace(l.CompanyName)
}
