package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ipotracker/internal/metrics"
	"ipotracker/internal/models"
	"ipotracker/internal/repository"
	"ipotracker/internal/sebi"
)

// DateFallbackService fills settlement dates from the regulatory T+N timeline
// when the exchanges have not reported a usable value.
type DateFallbackService struct {
	Repo     repository.Repository
	Calendar *sebi.Calendar
	Metrics  *metrics.Pipeline
	Logger   *zap.Logger
}

// ApplyIfMissing recomputes the fallback dates from closeDate and writes a
// column only when the stored value is null or falls on a non-business day,
// and the computed value differs. A stored business day is never replaced.
// It returns the columns it wrote.
func (s *DateFallbackService) ApplyIfMissing(ctx context.Context, offeringID uint64, closeDate time.Time) ([]string, error) {
	if s == nil || s.Repo == nil || s.Calendar == nil {
		return nil, nil
	}
	if closeDate.IsZero() {
		return nil, fmt.Errorf("%w: zero time", sebi.ErrInvalidCloseDate)
	}
	stored, err := s.Repo.GetOfferingDates(ctx, offeringID)
	if err != nil {
		return nil, fmt.Errorf("load dates of offering %d: %w", offeringID, err)
	}
	if stored == nil {
		return nil, nil
	}

	computed := s.Calendar.Fallback(s.Calendar.FromStorage(closeDate))
	proposals := []struct {
		column string
		value  time.Time
	}{
		{models.ColAllotmentDate, computed.Allotment},
		{models.ColRefundDate, computed.Refund},
		{models.ColDematCreditDate, computed.DematCredit},
		{models.ColListingDate, computed.Listing},
	}

	updates := map[string]time.Time{}
	applied := make([]string, 0, len(proposals))
	for _, p := range proposals {
		if !s.replaceable(stored.Get(p.column), p.value) {
			continue
		}
		updates[p.column] = s.Calendar.Storage(p.value)
		applied = append(applied, p.column)
	}
	if len(updates) == 0 {
		return nil, nil
	}
	if _, err := s.Repo.UpdateOfferingDates(ctx, offeringID, updates); err != nil {
		return nil, fmt.Errorf("write fallback dates of offering %d: %w", offeringID, err)
	}
	for _, column := range applied {
		s.Metrics.FallbackApplied(column)
	}
	nopLogger(s.Logger).Info("fallback dates applied",
		zap.Uint64("offering_id", offeringID),
		zap.Strings("fields", applied),
	)
	return applied, nil
}

// ApplyIfMissingRaw parses a textual close date first. Malformed input is
// returned to the caller as sebi.ErrInvalidCloseDate.
func (s *DateFallbackService) ApplyIfMissingRaw(ctx context.Context, offeringID uint64, rawCloseDate string) ([]string, error) {
	if s == nil || s.Calendar == nil {
		return nil, nil
	}
	closeDate, err := s.Calendar.ParseCloseDate(rawCloseDate)
	if err != nil {
		return nil, err
	}
	return s.ApplyIfMissing(ctx, offeringID, s.Calendar.Storage(closeDate))
}

func (s *DateFallbackService) replaceable(stored *time.Time, computed time.Time) bool {
	if stored == nil {
		return true
	}
	current := s.Calendar.FromStorage(*stored)
	if s.Calendar.IsBusinessDay(current) {
		return false
	}
	return !s.Calendar.SameDay(current, computed)
}
