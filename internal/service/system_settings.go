package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"

	"ipotracker/internal/models"
	"ipotracker/internal/repository"
)

const (
	FeatureDiscovery        = "feature.discovery"
	FeatureReconciliation   = "feature.reconciliation"
	FeatureEnrichment       = "feature.enrichment"
	FeatureTimetableExtract = "feature.timetable_extract"
)

var ErrUnknownSwitch = errors.New("unknown feature switch")

// FeatureSwitch is one runtime switch with its effective state.
type FeatureSwitch struct {
	Key         string `json:"key"`
	Description string `json:"description"`
	Default     bool   `json:"default"`
	Enabled     bool   `json:"enabled"`
}

var knownSwitches = []FeatureSwitch{
	{Key: FeatureDiscovery, Description: "scheduled exchange discovery", Default: true},
	{Key: FeatureReconciliation, Description: "scheduled reconciliation after discovery", Default: true},
	{Key: FeatureEnrichment, Description: "scheduled enrichment batches", Default: true},
	{Key: FeatureTimetableExtract, Description: "prospectus timetable extraction during enrichment", Default: true},
}

func DefaultFeatureSwitches() map[string]bool {
	out := make(map[string]bool, len(knownSwitches))
	for _, sw := range knownSwitches {
		out[sw.Key] = sw.Default
	}
	return out
}

func lookupSwitch(key string) (FeatureSwitch, bool) {
	for _, sw := range knownSwitches {
		if sw.Key == key {
			return sw, true
		}
	}
	return FeatureSwitch{}, false
}

type SystemSettingsService struct {
	Repo repository.Repository
	Now  func() time.Time
}

// EnsureDefaultSwitches inserts every missing switch with its default value.
// Stored values are left alone.
func (s *SystemSettingsService) EnsureDefaultSwitches(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	for _, sw := range knownSwitches {
		existing, err := s.Repo.GetSystemSettingByKey(ctx, sw.Key)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if err := s.Repo.UpsertSystemSetting(ctx, s.record(sw, sw.Default)); err != nil {
			return fmt.Errorf("seed %s: %w", sw.Key, err)
		}
	}
	return nil
}

// Switches returns every known switch with its stored state, or its default
// when nothing readable is stored.
func (s *SystemSettingsService) Switches(ctx context.Context) []FeatureSwitch {
	out := make([]FeatureSwitch, 0, len(knownSwitches))
	for _, sw := range knownSwitches {
		sw.Enabled = s.IsEnabled(ctx, sw.Key, sw.Default)
		out = append(out, sw)
	}
	return out
}

func (s *SystemSettingsService) IsEnabled(ctx context.Context, key string, fallback bool) bool {
	if s == nil || s.Repo == nil {
		return fallback
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fallback
	}
	item, err := s.Repo.GetSystemSettingByKey(ctx, key)
	if err != nil || item == nil || len(item.Value) == 0 {
		return fallback
	}
	var enabled bool
	if err := json.Unmarshal(item.Value, &enabled); err != nil {
		return fallback
	}
	return enabled
}

// SetEnabled stores a new state for a known switch.
func (s *SystemSettingsService) SetEnabled(ctx context.Context, key string, enabled bool) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	sw, ok := lookupSwitch(strings.TrimSpace(key))
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSwitch, key)
	}
	return s.Repo.UpsertSystemSetting(ctx, s.record(sw, enabled))
}

func (s *SystemSettingsService) record(sw FeatureSwitch, enabled bool) *models.SystemSetting {
	raw, _ := json.Marshal(enabled)
	now := nowFunc(s.Now)
	return &models.SystemSetting{
		Key:         sw.Key,
		Value:       datatypes.JSON(raw),
		Description: sw.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
