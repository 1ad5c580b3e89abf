package gormrepository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ipotracker/internal/models"
	"ipotracker/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- staging -----------------------------------------------------------------

// UpsertFinding inserts a new finding or refreshes the payload, status and
// last-seen time of an existing one. Resolution columns are never touched.
func (s *Store) UpsertFinding(ctx context.Context, item *models.DiscoveryFinding) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "source"}, {Name: "source_symbol"}, {Name: "company_name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"raw_payload",
			"inferred_status",
			"last_seen_at",
		}),
	}).Create(item).Error
}

func (s *Store) ListUnresolvedFindings(ctx context.Context) ([]models.DiscoveryFinding, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.DiscoveryFinding
	if err := s.db.WithContext(ctx).
		Where("resolved_offering_id IS NULL").
		Order("id asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) findingsQuery(ctx context.Context, params repository.ListFindingsParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.DiscoveryFinding{})
	if params.Source != nil && strings.TrimSpace(*params.Source) != "" {
		query = query.Where("source = ?", strings.ToLower(strings.TrimSpace(*params.Source)))
	}
	if params.Unresolved != nil {
		if *params.Unresolved {
			query = query.Where("resolved_offering_id IS NULL")
		} else {
			query = query.Where("resolved_offering_id IS NOT NULL")
		}
	}
	return query
}

func (s *Store) ListFindings(ctx context.Context, params repository.ListFindingsParams) ([]models.DiscoveryFinding, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyOrder(s.findingsQuery(ctx, params), params.OrderBy, params.Asc, "id")
	var items []models.DiscoveryFinding
	if err := query.Limit(normalizeLimit(params.Limit, 100)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountFindings(ctx context.Context, params repository.ListFindingsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.findingsQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// --- offerings ---------------------------------------------------------------

func (s *Store) ListAllOfferings(ctx context.Context) ([]models.Offering, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Offering
	if err := s.db.WithContext(ctx).Order("id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetOffering(ctx context.Context, id uint64) (*models.Offering, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Offering
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) offeringsQuery(ctx context.Context, params repository.ListOfferingsParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.Offering{})
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.Segment != nil && strings.TrimSpace(*params.Segment) != "" {
		query = query.Where("segment = ?", strings.TrimSpace(*params.Segment))
	}
	if params.Query != nil && strings.TrimSpace(*params.Query) != "" {
		pattern := "%" + strings.ToLower(strings.TrimSpace(*params.Query)) + "%"
		query = query.Where("LOWER(company_name) LIKE ? OR LOWER(symbol) LIKE ?", pattern, pattern)
	}
	return query
}

func (s *Store) ListOfferings(ctx context.Context, params repository.ListOfferingsParams) ([]models.Offering, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyOrder(s.offeringsQuery(ctx, params), params.OrderBy, params.Asc, "updated_at")
	var items []models.Offering
	if err := query.Limit(normalizeLimit(params.Limit, 100)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountOfferings(ctx context.Context, params repository.ListOfferingsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.offeringsQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// CreateOfferingForFinding inserts the offering, its dates row and the
// finding's resolution in one transaction.
func (s *Store) CreateOfferingForFinding(ctx context.Context, offering *models.Offering, dates *models.OfferingDates, findingID uint64, at time.Time) error {
	if s == nil || s.db == nil || offering == nil {
		return nil
	}
	err := s.InTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(offering).Error; err != nil {
			return err
		}
		row := models.OfferingDates{}
		if dates != nil {
			row = *dates
		}
		row.OfferingID = offering.ID
		if row.UpdatedAt.IsZero() {
			row.UpdatedAt = at
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if dates != nil {
			*dates = row
		}
		return resolveFindingTx(tx, findingID, offering.ID, at)
	})
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", repository.ErrLinkageConflict, err)
	}
	return err
}

// ResolveFinding merges link onto the offering with fill-only-if-null
// semantics and marks the finding resolved, in one transaction.
func (s *Store) ResolveFinding(ctx context.Context, findingID, offeringID uint64, link repository.Linkage, at time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.InTx(ctx, func(tx *gorm.DB) error {
		fills := []struct {
			column string
			value  string
		}{
			{"nse_symbol", link.NSESymbol},
			{"bse_code", link.BSECode},
			{"bse_seq_no", link.BSESeqNo},
		}
		for _, f := range fills {
			if strings.TrimSpace(f.value) == "" {
				continue
			}
			if err := tx.Model(&models.Offering{}).
				Where("id = ?", offeringID).
				Where(f.column + " IS NULL").
				Update(f.column, f.value).Error; err != nil {
				return err
			}
		}
		return resolveFindingTx(tx, findingID, offeringID, at)
	})
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", repository.ErrLinkageConflict, err)
	}
	return err
}

func resolveFindingTx(tx *gorm.DB, findingID, offeringID uint64, at time.Time) error {
	return tx.Model(&models.DiscoveryFinding{}).
		Where("id = ?", findingID).
		Where("resolved_offering_id IS NULL").
		Updates(map[string]any{
			"resolved_offering_id": offeringID,
			"resolved_at":          at,
		}).Error
}

// enrichmentPriority orders open issues first, then upcoming, then the rest.
var enrichmentPriority = fmt.Sprintf(
	"CASE offerings.status WHEN '%s' THEN 0 WHEN '%s' THEN 1 ELSE 2 END",
	models.StatusOpen, models.StatusUpcoming,
)

// ListOfferingsForEnrichment selects offerings that are stale, miss a
// required detail field or have no listing date yet. Withdrawn offerings are
// left alone.
func (s *Store) ListOfferingsForEnrichment(ctx context.Context, staleBefore time.Time, limit int) ([]models.Offering, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 25
	}
	var items []models.Offering
	if err := s.db.WithContext(ctx).
		Model(&models.Offering{}).
		Select("offerings.*").
		Joins("LEFT JOIN offering_dates ON offering_dates.offering_id = offerings.id").
		Where("offerings.status <> ?", models.StatusWithdrawn).
		Where(s.db.
			Where("offerings.updated_at < ?", staleBefore.UTC()).
			Or("offerings.face_value IS NULL").
			Or("offerings.lot_size IS NULL").
			Or("offerings.lead_managers IS NULL").
			Or("offerings.registrar_id IS NULL").
			Or("offering_dates.offering_id IS NULL").
			Or("offering_dates.listing_date IS NULL")).
		Order(enrichmentPriority).
		Order("offerings.updated_at asc").
		Order("offerings.id asc").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpdateOffering(ctx context.Context, id uint64, fields map[string]any) error {
	if s == nil || s.db == nil || len(fields) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Model(&models.Offering{}).Where("id = ?", id).Updates(fields).Error
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", repository.ErrLinkageConflict, err)
	}
	return err
}

// --- dates -------------------------------------------------------------------

func (s *Store) GetOfferingDates(ctx context.Context, offeringID uint64) (*models.OfferingDates, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.OfferingDates
	err := s.db.WithContext(ctx).First(&item, "offering_id = ?", offeringID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) EnsureOfferingDates(ctx context.Context, offeringID uint64) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "offering_id"}},
		DoNothing: true,
	}).Create(&models.OfferingDates{OfferingID: offeringID, UpdatedAt: time.Now().UTC()}).Error
}

// UpdateOfferingDates writes the given columns to an existing dates row and
// reports how many rows changed. It never inserts.
func (s *Store) UpdateOfferingDates(ctx context.Context, offeringID uint64, values map[string]time.Time) (int64, error) {
	if s == nil || s.db == nil || len(values) == 0 {
		return 0, nil
	}
	updates := make(map[string]any, len(values)+1)
	for column, value := range values {
		updates[column] = value
	}
	updates["updated_at"] = time.Now().UTC()
	res := s.db.WithContext(ctx).
		Model(&models.OfferingDates{}).
		Where("offering_id = ?", offeringID).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// --- registrars --------------------------------------------------------------

func (s *Store) UpsertRegistrar(ctx context.Context, name, normalizedName string) (*models.Registrar, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	normalizedName = strings.TrimSpace(normalizedName)
	if normalizedName == "" {
		return nil, nil
	}
	item := models.Registrar{
		Name:           strings.TrimSpace(name),
		NormalizedName: normalizedName,
		CreatedAt:      time.Now().UTC(),
	}
	db := s.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "normalized_name"}},
		DoNothing: true,
	}).Create(&item).Error; err != nil {
		return nil, err
	}
	var stored models.Registrar
	if err := db.Where("normalized_name = ?", normalizedName).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *Store) GetRegistrar(ctx context.Context, id uint64) (*models.Registrar, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Registrar
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// --- sync state --------------------------------------------------------------

func (s *Store) GetSyncState(ctx context.Context, scope string) (*models.SyncState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var state models.SyncState
	err := s.db.WithContext(ctx).First(&state, "scope = ?", scope).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *Store) SaveSyncState(ctx context.Context, state *models.SyncState) error {
	if s == nil || s.db == nil || state == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "scope"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"last_success_at",
			"last_attempt_at",
			"last_error",
			"stats_json",
		}),
	}).Create(state).Error
}

func (s *Store) ListSyncStates(ctx context.Context) ([]models.SyncState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var states []models.SyncState
	if err := s.db.WithContext(ctx).Order("scope asc").Find(&states).Error; err != nil {
		return nil, err
	}
	return states, nil
}

// --- system settings ---------------------------------------------------------

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Key = strings.TrimSpace(item.Key)
	if item.Key == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"description",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).Model(&models.SystemSetting{}).Where("key = ?", key).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

var _ repository.Repository = (*Store)(nil)
