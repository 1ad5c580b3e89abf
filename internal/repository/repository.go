package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"ipotracker/internal/models"
)

// ErrLinkageConflict is returned when a linkage value is already claimed by a
// different offering.
var ErrLinkageConflict = errors.New("linkage already claimed by another offering")

type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Staging
	UpsertFinding(ctx context.Context, item *models.DiscoveryFinding) error
	ListUnresolvedFindings(ctx context.Context) ([]models.DiscoveryFinding, error)
	ListFindings(ctx context.Context, params ListFindingsParams) ([]models.DiscoveryFinding, error)
	CountFindings(ctx context.Context, params ListFindingsParams) (int64, error)

	// Canonical offerings
	ListAllOfferings(ctx context.Context) ([]models.Offering, error)
	GetOffering(ctx context.Context, id uint64) (*models.Offering, error)
	ListOfferings(ctx context.Context, params ListOfferingsParams) ([]models.Offering, error)
	CountOfferings(ctx context.Context, params ListOfferingsParams) (int64, error)
	CreateOfferingForFinding(ctx context.Context, offering *models.Offering, dates *models.OfferingDates, findingID uint64, at time.Time) error
	ResolveFinding(ctx context.Context, findingID, offeringID uint64, link Linkage, at time.Time) error
	ListOfferingsForEnrichment(ctx context.Context, staleBefore time.Time, limit int) ([]models.Offering, error)
	UpdateOffering(ctx context.Context, id uint64, fields map[string]any) error

	// Settlement dates
	GetOfferingDates(ctx context.Context, offeringID uint64) (*models.OfferingDates, error)
	EnsureOfferingDates(ctx context.Context, offeringID uint64) error
	UpdateOfferingDates(ctx context.Context, offeringID uint64, values map[string]time.Time) (int64, error)

	// Registrars
	UpsertRegistrar(ctx context.Context, name, normalizedName string) (*models.Registrar, error)
	GetRegistrar(ctx context.Context, id uint64) (*models.Registrar, error)

	// Pipeline bookkeeping
	GetSyncState(ctx context.Context, scope string) (*models.SyncState, error)
	SaveSyncState(ctx context.Context, state *models.SyncState) error
	ListSyncStates(ctx context.Context) ([]models.SyncState, error)

	// Runtime switches
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
}

// Linkage carries the exchange identifiers a finding contributes to an
// offering. Empty values are ignored and stored values are never replaced.
type Linkage struct {
	NSESymbol string
	BSECode   string
	BSESeqNo  string
}

type ListFindingsParams struct {
	Limit      int
	Offset     int
	Source     *string
	Unresolved *bool
	OrderBy    string
	Asc        *bool
}

type ListOfferingsParams struct {
	Limit   int
	Offset  int
	Status  *string
	Segment *string
	Query   *string
	OrderBy string
	Asc     *bool
}
