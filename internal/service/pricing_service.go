package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/academy-enrollment-api/pkg/errors"
)

type catalogReader interface {
	GetOffering(ctx context.Context, tx *sqlx.Tx, offeringType models.OfferingType, id string) (*models.Offering, error)
	GetItemBasePrice(ctx context.Context, tx *sqlx.Tx, offeringType models.OfferingType, itemID string) (*models.Money, error)
}

// PricingService resolves the effective price of an offering.
type PricingService struct {
	catalog catalogReader
	logger  *zap.Logger
}

// NewPricingService constructs PricingService.
func NewPricingService(catalog catalogReader, logger *zap.Logger) *PricingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PricingService{catalog: catalog, logger: logger}
}

// Resolve returns the offering's price override when set, otherwise the base
// price of its course or package. A missing base price resolves to zero.
func (s *PricingService) Resolve(ctx context.Context, tx *sqlx.Tx, offeringType models.OfferingType, offeringID string) (models.Money, error) {
	if !offeringType.Valid() {
		return 0, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("unknown offering type %q", offeringType))
	}
	offering, err := s.catalog.GetOffering(ctx, tx, offeringType, offeringID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s offering %s not found", offeringType, offeringID))
		}
		return 0, appErrors.Wrap(err, appErrors.ErrDependencyUnavailable.Code, appErrors.ErrDependencyUnavailable.Status, "failed to load offering")
	}
	if offering.PriceOverride != nil {
		return *offering.PriceOverride, nil
	}

	base, err := s.catalog.GetItemBasePrice(ctx, tx, offeringType, offering.ItemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s %s not found", offeringType, offering.ItemID))
		}
		return 0, appErrors.Wrap(err, appErrors.ErrDependencyUnavailable.Code, appErrors.ErrDependencyUnavailable.Status, "failed to load base price")
	}
	if base == nil {
		s.logger.Debug("offering has no price", zap.String("type", string(offeringType)), zap.String("offering_id", offeringID))
		return 0, nil
	}
	return *base, nil
}
