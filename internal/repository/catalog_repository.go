package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academy-enrollment-api/internal/models"
)

type catalogTables struct {
	offerings string
	items     string
	itemFK    string
}

var catalogByType = map[models.OfferingType]catalogTables{
	models.OfferingTypeCourse:  {offerings: "course_offerings", items: "courses", itemFK: "course_id"},
	models.OfferingTypePackage: {offerings: "package_offerings", items: "packages", itemFK: "package_id"},
}

// CatalogRepository reads offerings and their parent items. It never writes.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func tablesFor(offeringType models.OfferingType) (catalogTables, error) {
	tables, ok := catalogByType[offeringType]
	if !ok {
		return catalogTables{}, fmt.Errorf("unknown offering type %q", offeringType)
	}
	return tables, nil
}

// GetOffering loads one offering inside the caller's transaction. A missing
// offering surfaces as sql.ErrNoRows.
func (r *CatalogRepository) GetOffering(ctx context.Context, tx *sqlx.Tx, offeringType models.OfferingType, id string) (*models.Offering, error) {
	tables, err := tablesFor(offeringType)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT id, %s AS item_id, cycle_id, group_label, price_override_cents, capacity FROM %s WHERE id = $1`, tables.itemFK, tables.offerings)
	var offering models.Offering
	if err := tx.GetContext(ctx, &offering, query, id); err != nil {
		return nil, err
	}
	offering.Type = offeringType
	return &offering, nil
}

// GetItemBasePrice returns the parent item's base price, nil when the item has
// none. A missing item surfaces as sql.ErrNoRows.
func (r *CatalogRepository) GetItemBasePrice(ctx context.Context, tx *sqlx.Tx, offeringType models.OfferingType, itemID string) (*models.Money, error) {
	tables, err := tablesFor(offeringType)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT base_price_cents FROM %s WHERE id = $1`, tables.items)
	var price *models.Money
	if err := tx.GetContext(ctx, &price, query, itemID); err != nil {
		return nil, err
	}
	return price, nil
}
