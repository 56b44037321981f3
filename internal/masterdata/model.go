// Package masterdata provides read access to the reference entities the
// document engine depends on: articles, warehouses and unit conversions.
// Administration of these entities lives in the back-office, not here.
package masterdata

import (
	"time"

	"github.com/shopspring/decimal"
)

// Article is a sellable or purchasable item.
type Article struct {
	ID         int64           `json:"id"`
	Code       string          `json:"code"`
	Name       string          `json:"name"`
	CategoryID int64           `json:"category_id"`
	BaseCost   decimal.Decimal `json:"base_cost"`
	// PurchaseUnitFactor converts one purchase unit into stock units.
	// Zero or negative means both units coincide.
	PurchaseUnitFactor decimal.Decimal `json:"purchase_unit_factor"`
	DefaultWarehouseID int64           `json:"default_warehouse_id"`
	Active             bool            `json:"active"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Warehouse is a physical stock location.
type Warehouse struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Principal bool      `json:"principal"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
