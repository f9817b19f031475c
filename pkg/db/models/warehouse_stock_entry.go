package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WarehouseStockEntry aggregates on-hand and reserved quantity per
// (warehouse, product, lot). A NULL lot is its own bucket and holds virtual
// overcommit reservations.
type WarehouseStockEntry struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	WarehouseID      uuid.UUID       `gorm:"column:warehouse_id;type:uuid;not null;index:ix_stock_entries_key,priority:1"`
	ProductID        uuid.UUID       `gorm:"column:product_id;type:uuid;not null;index:ix_stock_entries_key,priority:2"`
	LotID            *uuid.UUID      `gorm:"column:lot_id;type:uuid;index:ix_stock_entries_key,priority:3"`
	Quantity         decimal.Decimal `gorm:"column:quantity;type:numeric(18,4);not null"`
	ReservedQuantity decimal.Decimal `gorm:"column:reserved_quantity;type:numeric(18,4);not null"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// AvailableQuantity is on-hand minus reserved.
func (e WarehouseStockEntry) AvailableQuantity() decimal.Decimal {
	return e.Quantity.Sub(e.ReservedQuantity)
}
