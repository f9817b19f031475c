package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// Lot is a dated batch of one product received into one warehouse.
// QuantityReceived never changes after receipt; QuantityRemaining is moved
// only by the allocation engine and may drop below zero under overcommit.
type Lot struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ProductID         uuid.UUID       `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_lots_product_warehouse_number,priority:1"`
	WarehouseID       uuid.UUID       `gorm:"column:warehouse_id;type:uuid;not null;uniqueIndex:ux_lots_product_warehouse_number,priority:2"`
	LotNumber         string          `gorm:"column:lot_number;not null;uniqueIndex:ux_lots_product_warehouse_number,priority:3"`
	PurchaseDate      time.Time       `gorm:"column:purchase_date;not null"`
	Status            enums.LotStatus `gorm:"column:status;type:lot_status;not null;default:'active'"`
	QuantityReceived  decimal.Decimal `gorm:"column:quantity_received;type:numeric(18,4);not null"`
	QuantityRemaining decimal.Decimal `gorm:"column:quantity_remaining;type:numeric(18,4);not null"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
