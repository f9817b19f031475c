package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// AllocationRecord tracks required vs. committed stock for one order line.
type AllocationRecord struct {
	ID                uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	TenantID          uuid.UUID              `gorm:"column:tenant_id;type:uuid;not null;index"`
	OrderID           uuid.UUID              `gorm:"column:order_id;type:uuid;not null;index"`
	OrderLineID       uuid.UUID              `gorm:"column:order_line_id;type:uuid;not null"`
	ProductID         uuid.UUID              `gorm:"column:product_id;type:uuid;not null"`
	RequiredQuantity  decimal.Decimal        `gorm:"column:required_quantity;type:numeric(18,4);not null"`
	AllocatedQuantity decimal.Decimal        `gorm:"column:allocated_quantity;type:numeric(18,4);not null"`
	WarehouseID       *uuid.UUID             `gorm:"column:warehouse_id;type:uuid"`
	LotID             *uuid.UUID             `gorm:"column:lot_id;type:uuid"`
	Status            enums.AllocationStatus `gorm:"column:status;type:allocation_status;not null;default:'pending'"`
	AllocatedAt       *time.Time             `gorm:"column:allocated_at"`
	ReleasedAt        *time.Time             `gorm:"column:released_at"`
	CreatedAt         time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

// IsSatisfied reports whether the record already commits its full requirement to a lot.
func (a AllocationRecord) IsSatisfied() bool {
	return a.Status == enums.AllocationStatusAllocated &&
		a.LotID != nil &&
		a.AllocatedQuantity.GreaterThanOrEqual(a.RequiredQuantity)
}
