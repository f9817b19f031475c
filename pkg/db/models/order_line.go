package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderLine is a single product quantity on an order.
type OrderLine struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID     uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Quantity      decimal.Decimal `gorm:"column:quantity;type:numeric(18,4);not null"`
	IsFreebie     bool            `gorm:"column:is_freebie;not null;default:false"`
	IsPromotional bool            `gorm:"column:is_promotional;not null;default:false"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// RequiresStock reports whether the line needs an allocation record.
func (l OrderLine) RequiresStock() bool {
	return !l.IsFreebie && !l.IsPromotional
}
