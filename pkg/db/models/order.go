package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// Order is the sales order header. Its lines seed allocation records.
type Order struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	TenantID    uuid.UUID         `gorm:"column:tenant_id;type:uuid;not null;uniqueIndex:ux_orders_tenant_number,priority:1"`
	OrderNumber string            `gorm:"column:order_number;not null;uniqueIndex:ux_orders_tenant_number,priority:2"`
	Status      enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'draft'"`
	Lines       []OrderLine       `gorm:"foreignKey:OrderID"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
