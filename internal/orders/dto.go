package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fulfillment-backend/internal/allocation"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// LineInput describes one requested order line.
type LineInput struct {
	ProductID     uuid.UUID
	Quantity      decimal.Decimal
	IsFreebie     bool
	IsPromotional bool
}

// CreateOrderInput carries a new draft order.
type CreateOrderInput struct {
	TenantID    uuid.UUID
	OrderNumber string
	Lines       []LineInput
}

// ReplaceLinesInput swaps the full line set of an editable order.
type ReplaceLinesInput struct {
	TenantID uuid.UUID
	OrderID  uuid.UUID
	Lines    []LineInput
}

// UpdateStatusInput moves an order along its lifecycle. WarehouseID is
// required when entering picking.
type UpdateStatusInput struct {
	TenantID    uuid.UUID
	OrderID     uuid.UUID
	Status      enums.OrderStatus
	WarehouseID *uuid.UUID
}

// OrderLineDTO is the API shape of an order line.
type OrderLineDTO struct {
	ID            uuid.UUID       `json:"id"`
	ProductID     uuid.UUID       `json:"product_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	IsFreebie     bool            `json:"is_freebie"`
	IsPromotional bool            `json:"is_promotional"`
}

// OrderDetail is the API shape of an order with its lines.
type OrderDetail struct {
	ID          uuid.UUID         `json:"id"`
	OrderNumber string            `json:"order_number"`
	Status      enums.OrderStatus `json:"status"`
	Lines       []OrderLineDTO    `json:"lines"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// StatusChangeResult reports the order after a transition plus any stock
// committed or handed back by it.
type StatusChangeResult struct {
	Order       OrderDetail                   `json:"order"`
	Allocations []allocation.AllocationResult `json:"allocations,omitempty"`
	Releases    []allocation.ReleaseSummary   `json:"releases,omitempty"`
}

func toOrderDetail(order *models.Order) OrderDetail {
	lines := make([]OrderLineDTO, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, OrderLineDTO{
			ID:            line.ID,
			ProductID:     line.ProductID,
			Quantity:      line.Quantity,
			IsFreebie:     line.IsFreebie,
			IsPromotional: line.IsPromotional,
		})
	}
	return OrderDetail{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		Lines:       lines,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
}
