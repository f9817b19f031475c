package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// OrderStatusChangedEvent is emitted after an order transition commits.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	From        enums.OrderStatus `json:"from"`
	To          enums.OrderStatus `json:"to"`
	WarehouseID *uuid.UUID        `json:"warehouse_id,omitempty"`
}

// LineAllocatedEvent reports a lot committed to a single order line.
type LineAllocatedEvent struct {
	AllocationID      uuid.UUID       `json:"allocation_id"`
	OrderID           uuid.UUID       `json:"order_id"`
	OrderLineID       uuid.UUID       `json:"order_line_id"`
	ProductID         uuid.UUID       `json:"product_id"`
	WarehouseID       uuid.UUID       `json:"warehouse_id"`
	LotNumber         *string         `json:"lot_number,omitempty"`
	AllocatedQuantity decimal.Decimal `json:"allocated_quantity"`
	Overcommitted     bool            `json:"overcommitted"`
}

// LineReleasedEvent reports stock handed back from a single order line.
type LineReleasedEvent struct {
	AllocationID     uuid.UUID              `json:"allocation_id"`
	OrderID          uuid.UUID              `json:"order_id"`
	ReleasedQuantity decimal.Decimal        `json:"released_quantity"`
	LotNumber        *string                `json:"lot_number,omitempty"`
	Status           enums.AllocationStatus `json:"status"`
}

// OrderAllocatedEvent summarises a completed order-level allocation batch.
type OrderAllocatedEvent struct {
	OrderID     uuid.UUID            `json:"order_id"`
	WarehouseID uuid.UUID            `json:"warehouse_id"`
	Lines       []LineAllocationItem `json:"lines"`
	AllocatedAt time.Time            `json:"allocated_at"`
}

// LineAllocationItem is one entry of OrderAllocatedEvent.
type LineAllocationItem struct {
	AllocationID      uuid.UUID       `json:"allocation_id"`
	LotNumber         *string         `json:"lot_number,omitempty"`
	AllocatedQuantity decimal.Decimal `json:"allocated_quantity"`
}

// OrderReleasedEvent summarises an order-level release batch.
type OrderReleasedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	Lines      []LineReleaseItem `json:"lines"`
	ReleasedAt time.Time         `json:"released_at"`
}

// LineReleaseItem is one entry of OrderReleasedEvent.
type LineReleaseItem struct {
	AllocationID     uuid.UUID       `json:"allocation_id"`
	ReleasedQuantity decimal.Decimal `json:"released_quantity"`
	LotNumber        *string         `json:"lot_number,omitempty"`
}
