package allocation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// AllocateInput drives a manual allocation of a single record.
type AllocateInput struct {
	AllocationID       uuid.UUID
	WarehouseID        uuid.UUID
	TenantID           uuid.UUID
	DesiredQuantity    *decimal.Decimal
	PreferredLot       *string
	AllowNegativeStock bool
}

// AllocationResult reports the lot committed to a record.
type AllocationResult struct {
	AllocationID      uuid.UUID       `json:"allocation_id"`
	LotNumber         *string         `json:"lot_number"`
	AllocatedQuantity decimal.Decimal `json:"allocated_quantity"`
	Overcommitted     bool            `json:"overcommitted"`
}

// ReleaseSummary reports the stock handed back by a release.
type ReleaseSummary struct {
	AllocationID     uuid.UUID       `json:"allocation_id"`
	ReleasedQuantity decimal.Decimal `json:"released_quantity"`
	LotNumber        *string         `json:"lot_number"`
}

// LineFailure identifies an order line the batch could not satisfy.
type LineFailure struct {
	AllocationID     uuid.UUID       `json:"allocation_id"`
	ProductID        uuid.UUID       `json:"product_id"`
	RequiredQuantity decimal.Decimal `json:"required_quantity"`
}

func (f LineFailure) Error() string {
	return fmt.Sprintf("insufficient stock for allocation %s (product %s, required %s)",
		f.AllocationID, f.ProductID, f.RequiredQuantity.String())
}

// AllocationFilters narrows the allocation list.
type AllocationFilters struct {
	TenantID uuid.UUID
	OrderID  *uuid.UUID
	Status   *enums.AllocationStatus
}

// AllocationSummary is one row of the allocation list.
type AllocationSummary struct {
	ID                uuid.UUID              `json:"id"`
	OrderID           uuid.UUID              `json:"order_id"`
	OrderLineID       uuid.UUID              `json:"order_line_id"`
	ProductID         uuid.UUID              `json:"product_id"`
	RequiredQuantity  decimal.Decimal        `json:"required_quantity"`
	AllocatedQuantity decimal.Decimal        `json:"allocated_quantity"`
	WarehouseID       *uuid.UUID             `json:"warehouse_id,omitempty"`
	LotID             *uuid.UUID             `json:"lot_id,omitempty"`
	LotNumber         *string                `json:"lot_number,omitempty"`
	Status            enums.AllocationStatus `json:"status"`
	AllocatedAt       *time.Time             `json:"allocated_at,omitempty"`
	ReleasedAt        *time.Time             `json:"released_at,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
}

// AllocationList is a cursor page of allocation records.
type AllocationList struct {
	Allocations []AllocationSummary `json:"allocations"`
	NextCursor  string              `json:"next_cursor,omitempty"`
}
