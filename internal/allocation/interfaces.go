package allocation

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/pagination"
)

// Repository persists allocation records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateRecords(ctx context.Context, records []models.AllocationRecord) error
	DeleteByOrder(ctx context.Context, orderID uuid.UUID) error
	LockRecord(ctx context.Context, id uuid.UUID) (*models.AllocationRecord, error)
	LockOrderRecords(ctx context.Context, orderID uuid.UUID, statuses []enums.AllocationStatus, committedOnly bool) ([]models.AllocationRecord, error)
	SaveAllocationState(ctx context.Context, record *models.AllocationRecord) error
	FindWarehouse(ctx context.Context, id uuid.UUID) (*models.Warehouse, error)
	List(ctx context.Context, filters AllocationFilters, params pagination.Params) ([]AllocationSummary, *pagination.Cursor, error)
}
