package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// Repository defines persistence operations for orders and their lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	FindOrder(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error)
	LockOrder(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error)
	ReplaceLines(ctx context.Context, orderID uuid.UUID, lines []models.OrderLine) error
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error
}
