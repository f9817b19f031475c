package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:orders_repo_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func TestRepositoryLifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	order := &models.Order{
		TenantID:    tenantID,
		OrderNumber: "SO-1",
		Status:      enums.OrderStatusDraft,
		Lines: []models.OrderLine{
			{ProductID: uuid.New(), Quantity: decimal.NewFromInt(2)},
		},
	}
	require.NoError(t, repo.CreateOrder(ctx, order))

	found, err := repo.FindOrder(ctx, tenantID, order.ID)
	require.NoError(t, err)
	require.Len(t, found.Lines, 1)

	_, err = repo.FindOrder(ctx, uuid.New(), order.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	locked, err := repo.LockOrder(ctx, tenantID, order.ID)
	require.NoError(t, err)
	assert.Empty(t, locked.Lines)

	replacement := []models.OrderLine{
		{ProductID: uuid.New(), Quantity: decimal.NewFromInt(1)},
		{ProductID: uuid.New(), Quantity: decimal.NewFromInt(3), IsFreebie: true},
	}
	require.NoError(t, repo.ReplaceLines(ctx, order.ID, replacement))
	require.NoError(t, repo.UpdateStatus(ctx, order.ID, enums.OrderStatusConfirmed))

	found, err = repo.FindOrder(ctx, tenantID, order.ID)
	require.NoError(t, err)
	assert.Len(t, found.Lines, 2)
	assert.Equal(t, enums.OrderStatusConfirmed, found.Status)
}

func TestRepositoryWithTxRollback(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		order := &models.Order{TenantID: tenantID, OrderNumber: "SO-1", Status: enums.OrderStatusDraft}
		require.NoError(t, repo.WithTx(tx).CreateOrder(ctx, order))
		return gorm.ErrInvalidTransaction
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}
