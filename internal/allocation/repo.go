package allocation

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an allocation record repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateRecords(ctx context.Context, records []models.AllocationRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&records).Error
}

func (r *repository) DeleteByOrder(ctx context.Context, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Delete(&models.AllocationRecord{}).Error
}

func (r *repository) LockRecord(ctx context.Context, id uuid.UUID) (*models.AllocationRecord, error) {
	var record models.AllocationRecord
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// LockOrderRecords locks the order's records in id order so concurrent
// batches over the same order acquire row locks in a consistent sequence.
func (r *repository) LockOrderRecords(ctx context.Context, orderID uuid.UUID, statuses []enums.AllocationStatus, committedOnly bool) ([]models.AllocationRecord, error) {
	q := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ?", orderID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if committedOnly {
		q = q.Where("allocated_quantity > ?", 0)
	}
	var records []models.AllocationRecord
	if err := q.Order("id ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// SaveAllocationState writes the mutable allocation columns, including
// explicit NULLs for a cleared lot or warehouse.
func (r *repository) SaveAllocationState(ctx context.Context, record *models.AllocationRecord) error {
	updates := map[string]any{
		"allocated_quantity": record.AllocatedQuantity,
		"status":             record.Status,
		"warehouse_id":       nil,
		"lot_id":             nil,
		"allocated_at":       nil,
		"released_at":        nil,
	}
	if record.WarehouseID != nil {
		updates["warehouse_id"] = *record.WarehouseID
	}
	if record.LotID != nil {
		updates["lot_id"] = *record.LotID
	}
	if record.AllocatedAt != nil {
		updates["allocated_at"] = *record.AllocatedAt
	}
	if record.ReleasedAt != nil {
		updates["released_at"] = *record.ReleasedAt
	}
	return r.db.WithContext(ctx).
		Model(&models.AllocationRecord{}).
		Where("id = ?", record.ID).
		Updates(updates).Error
}

func (r *repository) FindWarehouse(ctx context.Context, id uuid.UUID) (*models.Warehouse, error) {
	var warehouse models.Warehouse
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&warehouse).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &warehouse, nil
}

type allocationRow struct {
	models.AllocationRecord
	LotNumber *string `gorm:"column:lot_number"`
}

func (r *repository) List(ctx context.Context, filters AllocationFilters, params pagination.Params) ([]AllocationSummary, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).
		Table("allocation_records AS ar").
		Select("ar.*, l.lot_number AS lot_number").
		Joins("LEFT JOIN lots l ON l.id = ar.lot_id").
		Where("ar.tenant_id = ?", filters.TenantID)
	if filters.OrderID != nil {
		query = query.Where("ar.order_id = ?", *filters.OrderID)
	}
	if filters.Status != nil {
		query = query.Where("ar.status = ?", *filters.Status)
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, nil, err
	}
	if cursor != nil {
		query = query.Where("(ar.created_at < ?) OR (ar.created_at = ? AND ar.id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []allocationRow
	if err := query.Order("ar.created_at DESC, ar.id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	var next *pagination.Cursor
	if len(rows) > normalized {
		last := rows[normalized-1]
		next = &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
		rows = rows[:normalized]
	}

	out := make([]AllocationSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, AllocationSummary{
			ID:                row.ID,
			OrderID:           row.OrderID,
			OrderLineID:       row.OrderLineID,
			ProductID:         row.ProductID,
			RequiredQuantity:  row.RequiredQuantity,
			AllocatedQuantity: row.AllocatedQuantity,
			WarehouseID:       row.WarehouseID,
			LotID:             row.LotID,
			LotNumber:         row.LotNumber,
			Status:            row.Status,
			AllocatedAt:       row.AllocatedAt,
			ReleasedAt:        row.ReleasedAt,
			CreatedAt:         row.CreatedAt,
		})
	}
	return out, next, nil
}
